package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
)

type AssetsRepository interface {
	Create(ctx context.Context, tx *sql.Tx, asset *models.MediaAsset) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.MediaAsset, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.MediaAsset, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error)
	CheckByUserID(ctx context.Context, assetID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type assetsRepository struct {
	db *sql.DB
}

func NewAssetsRepository(db *sql.DB) AssetsRepository {
	return &assetsRepository{db: db}
}

const assetColumns = `id, user_id, file_name, file_type, file_size, file_url, thumbnail_url, created_at`

func scanAsset(row interface {
	Scan(dest ...interface{}) error
}) (*models.MediaAsset, error) {
	var a models.MediaAsset
	err := row.Scan(&a.ID, &a.UserID, &a.FileName, &a.FileType, &a.FileSize, &a.FileURL, &a.ThumbnailURL, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assetsRepository) Create(ctx context.Context, tx *sql.Tx, asset *models.MediaAsset) (int64, error) {
	query := `
		INSERT INTO media_assets (user_id, file_name, file_type, file_size, file_url, thumbnail_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, asset.UserID, asset.FileName, asset.FileType, asset.FileSize, asset.FileURL, asset.ThumbnailURL).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, asset.UserID, asset.FileName, asset.FileType, asset.FileSize, asset.FileURL, asset.ThumbnailURL).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *assetsRepository) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets WHERE id = $1`
	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return asset, nil
}

func (r *assetsRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.MediaAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

// ListByPostID returns the post's media in carousel order.
func (r *assetsRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	query := `
		SELECT m.id, m.user_id, m.file_name, m.file_type, m.file_size, m.file_url, m.thumbnail_url, m.created_at
		FROM media_assets m
		JOIN post_media pm ON pm.asset_id = m.id
		WHERE pm.post_id = $1
		ORDER BY pm.display_order
	`
	return r.list(ctx, query, postID)
}

func (r *assetsRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.MediaAsset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (r *assetsRepository) CheckByUserID(ctx context.Context, assetID, userID int64) (bool, error) {
	query := `SELECT 1 FROM media_assets WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, assetID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *assetsRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM media_assets WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
