package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type AssignmentRepository interface {
	Create(ctx context.Context, tx *sql.Tx, a *models.PostPlatformAssignment) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.PostPlatformAssignment, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostPlatformAssignment, error)
	ListEnabledByPostID(ctx context.Context, postID int64) ([]*models.PostPlatformAssignment, error)
	MarkPublishing(ctx context.Context, id int64) (bool, error)
	MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	ListStuckPublishing(ctx context.Context, olderThan time.Time) ([]*models.PostPlatformAssignment, error)
}

type assignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

const assignmentColumns = `id, post_id, account_id, platform, enabled, content, status, platform_post_id, platform_url, error_message, published_at, created_at, updated_at`

func scanAssignment(row interface {
	Scan(dest ...interface{}) error
}) (*models.PostPlatformAssignment, error) {
	var a models.PostPlatformAssignment
	var publishedAt sql.NullTime
	err := row.Scan(&a.ID, &a.PostID, &a.AccountID, &a.Platform, &a.Enabled, &a.Content,
		&a.Status, &a.PlatformPostID, &a.PlatformURL, &a.ErrorMessage, &publishedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		a.PublishedAt = &publishedAt.Time
	}
	return &a, nil
}

func (r *assignmentRepository) Create(ctx context.Context, tx *sql.Tx, a *models.PostPlatformAssignment) (int64, error) {
	query := `
		INSERT INTO post_platform_assignments (post_id, account_id, platform, enabled, content, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, a.PostID, a.AccountID, a.Platform, a.Enabled, a.Content, models.AssignmentStatusPending).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, a.PostID, a.AccountID, a.Platform, a.Enabled, a.Content, models.AssignmentStatusPending).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id int64) (*models.PostPlatformAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM post_platform_assignments WHERE id = $1`
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

func (r *assignmentRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostPlatformAssignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM post_platform_assignments WHERE post_id = $1 ORDER BY id`, postID)
}

func (r *assignmentRepository) ListEnabledByPostID(ctx context.Context, postID int64) ([]*models.PostPlatformAssignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM post_platform_assignments WHERE post_id = $1 AND enabled = TRUE ORDER BY id`, postID)
}

func (r *assignmentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.PostPlatformAssignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var assignments []*models.PostPlatformAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// MarkPublishing is guarded so a terminal assignment can never move back:
// pending -> publishing only, with publishing -> publishing allowed for
// task redelivery.
func (r *assignmentRepository) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE post_platform_assignments
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $1)
	`
	result, err := r.db.ExecContext(ctx, query, models.AssignmentStatusPublishing, time.Now(), id, models.AssignmentStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *assignmentRepository) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time) error {
	query := `
		UPDATE post_platform_assignments
		SET status = $1, platform_post_id = $2, platform_url = $3, error_message = '', published_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	_, err := r.db.ExecContext(ctx, query, models.AssignmentStatusPublished, platformPostID, platformURL,
		publishedAt, time.Now(), id, models.AssignmentStatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *assignmentRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE post_platform_assignments
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND status IN ($5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, models.AssignmentStatusFailed, errorMessage, time.Now(), id,
		models.AssignmentStatusPending, models.AssignmentStatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListStuckPublishing finds assignments sitting in publishing with no live
// task, so the reconciliation sweep can re-queue them.
func (r *assignmentRepository) ListStuckPublishing(ctx context.Context, olderThan time.Time) ([]*models.PostPlatformAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM post_platform_assignments WHERE status = $1 AND updated_at < $2`
	return r.list(ctx, query, models.AssignmentStatusPublishing, olderThan)
}
