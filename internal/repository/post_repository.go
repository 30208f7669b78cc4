package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Post, error)
	MarkPublishing(ctx context.Context, postID int64) (bool, error)
	UpdateStatus(ctx context.Context, status string, postID int64) error
	Finalize(ctx context.Context, postID int64) (*models.Post, bool, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, workspace_id, user_id, post_type, caption, title, status, scheduled_at, published_at, created_at, updated_at`

func scanPost(row interface {
	Scan(dest ...interface{}) error
}) (*models.Post, error) {
	var post models.Post
	var scheduledAt, publishedAt sql.NullTime
	err := row.Scan(&post.ID, &post.WorkspaceID, &post.UserID, &post.PostType, &post.Caption,
		&post.Title, &post.Status, &scheduledAt, &publishedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		post.ScheduledAt = &scheduledAt.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (workspace_id, user_id, post_type, caption, title, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var scheduledAt interface{}
	if post.ScheduledAt != nil {
		scheduledAt = *post.ScheduledAt
	}

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.WorkspaceID, post.UserID, post.PostType, post.Caption, post.Title, post.Status, scheduledAt).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.WorkspaceID, post.UserID, post.PostType, post.Caption, post.Title, post.Status, scheduledAt).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2`
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// MarkPublishing moves a post into publishing. The status guard makes the
// transition happen once even when the fan-out task is delivered twice.
func (r *postRepository) MarkPublishing(ctx context.Context, postID int64) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, time.Now(), postID,
		models.PostStatusScheduled, models.PostStatusDraft)
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

func (r *postRepository) UpdateStatus(ctx context.Context, status string, postID int64) error {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Finalize re-evaluates the post's terminal status from its enabled
// assignments. The post row is locked for the read-then-decide so two
// assignments settling at the same time cannot both see an unfinished count
// and skip the terminal write. Safe to call any number of times; the bool
// reports whether this call made the terminal transition.
func (r *postRepository) Finalize(ctx context.Context, postID int64) (*models.Post, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, false, err
	}
	defer tx.Rollback()

	post, err := scanPost(tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1 FOR UPDATE`, postID))
	if err != nil {
		slog.Info(err.Error())
		return nil, false, err
	}

	// already settled; nothing to re-decide
	if post.Status == models.PostStatusPublished ||
		post.Status == models.PostStatusPartiallyPublished ||
		post.Status == models.PostStatusFailed {
		return post, false, tx.Commit()
	}

	var total, published, failed int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM post_platform_assignments
		WHERE post_id = $1 AND enabled = TRUE
	`, postID, models.AssignmentStatusPublished, models.AssignmentStatusFailed).Scan(&total, &published, &failed)
	if err != nil {
		slog.Info(err.Error())
		return nil, false, err
	}

	if published+failed < total {
		// siblings still in flight
		return post, false, tx.Commit()
	}

	now := time.Now()
	var status string
	var publishedAt interface{}
	switch {
	case total > 0 && published == total:
		status = models.PostStatusPublished
		publishedAt = now
	case published > 0:
		status = models.PostStatusPartiallyPublished
		publishedAt = now
	default:
		status = models.PostStatusFailed
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE posts SET status = $1, published_at = $2, updated_at = $3 WHERE id = $4
	`, status, publishedAt, now, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return nil, false, err
	}

	post.Status = status
	if publishedAt != nil {
		post.PublishedAt = &now
	}
	return post, true, nil
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := `SELECT 1 FROM posts WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
