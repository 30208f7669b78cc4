package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type SocialAccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	ListInfoByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error)
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.SocialAccount, error)
	ListWorkspaceIDs(ctx context.Context) ([]int64, error)
	ListConnectedByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error)
	CheckByWorkspaceID(ctx context.Context, accountID, workspaceID int64) (bool, error)
	SetToken(ctx context.Context, accountID int64, oldAccessToken, accessToken, refreshToken string, expiresAt *time.Time) error
	Disconnect(ctx context.Context, accountID int64, errorMessage string) (bool, error)
	Reconnect(ctx context.Context, accountID int64) error
	Remove(ctx context.Context, id int64) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const socialAccountColumns = `id, workspace_id, platform, account_id, account_name, account_username, profile_picture_url, server_url, access_token, refresh_token, token_expires_at, account_status, error_message, disconnected_at, created_at, updated_at`

func scanSocialAccount(row interface {
	Scan(dest ...interface{}) error
}) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	var expiresAt, disconnectedAt sql.NullTime
	err := row.Scan(&sa.ID, &sa.WorkspaceID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccountUsername, &sa.ProfilePicture, &sa.ServerURL, &sa.AccessToken, &sa.RefreshToken,
		&expiresAt, &sa.AccountStatus, &sa.ErrorMessage, &disconnectedAt, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		sa.TokenExpiresAt = &expiresAt.Time
	}
	if disconnectedAt.Valid {
		sa.DisconnectedAt = &disconnectedAt.Time
	}
	return &sa, nil
}

func (r *socialAccountRepository) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	insertQuery := `
		INSERT INTO social_accounts(
			workspace_id,
			platform,
			account_id,
			account_name,
			account_username,
			profile_picture_url,
			server_url,
			access_token,
			refresh_token,
			token_expires_at,
			account_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var expiresAt interface{}
	if sa.TokenExpiresAt != nil {
		expiresAt = *sa.TokenExpiresAt
	}

	status := sa.AccountStatus
	if status == "" {
		status = models.AccountStatusConnected
	}

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, insertQuery, sa.WorkspaceID, sa.Platform, sa.AccountID, sa.AccountName,
			sa.AccountUsername, sa.ProfilePicture, sa.ServerURL, sa.AccessToken, sa.RefreshToken, expiresAt, status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, insertQuery, sa.WorkspaceID, sa.Platform, sa.AccountID, sa.AccountName,
			sa.AccountUsername, sa.ProfilePicture, sa.ServerURL, sa.AccessToken, sa.RefreshToken, expiresAt, status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE id = $1`
	sa, err := scanSocialAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sa, nil
}

// ListInfoByWorkspaceID returns display fields only; token columns never
// leave the repository through this path.
func (r *socialAccountRepository) ListInfoByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	query := `SELECT id, platform, account_name, account_username, profile_picture_url, account_status, error_message FROM social_accounts WHERE workspace_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		var sa models.SocialAccount
		err := rows.Scan(&sa.ID, &sa.Platform, &sa.AccountName, &sa.AccountUsername, &sa.ProfilePicture, &sa.AccountStatus, &sa.ErrorMessage)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &sa)
	}
	return accounts, rows.Err()
}

// ListExpiringBefore feeds the proactive refresh sweep: connected accounts
// whose expiry is set and earlier than the cutoff, already-expired included.
func (r *socialAccountRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + `
		FROM social_accounts
		WHERE account_status = $1
		AND token_expires_at IS NOT NULL
		AND token_expires_at < $2`
	return r.list(ctx, query, models.AccountStatusConnected, cutoff)
}

func (r *socialAccountRepository) ListWorkspaceIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT workspace_id FROM social_accounts`)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *socialAccountRepository) ListConnectedByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE workspace_id = $1 AND account_status = $2`
	return r.list(ctx, query, workspaceID, models.AccountStatusConnected)
}

func (r *socialAccountRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanSocialAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, sa)
	}
	return accounts, rows.Err()
}

func (r *socialAccountRepository) CheckByWorkspaceID(ctx context.Context, accountID, workspaceID int64) (bool, error) {
	query := `SELECT 1 FROM social_accounts WHERE id = $1 AND workspace_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, workspaceID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// SetToken is compare-and-set against the old encrypted access token. A
// refresher working from a stale token finds zero rows and must not clobber
// the newer pair written by whoever won.
func (r *socialAccountRepository) SetToken(ctx context.Context, accountID int64, oldAccessToken, accessToken, refreshToken string, expiresAt *time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	var expires interface{}
	if expiresAt != nil {
		expires = *expiresAt
	}

	updateTokenQuery := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2
	`
	result, err := tx.ExecContext(ctx, updateTokenQuery, accountID, oldAccessToken, accessToken, refreshToken, expires)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("token already replaced by a concurrent refresh")
		return errors.New("token already replaced by a concurrent refresh")
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Disconnect marks the account disconnected under a row lock and reports
// whether this call made the transition. Concurrent failures racing to
// disconnect the same account see false and skip the owner notification.
func (r *socialAccountRepository) Disconnect(ctx context.Context, accountID int64, errorMessage string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT account_status FROM social_accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&status)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	if status == models.AccountStatusDisconnected {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE social_accounts
		SET account_status = $1, error_message = $2, disconnected_at = $3, updated_at = $3
		WHERE id = $4
	`, models.AccountStatusDisconnected, errorMessage, time.Now(), accountID)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return true, nil
}

func (r *socialAccountRepository) Reconnect(ctx context.Context, accountID int64) error {
	query := `
		UPDATE social_accounts
		SET account_status = $1, error_message = '', disconnected_at = NULL, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, models.AccountStatusConnected, time.Now(), accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialAccountRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM social_accounts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
