package job

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

type stubAccountRepo struct {
	accounts     []*models.SocialAccount
	disconnected map[int64]string
}

func (s *stubAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	return 0, nil
}
func (s *stubAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return nil, nil
}
func (s *stubAccountRepo) ListInfoByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}
func (s *stubAccountRepo) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}
func (s *stubAccountRepo) ListWorkspaceIDs(ctx context.Context) ([]int64, error) {
	return []int64{1}, nil
}
func (s *stubAccountRepo) ListConnectedByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	var out []*models.SocialAccount
	for _, a := range s.accounts {
		if a.WorkspaceID == workspaceID && a.AccountStatus == models.AccountStatusConnected {
			out = append(out, a)
		}
	}
	return out, nil
}
func (s *stubAccountRepo) CheckByWorkspaceID(ctx context.Context, accountID, workspaceID int64) (bool, error) {
	return false, nil
}
func (s *stubAccountRepo) SetToken(ctx context.Context, accountID int64, oldAccessToken, accessToken, refreshToken string, expiresAt *time.Time) error {
	return nil
}
func (s *stubAccountRepo) Disconnect(ctx context.Context, accountID int64, errorMessage string) (bool, error) {
	if _, ok := s.disconnected[accountID]; ok {
		return false, nil
	}
	s.disconnected[accountID] = errorMessage
	return true, nil
}
func (s *stubAccountRepo) Reconnect(ctx context.Context, accountID int64) error { return nil }
func (s *stubAccountRepo) Remove(ctx context.Context, id int64) error           { return nil }

type stubVerifyPublisher struct {
	platform string
	err      error
}

func (s *stubVerifyPublisher) Platform() string { return s.platform }
func (s *stubVerifyPublisher) Publish(ctx context.Context, req *platform.PublishRequest) (*platform.PublishResult, error) {
	return nil, nil
}
func (s *stubVerifyPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	return s.err
}

type countingNotifier struct {
	disconnected int
}

func (c *countingNotifier) AccountDisconnected(ctx context.Context, userID int64, acc *models.SocialAccount, reason string) {
	c.disconnected++
}
func (c *countingNotifier) PostFailed(ctx context.Context, userID int64, post *models.Post) {}

func TestVerifyAccountsDisconnectsOnAuthFailure(t *testing.T) {
	repo := &stubAccountRepo{
		accounts: []*models.SocialAccount{
			{ID: 1, WorkspaceID: 1, Platform: "linkedin", AccountStatus: models.AccountStatusConnected},
			{ID: 2, WorkspaceID: 1, Platform: "mastodon", AccountStatus: models.AccountStatusConnected},
		},
		disconnected: make(map[int64]string),
	}

	registry := platform.NewRegistry(
		&stubVerifyPublisher{platform: "linkedin", err: &platform.TokenExpiredError{Message: "revoked", Code: 401}},
		&stubVerifyPublisher{platform: "mastodon"},
	)
	notifier := &countingNotifier{}

	j := NewVerifierJob(repo, registry, notifier)
	j.VerifyAccounts()

	assert.Equal(t, map[int64]string{1: "revoked"}, repo.disconnected)
	assert.Equal(t, 1, notifier.disconnected)
}

func TestVerifyAccountsLeavesAccountOnTransientError(t *testing.T) {
	repo := &stubAccountRepo{
		accounts: []*models.SocialAccount{
			{ID: 1, WorkspaceID: 1, Platform: "linkedin", AccountStatus: models.AccountStatusConnected},
		},
		disconnected: make(map[int64]string),
	}

	registry := platform.NewRegistry(
		&stubVerifyPublisher{platform: "linkedin", err: errors.New("connection refused")},
	)
	notifier := &countingNotifier{}

	j := NewVerifierJob(repo, registry, notifier)
	j.VerifyAccounts()

	assert.Empty(t, repo.disconnected)
	assert.Zero(t, notifier.disconnected)
}
