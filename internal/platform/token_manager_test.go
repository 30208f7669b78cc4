package platform

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

func testConfig() config.Config {
	return config.Config{
		SecretKey:            testSecretKey,
		LinkedinClientID:     "client-id",
		LinkedinClientSecret: "client-secret",
	}
}

// fakeAccountRepo records SetToken calls; the other methods are unused by the
// token manager.
type fakeAccountRepo struct {
	setTokenCalls int
	lastOldToken  string
	lastExpiresAt *time.Time
	setTokenErr   error
}

func (f *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	return 0, nil
}
func (f *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return nil, nil
}
func (f *fakeAccountRepo) ListInfoByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}
func (f *fakeAccountRepo) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}
func (f *fakeAccountRepo) ListWorkspaceIDs(ctx context.Context) ([]int64, error) { return nil, nil }
func (f *fakeAccountRepo) ListConnectedByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}
func (f *fakeAccountRepo) CheckByWorkspaceID(ctx context.Context, accountID, workspaceID int64) (bool, error) {
	return false, nil
}
func (f *fakeAccountRepo) SetToken(ctx context.Context, accountID int64, oldAccessToken, accessToken, refreshToken string, expiresAt *time.Time) error {
	f.setTokenCalls++
	f.lastOldToken = oldAccessToken
	f.lastExpiresAt = expiresAt
	return f.setTokenErr
}
func (f *fakeAccountRepo) Disconnect(ctx context.Context, accountID int64, errorMessage string) (bool, error) {
	return false, nil
}
func (f *fakeAccountRepo) Reconnect(ctx context.Context, accountID int64) error { return nil }
func (f *fakeAccountRepo) Remove(ctx context.Context, id int64) error           { return nil }

func encrypted(t *testing.T, plaintext string) string {
	t.Helper()
	out, err := utils.Encrypt([]byte(plaintext), []byte(testSecretKey))
	require.NoError(t, err)
	return out
}

func futureTime(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

func TestIsExpiringSoon(t *testing.T) {
	m := NewTokenManager(testConfig(), &fakeAccountRepo{})

	assert.False(t, m.IsExpiringSoon(&models.SocialAccount{TokenExpiresAt: nil}))
	assert.False(t, m.IsExpiringSoon(&models.SocialAccount{TokenExpiresAt: futureTime(2 * time.Hour)}))
	assert.True(t, m.IsExpiringSoon(&models.SocialAccount{TokenExpiresAt: futureTime(10 * time.Minute)}))
	assert.True(t, m.IsExpiringSoon(&models.SocialAccount{TokenExpiresAt: futureTime(-time.Minute)}))
}

func TestEnsureFreshSkipsRefreshForHealthyToken(t *testing.T) {
	repo := &fakeAccountRepo{}
	m := NewTokenManager(testConfig(), repo)

	acc := &models.SocialAccount{
		ID:             1,
		Platform:       PlatformLinkedin,
		AccessToken:    encrypted(t, "current-token"),
		TokenExpiresAt: futureTime(3 * time.Hour),
	}

	token, err := m.EnsureFresh(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "current-token", token)
	assert.Zero(t, repo.setTokenCalls)
}

func TestEnsureFreshRefreshesExpiredLinkedinToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		assert.Equal(t, "client-id", r.Form.Get("client_id"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-token",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	repo := &fakeAccountRepo{}
	m := NewTokenManager(testConfig(), repo)
	m.SetEndpoint(PlatformLinkedin, server.URL)

	oldEncrypted := encrypted(t, "old-token")
	acc := &models.SocialAccount{
		ID:             1,
		Platform:       PlatformLinkedin,
		AccessToken:    oldEncrypted,
		RefreshToken:   encrypted(t, "old-refresh"),
		TokenExpiresAt: futureTime(-time.Minute),
	}

	token, err := m.EnsureFresh(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "new-token", token)

	// persisted with compare-and-set against the previous ciphertext
	assert.Equal(t, 1, repo.setTokenCalls)
	assert.Equal(t, oldEncrypted, repo.lastOldToken)
	require.NotNil(t, repo.lastExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *repo.lastExpiresAt, time.Minute)

	// in-memory account carries the new pair
	got, err := utils.Decrypt(acc.AccessToken, []byte(testSecretKey))
	require.NoError(t, err)
	assert.Equal(t, "new-token", got)
}

func TestRefreshIsNoopForLongLivedPlatforms(t *testing.T) {
	repo := &fakeAccountRepo{}
	m := NewTokenManager(testConfig(), repo)

	for _, p := range []string{PlatformFacebook, PlatformInstagram, PlatformMastodon} {
		acc := &models.SocialAccount{ID: 1, Platform: p, AccessToken: encrypted(t, "token")}
		require.NoError(t, m.Refresh(context.Background(), acc))
	}
	assert.Zero(t, repo.setTokenCalls)
}

func TestRefreshPropagatesLostCompareAndSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new-token",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	repo := &fakeAccountRepo{setTokenErr: errors.New("token already replaced by a concurrent refresh")}
	m := NewTokenManager(testConfig(), repo)
	m.SetEndpoint(PlatformLinkedin, server.URL)

	acc := &models.SocialAccount{
		ID:             1,
		Platform:       PlatformLinkedin,
		AccessToken:    encrypted(t, "old-token"),
		RefreshToken:   encrypted(t, "old-refresh"),
		TokenExpiresAt: futureTime(-time.Minute),
	}

	err := m.Refresh(context.Background(), acc)
	assert.Error(t, err)
}

func TestRefreshFailureSurfacesTokenRefreshError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	}))
	defer server.Close()

	m := NewTokenManager(testConfig(), &fakeAccountRepo{})
	m.SetEndpoint(PlatformLinkedin, server.URL)

	acc := &models.SocialAccount{
		ID:             1,
		Platform:       PlatformLinkedin,
		AccessToken:    encrypted(t, "old-token"),
		RefreshToken:   encrypted(t, "old-refresh"),
		TokenExpiresAt: futureTime(-time.Minute),
	}

	err := m.Refresh(context.Background(), acc)
	require.Error(t, err)

	var refreshErr *TokenRefreshError
	assert.ErrorAs(t, err, &refreshErr)
}
