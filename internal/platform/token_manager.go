package platform

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

// expiringSoonWindow is how close to expiry a token may get before publish
// and verify paths refresh it first.
const expiringSoonWindow = time.Hour

const (
	linkedinTokenURL  = "https://www.linkedin.com/oauth/v2/accessToken"
	xTokenURL         = "https://api.x.com/2/oauth2/token"
	tiktokTokenURL    = "https://open.tiktokapis.com/v2/oauth/token/"
	threadsRefreshURL = "https://graph.threads.net/refresh_access_token"
	pinterestTokenURL = "https://api.pinterest.com/v5/oauth/token"
	blueskyDefaultPDS = "https://bsky.social"
)

// TokenManager decides whether an account's access token is usable and
// refreshes it when not. Each platform has its own refresh grant shape;
// Facebook page tokens, Instagram long-lived tokens and Mastodon tokens have
// no refresh flow and pass through untouched.
type TokenManager struct {
	cfg      config.Config
	accounts repository.SocialAccountRepository
	client   *http.Client

	// refresh endpoint overrides, keyed by platform; tests point these at
	// local servers
	endpoints map[string]string
}

func NewTokenManager(cfg config.Config, accounts repository.SocialAccountRepository) *TokenManager {
	return &TokenManager{
		cfg:       cfg,
		accounts:  accounts,
		client:    &http.Client{Timeout: 30 * time.Second},
		endpoints: make(map[string]string),
	}
}

// SetEndpoint overrides the refresh endpoint for a platform.
func (m *TokenManager) SetEndpoint(platform, endpoint string) {
	m.endpoints[platform] = endpoint
}

func (m *TokenManager) endpoint(platform, fallback string) string {
	if ep, ok := m.endpoints[platform]; ok {
		return ep
	}
	return fallback
}

// IsExpired reports whether the token expiry is set and in the past.
func (m *TokenManager) IsExpired(acc *models.SocialAccount) bool {
	if acc.TokenExpiresAt == nil {
		return false
	}
	return acc.TokenExpiresAt.Before(time.Now())
}

// IsExpiringSoon reports whether the token expiry is set and within one hour.
// Accounts with no expiry never report expiring-soon.
func (m *TokenManager) IsExpiringSoon(acc *models.SocialAccount) bool {
	if acc.TokenExpiresAt == nil {
		return false
	}
	return acc.TokenExpiresAt.Before(time.Now().Add(expiringSoonWindow))
}

// EnsureFresh refreshes the token when expired or expiring soon and returns
// the plaintext access token.
func (m *TokenManager) EnsureFresh(ctx context.Context, acc *models.SocialAccount) (string, error) {
	if m.IsExpired(acc) || m.IsExpiringSoon(acc) {
		if err := m.Refresh(ctx, acc); err != nil {
			return "", err
		}
	}

	return utils.Decrypt(acc.AccessToken, []byte(m.cfg.SecretKey))
}

type tokenUpdate struct {
	accessToken  string
	refreshToken string
	expiresAt    *time.Time
}

// Refresh exchanges the stored refresh token for a new token pair and
// persists it. The update is compare-and-set against the old encrypted access
// token so a concurrently refreshed newer token is never clobbered. The
// in-memory account is updated on success.
func (m *TokenManager) Refresh(ctx context.Context, acc *models.SocialAccount) error {
	var upd *tokenUpdate
	var err error

	switch acc.Platform {
	case PlatformFacebook, PlatformInstagram, PlatformMastodon:
		// long-lived tokens, no refresh flow
		return nil
	case PlatformLinkedin:
		upd, err = m.refreshLinkedin(ctx, acc)
	case PlatformX:
		upd, err = m.refreshX(ctx, acc)
	case PlatformTiktok:
		upd, err = m.refreshTiktok(ctx, acc)
	case PlatformYoutube:
		upd, err = m.refreshYoutube(ctx, acc)
	case PlatformThreads:
		upd, err = m.refreshThreads(ctx, acc)
	case PlatformPinterest:
		upd, err = m.refreshPinterest(ctx, acc)
	case PlatformBluesky:
		upd, err = m.refreshBluesky(ctx, acc)
	default:
		return &TokenRefreshError{Platform: acc.Platform, Message: "no refresh flow registered"}
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return m.persist(ctx, acc, upd)
}

func (m *TokenManager) persist(ctx context.Context, acc *models.SocialAccount, upd *tokenUpdate) error {
	encryptedAccessToken, err := utils.Encrypt([]byte(upd.accessToken), []byte(m.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken := ""
	if upd.refreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(upd.refreshToken), []byte(m.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	oldAccessToken := acc.AccessToken
	if err := m.accounts.SetToken(ctx, acc.ID, oldAccessToken, encryptedAccessToken, encryptedRefreshToken, upd.expiresAt); err != nil {
		slog.Info(err.Error())
		return err
	}

	acc.AccessToken = encryptedAccessToken
	if encryptedRefreshToken != "" {
		acc.RefreshToken = encryptedRefreshToken
	}
	if upd.expiresAt != nil {
		acc.TokenExpiresAt = upd.expiresAt
	}
	return nil
}

func (m *TokenManager) decryptRefreshToken(acc *models.SocialAccount) (string, error) {
	if acc.RefreshToken == "" {
		return "", &TokenRefreshError{Platform: acc.Platform, Message: "no refresh token stored"}
	}
	token, err := utils.Decrypt(acc.RefreshToken, []byte(m.cfg.SecretKey))
	if err != nil {
		return "", &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}
	return token, nil
}

type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *TokenManager) formRefresh(ctx context.Context, acc *models.SocialAccount, endpoint string, data url.Values, headers map[string]string) (*tokenUpdate, error) {
	status, body, err := postForm(ctx, m.client, endpoint, headers, data)
	if err != nil {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}
	if status != http.StatusOK {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: errorMessage(body)}
	}

	var tr oauthTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}
	if tr.AccessToken == "" {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: "no access token in refresh response"}
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return &tokenUpdate{
		accessToken:  tr.AccessToken,
		refreshToken: tr.RefreshToken,
		expiresAt:    &expiresAt,
	}, nil
}

func (m *TokenManager) refreshLinkedin(ctx context.Context, acc *models.SocialAccount) (*tokenUpdate, error) {
	refreshToken, err := m.decryptRefreshToken(acc)
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", m.cfg.LinkedinClientID)
	data.Set("client_secret", m.cfg.LinkedinClientSecret)

	return m.formRefresh(ctx, acc, m.endpoint(PlatformLinkedin, linkedinTokenURL), data, nil)
}

func (m *TokenManager) refreshX(ctx context.Context, acc *models.SocialAccount) (*tokenUpdate, error) {
	refreshToken, err := m.decryptRefreshToken(acc)
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", m.cfg.XClientID)

	basic := base64.StdEncoding.EncodeToString([]byte(m.cfg.XClientID + ":" + m.cfg.XClientSecret))
	headers := map[string]string{"Authorization": "Basic " + basic}

	return m.formRefresh(ctx, acc, m.endpoint(PlatformX, xTokenURL), data, headers)
}

func (m *TokenManager) refreshTiktok(ctx context.Context, acc *models.SocialAccount) (*tokenUpdate, error) {
	refreshToken, err := m.decryptRefreshToken(acc)
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("client_key", m.cfg.TiktokClientKey)
	data.Set("client_secret", m.cfg.TiktokClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	return m.formRefresh(ctx, acc, m.endpoint(PlatformTiktok, tiktokTokenURL), data, nil)
}

func (m *TokenManager) refreshYoutube(ctx context.Context, acc *models.SocialAccount) (*tokenUpdate, error) {
	refreshToken, err := m.decryptRefreshToken(acc)
	if err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     m.cfg.GoogleClientID,
		ClientSecret: m.cfg.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.upload"},
		Endpoint:     google.Endpoint,
	}
	if ep, ok := m.endpoints[PlatformYoutube]; ok {
		conf.Endpoint = oauth2.Endpoint{TokenURL: ep}
	}

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}

	expiresAt := token.Expiry
	return &tokenUpdate{
		accessToken:  token.AccessToken,
		refreshToken: token.RefreshToken,
		expiresAt:    &expiresAt,
	}, nil
}

// Threads refreshes the long-lived token itself; there is no separate
// refresh token.
func (m *TokenManager) refreshThreads(ctx context.Context, acc *models.SocialAccount) (*tokenUpdate, error) {
	accessToken, err := utils.Decrypt(acc.AccessToken, []byte(m.cfg.SecretKey))
	if err != nil {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}

	reqURL := fmt.Sprintf("%s?grant_type=th_refresh_token&access_token=%s",
		m.endpoint(PlatformThreads, threadsRefreshURL), url.QueryEscape(accessToken))

	status, body, err := getJSON(ctx, m.client, reqURL, nil)
	if err != nil {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}
	if status != http.StatusOK {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: errorMessage(body)}
	}

	var tr oauthTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return &tokenUpdate{accessToken: tr.AccessToken, expiresAt: &expiresAt}, nil
}

func (m *TokenManager) refreshPinterest(ctx context.Context, acc *models.SocialAccount) (*tokenUpdate, error) {
	refreshToken, err := m.decryptRefreshToken(acc)
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	basic := base64.StdEncoding.EncodeToString([]byte(m.cfg.PinterestClientID + ":" + m.cfg.PinterestClientSecret))
	headers := map[string]string{"Authorization": "Basic " + basic}

	return m.formRefresh(ctx, acc, m.endpoint(PlatformPinterest, pinterestTokenURL), data, headers)
}

// Bluesky sessions carry an accessJwt/refreshJwt pair; refreshing posts the
// refresh JWT as the bearer.
func (m *TokenManager) refreshBluesky(ctx context.Context, acc *models.SocialAccount) (*tokenUpdate, error) {
	refreshJwt, err := m.decryptRefreshToken(acc)
	if err != nil {
		return nil, err
	}

	pds := acc.ServerURL
	if pds == "" {
		pds = blueskyDefaultPDS
	}
	reqURL := m.endpoint(PlatformBluesky, pds+"/xrpc/com.atproto.server.refreshSession")

	status, body, err := postJSON(ctx, m.client, reqURL, bearer(refreshJwt), struct{}{})
	if err != nil {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}
	if status != http.StatusOK {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: errorMessage(body)}
	}

	var session struct {
		AccessJwt  string `json:"accessJwt"`
		RefreshJwt string `json:"refreshJwt"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: err.Error()}
	}
	if session.AccessJwt == "" {
		return nil, &TokenRefreshError{Platform: acc.Platform, Message: "no access jwt in refresh response"}
	}

	// access JWTs are short-lived
	expiresAt := time.Now().Add(2 * time.Hour)
	return &tokenUpdate{
		accessToken:  session.AccessJwt,
		refreshToken: session.RefreshJwt,
		expiresAt:    &expiresAt,
	}, nil
}
