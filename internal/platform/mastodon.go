package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

// MastodonPublisher posts statuses against the account's home instance.
// Mastodon access tokens do not expire, so there is no refresh flow.
type MastodonPublisher struct {
	cfg     config.Config
	tokens  *TokenManager
	client  *http.Client
	baseURL string
}

func NewMastodonPublisher(cfg config.Config, tokens *TokenManager) *MastodonPublisher {
	return &MastodonPublisher{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// SetBaseURL overrides the instance host for every account, used in tests.
func (p *MastodonPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
}

func (p *MastodonPublisher) instance(acc *models.SocialAccount) string {
	if p.baseURL != "" {
		return p.baseURL
	}
	return acc.ServerURL
}

func (p *MastodonPublisher) Platform() string {
	return PlatformMastodon
}

func (p *MastodonPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformMastodon, req.Post.PostType, req.Media); err != nil {
		return nil, err
	}

	instance := p.instance(req.Account)
	if instance == "" {
		return nil, &ValidationError{Message: "mastodon account has no instance url"}
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	mediaIDs := make([]string, 0, len(req.Media))
	for _, media := range req.Media {
		mediaID, err := p.uploadMedia(ctx, instance, accessToken, media)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	data := url.Values{}
	data.Set("status", req.Caption())
	for _, id := range mediaIDs {
		data.Add("media_ids[]", id)
	}

	headers := bearer(accessToken)
	headers["Idempotency-Key"] = fmt.Sprintf("postflow-%d", req.Assignment.ID)

	status, body, err := postForm(ctx, p.client, instance+"/api/v1/statuses", headers, data)
	if err != nil {
		return nil, &PublishError{Platform: PlatformMastodon, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return nil, perr
	}

	var result struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &PublishError{Platform: PlatformMastodon, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.ID == "" {
		return nil, &PublishError{Platform: PlatformMastodon, Message: "no status id returned", Code: status}
	}

	return &PublishResult{PostID: result.ID, URL: result.URL}, nil
}

// uploadMedia downloads the stored file and re-uploads it as multipart form
// data; Mastodon has no pull-from-url media API.
func (p *MastodonPublisher) uploadMedia(ctx context.Context, instance, accessToken string, media *models.MediaAsset) (string, error) {
	src, err := http.Get(media.FileURL)
	if err != nil {
		return "", &PublishError{Platform: PlatformMastodon, Message: "fetching media: " + err.Error()}
	}
	defer src.Body.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", media.FileName)
	if err != nil {
		return "", &PublishError{Platform: PlatformMastodon, Message: err.Error()}
	}
	if _, err := io.Copy(part, src.Body); err != nil {
		return "", &PublishError{Platform: PlatformMastodon, Message: "reading media: " + err.Error()}
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", instance+"/api/v2/media", &buf)
	if err != nil {
		return "", &PublishError{Platform: PlatformMastodon, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	status, body, err := do(p.client, req)
	if err != nil {
		return "", &PublishError{Platform: PlatformMastodon, Message: err.Error()}
	}
	// 202 means the instance is still processing the upload; the id is
	// already usable for status creation
	if status != http.StatusOK && status != http.StatusAccepted {
		if perr := p.mapError(status, body); perr != nil {
			return "", perr
		}
	}

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return "", &PublishError{Platform: PlatformMastodon, Message: "malformed media response: " + err.Error(), Code: status}
	}
	if uploaded.ID == "" {
		return "", &PublishError{Platform: PlatformMastodon, Message: "no media id returned", Code: status}
	}

	return uploaded.ID, nil
}

func (p *MastodonPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	instance := p.instance(acc)
	if instance == "" {
		return &ValidationError{Message: "mastodon account has no instance url"}
	}

	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	status, body, err := getJSON(ctx, p.client, instance+"/api/v1/accounts/verify_credentials", bearer(accessToken))
	if err != nil {
		return fmt.Errorf("mastodon verify_credentials: %w", err)
	}
	return p.mapError(status, body)
}

func (p *MastodonPublisher) mapError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &TokenExpiredError{Message: errorMessage(body), Code: status}
	}
	return &PublishError{Platform: PlatformMastodon, Message: errorMessage(body), Code: status}
}
