package platform

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

const (
	xAPIBase    = "https://api.x.com"
	xUploadBase = "https://upload.twitter.com"
)

type XPublisher struct {
	cfg        config.Config
	tokens     *TokenManager
	client     *http.Client
	baseURL    string
	uploadBase string
}

func NewXPublisher(cfg config.Config, tokens *TokenManager) *XPublisher {
	return &XPublisher{
		cfg:        cfg,
		tokens:     tokens,
		client:     &http.Client{Timeout: 2 * time.Minute},
		baseURL:    xAPIBase,
		uploadBase: xUploadBase,
	}
}

func (p *XPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
	p.uploadBase = baseURL
}

func (p *XPublisher) Platform() string {
	return PlatformX
}

func (p *XPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformX, req.Post.PostType, req.Media); err != nil {
		return nil, err
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"text": req.Caption()}

	if len(req.Media) > 0 {
		mediaIDs := make([]string, 0, len(req.Media))
		for _, media := range req.Media {
			mediaID, err := p.uploadMedia(ctx, accessToken, media)
			if err != nil {
				return nil, err
			}
			mediaIDs = append(mediaIDs, mediaID)
		}
		payload["media"] = map[string]interface{}{"media_ids": mediaIDs}
	}

	status, body, err := postJSON(ctx, p.client, p.baseURL+"/2/tweets", bearer(accessToken), payload)
	if err != nil {
		return nil, &PublishError{Platform: PlatformX, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return nil, perr
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &PublishError{Platform: PlatformX, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.Data.ID == "" {
		return nil, &PublishError{Platform: PlatformX, Message: "no tweet id returned", Code: status}
	}

	return &PublishResult{
		PostID: result.Data.ID,
		URL:    fmt.Sprintf("https://x.com/%s/status/%s", req.Account.AccountUsername, result.Data.ID),
	}, nil
}

// uploadMedia pushes one image through the v1.1 simple upload endpoint.
func (p *XPublisher) uploadMedia(ctx context.Context, accessToken string, media *models.MediaAsset) (string, error) {
	src, err := fetchMedia(ctx, p.client, media.FileURL)
	if err != nil {
		return "", &PublishError{Platform: PlatformX, Message: "fetching media: " + err.Error()}
	}
	defer src.Body.Close()

	raw, err := io.ReadAll(src.Body)
	if err != nil {
		return "", &PublishError{Platform: PlatformX, Message: "reading media: " + err.Error()}
	}

	data := url.Values{}
	data.Set("media_data", base64.StdEncoding.EncodeToString(raw))

	status, body, err := postForm(ctx, p.client, p.uploadBase+"/1.1/media/upload.json", bearer(accessToken), data)
	if err != nil {
		return "", &PublishError{Platform: PlatformX, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return "", perr
	}

	var uploaded struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return "", &PublishError{Platform: PlatformX, Message: "malformed upload response: " + err.Error(), Code: status}
	}
	if uploaded.MediaIDString == "" {
		return "", &PublishError{Platform: PlatformX, Message: "no media id returned", Code: status}
	}

	return uploaded.MediaIDString, nil
}

func (p *XPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	status, body, err := getJSON(ctx, p.client, p.baseURL+"/2/users/me", bearer(accessToken))
	if err != nil {
		return fmt.Errorf("x users/me: %w", err)
	}
	return p.mapError(status, body)
}

func (p *XPublisher) mapError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if status == http.StatusUnauthorized {
		return &TokenExpiredError{Message: errorMessage(body), Code: status}
	}
	return &PublishError{Platform: PlatformX, Message: errorMessage(body), Code: status}
}
