package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

const tiktokAPIBase = "https://open.tiktokapis.com"

// TiktokPublisher posts through the TikTok content posting API. Media is
// pulled from the stored file URLs (PULL_FROM_URL), so no binary passes
// through this process. TikTok returns a publish id but no permalink.
type TiktokPublisher struct {
	cfg     config.Config
	tokens  *TokenManager
	client  *http.Client
	baseURL string
}

func NewTiktokPublisher(cfg config.Config, tokens *TokenManager) *TiktokPublisher {
	return &TiktokPublisher{
		cfg:     cfg,
		tokens:  tokens,
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: tiktokAPIBase,
	}
}

func (p *TiktokPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
}

func (p *TiktokPublisher) Platform() string {
	return PlatformTiktok
}

type tiktokPublishResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *TiktokPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformTiktok, req.Post.PostType, req.Media); err != nil {
		return nil, err
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	if err := p.queryCreatorInfo(ctx, accessToken); err != nil {
		return nil, err
	}

	switch req.Post.PostType {
	case ContentTypeVideo:
		return p.publishVideo(ctx, accessToken, req)
	case ContentTypeImage, ContentTypeCarousel:
		return p.publishPhotos(ctx, accessToken, req)
	default:
		return nil, validationf("content type %q is not supported on tiktok", req.Post.PostType)
	}
}

func (p *TiktokPublisher) publishVideo(ctx context.Context, accessToken string, req *PublishRequest) (*PublishResult, error) {
	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":                    req.Caption(),
			"privacy_level":            "PUBLIC_TO_EVERYONE",
			"disable_duet":             false,
			"disable_comment":          false,
			"disable_stitch":           false,
			"video_cover_timestamp_ms": 1000,
		},
		"source_info": map[string]interface{}{
			"source":    "PULL_FROM_URL",
			"video_url": req.Media[0].FileURL,
		},
	}

	return p.initPost(ctx, accessToken, "/v2/post/publish/video/init/", payload)
}

func (p *TiktokPublisher) publishPhotos(ctx context.Context, accessToken string, req *PublishRequest) (*PublishResult, error) {
	photos := make([]string, 0, len(req.Media))
	for _, media := range req.Media {
		photos = append(photos, media.FileURL)
	}

	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":           req.Caption(),
			"privacy_level":   "PUBLIC_TO_EVERYONE",
			"auto_add_music":  true,
			"disable_comment": false,
		},
		"source_info": map[string]interface{}{
			"source":            "PULL_FROM_URL",
			"photo_cover_index": 0,
			"photo_images":      photos,
		},
		"post_mode":  "DIRECT_POST",
		"media_type": "PHOTO",
	}

	return p.initPost(ctx, accessToken, "/v2/post/publish/content/init/", payload)
}

func (p *TiktokPublisher) initPost(ctx context.Context, accessToken, path string, payload interface{}) (*PublishResult, error) {
	status, body, err := postJSON(ctx, p.client, p.baseURL+path, bearer(accessToken), payload)
	if err != nil {
		return nil, &PublishError{Platform: PlatformTiktok, Message: err.Error()}
	}

	var result tiktokPublishResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &PublishError{Platform: PlatformTiktok, Message: "malformed response: " + err.Error(), Code: status}
	}

	if perr := p.mapError(status, result.Error.Code, result.Error.Message); perr != nil {
		return nil, perr
	}
	if result.Data.PublishID == "" {
		return nil, &PublishError{Platform: PlatformTiktok, Message: "no publish id returned", Code: status}
	}

	// TikTok processes the post asynchronously; no synchronous permalink
	return &PublishResult{PostID: result.Data.PublishID}, nil
}

func (p *TiktokPublisher) queryCreatorInfo(ctx context.Context, accessToken string) error {
	status, body, err := postJSON(ctx, p.client, p.baseURL+"/v2/post/publish/creator_info/query/", bearer(accessToken), struct{}{})
	if err != nil {
		return &PublishError{Platform: PlatformTiktok, Message: err.Error()}
	}

	var result tiktokPublishResponse
	json.Unmarshal(body, &result)
	return p.mapError(status, result.Error.Code, result.Error.Message)
}

func (p *TiktokPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	status, body, err := getJSON(ctx, p.client, p.baseURL+"/v2/user/info/?fields=open_id,display_name", bearer(accessToken))
	if err != nil {
		return fmt.Errorf("tiktok user info: %w", err)
	}

	var result tiktokPublishResponse
	json.Unmarshal(body, &result)
	return p.mapError(status, result.Error.Code, result.Error.Message)
}

func (p *TiktokPublisher) mapError(status int, code, message string) error {
	switch code {
	case "", "ok":
		if status >= 200 && status < 300 {
			return nil
		}
	case "access_token_invalid", "scope_not_authorized", "scope_permission_missed":
		return &TokenExpiredError{Message: message, Code: status}
	}

	if status == http.StatusUnauthorized {
		return &TokenExpiredError{Message: message, Code: status}
	}
	if message == "" {
		message = fmt.Sprintf("tiktok request failed with status %d", status)
	}
	return &PublishError{Platform: PlatformTiktok, Message: message, Code: status}
}
