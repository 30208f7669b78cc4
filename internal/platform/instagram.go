package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

const instagramAPIBase = "https://graph.instagram.com/v21.0"

// InstagramPublisher runs the container protocol: create one media container
// per item (plus a carousel container when needed), poll until the container
// is ready, then publish it.
type InstagramPublisher struct {
	cfg     config.Config
	tokens  *TokenManager
	client  *http.Client
	baseURL string

	pollAttempts int
	pollInterval time.Duration
}

func NewInstagramPublisher(cfg config.Config, tokens *TokenManager) *InstagramPublisher {
	return &InstagramPublisher{
		cfg:          cfg,
		tokens:       tokens,
		client:       &http.Client{Timeout: 2 * time.Minute},
		baseURL:      instagramAPIBase,
		pollAttempts: 20,
		pollInterval: 3 * time.Second,
	}
}

func (p *InstagramPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
}

// SetPolling tightens the container poll loop, mainly for tests.
func (p *InstagramPublisher) SetPolling(attempts int, interval time.Duration) {
	p.pollAttempts = attempts
	p.pollInterval = interval
}

func (p *InstagramPublisher) Platform() string {
	return PlatformInstagram
}

func (p *InstagramPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformInstagram, req.Post.PostType, req.Media); err != nil {
		return nil, err
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	igUserID := req.Account.AccountID

	var containerID string
	switch req.Post.PostType {
	case ContentTypeImage:
		containerID, err = p.createContainer(ctx, igUserID, accessToken, map[string]interface{}{
			"image_url": req.Media[0].FileURL,
			"caption":   req.Caption(),
		})
	case ContentTypeVideo, ContentTypeStory:
		payload := map[string]interface{}{
			"video_url":  req.Media[0].FileURL,
			"caption":    req.Caption(),
			"media_type": "REELS",
		}
		if req.Post.PostType == ContentTypeStory {
			payload["media_type"] = "STORIES"
			if req.Media[0].IsImage() {
				delete(payload, "video_url")
				payload["image_url"] = req.Media[0].FileURL
			}
		}
		containerID, err = p.createContainer(ctx, igUserID, accessToken, payload)
	case ContentTypeCarousel:
		containerID, err = p.createCarousel(ctx, igUserID, accessToken, req)
	default:
		return nil, validationf("content type %q is not supported on instagram", req.Post.PostType)
	}
	if err != nil {
		return nil, err
	}

	if err := p.waitForContainer(ctx, containerID, accessToken); err != nil {
		return nil, err
	}

	mediaID, err := p.publishContainer(ctx, igUserID, containerID, accessToken)
	if err != nil {
		return nil, err
	}

	// permalink needs a follow-up read; stays empty if that read fails
	permalink := p.fetchPermalink(ctx, mediaID, accessToken)

	return &PublishResult{PostID: mediaID, URL: permalink}, nil
}

func (p *InstagramPublisher) createCarousel(ctx context.Context, igUserID, accessToken string, req *PublishRequest) (string, error) {
	children := make([]string, 0, len(req.Media))
	for _, media := range req.Media {
		childID, err := p.createContainer(ctx, igUserID, accessToken, map[string]interface{}{
			"image_url":        media.FileURL,
			"is_carousel_item": true,
		})
		if err != nil {
			return "", err
		}
		if err := p.waitForContainer(ctx, childID, accessToken); err != nil {
			return "", err
		}
		children = append(children, childID)
	}

	return p.createContainer(ctx, igUserID, accessToken, map[string]interface{}{
		"media_type": "CAROUSEL",
		"caption":    req.Caption(),
		"children":   children,
	})
}

func (p *InstagramPublisher) createContainer(ctx context.Context, igUserID, accessToken string, payload map[string]interface{}) (string, error) {
	payload["access_token"] = accessToken

	status, body, err := postJSON(ctx, p.client, fmt.Sprintf("%s/%s/media", p.baseURL, igUserID), nil, payload)
	if err != nil {
		return "", &PublishError{Platform: PlatformInstagram, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return "", perr
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &PublishError{Platform: PlatformInstagram, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.ID == "" {
		return "", &PublishError{Platform: PlatformInstagram, Message: "no container id returned", Code: status}
	}

	return result.ID, nil
}

func (p *InstagramPublisher) waitForContainer(ctx context.Context, containerID, accessToken string) error {
	statusURL := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", p.baseURL, containerID, url.QueryEscape(accessToken))
	return pollContainer(ctx, p.client, PlatformInstagram, statusURL, p.pollAttempts, p.pollInterval)
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, igUserID, containerID, accessToken string) (string, error) {
	payload := map[string]string{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	status, body, err := postJSON(ctx, p.client, fmt.Sprintf("%s/%s/media_publish", p.baseURL, igUserID), nil, payload)
	if err != nil {
		return "", &PublishError{Platform: PlatformInstagram, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return "", perr
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &PublishError{Platform: PlatformInstagram, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.ID == "" {
		return "", &PublishError{Platform: PlatformInstagram, Message: "no media id returned", Code: status}
	}

	return result.ID, nil
}

func (p *InstagramPublisher) fetchPermalink(ctx context.Context, mediaID, accessToken string) string {
	reqURL := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", p.baseURL, mediaID, url.QueryEscape(accessToken))
	status, body, err := getJSON(ctx, p.client, reqURL, nil)
	if err != nil || status != http.StatusOK {
		return ""
	}

	var result struct {
		Permalink string `json:"permalink"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return ""
	}
	return result.Permalink
}

func (p *InstagramPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/me?fields=id,username&access_token=%s", p.baseURL, url.QueryEscape(accessToken))
	status, body, err := getJSON(ctx, p.client, reqURL, nil)
	if err != nil {
		return fmt.Errorf("instagram me: %w", err)
	}
	return p.mapError(status, body)
}

func (p *InstagramPublisher) mapError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var graphErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	json.Unmarshal(body, &graphErr)

	if status == http.StatusUnauthorized || graphErr.Error.Code == 190 || graphErr.Error.Type == "OAuthException" {
		return &TokenExpiredError{Message: graphErr.Error.Message, Code: status}
	}

	return &PublishError{Platform: PlatformInstagram, Message: errorMessage(body), Code: status}
}
