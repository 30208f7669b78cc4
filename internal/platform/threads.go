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

const threadsAPIBase = "https://graph.threads.net/v1.0"

// ThreadsPublisher uses the same container protocol as Instagram: create a
// container, wait for it, publish it.
type ThreadsPublisher struct {
	cfg     config.Config
	tokens  *TokenManager
	client  *http.Client
	baseURL string

	pollAttempts int
	pollInterval time.Duration
}

func NewThreadsPublisher(cfg config.Config, tokens *TokenManager) *ThreadsPublisher {
	return &ThreadsPublisher{
		cfg:          cfg,
		tokens:       tokens,
		client:       &http.Client{Timeout: 2 * time.Minute},
		baseURL:      threadsAPIBase,
		pollAttempts: 20,
		pollInterval: 3 * time.Second,
	}
}

func (p *ThreadsPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
}

func (p *ThreadsPublisher) SetPolling(attempts int, interval time.Duration) {
	p.pollAttempts = attempts
	p.pollInterval = interval
}

func (p *ThreadsPublisher) Platform() string {
	return PlatformThreads
}

func (p *ThreadsPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformThreads, req.Post.PostType, req.Media); err != nil {
		return nil, err
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	userID := req.Account.AccountID

	payload := map[string]interface{}{
		"text":         req.Caption(),
		"access_token": accessToken,
	}
	switch req.Post.PostType {
	case ContentTypeText:
		payload["media_type"] = "TEXT"
	case ContentTypeImage:
		payload["media_type"] = "IMAGE"
		payload["image_url"] = req.Media[0].FileURL
	case ContentTypeVideo:
		payload["media_type"] = "VIDEO"
		payload["video_url"] = req.Media[0].FileURL
	default:
		return nil, validationf("content type %q is not supported on threads", req.Post.PostType)
	}

	status, body, err := postJSON(ctx, p.client, fmt.Sprintf("%s/%s/threads", p.baseURL, userID), nil, payload)
	if err != nil {
		return nil, &PublishError{Platform: PlatformThreads, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return nil, perr
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &container); err != nil {
		return nil, &PublishError{Platform: PlatformThreads, Message: "malformed response: " + err.Error(), Code: status}
	}
	if container.ID == "" {
		return nil, &PublishError{Platform: PlatformThreads, Message: "no container id returned", Code: status}
	}

	// text containers are ready immediately; media containers need the poll
	if req.Post.PostType != ContentTypeText {
		statusURL := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", p.baseURL, container.ID, url.QueryEscape(accessToken))
		if err := pollContainer(ctx, p.client, PlatformThreads, statusURL, p.pollAttempts, p.pollInterval); err != nil {
			return nil, err
		}
	}

	return p.publishContainer(ctx, userID, container.ID, accessToken)
}

func (p *ThreadsPublisher) publishContainer(ctx context.Context, userID, containerID, accessToken string) (*PublishResult, error) {
	payload := map[string]string{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	status, body, err := postJSON(ctx, p.client, fmt.Sprintf("%s/%s/threads_publish", p.baseURL, userID), nil, payload)
	if err != nil {
		return nil, &PublishError{Platform: PlatformThreads, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return nil, perr
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &PublishError{Platform: PlatformThreads, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.ID == "" {
		return nil, &PublishError{Platform: PlatformThreads, Message: "no media id returned", Code: status}
	}

	permalink := p.fetchPermalink(ctx, result.ID, accessToken)
	return &PublishResult{PostID: result.ID, URL: permalink}, nil
}

func (p *ThreadsPublisher) fetchPermalink(ctx context.Context, mediaID, accessToken string) string {
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

func (p *ThreadsPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/me?fields=id,username&access_token=%s", p.baseURL, url.QueryEscape(accessToken))
	status, body, err := getJSON(ctx, p.client, reqURL, nil)
	if err != nil {
		return fmt.Errorf("threads me: %w", err)
	}
	return p.mapError(status, body)
}

func (p *ThreadsPublisher) mapError(status int, body []byte) error {
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

	return &PublishError{Platform: PlatformThreads, Message: errorMessage(body), Code: status}
}
