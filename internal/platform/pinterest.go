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

const pinterestAPIBase = "https://api.pinterest.com/v5"

// PinterestPublisher creates pins on the user's first board. Pinterest has no
// notion of a board-less pin, so the account's default board is resolved with
// one extra read.
type PinterestPublisher struct {
	cfg     config.Config
	tokens  *TokenManager
	client  *http.Client
	baseURL string
}

func NewPinterestPublisher(cfg config.Config, tokens *TokenManager) *PinterestPublisher {
	return &PinterestPublisher{
		cfg:     cfg,
		tokens:  tokens,
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: pinterestAPIBase,
	}
}

func (p *PinterestPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
}

func (p *PinterestPublisher) Platform() string {
	return PlatformPinterest
}

func (p *PinterestPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	contentType := req.Post.PostType
	if contentType == ContentTypeText {
		return nil, validationf("pinterest requires media; text posts are not supported")
	}
	if err := ValidateMedia(PlatformPinterest, contentType, req.Media); err != nil {
		return nil, err
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	boardID, err := p.defaultBoard(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var mediaSource map[string]interface{}
	if contentType == ContentTypeCarousel {
		items := make([]map[string]string, 0, len(req.Media))
		for _, media := range req.Media {
			items = append(items, map[string]string{"url": media.FileURL})
		}
		mediaSource = map[string]interface{}{
			"source_type": "multiple_image_urls",
			"items":       items,
		}
	} else {
		mediaSource = map[string]interface{}{
			"source_type": "image_url",
			"url":         req.Media[0].FileURL,
		}
	}

	payload := map[string]interface{}{
		"board_id":     boardID,
		"title":        req.Post.Title,
		"description":  req.Caption(),
		"media_source": mediaSource,
	}

	status, body, err := postJSON(ctx, p.client, p.baseURL+"/pins", bearer(accessToken), payload)
	if err != nil {
		return nil, &PublishError{Platform: PlatformPinterest, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return nil, perr
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &PublishError{Platform: PlatformPinterest, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.ID == "" {
		return nil, &PublishError{Platform: PlatformPinterest, Message: "no pin id returned", Code: status}
	}

	return &PublishResult{
		PostID: result.ID,
		URL:    fmt.Sprintf("https://www.pinterest.com/pin/%s/", result.ID),
	}, nil
}

func (p *PinterestPublisher) defaultBoard(ctx context.Context, accessToken string) (string, error) {
	status, body, err := getJSON(ctx, p.client, p.baseURL+"/boards?page_size=1", bearer(accessToken))
	if err != nil {
		return "", &PublishError{Platform: PlatformPinterest, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return "", perr
	}

	var boards struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &boards); err != nil {
		return "", &PublishError{Platform: PlatformPinterest, Message: "malformed boards response: " + err.Error(), Code: status}
	}
	if len(boards.Items) == 0 {
		return "", &ValidationError{Message: "pinterest account has no boards to pin to"}
	}

	return boards.Items[0].ID, nil
}

func (p *PinterestPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	status, body, err := getJSON(ctx, p.client, p.baseURL+"/user_account", bearer(accessToken))
	if err != nil {
		return fmt.Errorf("pinterest user_account: %w", err)
	}
	return p.mapError(status, body)
}

func (p *PinterestPublisher) mapError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if status == http.StatusUnauthorized {
		return &TokenExpiredError{Message: errorMessage(body), Code: status}
	}
	return &PublishError{Platform: PlatformPinterest, Message: errorMessage(body), Code: status}
}
