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

const facebookAPIBase = "https://graph.facebook.com/v21.0"

// FacebookPublisher posts to a Facebook page using its page access token.
// Page tokens do not expire, so the token lifecycle step is a pass-through.
type FacebookPublisher struct {
	cfg     config.Config
	tokens  *TokenManager
	client  *http.Client
	baseURL string
}

func NewFacebookPublisher(cfg config.Config, tokens *TokenManager) *FacebookPublisher {
	return &FacebookPublisher{
		cfg:     cfg,
		tokens:  tokens,
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: facebookAPIBase,
	}
}

func (p *FacebookPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
}

func (p *FacebookPublisher) Platform() string {
	return PlatformFacebook
}

func (p *FacebookPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformFacebook, req.Post.PostType, req.Media); err != nil {
		return nil, err
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	pageID := req.Account.AccountID

	var postID string
	switch req.Post.PostType {
	case ContentTypeText:
		postID, err = p.createFeedPost(ctx, pageID, accessToken, req.Caption(), nil)
	case ContentTypeImage:
		postID, err = p.createPhotoPost(ctx, pageID, accessToken, req.Caption(), req.Media[0])
	case ContentTypeCarousel:
		var attached []string
		for _, media := range req.Media {
			photoID, perr := p.uploadUnpublishedPhoto(ctx, pageID, accessToken, media)
			if perr != nil {
				return nil, perr
			}
			attached = append(attached, photoID)
		}
		postID, err = p.createFeedPost(ctx, pageID, accessToken, req.Caption(), attached)
	default:
		return nil, validationf("content type %q is not supported on facebook", req.Post.PostType)
	}
	if err != nil {
		return nil, err
	}

	return &PublishResult{
		PostID: postID,
		URL:    "https://www.facebook.com/" + postID,
	}, nil
}

func (p *FacebookPublisher) createFeedPost(ctx context.Context, pageID, accessToken, message string, attachedMedia []string) (string, error) {
	data := url.Values{}
	data.Set("message", message)
	data.Set("access_token", accessToken)
	for i, mediaID := range attachedMedia {
		data.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, mediaID))
	}

	return p.postForID(ctx, fmt.Sprintf("%s/%s/feed", p.baseURL, pageID), data)
}

func (p *FacebookPublisher) createPhotoPost(ctx context.Context, pageID, accessToken, caption string, media *models.MediaAsset) (string, error) {
	data := url.Values{}
	data.Set("url", media.FileURL)
	data.Set("caption", caption)
	data.Set("access_token", accessToken)

	return p.postForID(ctx, fmt.Sprintf("%s/%s/photos", p.baseURL, pageID), data)
}

func (p *FacebookPublisher) uploadUnpublishedPhoto(ctx context.Context, pageID, accessToken string, media *models.MediaAsset) (string, error) {
	data := url.Values{}
	data.Set("url", media.FileURL)
	data.Set("published", "false")
	data.Set("access_token", accessToken)

	return p.postForID(ctx, fmt.Sprintf("%s/%s/photos", p.baseURL, pageID), data)
}

func (p *FacebookPublisher) postForID(ctx context.Context, reqURL string, data url.Values) (string, error) {
	status, body, err := postForm(ctx, p.client, reqURL, nil, data)
	if err != nil {
		return "", &PublishError{Platform: PlatformFacebook, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return "", perr
	}

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &PublishError{Platform: PlatformFacebook, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", &PublishError{Platform: PlatformFacebook, Message: "no post id returned", Code: status}
	}
	return result.ID, nil
}

func (p *FacebookPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/me?fields=id,name&access_token=%s", p.baseURL, url.QueryEscape(accessToken))
	status, body, err := getJSON(ctx, p.client, reqURL, nil)
	if err != nil {
		return fmt.Errorf("facebook me: %w", err)
	}
	return p.mapError(status, body)
}

// mapError treats the Graph API OAuthException (code 190) as an auth failure
// on top of plain 401s.
func (p *FacebookPublisher) mapError(status int, body []byte) error {
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

	return &PublishError{Platform: PlatformFacebook, Message: errorMessage(body), Code: status}
}
