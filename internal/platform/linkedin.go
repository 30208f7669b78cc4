package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

const linkedinAPIBase = "https://api.linkedin.com"

// LinkedinPublisher publishes UGC posts through the LinkedIn v2 API. Image
// and video posts register an upload per asset, push the binary, then create
// the share referencing the asset URNs.
type LinkedinPublisher struct {
	cfg     config.Config
	tokens  *TokenManager
	client  *http.Client
	baseURL string
}

func NewLinkedinPublisher(cfg config.Config, tokens *TokenManager) *LinkedinPublisher {
	return &LinkedinPublisher{
		cfg:     cfg,
		tokens:  tokens,
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: linkedinAPIBase,
	}
}

// SetBaseURL points the publisher at a different API host.
func (p *LinkedinPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
}

func (p *LinkedinPublisher) Platform() string {
	return PlatformLinkedin
}

func (p *LinkedinPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformLinkedin, req.Post.PostType, req.Media); err != nil {
		return nil, err
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	author := "urn:li:person:" + req.Account.AccountID

	var assets []string
	var category string
	switch req.Post.PostType {
	case ContentTypeText:
		category = "NONE"
	case ContentTypeImage, ContentTypeCarousel:
		category = "IMAGE"
		for _, media := range req.Media {
			asset, err := p.uploadAsset(ctx, accessToken, author, media, "urn:li:digitalmediaRecipe:feedshare-image")
			if err != nil {
				return nil, err
			}
			assets = append(assets, asset)
		}
	case ContentTypeVideo:
		category = "VIDEO"
		asset, err := p.uploadAsset(ctx, accessToken, author, req.Media[0], "urn:li:digitalmediaRecipe:feedshare-video")
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	default:
		return nil, validationf("content type %q is not supported on linkedin", req.Post.PostType)
	}

	return p.createShare(ctx, accessToken, author, category, req.Caption(), assets)
}

type linkedinShareMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

func (p *LinkedinPublisher) createShare(ctx context.Context, accessToken, author, category, caption string, assets []string) (*PublishResult, error) {
	media := make([]linkedinShareMedia, 0, len(assets))
	for _, asset := range assets {
		media = append(media, linkedinShareMedia{Status: "READY", Media: asset})
	}

	payload := map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": caption},
				"shareMediaCategory": category,
				"media":              media,
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	headers := bearer(accessToken)
	headers["X-Restli-Protocol-Version"] = "2.0.0"

	status, body, err := postJSON(ctx, p.client, p.baseURL+"/v2/ugcPosts", headers, payload)
	if err != nil {
		return nil, &PublishError{Platform: PlatformLinkedin, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return nil, perr
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &PublishError{Platform: PlatformLinkedin, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.ID == "" {
		return nil, &PublishError{Platform: PlatformLinkedin, Message: "no share id returned", Code: status}
	}

	return &PublishResult{
		PostID: result.ID,
		URL:    fmt.Sprintf("https://www.linkedin.com/feed/update/%s/", result.ID),
	}, nil
}

// uploadAsset registers an upload for one media item, downloads the stored
// file and PUTs it to the returned upload URL. Returns the asset URN.
func (p *LinkedinPublisher) uploadAsset(ctx context.Context, accessToken, author string, media *models.MediaAsset, recipe string) (string, error) {
	payload := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{recipe},
			"owner":   author,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}

	status, body, err := postJSON(ctx, p.client, p.baseURL+"/v2/assets?action=registerUpload", bearer(accessToken), payload)
	if err != nil {
		return "", &PublishError{Platform: PlatformLinkedin, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return "", perr
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism struct {
				MediaUploadHTTPRequest struct {
					UploadURL string `json:"uploadUrl"`
				} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &registered); err != nil {
		return "", &PublishError{Platform: PlatformLinkedin, Message: "malformed register response: " + err.Error(), Code: status}
	}

	uploadURL := registered.Value.UploadMechanism.MediaUploadHTTPRequest.UploadURL
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", &PublishError{Platform: PlatformLinkedin, Message: "register upload returned no upload url", Code: status}
	}

	if err := p.putBinary(ctx, uploadURL, accessToken, media); err != nil {
		return "", err
	}

	return registered.Value.Asset, nil
}

func (p *LinkedinPublisher) putBinary(ctx context.Context, uploadURL, accessToken string, media *models.MediaAsset) error {
	src, err := fetchMedia(ctx, p.client, media.FileURL)
	if err != nil {
		return &PublishError{Platform: PlatformLinkedin, Message: "fetching media: " + err.Error()}
	}
	defer src.Body.Close()

	if src.StatusCode != http.StatusOK {
		return &PublishError{Platform: PlatformLinkedin, Message: fmt.Sprintf("fetching media %s: status %d", media.FileName, src.StatusCode)}
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", uploadURL, src.Body)
	if err != nil {
		return &PublishError{Platform: PlatformLinkedin, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", media.FileType)
	req.ContentLength = media.FileSize

	resp, err := p.client.Do(req)
	if err != nil {
		return &PublishError{Platform: PlatformLinkedin, Message: "uploading media: " + err.Error()}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return &TokenExpiredError{Message: "upload rejected: invalid credentials", Code: resp.StatusCode}
	}
	if resp.StatusCode >= 300 {
		return &PublishError{Platform: PlatformLinkedin, Message: fmt.Sprintf("media upload failed with status %d", resp.StatusCode), Code: resp.StatusCode}
	}

	return nil
}

// Verify issues the OIDC userinfo call, the cheapest authenticated read
// LinkedIn offers.
func (p *LinkedinPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	status, body, err := getJSON(ctx, p.client, p.baseURL+"/v2/userinfo", bearer(accessToken))
	if err != nil {
		return fmt.Errorf("linkedin userinfo: %w", err)
	}
	if perr := p.mapError(status, body); perr != nil {
		return perr
	}

	return nil
}

// mapError converts a LinkedIn response to the failure taxonomy. 401 and the
// REVOKED_ACCESS_TOKEN service code mean the grant is gone; everything else
// non-2xx is a publish failure carrying LinkedIn's message.
func (p *LinkedinPublisher) mapError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var serviceErr struct {
		ServiceErrorCode int    `json:"serviceErrorCode"`
		Message          string `json:"message"`
		Code             string `json:"code"`
	}
	json.Unmarshal(body, &serviceErr)

	if status == http.StatusUnauthorized || serviceErr.Code == "REVOKED_ACCESS_TOKEN" || serviceErr.Code == "EXPIRED_ACCESS_TOKEN" {
		msg := serviceErr.Message
		if msg == "" {
			msg = "invalid or expired credentials"
		}
		slog.Info("linkedin auth failure: " + msg)
		return &TokenExpiredError{Message: msg, Code: status}
	}

	return &PublishError{Platform: PlatformLinkedin, Message: errorMessage(body), Code: status}
}
