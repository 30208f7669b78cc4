package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

// BlueskyPublisher creates app.bsky.feed.post records on the account's PDS.
// Images are uploaded as blobs first and embedded in the record.
type BlueskyPublisher struct {
	cfg     config.Config
	tokens  *TokenManager
	client  *http.Client
	baseURL string
}

func NewBlueskyPublisher(cfg config.Config, tokens *TokenManager) *BlueskyPublisher {
	return &BlueskyPublisher{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// SetBaseURL overrides the PDS host for every account, used in tests.
func (p *BlueskyPublisher) SetBaseURL(baseURL string) {
	p.baseURL = baseURL
}

func (p *BlueskyPublisher) pds(acc *models.SocialAccount) string {
	if p.baseURL != "" {
		return p.baseURL
	}
	if acc.ServerURL != "" {
		return acc.ServerURL
	}
	return blueskyDefaultPDS
}

func (p *BlueskyPublisher) Platform() string {
	return PlatformBluesky
}

func (p *BlueskyPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformBluesky, req.Post.PostType, req.Media); err != nil {
		return nil, err
	}

	accessJwt, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	pds := p.pds(req.Account)
	did := req.Account.AccountID

	record := map[string]interface{}{
		"$type":     "app.bsky.feed.post",
		"text":      req.Caption(),
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}

	if len(req.Media) > 0 {
		images := make([]map[string]interface{}, 0, len(req.Media))
		for _, media := range req.Media {
			blob, err := p.uploadBlob(ctx, pds, accessJwt, media)
			if err != nil {
				return nil, err
			}
			images = append(images, map[string]interface{}{
				"alt":   media.FileName,
				"image": blob,
			})
		}
		record["embed"] = map[string]interface{}{
			"$type":  "app.bsky.embed.images",
			"images": images,
		}
	}

	payload := map[string]interface{}{
		"repo":       did,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}

	status, body, err := postJSON(ctx, p.client, pds+"/xrpc/com.atproto.repo.createRecord", bearer(accessJwt), payload)
	if err != nil {
		return nil, &PublishError{Platform: PlatformBluesky, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return nil, perr
	}

	var result struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &PublishError{Platform: PlatformBluesky, Message: "malformed response: " + err.Error(), Code: status}
	}
	if result.URI == "" {
		return nil, &PublishError{Platform: PlatformBluesky, Message: "no record uri returned", Code: status}
	}

	return &PublishResult{
		PostID: result.URI,
		URL:    recordWebURL(result.URI, did),
	}, nil
}

// recordWebURL converts an at:// record URI to the bsky.app permalink.
func recordWebURL(uri, did string) string {
	parts := strings.Split(uri, "/")
	if len(parts) == 0 {
		return ""
	}
	rkey := parts[len(parts)-1]
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", did, rkey)
}

func (p *BlueskyPublisher) uploadBlob(ctx context.Context, pds, accessJwt string, media *models.MediaAsset) (json.RawMessage, error) {
	src, err := fetchMedia(ctx, p.client, media.FileURL)
	if err != nil {
		return nil, &PublishError{Platform: PlatformBluesky, Message: "fetching media: " + err.Error()}
	}
	defer src.Body.Close()

	raw, err := io.ReadAll(src.Body)
	if err != nil {
		return nil, &PublishError{Platform: PlatformBluesky, Message: "reading media: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", pds+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(raw))
	if err != nil {
		return nil, &PublishError{Platform: PlatformBluesky, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessJwt)
	req.Header.Set("Content-Type", media.FileType)

	status, body, err := do(p.client, req)
	if err != nil {
		return nil, &PublishError{Platform: PlatformBluesky, Message: err.Error()}
	}
	if perr := p.mapError(status, body); perr != nil {
		return nil, perr
	}

	var uploaded struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return nil, &PublishError{Platform: PlatformBluesky, Message: "malformed blob response: " + err.Error(), Code: status}
	}

	return uploaded.Blob, nil
}

func (p *BlueskyPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessJwt, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	status, body, err := getJSON(ctx, p.client, p.pds(acc)+"/xrpc/com.atproto.server.getSession", bearer(accessJwt))
	if err != nil {
		return fmt.Errorf("bluesky getSession: %w", err)
	}
	return p.mapError(status, body)
}

func (p *BlueskyPublisher) mapError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var xrpcErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	json.Unmarshal(body, &xrpcErr)

	if status == http.StatusUnauthorized || xrpcErr.Error == "ExpiredToken" || xrpcErr.Error == "InvalidToken" {
		msg := xrpcErr.Message
		if msg == "" {
			msg = "invalid or expired session"
		}
		return &TokenExpiredError{Message: msg, Code: status}
	}

	return &PublishError{Platform: PlatformBluesky, Message: errorMessage(body), Code: status}
}
