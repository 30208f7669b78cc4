package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

// YoutubePublisher uploads videos through the YouTube Data API. The video
// binary is streamed from the stored file URL into the resumable upload.
type YoutubePublisher struct {
	cfg    config.Config
	tokens *TokenManager
	client *http.Client

	// extra service options, used by tests to point at a fake endpoint
	opts []option.ClientOption
}

func NewYoutubePublisher(cfg config.Config, tokens *TokenManager) *YoutubePublisher {
	return &YoutubePublisher{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *YoutubePublisher) SetServiceOptions(opts ...option.ClientOption) {
	p.opts = opts
}

func (p *YoutubePublisher) Platform() string {
	return PlatformYoutube
}

func (p *YoutubePublisher) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, Expiry: time.Now().Add(time.Hour)})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.opts...)
	return youtube.NewService(ctx, opts...)
}

func (p *YoutubePublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := ValidateMedia(PlatformYoutube, ContentTypeVideo, req.Media); err != nil {
		return nil, err
	}
	if req.Post.PostType != ContentTypeVideo {
		return nil, validationf("content type %q is not supported on youtube", req.Post.PostType)
	}

	accessToken, err := freshToken(ctx, p.tokens, req.Account)
	if err != nil {
		return nil, err
	}

	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return nil, &PublishError{Platform: PlatformYoutube, Message: err.Error()}
	}

	src, err := fetchMedia(ctx, p.client, req.Media[0].FileURL)
	if err != nil {
		return nil, &PublishError{Platform: PlatformYoutube, Message: "fetching media: " + err.Error()}
	}
	defer src.Body.Close()

	if src.StatusCode != http.StatusOK {
		return nil, &PublishError{Platform: PlatformYoutube, Message: fmt.Sprintf("fetching media: status %d", src.StatusCode)}
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Post.Title,
			Description: req.Caption(),
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "public"},
	}
	if video.Snippet.Title == "" {
		video.Snippet.Title = req.Caption()
	}

	inserted, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(src.Body).Context(ctx).Do()
	if err != nil {
		return nil, p.mapError(err)
	}

	return &PublishResult{
		PostID: inserted.Id,
		URL:    "https://youtu.be/" + inserted.Id,
	}, nil
}

func (p *YoutubePublisher) Verify(ctx context.Context, acc *models.SocialAccount) error {
	accessToken, err := freshToken(ctx, p.tokens, acc)
	if err != nil {
		return err
	}

	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("youtube service: %w", err)
	}

	if _, err := svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do(); err != nil {
		return p.mapError(err)
	}
	return nil
}

func (p *YoutubePublisher) mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized {
			return &TokenExpiredError{Message: apiErr.Message, Code: apiErr.Code}
		}
		return &PublishError{Platform: PlatformYoutube, Message: apiErr.Message, Code: apiErr.Code}
	}
	return &PublishError{Platform: PlatformYoutube, Message: err.Error()}
}
