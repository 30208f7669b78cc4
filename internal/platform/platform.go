package platform

import (
	"context"

	"github.com/maheshrc27/postflow/internal/models"
)

const (
	PlatformLinkedin  = "linkedin"
	PlatformX         = "x"
	PlatformTiktok    = "tiktok"
	PlatformYoutube   = "youtube"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformThreads   = "threads"
	PlatformPinterest = "pinterest"
	PlatformBluesky   = "bluesky"
	PlatformMastodon  = "mastodon"
)

// PublishRequest carries everything a publisher needs for one assignment.
// Media is ordered by display order.
type PublishRequest struct {
	Post       *models.Post
	Assignment *models.PostPlatformAssignment
	Account    *models.SocialAccount
	Media      []*models.MediaAsset
}

// Caption resolves the per-assignment content override against the post's
// master caption.
func (r *PublishRequest) Caption() string {
	if r.Assignment != nil && r.Assignment.Content != "" {
		return r.Assignment.Content
	}
	return r.Post.Caption
}

// PublishResult is the transient outcome of a successful platform call.
// URL stays empty when the platform returns no synchronous permalink.
type PublishResult struct {
	PostID string
	URL    string
}

// Publisher is the per-platform publish capability. Publish performs only the
// external network call; the orchestrator persists outcomes. Verify issues one
// cheap read-only call to confirm the credentials still work.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
	Verify(ctx context.Context, acc *models.SocialAccount) error
}

// Registry looks up the Publisher for a platform tag, replacing a central
// switch over the platform enum.
type Registry struct {
	publishers map[string]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher, len(publishers))}
	for _, p := range publishers {
		r.publishers[p.Platform()] = p
	}
	return r
}

func (r *Registry) Get(platform string) (Publisher, bool) {
	p, ok := r.publishers[platform]
	return p, ok
}

func (r *Registry) Register(p Publisher) {
	r.publishers[p.Platform()] = p
}
