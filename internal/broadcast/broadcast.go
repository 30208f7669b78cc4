package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maheshrc27/postflow/internal/models"
)

// Broadcaster pushes live status updates to anyone watching a post. Delivery
// is fire-and-forget: publish failures are logged, never surfaced to the
// pipeline, and the database remains the source of truth.
type Broadcaster interface {
	AssignmentUpdated(ctx context.Context, post *models.Post, a *models.PostPlatformAssignment)
	PostSettled(ctx context.Context, post *models.Post)
}

type assignmentPayload struct {
	ID           int64   `json:"id"`
	Status       string  `json:"status"`
	Platform     string  `json:"platform"`
	PlatformURL  string  `json:"platform_url,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	PublishedAt  *string `json:"published_at,omitempty"`
}

type postPayload struct {
	ID          int64   `json:"id"`
	Status      string  `json:"status"`
	PublishedAt *string `json:"published_at,omitempty"`
}

type statusEvent struct {
	Assignment *assignmentPayload `json:"assignment,omitempty"`
	Post       postPayload        `json:"post"`
}

type redisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) Broadcaster {
	return &redisBroadcaster{client: client}
}

func channelFor(postID int64) string {
	return fmt.Sprintf("post:%d:status", postID)
}

func rfc3339(t *models.Post) *string {
	if t.PublishedAt == nil {
		return nil
	}
	s := t.PublishedAt.UTC().Format(time.RFC3339)
	return &s
}

func (b *redisBroadcaster) AssignmentUpdated(ctx context.Context, post *models.Post, a *models.PostPlatformAssignment) {
	event := statusEvent{
		Assignment: &assignmentPayload{
			ID:           a.ID,
			Status:       a.Status,
			Platform:     a.Platform,
			PlatformURL:  a.PlatformURL,
			ErrorMessage: a.ErrorMessage,
		},
		Post: postPayload{ID: post.ID, Status: post.Status, PublishedAt: rfc3339(post)},
	}
	if a.PublishedAt != nil {
		s := a.PublishedAt.UTC().Format(time.RFC3339)
		event.Assignment.PublishedAt = &s
	}
	b.publish(ctx, post.ID, event)
}

func (b *redisBroadcaster) PostSettled(ctx context.Context, post *models.Post) {
	b.publish(ctx, post.ID, statusEvent{
		Post: postPayload{ID: post.ID, Status: post.Status, PublishedAt: rfc3339(post)},
	})
}

func (b *redisBroadcaster) publish(ctx context.Context, postID int64, event statusEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if err := b.client.Publish(ctx, channelFor(postID), payload).Err(); err != nil {
		slog.Info(err.Error())
	}
}
