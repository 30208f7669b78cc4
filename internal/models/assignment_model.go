package models

import "time"

// PostPlatformAssignment is the per-platform fan-out unit of a post: one row
// per (post, social account) pair, carrying its own content and lifecycle.
type PostPlatformAssignment struct {
	ID             int64      `db:"id" json:"id"`
	PostID         int64      `db:"post_id" json:"post_id"`
	AccountID      int64      `db:"account_id" json:"account_id"`
	Platform       string     `db:"platform" json:"platform"`
	Enabled        bool       `db:"enabled" json:"enabled"`
	Content        string     `db:"content" json:"content"`
	Status         string     `db:"status" json:"status"`
	PlatformPostID string     `db:"platform_post_id" json:"platform_post_id"`
	PlatformURL    string     `db:"platform_url" json:"platform_url"`
	ErrorMessage   string     `db:"error_message" json:"error_message"`
	PublishedAt    *time.Time `db:"published_at" json:"published_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	AssignmentStatusPending    = "pending"
	AssignmentStatusPublishing = "publishing"
	AssignmentStatusPublished  = "published"
	AssignmentStatusFailed     = "failed"
)

// Settled reports whether the assignment reached a terminal state.
func (a *PostPlatformAssignment) Settled() bool {
	return a.Status == AssignmentStatusPublished || a.Status == AssignmentStatusFailed
}
