package models

import "time"

type Post struct {
	ID          int64      `db:"id" json:"id"`
	WorkspaceID int64      `db:"workspace_id" json:"workspace_id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	PostType    string     `db:"post_type" json:"post_type"`
	Caption     string     `db:"caption" json:"caption"`
	Title       string     `db:"title" json:"title"`
	Status      string     `db:"status" json:"status"`
	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at"`
	PublishedAt *time.Time `db:"published_at" json:"published_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

type MediaAsset struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	FileName     string    `db:"file_name"`
	FileType     string    `db:"file_type"`
	FileSize     int64     `db:"file_size"`
	FileURL      string    `db:"file_url"`
	ThumbnailURL string    `db:"thumbnail_url"`
	CreatedAt    time.Time `db:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	PostStatusDraft              = "draft"
	PostStatusScheduled          = "scheduled"
	PostStatusPublishing         = "publishing"
	PostStatusPublished          = "published"
	PostStatusPartiallyPublished = "partially_published"
	PostStatusFailed             = "failed"
)

// IsVideo reports whether the asset holds video content. Publishers use it
// to check content-type media-kind requirements.
func (m *MediaAsset) IsVideo() bool {
	return len(m.FileType) >= 5 && m.FileType[:5] == "video"
}

func (m *MediaAsset) IsImage() bool {
	return len(m.FileType) >= 5 && m.FileType[:5] == "image"
}
