package transfer

// AssignmentCreation selects one social account for a post, optionally with
// platform-specific content replacing the master caption.
type AssignmentCreation struct {
	AccountID int64  `json:"account_id"`
	Content   string `json:"content"`
	Enabled   *bool  `json:"enabled"`
}

type PostCreation struct {
	PostType    string               `json:"post_type"`
	Caption     string               `json:"caption"`
	Title       string               `json:"title"`
	ScheduledAt string               `json:"scheduled_at"`
	Assignments []AssignmentCreation `json:"assignments"`
	MediaIDs    []int64              `json:"media_ids"`
	PublishNow  bool                 `json:"publish_now"`
}
