package models

import (
	"time"
)

// SocialAccount is a connected external platform identity. AccessToken and
// RefreshToken are stored AES-GCM encrypted and never serialized.
type SocialAccount struct {
	ID              int64      `db:"id" json:"id"`
	WorkspaceID     int64      `db:"workspace_id" json:"workspace_id"`
	Platform        string     `db:"platform" json:"platform"`
	AccountID       string     `db:"account_id" json:"account_id"`
	AccountName     string     `db:"account_name" json:"account_name"`
	AccountUsername string     `db:"account_username" json:"account_username"`
	ProfilePicture  string     `db:"profile_picture_url" json:"profile_picture"`
	ServerURL       string     `db:"server_url" json:"server_url"`
	AccessToken     string     `db:"access_token" json:"-"`
	RefreshToken    string     `db:"refresh_token" json:"-"`
	TokenExpiresAt  *time.Time `db:"token_expires_at" json:"token_expires_at"`
	AccountStatus   string     `db:"account_status" json:"account_status"`
	ErrorMessage    string     `db:"error_message" json:"error_message"`
	DisconnectedAt  *time.Time `db:"disconnected_at" json:"disconnected_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	AccountStatusConnected    = "connected"
	AccountStatusDisconnected = "disconnected"
	AccountStatusTokenExpired = "token_expired"
)

// Usable reports whether publish attempts against the account may call the
// platform API. Disconnection is sticky: once an account leaves connected,
// publishing short-circuits without a network call.
func (sa *SocialAccount) Usable() bool {
	return sa.AccountStatus == AccountStatusConnected
}
