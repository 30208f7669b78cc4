package models

import "time"

type ApiKey struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	KeyString string    `db:"key_string" json:"key_string"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
