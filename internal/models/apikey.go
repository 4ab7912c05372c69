package models

import "time"

// API key owner types.
const (
	APIKeyTypeServer = "SERVER"
	APIKeyTypeUser   = "USER"
)

// APIKey is a platform credential charged against a daily quota. Server keys
// form a shared pool; user keys belong to a single user. Usage is cumulative
// for the current day and is zeroed by the daily reset.
type APIKey struct {
	ID        int64     `db:"id"`
	Type      string    `db:"type"`
	UserID    *int64    `db:"user_id"`
	Name      *string   `db:"name"`
	APIKey    string    `db:"api_key"`
	Usage     int       `db:"usage"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ServerAPIKeyUsage tracks how much of a shared server key a single user has
// consumed on a given calendar day. Rows are created lazily on first charge
// and are never reset; a new day gets a new row.
type ServerAPIKeyUsage struct {
	ID       int64     `db:"id"`
	UserID   int64     `db:"user_id"`
	APIKeyID int64     `db:"api_key_id"`
	Date     time.Time `db:"date"`
	Usage    int       `db:"usage"`
}
