package models

import "time"

// Subscription ties a user to a tracked channel.
type Subscription struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	ChannelID string    `db:"channel_id"`
	CreatedAt time.Time `db:"created_at"`
}
