package models

import "time"

// Channel is a tracked YouTube channel. Snapshot fields (counts, thumbnail,
// last upload) are overwritten on every sync; FetchedAt records the last
// refresh.
type Channel struct {
	ID                  int64      `db:"id"`
	ChannelID           string     `db:"channel_id"`
	Handle              *string    `db:"handle"`
	Name                string     `db:"name"`
	Description         *string    `db:"description"`
	ThumbnailURL        *string    `db:"thumbnail_url"`
	RegionCode          *string    `db:"region_code"`
	DefaultLanguage     *string    `db:"default_language"`
	VideoCount          int        `db:"video_count"`
	ViewCount           int64      `db:"view_count"`
	SubscriberCount     int        `db:"subscriber_count"`
	UploadsPlaylistID   string     `db:"uploads_playlist_id"`
	PublishedAt         time.Time  `db:"published_at"`
	LastVideoUploadedAt *time.Time `db:"last_video_uploaded_at"`
	FetchedAt           time.Time  `db:"fetched_at"`
	CreatedAt           time.Time  `db:"created_at"`
}

// ChannelHistory is an immutable per-day stats snapshot, appended once per
// channel by the scheduled refresh. Never updated or deleted.
type ChannelHistory struct {
	ID              int64     `db:"id"`
	ChannelID       string    `db:"channel_id"`
	VideoCount      int       `db:"video_count"`
	ViewCount       int64     `db:"view_count"`
	SubscriberCount int       `db:"subscriber_count"`
	CreatedAt       time.Time `db:"created_at"`
}
