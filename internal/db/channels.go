package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"yt-radar/internal/apperrors"
	"yt-radar/internal/models"
)

// GetChannelByChannelID looks up a tracked channel by its platform id.
func GetChannelByChannelID(channelID string) (models.Channel, error) {
	channel := models.Channel{}
	err := DB.Get(&channel, "SELECT * FROM channels WHERE channel_id = $1", channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return channel, apperrors.Newf(apperrors.CodeChannelNotFound, "channel %s is not tracked", channelID)
	}
	return channel, err
}

// GetChannelsByChannelIDs returns the tracked channels among ids. Missing ids
// are simply absent from the result.
func GetChannelsByChannelIDs(ids []string) ([]models.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT * FROM channels WHERE channel_id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build channel query: %w", err)
	}
	var channels []models.Channel
	err = DB.Select(&channels, DB.Rebind(query), args...)
	return channels, err
}

// ListChannelsNotRefreshedSince returns channels whose snapshot predates t,
// i.e. the ones the daily sync still has to visit today.
func ListChannelsNotRefreshedSince(t time.Time) ([]models.Channel, error) {
	var channels []models.Channel
	err := DB.Select(&channels, "SELECT * FROM channels WHERE fetched_at < $1 ORDER BY fetched_at ASC", t)
	return channels, err
}

// UpsertChannel inserts a channel or overwrites its snapshot fields.
func UpsertChannel(ch models.Channel) (models.Channel, error) {
	query := `
		INSERT INTO channels (
			channel_id, handle, name, description, thumbnail_url, region_code,
			default_language, video_count, view_count, subscriber_count,
			uploads_playlist_id, published_at, last_video_uploaded_at, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (channel_id) DO UPDATE SET
			handle = EXCLUDED.handle,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			thumbnail_url = EXCLUDED.thumbnail_url,
			region_code = EXCLUDED.region_code,
			default_language = EXCLUDED.default_language,
			video_count = EXCLUDED.video_count,
			view_count = EXCLUDED.view_count,
			subscriber_count = EXCLUDED.subscriber_count,
			uploads_playlist_id = EXCLUDED.uploads_playlist_id,
			last_video_uploaded_at = EXCLUDED.last_video_uploaded_at,
			fetched_at = EXCLUDED.fetched_at
		RETURNING *
	`
	stored := models.Channel{}
	err := DB.Get(&stored, query,
		ch.ChannelID, ch.Handle, ch.Name, ch.Description, ch.ThumbnailURL, ch.RegionCode,
		ch.DefaultLanguage, ch.VideoCount, ch.ViewCount, ch.SubscriberCount,
		ch.UploadsPlaylistID, ch.PublishedAt, ch.LastVideoUploadedAt, ch.FetchedAt)
	if err != nil {
		log.Printf("Error upserting channel %s: %v", ch.ChannelID, err)
		return stored, err
	}
	return stored, nil
}

// UpdateChannelStats overwrites the snapshot counters after a sync. A nil
// lastVideoUploadedAt keeps the stored value (no extra lookup was made).
func UpdateChannelStats(ctx context.Context, channelID string, videoCount int, viewCount int64, subscriberCount int, lastVideoUploadedAt *time.Time) error {
	query := `
		UPDATE channels SET
			video_count = $1,
			view_count = $2,
			subscriber_count = $3,
			last_video_uploaded_at = COALESCE($4, last_video_uploaded_at),
			fetched_at = NOW()
		WHERE channel_id = $5
	`
	_, err := DB.ExecContext(ctx, query, videoCount, viewCount, subscriberCount, lastVideoUploadedAt, channelID)
	return err
}

// InsertChannelHistory appends one immutable time-series row.
func InsertChannelHistory(ctx context.Context, channelID string, videoCount int, viewCount int64, subscriberCount int) error {
	query := `
		INSERT INTO channel_histories (channel_id, video_count, view_count, subscriber_count)
		VALUES ($1, $2, $3, $4)
	`
	_, err := DB.ExecContext(ctx, query, channelID, videoCount, viewCount, subscriberCount)
	return err
}

// GetChannelHistories returns the most recent history rows for a channel,
// newest first.
func GetChannelHistories(channelID string, limit int) ([]models.ChannelHistory, error) {
	var histories []models.ChannelHistory
	query := `
		SELECT * FROM channel_histories
		WHERE channel_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	err := DB.Select(&histories, query, channelID, limit)
	return histories, err
}
