package youtube

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"yt-radar/internal/apperrors"
	"yt-radar/internal/db"
	"yt-radar/internal/models"
)

// RefreshReport summarizes one daily sync run. Failed channels are skipped,
// not fatal: an unattended job must finish the rest of the batch.
type RefreshReport struct {
	Total     int             `json:"total"`
	Refreshed int             `json:"refreshed"`
	Failures  []ChannelReport `json:"failures,omitempty"`
}

// TrackChannels resolves handles on the platform, stores the channels and
// subscribes the caller to them. Server-pool quota is charged on the caller's
// behalf.
func (e *Engine) TrackChannels(ctx context.Context, userID int64, handles []string) ([]models.Channel, error) {
	var stored []models.Channel

	err := runWithReselect(ctx, &userID, func(cred Credential) error {
		items, err := e.client.FetchChannels(ctx, cred, nil, handles)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return apperrors.Newf(apperrors.CodeChannelNotFound, "no channels matched handles %v", handles)
		}

		stored = stored[:0]
		for _, item := range items {
			var lastUploadedAt *time.Time
			if uploads := item.ContentDetails.RelatedPlaylists.Uploads; uploads != "" {
				lastUploadedAt, err = e.client.FetchLastUploadedAt(ctx, cred, uploads)
				if err != nil {
					if fatalDiscoveryError(err) {
						return err
					}
					log.Printf("Last-upload lookup failed for channel %s: %v", item.ID, err)
					lastUploadedAt = nil
				}
			}

			ch, err := db.UpsertChannel(channelFromItem(item, lastUploadedAt, e.now()))
			if err != nil {
				log.Printf("Failed to store channel %s: %v", item.ID, err)
				continue
			}
			if err := db.Subscribe(userID, ch.ChannelID); err != nil {
				log.Printf("Failed to subscribe user %d to channel %s: %v", userID, ch.ChannelID, err)
			}
			stored = append(stored, ch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// RefreshAllChannels re-syncs every channel not yet refreshed today: one
// batched stats lookup per 50 channels, an extra last-upload lookup only for
// channels whose video count changed, and one history row per channel.
func (e *Engine) RefreshAllChannels(ctx context.Context) (*RefreshReport, error) {
	now := e.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	channels, err := db.ListChannelsNotRefreshedSince(startOfDay)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale channels: %w", err)
	}
	report := &RefreshReport{Total: len(channels)}
	if len(channels) == 0 {
		return report, nil
	}

	err = runWithReselect(ctx, nil, func(cred Credential) error {
		report.Refreshed = 0
		report.Failures = nil

		for _, part := range chunk(channels, batchSize) {
			if err := ctx.Err(); err != nil {
				return err
			}

			ids := make([]string, len(part))
			for i, ch := range part {
				ids[i] = ch.ChannelID
			}
			items, err := e.client.FetchChannels(ctx, cred, ids, nil)
			if err != nil {
				if fatalDiscoveryError(err) {
					return err
				}
				log.Printf("Stats lookup failed for a batch of %d channels: %v", len(part), err)
				for _, ch := range part {
					report.Failures = append(report.Failures, ChannelReport{ChannelID: ch.ChannelID, Error: err.Error()})
				}
				continue
			}
			byID := make(map[string]ChannelItem, len(items))
			for _, item := range items {
				byID[item.ID] = item
			}

			for _, ch := range part {
				item, ok := byID[ch.ChannelID]
				if !ok {
					report.Failures = append(report.Failures, ChannelReport{ChannelID: ch.ChannelID, Error: "channel missing from platform response"})
					continue
				}
				if err := e.refreshOne(ctx, cred, ch, item); err != nil {
					if fatalDiscoveryError(err) {
						return err
					}
					log.Printf("Failed to refresh channel %s: %v", ch.ChannelID, err)
					report.Failures = append(report.Failures, ChannelReport{ChannelID: ch.ChannelID, Error: err.Error()})
					continue
				}
				report.Refreshed++
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

// RefreshChannel re-syncs a single tracked channel, used right after a
// channel is first tracked and for targeted retries.
func (e *Engine) RefreshChannel(ctx context.Context, channelID string) error {
	ch, err := db.GetChannelByChannelID(channelID)
	if err != nil {
		return err
	}

	return runWithReselect(ctx, nil, func(cred Credential) error {
		items, err := e.client.FetchChannels(ctx, cred, []string{ch.ChannelID}, nil)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return apperrors.Newf(apperrors.CodeChannelNotFound, "channel %s no longer exists on the platform", channelID)
		}
		return e.refreshOne(ctx, cred, ch, items[0])
	})
}

// refreshOne overwrites one channel's snapshot and appends its history row.
// The last-upload lookup is issued only when the video count moved, so an
// idle channel costs nothing beyond its share of the batched stats call.
func (e *Engine) refreshOne(ctx context.Context, cred Credential, ch models.Channel, item ChannelItem) error {
	videoCount := atoi(item.Statistics.VideoCount)
	viewCount := atoi64(item.Statistics.ViewCount)
	subscriberCount := atoi(item.Statistics.SubscriberCount)

	var lastUploadedAt *time.Time
	if videoCount != ch.VideoCount {
		uploads := item.ContentDetails.RelatedPlaylists.Uploads
		if uploads == "" {
			uploads = ch.UploadsPlaylistID
		}
		if uploads != "" {
			var err error
			lastUploadedAt, err = e.client.FetchLastUploadedAt(ctx, cred, uploads)
			if err != nil {
				if fatalDiscoveryError(err) {
					return err
				}
				log.Printf("Last-upload lookup failed for channel %s, keeping stored value: %v", ch.ChannelID, err)
				lastUploadedAt = nil
			}
		}
	}

	if err := db.UpdateChannelStats(ctx, ch.ChannelID, videoCount, viewCount, subscriberCount, lastUploadedAt); err != nil {
		return fmt.Errorf("failed to update channel stats: %w", err)
	}
	if err := db.InsertChannelHistory(ctx, ch.ChannelID, videoCount, viewCount, subscriberCount); err != nil {
		return fmt.Errorf("failed to append channel history: %w", err)
	}
	return nil
}

func channelFromItem(item ChannelItem, lastUploadedAt *time.Time, now time.Time) models.Channel {
	ch := models.Channel{
		ChannelID:           item.ID,
		Handle:              strPtr(item.Snippet.CustomURL),
		Name:                item.Snippet.Title,
		Description:         strPtr(item.Snippet.Description),
		RegionCode:          strPtr(item.Snippet.Country),
		DefaultLanguage:     strPtr(item.Snippet.DefaultLanguage),
		VideoCount:          atoi(item.Statistics.VideoCount),
		ViewCount:           atoi64(item.Statistics.ViewCount),
		SubscriberCount:     atoi(item.Statistics.SubscriberCount),
		UploadsPlaylistID:   item.ContentDetails.RelatedPlaylists.Uploads,
		PublishedAt:         item.Snippet.PublishedAt,
		LastVideoUploadedAt: lastUploadedAt,
		FetchedAt:           now,
	}
	if t := item.Snippet.Thumbnails.Default; t != nil {
		ch.ThumbnailURL = strPtr(t.URL)
	}
	return ch
}

func channelStatsFromItem(item ChannelItem) ChannelStats {
	stats := ChannelStats{
		Handle:          strPtr(item.Snippet.CustomURL),
		SubscriberCount: atoi(item.Statistics.SubscriberCount),
		VideoCount:      atoi(item.Statistics.VideoCount),
		ViewCount:       atoi64(item.Statistics.ViewCount),
		RegionCode:      strPtr(item.Snippet.Country),
		Link:            "https://www.youtube.com/channel/" + item.ID,
	}
	if t := item.Snippet.Thumbnails.Default; t != nil {
		stats.ThumbnailURL = strPtr(t.URL)
	}
	return stats
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
