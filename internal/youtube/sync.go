package youtube

import (
	"context"
	"time"
)

// collectNewVideoIDs walks a playlist page by page and returns the ids of
// videos published strictly after the watermark, plus the number of pages
// fetched. Pages arrive in reverse-chronological order, so the first item at
// or before the watermark proves everything further is already known: the
// walk stops there and discards the rest of the page and any next-page token.
// A channel with thousands of old videos and nothing new costs exactly one
// page.
func collectNewVideoIDs(ctx context.Context, c *Client, cred Credential, playlistID string, publishedAfter time.Time) ([]string, int, error) {
	var (
		videoIDs  []string
		pageToken string
		pages     int
	)

	for {
		if err := ctx.Err(); err != nil {
			return videoIDs, pages, err
		}

		page, err := c.FetchPlaylistPage(ctx, cred, playlistID, pageToken)
		if err != nil {
			return videoIDs, pages, err
		}
		pages++

		for _, item := range page.Items {
			if !item.ContentDetails.VideoPublishedAt.After(publishedAfter) {
				return videoIDs, pages, nil
			}
			videoIDs = append(videoIDs, item.ContentDetails.VideoID)
		}

		if page.NextPageToken == "" {
			return videoIDs, pages, nil
		}
		pageToken = page.NextPageToken
	}
}
