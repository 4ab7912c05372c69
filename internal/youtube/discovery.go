package youtube

import (
	"context"
	"log"
	"sort"
	"strconv"
	"time"

	"yt-radar/internal/apperrors"
	"yt-radar/internal/db"
	"yt-radar/internal/models"
)

// maxSearchPages caps keyword-search pagination (500 quota units) no matter
// what the early-exit heuristics decide. It guards against an unbounded loop
// when the platform's view-count ordering assumption does not hold.
const maxSearchPages = 5

// SearchRequest is the inbound discovery request. Exactly one of ChannelIDs
// and Keyword is used per call.
type SearchRequest struct {
	ChannelIDs        []string `json:"channelIds"`
	Keyword           string   `json:"keyword"`
	Days              int      `json:"days"`
	MaxResults        int      `json:"maxResults"`
	MinViews          int64    `json:"minViews"`
	MinViewsPerHour   float64  `json:"minViewsPerHour"`
	VideoDuration     string   `json:"videoDuration"` // short|medium|long|all
	RegionCode        string   `json:"regionCode,omitempty"`
	RelevanceLanguage string   `json:"relevanceLanguage,omitempty"`
	PopularOnly       bool     `json:"popularOnly"`
}

func (r *SearchRequest) normalize() {
	if r.Days <= 0 {
		r.Days = 7
	}
	if r.MaxResults <= 0 {
		r.MaxResults = 10
	}
	if r.VideoDuration == "" {
		r.VideoDuration = DurationAll
	}
}

// ChannelStats is the channel metadata attached to each result.
type ChannelStats struct {
	Handle          *string `json:"handle"`
	SubscriberCount int     `json:"subscriberCount"`
	VideoCount      int     `json:"videoCount"`
	ViewCount       int64   `json:"viewCount"`
	RegionCode      *string `json:"regionCode"`
	Link            string  `json:"link"`
	ThumbnailURL    *string `json:"thumbnailUrl"`
}

// VideoResult is one qualifying video, ranked within the response.
type VideoResult struct {
	Rank               int          `json:"rank"`
	ID                 string       `json:"id"`
	ChannelID          string       `json:"channelId"`
	ChannelTitle       string       `json:"channelTitle"`
	Title              string       `json:"title"`
	PublishedAt        time.Time    `json:"publishedAt"`
	ViewCount          int64        `json:"viewCount"`
	ViewsPerHour       float64      `json:"viewsPerHour"`
	ViewsPerSubscriber *float64     `json:"viewsPerSubscriber"`
	Duration           string       `json:"duration"`
	DurationSeconds    int          `json:"durationSeconds"`
	Link               string       `json:"link"`
	ThumbnailURL       string       `json:"thumbnailUrl"`
	LikeCount          *int64       `json:"likeCount,omitempty"`
	CommentCount       *int64       `json:"commentCount,omitempty"`
	Tags               []string     `json:"tags,omitempty"`
	Channel            ChannelStats `json:"channel"`
}

// ChannelReport records what each channel contributed to a channel-set
// search. Failed channels contribute nothing but do not fail the request.
type ChannelReport struct {
	ChannelID string `json:"channelId"`
	Collected int    `json:"collected"`
	Error     string `json:"error,omitempty"`
}

// DiscoveryResult is the engine's response for either mode.
type DiscoveryResult struct {
	Videos []VideoResult   `json:"videos"`
	Report []ChannelReport `json:"report,omitempty"`
}

// Engine runs discovery searches and the scheduled channel refresh on top of
// the batch fetch client.
type Engine struct {
	client *Client
	now    func() time.Time
}

func NewEngine(client *Client) *Engine {
	return &Engine{client: client, now: time.Now}
}

// passes applies the shared filtering core: minimum views, duration bucket,
// and minimum views-per-hour.
func (e *Engine) passes(item VideoItem, req SearchRequest) (vph float64, durSec int, ok bool) {
	views := item.Views()
	if views < req.MinViews {
		return 0, 0, false
	}
	durSec = parseISODuration(item.ContentDetails.Duration)
	if !durationMatches(durSec, req.VideoDuration) {
		return 0, durSec, false
	}
	vph = viewsPerHour(views, item.Snippet.PublishedAt, e.now())
	if req.MinViewsPerHour > 0 && vph < req.MinViewsPerHour {
		return vph, durSec, false
	}
	return vph, durSec, true
}

func (e *Engine) buildResult(item VideoItem, vph float64, durSec int, stats ChannelStats) VideoResult {
	views := item.Views()
	res := VideoResult{
		ID:              item.ID,
		ChannelID:       item.Snippet.ChannelID,
		ChannelTitle:    item.Snippet.ChannelTitle,
		Title:           item.Snippet.Title,
		PublishedAt:     item.Snippet.PublishedAt,
		ViewCount:       views,
		ViewsPerHour:    vph,
		Duration:        formatDuration(durSec),
		DurationSeconds: durSec,
		Link:            "https://www.youtube.com/watch?v=" + item.ID,
		Tags:            item.Snippet.Tags,
		Channel:         stats,
	}
	if stats.SubscriberCount > 0 {
		vps := float64(views) / float64(stats.SubscriberCount)
		res.ViewsPerSubscriber = &vps
	}
	if t := item.Snippet.Thumbnails.Maxres; t != nil {
		res.ThumbnailURL = t.URL
	} else if t := item.Snippet.Thumbnails.Default; t != nil {
		res.ThumbnailURL = t.URL
	}
	res.LikeCount = parseCount(item.Statistics.LikeCount)
	res.CommentCount = parseCount(item.Statistics.CommentCount)
	return res
}

func channelStatsFromModel(ch models.Channel) ChannelStats {
	return ChannelStats{
		Handle:          ch.Handle,
		SubscriberCount: ch.SubscriberCount,
		VideoCount:      ch.VideoCount,
		ViewCount:       ch.ViewCount,
		RegionCode:      ch.RegionCode,
		Link:            "https://www.youtube.com/channel/" + ch.ChannelID,
		ThumbnailURL:    ch.ThumbnailURL,
	}
}

// SearchByChannels discovers videos across the given tracked channels. Server
// pool quota is charged on the caller's behalf. Channels that are untracked
// or fail upstream contribute nothing and are noted in the report; quota and
// credential errors abort the whole request.
func (e *Engine) SearchByChannels(ctx context.Context, userID int64, req SearchRequest) (*DiscoveryResult, error) {
	req.normalize()

	channels, err := db.GetChannelsByChannelIDs(req.ChannelIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ChannelID] = ch
	}

	watermark := e.now().AddDate(0, 0, -req.Days)
	var collected []VideoResult
	var report []ChannelReport

	err = runWithReselect(ctx, &userID, func(cred Credential) error {
		collected = collected[:0]
		report = report[:0]
		for _, channelID := range req.ChannelIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			ch, ok := byID[channelID]
			if !ok {
				report = append(report, ChannelReport{ChannelID: channelID, Error: "channel is not tracked"})
				continue
			}

			videos, err := e.collectChannelVideos(ctx, cred, ch, watermark, req)
			if err != nil {
				if fatalDiscoveryError(err) {
					return err
				}
				log.Printf("Channel %s contributed nothing: %v", channelID, err)
				report = append(report, ChannelReport{ChannelID: channelID, Error: err.Error()})
				continue
			}
			collected = append(collected, videos...)
			report = append(report, ChannelReport{ChannelID: channelID, Collected: len(videos)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Per-channel collection order is an implementation choice; the final
	// ordering across channels is always VPH descending.
	sortByVph(collected)
	renumber(collected)
	return &DiscoveryResult{Videos: collected, Report: report}, nil
}

// collectChannelVideos runs the incremental sync over one channel's upload
// playlist bounded by the day window, then fetches details chunk by chunk.
// In popular-only mode the entire window is collected before ranking, which
// guarantees the channel's true top-N by VPH at a higher quota price. The
// normal mode stops at the first MaxResults passing videos.
func (e *Engine) collectChannelVideos(ctx context.Context, cred Credential, ch models.Channel, watermark time.Time, req SearchRequest) ([]VideoResult, error) {
	ids, _, err := collectNewVideoIDs(ctx, e.client, cred, ch.UploadsPlaylistID, watermark)
	if err != nil {
		return nil, err
	}

	stats := channelStatsFromModel(ch)
	var out []VideoResult
	for _, part := range chunk(ids, batchSize) {
		items, err := e.client.FetchVideos(ctx, cred, part)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			vph, durSec, ok := e.passes(item, req)
			if !ok {
				continue
			}
			out = append(out, e.buildResult(item, vph, durSec, stats))
			if !req.PopularOnly && len(out) >= req.MaxResults {
				return out, nil
			}
		}
	}

	if req.PopularOnly {
		sortByVph(out)
		if len(out) > req.MaxResults {
			out = out[:req.MaxResults]
		}
	}
	return out, nil
}

// SearchByKeyword discovers videos by keyword using the caller's credential
// (own key, or server pool on their behalf). The platform returns results in
// view-count-descending order, so the first record below the minimum-view
// threshold proves every later record fails too and pagination stops after
// that page. With a VPH threshold set, the engine additionally returns as
// soon as enough VPH-qualifying records are collected.
func (e *Engine) SearchByKeyword(ctx context.Context, userID int64, req SearchRequest) (*DiscoveryResult, error) {
	req.normalize()

	cred, err := credentialForUser(userID)
	if err != nil {
		return nil, err
	}

	publishedAfter := e.now().AddDate(0, 0, -req.Days)
	seen := make(map[string]struct{})
	var candidates []candidate
	pageToken := ""
	stop := false

	for page := 0; page < maxSearchPages && !stop; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sp, err := e.client.SearchByKeyword(ctx, cred, SearchQuery{
			Keyword:           req.Keyword,
			PublishedAfter:    publishedAfter,
			VideoDuration:     platformDuration(req.VideoDuration),
			RegionCode:        req.RegionCode,
			RelevanceLanguage: req.RelevanceLanguage,
			PageToken:         pageToken,
		})
		if err != nil {
			return nil, err
		}

		var ids []string
		for _, id := range sp.VideoIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		if len(ids) > 0 {
			items, err := e.client.FetchVideos(ctx, cred, ids)
			if err != nil {
				return nil, err
			}
			byID := make(map[string]VideoItem, len(items))
			for _, item := range items {
				byID[item.ID] = item
			}

			// Scan in ranking order so the monotonicity break is detected at
			// the right position.
			for _, id := range ids {
				item, ok := byID[id]
				if !ok {
					continue
				}
				if item.Views() < req.MinViews {
					stop = true
					break
				}
				durSec := parseISODuration(item.ContentDetails.Duration)
				if !durationMatches(durSec, req.VideoDuration) {
					continue
				}
				vph := viewsPerHour(item.Views(), item.Snippet.PublishedAt, e.now())
				candidates = append(candidates, candidate{item: item, vph: vph, durSec: durSec})
			}
		}

		if req.MinViewsPerHour > 0 {
			if countVphQualifying(candidates, req.MinViewsPerHour) >= req.MaxResults {
				break
			}
		} else if len(candidates) >= req.MaxResults {
			break
		}

		if sp.NextPageToken == "" {
			break
		}
		pageToken = sp.NextPageToken
	}

	var final []candidate
	for _, c := range candidates {
		if req.MinViewsPerHour > 0 && c.vph < req.MinViewsPerHour {
			continue
		}
		final = append(final, c)
		if len(final) >= req.MaxResults {
			break
		}
	}

	statsByChannel, err := e.resolveChannelStats(ctx, cred, channelIDsOf(final))
	if err != nil {
		return nil, err
	}

	results := make([]VideoResult, 0, len(final))
	for _, c := range final {
		results = append(results, e.buildResult(c.item, c.vph, c.durSec, statsByChannel[c.item.Snippet.ChannelID]))
	}
	renumber(results)
	return &DiscoveryResult{Videos: results}, nil
}

type candidate struct {
	item   VideoItem
	vph    float64
	durSec int
}

func countVphQualifying(candidates []candidate, minVph float64) int {
	n := 0
	for _, c := range candidates {
		if c.vph >= minVph {
			n++
		}
	}
	return n
}

func channelIDsOf(candidates []candidate) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range candidates {
		id := c.item.Snippet.ChannelID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// resolveChannelStats fills channel metadata from the local store first, then
// one batched platform lookup for channels not tracked locally, charged
// normally. A failed lookup leaves those channels with empty stats rather
// than failing the search.
func (e *Engine) resolveChannelStats(ctx context.Context, cred Credential, channelIDs []string) (map[string]ChannelStats, error) {
	stats := make(map[string]ChannelStats, len(channelIDs))
	if len(channelIDs) == 0 {
		return stats, nil
	}

	stored, err := db.GetChannelsByChannelIDs(channelIDs)
	if err != nil {
		return nil, err
	}
	for _, ch := range stored {
		stats[ch.ChannelID] = channelStatsFromModel(ch)
	}

	var missing []string
	for _, id := range channelIDs {
		if _, ok := stats[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return stats, nil
	}

	items, err := e.client.FetchChannels(ctx, cred, missing, nil)
	if err != nil {
		if fatalDiscoveryError(err) {
			return nil, err
		}
		log.Printf("Channel metadata lookup failed for %d channels: %v", len(missing), err)
		return stats, nil
	}
	for _, item := range items {
		stats[item.ID] = channelStatsFromItem(item)
	}
	return stats, nil
}

// fatalDiscoveryError reports whether err must abort the whole request
// instead of being skipped as a per-item failure.
func fatalDiscoveryError(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeQuotaExceeded, apperrors.CodeUserQuotaExceeded,
		apperrors.CodeNoCredentialAvailable, apperrors.CodeCredentialNotFound:
		return true
	}
	return false
}

func sortByVph(videos []VideoResult) {
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].ViewsPerHour > videos[j].ViewsPerHour
	})
}

func renumber(videos []VideoResult) {
	for i := range videos {
		videos[i].Rank = i + 1
	}
}

func parseCount(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
