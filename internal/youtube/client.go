package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"yt-radar/internal/apperrors"
	"yt-radar/internal/db"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Platform-fixed constants. The costs must match the platform's published
// per-call quota prices exactly, or the ledger drifts from reality.
const (
	batchSize = 50
	pageSize  = 50

	costChannelsList  = 1
	costPlaylistItems = 1
	costVideosList    = 1
	costSearch        = 100
)

// Ledger records quota consumption. Implemented by the database ledger; a
// fake is used in tests.
type Ledger interface {
	ChargeAPIKey(ctx context.Context, apiKeyID int64, amount int, onBehalfOfUserID *int64) error
}

type dbLedger struct{}

func (dbLedger) ChargeAPIKey(ctx context.Context, apiKeyID int64, amount int, onBehalfOfUserID *int64) error {
	return db.ChargeAPIKey(ctx, apiKeyID, amount, onBehalfOfUserID)
}

// Credential identifies the API key a call is billed to.
type Credential struct {
	ID  int64
	Key string
	// OnBehalfOfUserID is set when a server-pool key is used for a specific
	// user; charges then also count against that user's daily cap.
	OnBehalfOfUserID *int64
}

// Client talks to the platform's metered read endpoints. Every physical call
// is charged to the ledger after it returns successfully; failed calls are
// never charged.
type Client struct {
	httpClient *http.Client
	baseURL    string
	ledger     Ledger
}

// NewClient builds a client against the real platform API and the database
// ledger. YOUTUBE_API_BASE_URL overrides the endpoint (used in tests).
func NewClient() *Client {
	baseURL := os.Getenv("YOUTUBE_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		ledger:     dbLedger{},
	}
}

// Thumbnail is a single thumbnail rendition.
type Thumbnail struct {
	URL string `json:"url"`
}

type Thumbnails struct {
	Default *Thumbnail `json:"default"`
	Maxres  *Thumbnail `json:"maxres"`
}

// ChannelItem is one channels.list result.
type ChannelItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title           string     `json:"title"`
		CustomURL       string     `json:"customUrl"`
		Description     string     `json:"description"`
		PublishedAt     time.Time  `json:"publishedAt"`
		Thumbnails      Thumbnails `json:"thumbnails"`
		Country         string     `json:"country"`
		DefaultLanguage string     `json:"defaultLanguage"`
	} `json:"snippet"`
	Statistics struct {
		VideoCount      string `json:"videoCount"`
		ViewCount       string `json:"viewCount"`
		SubscriberCount string `json:"subscriberCount"`
	} `json:"statistics"`
	ContentDetails struct {
		RelatedPlaylists struct {
			Uploads string `json:"uploads"`
		} `json:"relatedPlaylists"`
	} `json:"contentDetails"`
}

// VideoItem is one videos.list result.
type VideoItem struct {
	ID      string `json:"id"`
	Snippet struct {
		PublishedAt          time.Time  `json:"publishedAt"`
		ChannelID            string     `json:"channelId"`
		Title                string     `json:"title"`
		ChannelTitle         string     `json:"channelTitle"`
		Tags                 []string   `json:"tags"`
		DefaultLanguage      string     `json:"defaultLanguage"`
		DefaultAudioLanguage string     `json:"defaultAudioLanguage"`
		Thumbnails           Thumbnails `json:"thumbnails"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

// Views returns the parsed view count.
func (v VideoItem) Views() int64 {
	n, _ := strconv.ParseInt(v.Statistics.ViewCount, 10, 64)
	return n
}

// PlaylistItem is one playlistItems.list result.
type PlaylistItem struct {
	ContentDetails struct {
		VideoID          string    `json:"videoId"`
		VideoPublishedAt time.Time `json:"videoPublishedAt"`
	} `json:"contentDetails"`
}

// PlaylistPage is a single page of a playlist, in reverse-chronological order.
type PlaylistPage struct {
	Items         []PlaylistItem
	NextPageToken string
	TotalResults  int
}

// SearchQuery are the keyword-search parameters passed through to the
// platform. Results come back ordered by view count descending.
type SearchQuery struct {
	Keyword           string
	PublishedAfter    time.Time
	VideoDuration     string // any|short|medium|long
	RegionCode        string
	RelevanceLanguage string
	PageToken         string
}

// SearchPage is a single page of keyword-search results.
type SearchPage struct {
	VideoIDs      []string
	NextPageToken string
}

type listResponse struct {
	Items         []json.RawMessage `json:"items"`
	NextPageToken string            `json:"nextPageToken"`
	PageInfo      struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// get issues one physical call and decodes the standard list envelope.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*listResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePlatformAPIError, err, path+" request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		msg := body.Error.Message
		if msg == "" {
			msg = "unknown error"
		}
		log.Printf("Platform API error [%d] on %s: %s", resp.StatusCode, path, msg)

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, &apperrors.Error{Code: apperrors.CodePlatformAuthError, Message: msg, UpstreamStatus: resp.StatusCode}
		case http.StatusTooManyRequests:
			return nil, &apperrors.Error{Code: apperrors.CodePlatformQuotaExceeded, Message: msg, UpstreamStatus: resp.StatusCode}
		}
		return nil, &apperrors.Error{Code: apperrors.CodePlatformAPIError, Message: msg, UpstreamStatus: resp.StatusCode}
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Wrap(apperrors.CodePlatformAPIError, err, "failed to decode "+path+" response")
	}
	return &out, nil
}

func (c *Client) charge(ctx context.Context, cred Credential, amount int) error {
	return c.ledger.ChargeAPIKey(ctx, cred.ID, amount, cred.OnBehalfOfUserID)
}

func decodeItems[T any](raw []json.RawMessage) ([]T, error) {
	items := make([]T, 0, len(raw))
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, apperrors.Wrap(apperrors.CodePlatformAPIError, err, "failed to decode item")
		}
		items = append(items, item)
	}
	return items, nil
}

// FetchChannels looks up channels by id or by handle, never both per call.
// Input is split into chunks of at most 50; each chunk is one physical call
// charged 1 unit.
func (c *Client) FetchChannels(ctx context.Context, cred Credential, ids, handles []string) ([]ChannelItem, error) {
	if len(ids) > 0 && len(handles) > 0 {
		return nil, fmt.Errorf("channel lookup takes ids or handles, not both")
	}
	target := ids
	byHandle := false
	if len(target) == 0 {
		target = handles
		byHandle = true
	}
	if len(target) == 0 {
		return nil, nil
	}

	var all []ChannelItem
	for _, part := range chunk(target, batchSize) {
		params := url.Values{}
		params.Set("key", cred.Key)
		params.Set("part", "snippet,statistics,contentDetails")
		if byHandle {
			params.Set("forHandle", join(part))
		} else {
			params.Set("id", join(part))
		}

		resp, err := c.get(ctx, "channels", params)
		if err != nil {
			return nil, err
		}
		if err := c.charge(ctx, cred, costChannelsList); err != nil {
			return nil, err
		}

		items, err := decodeItems[ChannelItem](resp.Items)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// FetchVideos looks up full video records, chunked like FetchChannels.
func (c *Client) FetchVideos(ctx context.Context, cred Credential, videoIDs []string) ([]VideoItem, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}

	var all []VideoItem
	for _, part := range chunk(videoIDs, batchSize) {
		params := url.Values{}
		params.Set("key", cred.Key)
		params.Set("part", "id,snippet,contentDetails,statistics")
		params.Set("id", join(part))

		resp, err := c.get(ctx, "videos", params)
		if err != nil {
			return nil, err
		}
		if err := c.charge(ctx, cred, costVideosList); err != nil {
			return nil, err
		}

		items, err := decodeItems[VideoItem](resp.Items)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// FetchPlaylistPage fetches one page of a playlist. A 404 means the playlist
// was deleted or made private; the call still happened, so it is charged and
// reported as an empty terminal page rather than an error.
func (c *Client) FetchPlaylistPage(ctx context.Context, cred Credential, playlistID, pageToken string) (PlaylistPage, error) {
	params := url.Values{}
	params.Set("key", cred.Key)
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.Itoa(pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	resp, err := c.get(ctx, "playlistItems", params)
	if err != nil {
		var aerr *apperrors.Error
		if errors.As(err, &aerr) && aerr.UpstreamStatus == http.StatusNotFound {
			if cerr := c.charge(ctx, cred, costPlaylistItems); cerr != nil {
				return PlaylistPage{}, cerr
			}
			return PlaylistPage{}, nil
		}
		return PlaylistPage{}, err
	}
	if err := c.charge(ctx, cred, costPlaylistItems); err != nil {
		return PlaylistPage{}, err
	}

	items, err := decodeItems[PlaylistItem](resp.Items)
	if err != nil {
		return PlaylistPage{}, err
	}
	return PlaylistPage{
		Items:         items,
		NextPageToken: resp.NextPageToken,
		TotalResults:  resp.PageInfo.TotalResults,
	}, nil
}

// FetchLastUploadedAt returns the publish time of the newest item in a
// playlist, or nil when the playlist is empty or gone.
func (c *Client) FetchLastUploadedAt(ctx context.Context, cred Credential, playlistID string) (*time.Time, error) {
	params := url.Values{}
	params.Set("key", cred.Key)
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", "1")

	resp, err := c.get(ctx, "playlistItems", params)
	if err != nil {
		var aerr *apperrors.Error
		if errors.As(err, &aerr) && aerr.UpstreamStatus == http.StatusNotFound {
			if cerr := c.charge(ctx, cred, costPlaylistItems); cerr != nil {
				return nil, cerr
			}
			return nil, nil
		}
		return nil, err
	}
	if err := c.charge(ctx, cred, costPlaylistItems); err != nil {
		return nil, err
	}

	items, err := decodeItems[PlaylistItem](resp.Items)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	t := items[0].ContentDetails.VideoPublishedAt
	return &t, nil
}

// SearchByKeyword issues one keyword-search page, the platform's most
// expensive read: a fixed 100 units per call regardless of result count.
// Results are ordered by view count descending, which the discovery engine's
// early exit relies on.
func (c *Client) SearchByKeyword(ctx context.Context, cred Credential, q SearchQuery) (SearchPage, error) {
	params := url.Values{}
	params.Set("key", cred.Key)
	params.Set("part", "id")
	params.Set("type", "video")
	params.Set("q", q.Keyword)
	params.Set("order", "viewCount")
	params.Set("maxResults", strconv.Itoa(pageSize))
	if !q.PublishedAfter.IsZero() {
		params.Set("publishedAfter", q.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if q.VideoDuration != "" {
		params.Set("videoDuration", q.VideoDuration)
	}
	if q.RegionCode != "" {
		params.Set("regionCode", q.RegionCode)
	}
	if q.RelevanceLanguage != "" {
		params.Set("relevanceLanguage", q.RelevanceLanguage)
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}

	resp, err := c.get(ctx, "search", params)
	if err != nil {
		return SearchPage{}, err
	}
	if err := c.charge(ctx, cred, costSearch); err != nil {
		return SearchPage{}, err
	}

	type searchItem struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	}
	items, err := decodeItems[searchItem](resp.Items)
	if err != nil {
		return SearchPage{}, err
	}

	page := SearchPage{NextPageToken: resp.NextPageToken}
	for _, item := range items {
		if item.ID.VideoID != "" {
			page.VideoIDs = append(page.VideoIDs, item.ID.VideoID)
		}
	}
	return page, nil
}
