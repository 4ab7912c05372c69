package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yt-radar/internal/models"
	"yt-radar/internal/test"
)

var fixedNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, handler http.Handler) (*Engine, *fakeLedger) {
	client, ledger := newTestClient(t, handler)
	return &Engine{client: client, now: func() time.Time { return fixedNow }}, ledger
}

func videoJSON(id, channelID string, views int64, publishedAt time.Time, duration string) map[string]any {
	return map[string]any{
		"id": id,
		"snippet": map[string]any{
			"publishedAt":  publishedAt.Format(time.RFC3339),
			"channelId":    channelID,
			"title":        "Video " + id,
			"channelTitle": "Some Channel",
		},
		"contentDetails": map[string]any{"duration": duration},
		"statistics":     map[string]any{"viewCount": strconv.FormatInt(views, 10)},
	}
}

// videosHandler serves /videos lookups out of a fixture map, returning only
// the requested ids it knows about.
func videosHandler(fixtures map[string]map[string]any, requested *[][]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("id"), ",")
		if requested != nil {
			*requested = append(*requested, ids)
		}
		var items []any
		for _, id := range ids {
			if item, ok := fixtures[id]; ok {
				items = append(items, item)
			}
		}
		writeItems(w, items)
	}
}

func trackedChannelRows(channelID, uploadsPlaylistID string, subscriberCount int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "channel_id", "handle", "name", "description", "thumbnail_url",
		"region_code", "default_language", "video_count", "view_count",
		"subscriber_count", "uploads_playlist_id", "published_at",
		"last_video_uploaded_at", "fetched_at", "created_at",
	}).AddRow(1, channelID, "@handle", "Some Channel", nil, nil,
		nil, nil, 10, int64(5000), subscriberCount, uploadsPlaylistID,
		fixedNow.AddDate(-2, 0, 0), nil, fixedNow.Add(-24*time.Hour), fixedNow.AddDate(-1, 0, 0))
}

func expectUserKey(mock sqlmock.Sqlmock, userID, keyID int64) {
	mock.ExpectQuery(`SELECT \* FROM api_keys`).
		WithArgs(models.APIKeyTypeUser, userID).
		WillReturnRows(apiKeyRows(keyID, models.APIKeyTypeUser, 0))
}

func TestSearchByKeywordStopsAtViewCountBreak(t *testing.T) {
	_, mock := test.NewMockDB(t)
	expectUserKey(mock, 42, 9)
	mock.ExpectQuery(`SELECT \* FROM channels WHERE channel_id IN`).
		WithArgs("UCx").
		WillReturnRows(trackedChannelRows("UCx", "UUx", 100))

	// Ranking order v001..v050; v030 drops below the view threshold, which
	// proves every later record fails too.
	fixtures := make(map[string]map[string]any)
	var searchIDs []string
	for i := 1; i <= 50; i++ {
		id := fmt.Sprintf("v%03d", i)
		searchIDs = append(searchIDs, id)
		views := int64(10000 - i)
		if i >= 30 {
			views = 50
		}
		fixtures[id] = videoJSON(id, "UCx", views, fixedNow.Add(-2*time.Hour), "PT10M")
	}

	searchCalls := 0
	srvMux := http.NewServeMux()
	srvMux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		searchCalls++
		items := make([]any, 0, len(searchIDs))
		for _, id := range searchIDs {
			items = append(items, map[string]any{"id": map[string]any{"videoId": id}})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items, "nextPageToken": "p2"})
	})
	srvMux.HandleFunc("/videos", videosHandler(fixtures, nil))
	engine, _ := newTestEngine(t, srvMux)

	result, err := engine.SearchByKeyword(context.Background(), 42, SearchRequest{
		Keyword:    "lofi",
		MinViews:   100,
		MaxResults: 50,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, searchCalls, "pagination must stop after the page with the break")
	require.Len(t, result.Videos, 29)
	assert.Equal(t, "v001", result.Videos[0].ID)
	assert.Equal(t, 1, result.Videos[0].Rank)
	assert.Equal(t, 29, result.Videos[28].Rank)
}

func TestSearchByKeywordVphEarlyReturn(t *testing.T) {
	_, mock := test.NewMockDB(t)
	expectUserKey(mock, 42, 9)
	mock.ExpectQuery(`SELECT \* FROM channels WHERE channel_id IN`).
		WithArgs("UCx").
		WillReturnRows(trackedChannelRows("UCx", "UUx", 100))

	fixtures := map[string]map[string]any{
		"v1": videoJSON("v1", "UCx", 6000, fixedNow.Add(-time.Hour), "PT5M"),
		"v2": videoJSON("v2", "UCx", 5000, fixedNow.Add(-time.Hour), "PT5M"),
		"v3": videoJSON("v3", "UCx", 4000, fixedNow.Add(-time.Hour), "PT5M"),
	}

	searchCalls := 0
	srvMux := http.NewServeMux()
	srvMux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		searchCalls++
		json.NewEncoder(w).Encode(map[string]any{
			"items": []any{
				map[string]any{"id": map[string]any{"videoId": "v1"}},
				map[string]any{"id": map[string]any{"videoId": "v2"}},
				map[string]any{"id": map[string]any{"videoId": "v3"}},
			},
			"nextPageToken": "p2",
		})
	})
	srvMux.HandleFunc("/videos", videosHandler(fixtures, nil))
	engine, _ := newTestEngine(t, srvMux)

	result, err := engine.SearchByKeyword(context.Background(), 42, SearchRequest{
		Keyword:         "lofi",
		MinViewsPerHour: 100,
		MaxResults:      2,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, searchCalls, "enough VPH-qualifying records on page one")
	require.Len(t, result.Videos, 2)
	assert.Equal(t, "v1", result.Videos[0].ID)
	assert.Equal(t, "v2", result.Videos[1].ID)
}

func TestSearchByKeywordDeduplicatesAcrossPages(t *testing.T) {
	_, mock := test.NewMockDB(t)
	expectUserKey(mock, 42, 9)
	mock.ExpectQuery(`SELECT \* FROM channels WHERE channel_id IN`).
		WithArgs("UCx").
		WillReturnRows(trackedChannelRows("UCx", "UUx", 100))

	fixtures := map[string]map[string]any{
		"v1": videoJSON("v1", "UCx", 3000, fixedNow.Add(-time.Hour), "PT5M"),
		"v2": videoJSON("v2", "UCx", 2000, fixedNow.Add(-time.Hour), "PT5M"),
		"v3": videoJSON("v3", "UCx", 1000, fixedNow.Add(-time.Hour), "PT5M"),
	}
	pages := map[string]map[string]any{
		"":   {"items": []any{map[string]any{"id": map[string]any{"videoId": "v1"}}, map[string]any{"id": map[string]any{"videoId": "v2"}}}, "nextPageToken": "p2"},
		"p2": {"items": []any{map[string]any{"id": map[string]any{"videoId": "v2"}}, map[string]any{"id": map[string]any{"videoId": "v3"}}}},
	}

	var requested [][]string
	srvMux := http.NewServeMux()
	srvMux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pages[r.URL.Query().Get("pageToken")])
	})
	srvMux.HandleFunc("/videos", videosHandler(fixtures, &requested))
	engine, _ := newTestEngine(t, srvMux)

	result, err := engine.SearchByKeyword(context.Background(), 42, SearchRequest{Keyword: "lofi", MaxResults: 10})

	require.NoError(t, err)
	assert.Len(t, result.Videos, 3)
	require.Len(t, requested, 2)
	assert.Equal(t, []string{"v3"}, requested[1], "duplicate id must not be fetched twice")
}

func TestSearchByKeywordHardPageCap(t *testing.T) {
	_, mock := test.NewMockDB(t)
	expectUserKey(mock, 42, 9)

	// Every page advertises another one and nothing ever qualifies; the hard
	// cap is the only thing that stops the loop.
	searchCalls := 0
	srvMux := http.NewServeMux()
	srvMux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		searchCalls++
		json.NewEncoder(w).Encode(map[string]any{
			"items": []any{
				map[string]any{"id": map[string]any{"videoId": fmt.Sprintf("page%dvideo", searchCalls)}},
			},
			"nextPageToken": fmt.Sprintf("p%d", searchCalls+1),
		})
	})
	srvMux.HandleFunc("/videos", videosHandler(nil, nil))
	engine, ledger := newTestEngine(t, srvMux)

	result, err := engine.SearchByKeyword(context.Background(), 42, SearchRequest{Keyword: "lofi"})

	require.NoError(t, err)
	assert.Equal(t, 5, searchCalls)
	assert.Empty(t, result.Videos)
	// 5 search pages at 100 each plus 5 detail lookups.
	assert.Equal(t, 505, ledger.total())
}

func channelSearchMocks(t *testing.T) sqlmock.Sqlmock {
	_, mock := test.NewMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM channels WHERE channel_id IN`).
		WithArgs("UCaaa").
		WillReturnRows(trackedChannelRows("UCaaa", "UUaaa", 100))
	mock.ExpectQuery(`SELECT \* FROM api_keys`).
		WillReturnRows(apiKeyRows(3, models.APIKeyTypeServer, 500))
	return mock
}

// channelSearchServer serves one upload playlist with two qualifying videos:
// the newest one barely moves while an older one is taking off.
func channelSearchServer(t *testing.T) http.Handler {
	fixtures := map[string]map[string]any{
		"vNew": videoJSON("vNew", "UCaaa", 100, fixedNow.Add(-time.Hour), "PT5M"),
		"vHot": videoJSON("vHot", "UCaaa", 50000, fixedNow.Add(-10*time.Hour), "PT5M"),
	}
	srvMux := http.NewServeMux()
	srvMux.HandleFunc("/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		writeItems(w, []any{
			map[string]any{"contentDetails": map[string]any{"videoId": "vNew", "videoPublishedAt": fixedNow.Add(-time.Hour).Format(time.RFC3339)}},
			map[string]any{"contentDetails": map[string]any{"videoId": "vHot", "videoPublishedAt": fixedNow.Add(-10 * time.Hour).Format(time.RFC3339)}},
		})
	})
	srvMux.HandleFunc("/videos", videosHandler(fixtures, nil))
	return srvMux
}

func TestSearchByChannelsStopsAtMaxResults(t *testing.T) {
	channelSearchMocks(t)
	engine, ledger := newTestEngine(t, channelSearchServer(t))

	result, err := engine.SearchByChannels(context.Background(), 42, SearchRequest{
		ChannelIDs: []string{"UCaaa"},
		MaxResults: 1,
	})

	require.NoError(t, err)
	require.Len(t, result.Videos, 1)
	assert.Equal(t, "vNew", result.Videos[0].ID, "collection stops at the first passing video")
	require.Len(t, result.Report, 1)
	assert.Equal(t, 1, result.Report[0].Collected)

	// One playlist page and one detail chunk, charged on the caller's behalf.
	assert.Equal(t, 2, ledger.total())
	for _, c := range ledger.charges {
		require.NotNil(t, c.UserID)
		assert.Equal(t, int64(42), *c.UserID)
	}
}

func TestSearchByChannelsPopularOnlyRanksFullWindow(t *testing.T) {
	channelSearchMocks(t)
	engine, _ := newTestEngine(t, channelSearchServer(t))

	result, err := engine.SearchByChannels(context.Background(), 42, SearchRequest{
		ChannelIDs:  []string{"UCaaa"},
		MaxResults:  1,
		PopularOnly: true,
	})

	require.NoError(t, err)
	require.Len(t, result.Videos, 1)
	assert.Equal(t, "vHot", result.Videos[0].ID, "popular-only returns the true top by views per hour")
}

func TestSearchByChannelsUntrackedChannelReported(t *testing.T) {
	_, mock := test.NewMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM channels WHERE channel_id IN`).
		WithArgs("UCmissing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel_id"}))
	mock.ExpectQuery(`SELECT \* FROM api_keys`).
		WillReturnRows(apiKeyRows(3, models.APIKeyTypeServer, 0))

	engine, ledger := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no platform call expected for an untracked channel")
	}))

	result, err := engine.SearchByChannels(context.Background(), 42, SearchRequest{
		ChannelIDs: []string{"UCmissing"},
	})

	require.NoError(t, err)
	assert.Empty(t, result.Videos)
	require.Len(t, result.Report, 1)
	assert.Equal(t, "channel is not tracked", result.Report[0].Error)
	assert.Empty(t, ledger.charges)
}

func TestSearchByChannelsSortsAcrossChannelsByVph(t *testing.T) {
	collected := []VideoResult{
		{ID: "a", ViewsPerHour: 10},
		{ID: "b", ViewsPerHour: 500},
		{ID: "c", ViewsPerHour: 40},
	}

	sortByVph(collected)
	renumber(collected)

	assert.Equal(t, "b", collected[0].ID)
	assert.Equal(t, 1, collected[0].Rank)
	assert.Equal(t, "c", collected[1].ID)
	assert.Equal(t, "a", collected[2].ID)
	assert.Equal(t, 3, collected[2].Rank)
}
