package handlers

import (
	"encoding/json"
	"net/http"

	"yt-radar/internal/youtube"
)

// PostVideoSearch runs a discovery request: trending videos across the
// caller's chosen channel set, or a keyword search. Exactly one of channelIds
// and keyword must be set.
func (h *Handlers) PostVideoSearch(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req youtube.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid JSON body")
		return
	}

	hasChannels := len(req.ChannelIDs) > 0
	hasKeyword := req.Keyword != ""
	if hasChannels == hasKeyword {
		respondBadRequest(w, "exactly one of channelIds and keyword must be set")
		return
	}
	switch req.VideoDuration {
	case "", youtube.DurationAll, youtube.DurationShort, youtube.DurationMedium, youtube.DurationLong:
	default:
		respondBadRequest(w, "videoDuration must be one of short, medium, long, all")
		return
	}

	var (
		result *youtube.DiscoveryResult
		err    error
	)
	if hasKeyword {
		result, err = h.engine.SearchByKeyword(r.Context(), user.ID, req)
	} else {
		result, err = h.engine.SearchByChannels(r.Context(), user.ID, req)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
