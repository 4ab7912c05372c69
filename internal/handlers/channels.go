package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"yt-radar/internal/db"
	"yt-radar/pkg/tasks"
)

const maxSubscriptionsPerUser = 50

type trackChannelsRequest struct {
	Handles []string `json:"handles"`
}

// PostChannels resolves the given handles on the platform, stores the
// channels and subscribes the caller. An initial refresh task is enqueued per
// channel so its first history row appears without waiting for the daily sync.
func (h *Handlers) PostChannels(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req trackChannelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid JSON body")
		return
	}
	if len(req.Handles) == 0 {
		respondBadRequest(w, "handles is required")
		return
	}

	count, err := db.CountSubscriptions(user.ID)
	if err != nil {
		log.Printf("Error counting subscriptions: %v", err)
		respondError(w, err)
		return
	}
	if count+len(req.Handles) > maxSubscriptionsPerUser {
		respondJSON(w, http.StatusForbidden, errorResponse{Code: "SUBSCRIPTION_LIMIT", Message: "Subscription limit reached"})
		return
	}

	channels, err := h.engine.TrackChannels(r.Context(), user.ID, req.Handles)
	if err != nil {
		respondError(w, err)
		return
	}

	for _, ch := range channels {
		task, err := tasks.NewRefreshChannelTask(ch.ChannelID)
		if err != nil {
			log.Printf("Error creating refresh task for channel %s: %v", ch.ChannelID, err)
			continue
		}
		if _, err := h.asynqClient.Enqueue(task); err != nil {
			log.Printf("Error enqueuing refresh task for channel %s: %v", ch.ChannelID, err)
		}
	}

	respondJSON(w, http.StatusCreated, channels)
}

// GetChannels returns the caller's tracked channels.
func (h *Handlers) GetChannels(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	channels, err := db.GetSubscribedChannels(user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, channels)
}

// GetChannelHistory returns the stats time series for one tracked channel,
// newest first.
func (h *Handlers) GetChannelHistory(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channelId"]

	if _, err := db.GetChannelByChannelID(channelID); err != nil {
		respondError(w, err)
		return
	}

	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			respondBadRequest(w, "limit must be between 1 and 365")
			return
		}
		limit = n
	}

	histories, err := db.GetChannelHistories(channelID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, histories)
}

// DeleteChannel unsubscribes the caller. The channel row stays tracked for
// other subscribers and the daily sync.
func (h *Handlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	channelID := mux.Vars(r)["channelId"]

	if err := db.Unsubscribe(user.ID, channelID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
