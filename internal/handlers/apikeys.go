package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"yt-radar/internal/apperrors"
	"yt-radar/internal/db"
)

type upsertAPIKeyRequest struct {
	Name   string `json:"name,omitempty"`
	APIKey string `json:"apiKey"`
}

type usageResponse struct {
	Usage    int `json:"usage"`
	MaxUsage int `json:"maxUsage"`
}

// PutUserAPIKey registers or replaces the caller's personal platform key.
func (h *Handlers) PutUserAPIKey(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req upsertAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid JSON body")
		return
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		respondBadRequest(w, "apiKey is required")
		return
	}

	key, err := db.UpsertUserAPIKey(user.ID, apiKey)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, usageResponse{Usage: key.Usage, MaxUsage: db.MaxDailyUsage})
}

// DeleteUserAPIKey revokes the caller's personal key.
func (h *Handlers) DeleteUserAPIKey(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	if err := db.DeleteUserAPIKey(user.ID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type apiKeyUsageResponse struct {
	UserKey    *usageResponse `json:"userKey"`
	ServerPool usageResponse  `json:"serverPool"`
}

// GetAPIKeyUsage reports how much quota the caller has left: their personal
// key if registered, plus their share of the server pool for today.
func (h *Handlers) GetAPIKeyUsage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	resp := apiKeyUsageResponse{}

	key, err := db.GetUserAPIKey(user.ID)
	if err == nil {
		resp.UserKey = &usageResponse{Usage: key.Usage, MaxUsage: db.MaxDailyUsage}
	} else if !apperrors.HasCode(err, apperrors.CodeCredentialNotFound) {
		respondError(w, err)
		return
	}

	serverUsage, err := db.GetUserServerUsage(user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	resp.ServerPool = usageResponse{Usage: serverUsage, MaxUsage: db.MaxUserDailyUsage}

	respondJSON(w, http.StatusOK, resp)
}

// PostServerAPIKey adds a named key to the shared server pool. Admin only.
func (h *Handlers) PostServerAPIKey(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	adminID, _ := strconv.ParseInt(os.Getenv("ADMIN_USER_ID"), 10, 64)
	if adminID == 0 || user.ID != adminID {
		respondJSON(w, http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "Admin only"})
		return
	}

	var req upsertAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	apiKey := strings.TrimSpace(req.APIKey)
	if name == "" || apiKey == "" {
		respondBadRequest(w, "name and apiKey are required")
		return
	}

	key, err := db.UpsertServerAPIKey(name, apiKey)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, usageResponse{Usage: key.Usage, MaxUsage: db.MaxDailyUsage})
}
