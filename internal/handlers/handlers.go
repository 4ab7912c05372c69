package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"yt-radar/internal/apperrors"
	"yt-radar/internal/middleware"
	"yt-radar/internal/models"
	"yt-radar/internal/youtube"
	"yt-radar/pkg/tasks"
)

type Handlers struct {
	asynqClient tasks.TaskEnqueuer
	engine      *youtube.Engine
}

func New(asynqClient tasks.TaskEnqueuer, engine *youtube.Engine) *Handlers {
	return &Handlers{
		asynqClient: asynqClient,
		engine:      engine,
	}
}

func currentUser(r *http.Request) *models.User {
	return r.Context().Value(middleware.UserContextKey).(*models.User)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("Error encoding response: %v", err)
		}
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError maps coded errors to HTTP responses. Quota and credential
// errors carry their actionable code to the client; platform failures keep
// their detail in server logs only and flatten to a generic message.
func respondError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	code := apperrors.CodeOf(err)

	if code == "" {
		log.Printf("Internal error: %v", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "Internal server error"})
		return
	}
	if apperrors.IsPlatform(err) {
		log.Printf("Platform error surfaced to client as generic failure: %v", err)
		respondJSON(w, status, errorResponse{Code: string(code), Message: "Discovery temporarily unavailable"})
		return
	}
	respondJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: message})
}
