package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
	"yt-radar/internal/db"
	"yt-radar/internal/handlers"
	"yt-radar/internal/middleware"
	"yt-radar/internal/youtube"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	db.InitDB()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer asynqClient.Close()

	engine := youtube.NewEngine(youtube.NewClient())
	h := handlers.New(asynqClient, engine)

	// Discovery burns platform quota; throttle it harder than the CRUD routes.
	searchLimiter := middleware.NewRateLimiterMiddleware(rate.Limit(0.2), 3)

	r := mux.NewRouter()
	r.Use(middleware.AuthMiddleware)

	r.HandleFunc("/channels", h.PostChannels).Methods(http.MethodPost)
	r.HandleFunc("/channels", h.GetChannels).Methods(http.MethodGet)
	r.HandleFunc("/channels/{channelId}/history", h.GetChannelHistory).Methods(http.MethodGet)
	r.HandleFunc("/channels/{channelId}", h.DeleteChannel).Methods(http.MethodDelete)

	r.Handle("/videos/search", searchLimiter.Middleware(http.HandlerFunc(h.PostVideoSearch))).Methods(http.MethodPost)

	r.HandleFunc("/apikeys/user", h.PutUserAPIKey).Methods(http.MethodPut)
	r.HandleFunc("/apikeys/user", h.DeleteUserAPIKey).Methods(http.MethodDelete)
	r.HandleFunc("/apikeys/usage", h.GetAPIKeyUsage).Methods(http.MethodGet)
	r.HandleFunc("/apikeys/server", h.PostServerAPIKey).Methods(http.MethodPost)

	log.Printf("Starting server on :%s (commit: %s)", port, CommitSHA)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal(err)
	}
}
