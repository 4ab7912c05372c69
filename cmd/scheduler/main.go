package main

import (
	"log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"yt-radar/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: redisAddr},
		&asynq.SchedulerOpts{},
	)

	resetTask, err := tasks.NewResetQuotaTask()
	if err != nil {
		log.Fatalf("could not create reset task: %v", err)
	}
	refreshTask, err := tasks.NewRefreshAllChannelsTask()
	if err != nil {
		log.Fatalf("could not create refresh task: %v", err)
	}

	// Quota reset first, channel refresh ten minutes later so the sync runs
	// against a fresh daily budget.
	if _, err := scheduler.Register("0 16 * * *", resetTask, asynq.Queue("high")); err != nil {
		log.Fatalf("could not register reset task: %v", err)
	}
	if _, err := scheduler.Register("10 16 * * *", refreshTask); err != nil {
		log.Fatalf("could not register refresh task: %v", err)
	}

	log.Printf("Scheduler starting (commit: %s)", CommitSHA)
	if err := scheduler.Run(); err != nil {
		log.Fatalf("could not run scheduler: %v", err)
	}
}
