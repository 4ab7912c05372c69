package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"yt-radar/internal/db"
	"yt-radar/internal/youtube"
	"yt-radar/pkg/tasks"
)

type TaskHandler struct {
	engine *youtube.Engine
}

func NewTaskHandler(engine *youtube.Engine) *TaskHandler {
	return &TaskHandler{engine: engine}
}

// HandleResetQuotaTask zeroes every API key's daily usage counter. Runs once
// per day; a failure is logged and retried by asynq rather than crashing the
// worker.
func (h *TaskHandler) HandleResetQuotaTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Resetting daily API quota usage...")

	serverCount, userCount, err := db.ResetAllUsage(ctx)
	if err != nil {
		log.Printf("Quota reset failed: %v", err)
		return fmt.Errorf("failed to reset quota usage: %w", err)
	}

	log.Printf("Quota reset complete: %d server keys, %d user keys", serverCount, userCount)
	return nil
}

// HandleRefreshAllChannelsTask runs the daily channel sync. Per-channel
// failures are inside the report and do not fail the task; only a quota or
// credential problem aborts the run.
func (h *TaskHandler) HandleRefreshAllChannelsTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Refreshing all tracked channels...")

	report, err := h.engine.RefreshAllChannels(ctx)
	if err != nil {
		log.Printf("Channel refresh aborted: %v", err)
		return fmt.Errorf("failed to refresh channels: %w", err)
	}

	log.Printf("Channel refresh complete: %d/%d refreshed, %d failed",
		report.Refreshed, report.Total, len(report.Failures))
	for _, f := range report.Failures {
		log.Printf("Channel %s not refreshed: %s", f.ChannelID, f.Error)
	}
	return nil
}

// HandleRefreshChannelTask re-syncs one channel, enqueued right after a
// channel is first tracked.
func (h *TaskHandler) HandleRefreshChannelTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.RefreshChannelTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	log.Printf("Refreshing channel: %s", p.ChannelID)

	if err := h.engine.RefreshChannel(ctx, p.ChannelID); err != nil {
		return fmt.Errorf("failed to refresh channel %s: %w", p.ChannelID, err)
	}
	return nil
}
