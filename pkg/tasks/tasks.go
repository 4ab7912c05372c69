package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypeResetQuota         = "quota:reset"
	TypeRefreshAllChannels = "channels:refresh"
	TypeRefreshChannel     = "channel:refresh"
)

func NewResetQuotaTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeResetQuota, nil), nil
}

func NewRefreshAllChannelsTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeRefreshAllChannels, nil), nil
}

type RefreshChannelTaskPayload struct {
	ChannelID string
}

func NewRefreshChannelTask(channelID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RefreshChannelTaskPayload{ChannelID: channelID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRefreshChannel, payload), nil
}
