package db

import (
	"log"

	"yt-radar/internal/models"
)

// Subscribe ties a user to a tracked channel. Subscribing twice is a no-op.
func Subscribe(userID int64, channelID string) error {
	query := `
		INSERT INTO subscriptions (user_id, channel_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, channel_id) DO NOTHING
	`
	_, err := DB.Exec(query, userID, channelID)
	if err != nil {
		log.Printf("Error subscribing user %d to channel %s: %v", userID, channelID, err)
	}
	return err
}

// Unsubscribe removes the tie. The channel row itself stays tracked.
func Unsubscribe(userID int64, channelID string) error {
	_, err := DB.Exec("DELETE FROM subscriptions WHERE user_id = $1 AND channel_id = $2", userID, channelID)
	if err != nil {
		log.Printf("Error unsubscribing user %d from channel %s: %v", userID, channelID, err)
	}
	return err
}

// GetSubscribedChannels returns the channels the user tracks, newest first.
func GetSubscribedChannels(userID int64) ([]models.Channel, error) {
	query := `
		SELECT c.* FROM channels c
		JOIN subscriptions s ON s.channel_id = c.channel_id
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC
	`
	var channels []models.Channel
	err := DB.Select(&channels, query, userID)
	if err != nil {
		log.Printf("Error getting subscribed channels for user %d: %v", userID, err)
		return nil, err
	}
	return channels, nil
}

// CountSubscriptions returns how many channels the user tracks.
func CountSubscriptions(userID int64) (int, error) {
	var count int
	err := DB.Get(&count, "SELECT COUNT(*) FROM subscriptions WHERE user_id = $1", userID)
	return count, err
}
