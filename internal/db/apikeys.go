package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"yt-radar/internal/apperrors"
	"yt-radar/internal/models"
)

// Daily quota caps, in platform call-cost units.
const (
	MaxDailyUsage     = 10000
	MaxUserDailyUsage = 1000
)

// GetServerAPIKey returns the active server-pool key with the lowest usage
// that still has headroom, skipping any explicitly excluded ids. Selection is
// advisory only; ChargeAPIKey is the enforcement point.
func GetServerAPIKey(excluding ...int64) (models.APIKey, error) {
	query := `
		SELECT * FROM api_keys
		WHERE type = $1 AND is_active AND usage < $2 AND NOT (id = ANY($3))
		ORDER BY usage ASC
		LIMIT 1
	`
	key := models.APIKey{}
	err := DB.Get(&key, query, models.APIKeyTypeServer, MaxDailyUsage, pq.Array(excluding))
	if errors.Is(err, sql.ErrNoRows) {
		return key, apperrors.New(apperrors.CodeNoCredentialAvailable, "no active server API key with remaining quota")
	}
	return key, err
}

// GetUserAPIKey returns the user's registered personal key.
func GetUserAPIKey(userID int64) (models.APIKey, error) {
	key := models.APIKey{}
	err := DB.Get(&key, "SELECT * FROM api_keys WHERE type = $1 AND user_id = $2", models.APIKeyTypeUser, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return key, apperrors.Newf(apperrors.CodeCredentialNotFound, "user %d has no registered API key", userID)
	}
	return key, err
}

// UpsertUserAPIKey registers or replaces the user's personal key. Usage is
// preserved across key replacement within the same day.
func UpsertUserAPIKey(userID int64, apiKey string) (models.APIKey, error) {
	query := `
		INSERT INTO api_keys (type, user_id, api_key, usage, is_active)
		VALUES ($1, $2, $3, 0, TRUE)
		ON CONFLICT (user_id, type) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			updated_at = NOW()
		RETURNING *
	`
	key := models.APIKey{}
	err := DB.Get(&key, query, models.APIKeyTypeUser, userID, apiKey)
	return key, err
}

// DeleteUserAPIKey revokes the user's personal key. Deleting a key that does
// not exist is not an error.
func DeleteUserAPIKey(userID int64) error {
	_, err := DB.Exec("DELETE FROM api_keys WHERE type = $1 AND user_id = $2", models.APIKeyTypeUser, userID)
	return err
}

// UpsertServerAPIKey registers or replaces a named server-pool key.
func UpsertServerAPIKey(name, apiKey string) (models.APIKey, error) {
	query := `
		INSERT INTO api_keys (type, name, api_key, usage, is_active)
		VALUES ($1, $2, $3, 0, TRUE)
		ON CONFLICT (type, name) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			updated_at = NOW()
		RETURNING *
	`
	key := models.APIKey{}
	err := DB.Get(&key, query, models.APIKeyTypeServer, name, apiKey)
	return key, err
}

// GetUserServerUsage returns the user's highest per-key server-pool usage for
// today, for display alongside the per-user cap.
func GetUserServerUsage(userID int64) (int, error) {
	var usage int
	query := `
		SELECT COALESCE(MAX(usage), 0) FROM server_api_key_usage
		WHERE user_id = $1 AND date = $2
	`
	err := DB.Get(&usage, query, userID, today())
	return usage, err
}

// ChargeAPIKey records amount call-cost units against a key inside a single
// transaction. The key row (and, when onBehalfOfUserID is set, today's
// per-user row) is re-read under lock, checked against its cap, and only then
// incremented, so a rejected charge leaves both counters untouched and
// concurrent charges can never push usage past the cap.
func ChargeAPIKey(ctx context.Context, apiKeyID int64, amount int, onBehalfOfUserID *int64) error {
	if amount <= 0 {
		return fmt.Errorf("charge amount must be positive, got %d", amount)
	}

	tx, err := DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin charge transaction: %w", err)
	}
	defer tx.Rollback()

	var key struct {
		Usage    int  `db:"usage"`
		IsActive bool `db:"is_active"`
	}
	err = tx.GetContext(ctx, &key, "SELECT usage, is_active FROM api_keys WHERE id = $1 FOR UPDATE", apiKeyID)
	if err != nil {
		return fmt.Errorf("failed to read API key %d: %w", apiKeyID, err)
	}
	if !key.IsActive || key.Usage+amount > MaxDailyUsage {
		return apperrors.Newf(apperrors.CodeQuotaExceeded,
			"API key %d usage %d + %d exceeds daily cap %d", apiKeyID, key.Usage, amount, MaxDailyUsage)
	}

	if onBehalfOfUserID != nil {
		day := today()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO server_api_key_usage (user_id, api_key_id, date, usage)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (user_id, api_key_id, date) DO NOTHING`,
			*onBehalfOfUserID, apiKeyID, day)
		if err != nil {
			return fmt.Errorf("failed to create per-user usage row: %w", err)
		}

		var userUsage int
		err = tx.GetContext(ctx, &userUsage, `
			SELECT usage FROM server_api_key_usage
			WHERE user_id = $1 AND api_key_id = $2 AND date = $3 FOR UPDATE`,
			*onBehalfOfUserID, apiKeyID, day)
		if err != nil {
			return fmt.Errorf("failed to read per-user usage: %w", err)
		}
		if userUsage+amount > MaxUserDailyUsage {
			return apperrors.Newf(apperrors.CodeUserQuotaExceeded,
				"user %d usage %d + %d exceeds daily cap %d", *onBehalfOfUserID, userUsage, amount, MaxUserDailyUsage)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE server_api_key_usage SET usage = usage + $1
			WHERE user_id = $2 AND api_key_id = $3 AND date = $4`,
			amount, *onBehalfOfUserID, apiKeyID, day)
		if err != nil {
			return fmt.Errorf("failed to increment per-user usage: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, "UPDATE api_keys SET usage = usage + $1, updated_at = NOW() WHERE id = $2", amount, apiKeyID)
	if err != nil {
		return fmt.Errorf("failed to increment API key usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit charge: %w", err)
	}

	log.Printf("Charged %d quota units to API key %d", amount, apiKeyID)
	return nil
}

// ResetAllUsage zeroes the usage counter of every key. Per-user-per-day rows
// are keyed by calendar day and need no reset.
func ResetAllUsage(ctx context.Context) (serverCount, userCount int64, err error) {
	serverRes, err := DB.ExecContext(ctx, "UPDATE api_keys SET usage = 0, updated_at = NOW() WHERE type = $1", models.APIKeyTypeServer)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reset server key usage: %w", err)
	}
	userRes, err := DB.ExecContext(ctx, "UPDATE api_keys SET usage = 0, updated_at = NOW() WHERE type = $1", models.APIKeyTypeUser)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reset user key usage: %w", err)
	}

	serverCount, _ = serverRes.RowsAffected()
	userCount, _ = userRes.RowsAffected()
	return serverCount, userCount, nil
}

// today returns the current calendar day in UTC, the key for per-user rows.
func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
