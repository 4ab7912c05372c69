package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yt-radar/internal/apperrors"
	"yt-radar/internal/models"
)

func newMockDB(t *testing.T) sqlmock.Sqlmock {
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	originalDB := DB
	DB = sqlx.NewDb(mockDb, "sqlmock")
	t.Cleanup(func() {
		DB = originalDB
		mockDb.Close()
	})
	return mock
}

func apiKeyColumns() []string {
	return []string{"id", "type", "user_id", "name", "api_key", "usage", "is_active", "created_at", "updated_at"}
}

func apiKeyRow(id int64, keyType string, usage int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(apiKeyColumns()).
		AddRow(id, keyType, nil, "pool-key", "AIza-test", usage, true, now, now)
}

func TestChargeAPIKeyCommitted(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT usage, is_active FROM api_keys WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"usage", "is_active"}).AddRow(100, true))
	mock.ExpectExec(`UPDATE api_keys SET usage = usage \+ \$1`).
		WithArgs(3, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ChargeAPIKey(context.Background(), 1, 3, nil)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeAPIKeyRejectedAtCap(t *testing.T) {
	mock := newMockDB(t)

	// Usage 9950 + a 100-unit search would cross the 10000 cap: the charge
	// must roll back without touching either counter.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT usage, is_active FROM api_keys WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"usage", "is_active"}).AddRow(9950, true))
	mock.ExpectRollback()

	err := ChargeAPIKey(context.Background(), 1, 100, nil)

	assert.True(t, apperrors.HasCode(err, apperrors.CodeQuotaExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeAPIKeyRejectedWhenInactive(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT usage, is_active FROM api_keys WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"usage", "is_active"}).AddRow(0, false))
	mock.ExpectRollback()

	err := ChargeAPIKey(context.Background(), 2, 1, nil)

	assert.True(t, apperrors.HasCode(err, apperrors.CodeQuotaExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeAPIKeyOnBehalfCommitted(t *testing.T) {
	mock := newMockDB(t)
	userID := int64(42)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT usage, is_active FROM api_keys WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"usage", "is_active"}).AddRow(500, true))
	mock.ExpectExec(`INSERT INTO server_api_key_usage`).
		WithArgs(userID, int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT usage FROM server_api_key_usage`).
		WithArgs(userID, int64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"usage"}).AddRow(10))
	mock.ExpectExec(`UPDATE server_api_key_usage SET usage = usage \+ \$1`).
		WithArgs(5, userID, int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE api_keys SET usage = usage \+ \$1`).
		WithArgs(5, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ChargeAPIKey(context.Background(), 1, 5, &userID)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeAPIKeyOnBehalfRejectedAtUserCap(t *testing.T) {
	mock := newMockDB(t)
	userID := int64(42)

	// The shared key has headroom but the user's daily slice does not: the
	// whole charge rolls back, the key counter included.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT usage, is_active FROM api_keys WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"usage", "is_active"}).AddRow(500, true))
	mock.ExpectExec(`INSERT INTO server_api_key_usage`).
		WithArgs(userID, int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT usage FROM server_api_key_usage`).
		WithArgs(userID, int64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"usage"}).AddRow(950))
	mock.ExpectRollback()

	err := ChargeAPIKey(context.Background(), 1, 100, &userID)

	assert.True(t, apperrors.HasCode(err, apperrors.CodeUserQuotaExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeAPIKeyRejectsNonPositiveAmount(t *testing.T) {
	newMockDB(t)

	assert.Error(t, ChargeAPIKey(context.Background(), 1, 0, nil))
	assert.Error(t, ChargeAPIKey(context.Background(), 1, -5, nil))
}

func TestResetAllUsage(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec(`UPDATE api_keys SET usage = 0`).
		WithArgs(models.APIKeyTypeServer).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE api_keys SET usage = 0`).
		WithArgs(models.APIKeyTypeUser).
		WillReturnResult(sqlmock.NewResult(0, 7))

	serverCount, userCount, err := ResetAllUsage(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, int64(3), serverCount)
	assert.Equal(t, int64(7), userCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetServerAPIKeyPicksLeastUsed(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM api_keys`).
		WillReturnRows(apiKeyRow(3, models.APIKeyTypeServer, 120))

	key, err := GetServerAPIKey()

	assert.NoError(t, err)
	assert.Equal(t, int64(3), key.ID)
	assert.Equal(t, 120, key.Usage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetServerAPIKeyNoneAvailable(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM api_keys`).WillReturnError(sql.ErrNoRows)

	_, err := GetServerAPIKey()

	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoCredentialAvailable))
}

func TestGetUserAPIKeyNotFound(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM api_keys`).
		WithArgs(models.APIKeyTypeUser, int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := GetUserAPIKey(42)

	assert.True(t, apperrors.HasCode(err, apperrors.CodeCredentialNotFound))
}
