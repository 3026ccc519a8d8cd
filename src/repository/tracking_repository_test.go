package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stopguardian/src/model"
	"stopguardian/src/repository"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setupDBMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	require.NoError(t, err)

	return gormDB, mock
}

func TestListOpenPositions(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.TrackingRepository{}).WithDB(db)

	entryDate := time.Date(2025, time.June, 1, 14, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "symbol", "entry_price", "quantity", "entry_date", "status"}).
		AddRow(7, "AAPL", "150.25", "10", entryDate, "open").
		AddRow(9, "TSLA", "244.10", "4", entryDate.Add(-24*time.Hour), "open")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "journal_positions" WHERE status = $1 ORDER BY entry_date DESC`)).
		WithArgs("open").
		WillReturnRows(rows)

	positions, err := repo.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.True(t, positions[0].EntryPrice.Equal(d("150.25")))
	assert.Equal(t, uint(9), positions[1].ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTracking(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.TrackingRepository{}).WithDB(db)

	rows := sqlmock.NewRows([]string{
		"id", "symbol", "entry_price", "alert_count", "alert_escalation_level", "acknowledged",
	}).AddRow(3, "AAPL", "150.25", 2, "sms", false)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stop_loss_tracking" WHERE symbol = $1 ORDER BY created_at DESC,"stop_loss_tracking"."id" LIMIT $2`)).
		WithArgs("AAPL", 1).
		WillReturnRows(rows)

	record, err := repo.GetTracking(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, uint(3), record.ID)
	assert.Equal(t, 2, record.AlertCount)
	assert.Equal(t, model.LevelSMS, record.EscalationLevel, "legacy string column decodes to the ordinal")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTracking_NotFound(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.TrackingRepository{}).WithDB(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stop_loss_tracking" WHERE symbol = $1 ORDER BY created_at DESC,"stop_loss_tracking"."id" LIMIT $2`)).
		WithArgs("GME", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	record, err := repo.GetTracking(context.Background(), "GME")
	require.NoError(t, err, "a missing row is not an error")
	assert.Nil(t, record)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAlertSent(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.TrackingRepository{}).WithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "stop_loss_tracking" SET .+ WHERE symbol = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkAlertSent(context.Background(), "AAPL", model.LevelSMS)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStopLoss(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.TrackingRepository{}).WithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "stop_loss_tracking" SET .+ WHERE symbol = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateStopLoss(context.Background(), "AAPL", d("92.50"), model.StopLossTypeManual, d("8.25"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledge(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.TrackingRepository{}).WithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "stop_loss_tracking" SET .+ WHERE symbol = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Acknowledge(context.Background(), "AAPL", "position exits tomorrow")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupClosedPositions(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.TrackingRepository{}).WithDB(db)

	mock.ExpectExec(`DELETE FROM stop_loss_tracking\s+WHERE position_id IS NOT NULL`).
		WithArgs("open").
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := repo.CleanupClosedPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogAlert(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.TrackingRepository{}).WithDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "urgent_alerts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	entry := &model.AlertLog{
		DispatchID: "b67c6bb6-0000-4000-8000-000000000000",
		AlertType:  model.AlertTypeMissingStopLoss,
		Symbol:     "AAPL",
		Severity:   model.SeverityUrgent,
		Channel:    model.ChannelSMS,
		Message:    "Position AAPL has NO STOP LOSS set!",
	}
	err := repo.LogAlert(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, uint(11), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
