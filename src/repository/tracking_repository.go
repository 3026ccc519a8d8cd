package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stopguardian/src/database"
	"stopguardian/src/model"
)

// TrackingRepository handles read/write operations for stop-loss tracking
// rows, the journal positions they shadow, and the alert audit log.
type TrackingRepository struct {
	db *gorm.DB
}

// NewTrackingRepository creates a new repository instance using the main
// read/write database.
func NewTrackingRepository() *TrackingRepository {
	return &TrackingRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TrackingRepository) WithDB(db *gorm.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// ListOpenPositions returns all open journal positions, newest entry first.
func (r *TrackingRepository) ListOpenPositions(ctx context.Context) ([]model.JournalPosition, error) {
	var positions []model.JournalPosition

	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Order("entry_date DESC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TrackingRepository",
			"op":   "ListOpenPositions",
		}).WithError(err).Error("Failed to list open positions")
		return nil, err
	}

	return positions, nil
}

// GetTracking fetches the newest tracking record for a symbol.
// Returns (nil, nil) if no record exists.
func (r *TrackingRepository) GetTracking(ctx context.Context, symbol string) (*model.TrackingRecord, error) {
	var record model.TrackingRecord

	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "TrackingRepository",
			"op":     "GetTracking",
			"symbol": symbol,
		}).WithError(err).Error("Failed to get tracking record")
		return nil, err
	}

	return &record, nil
}

// UpsertParams carries the per-cycle sync payload for one position.
type UpsertParams struct {
	Symbol             string
	PositionID         *uint
	EntryPrice         decimal.Decimal
	Quantity           decimal.Decimal
	StopLossPrice      *decimal.Decimal
	StopLossType       string
	StopLossPct        *decimal.Decimal
	CurrentPrice       *decimal.Decimal
	CurrentDrawdownPct *decimal.Decimal
	PriceUpdatedAt     *time.Time
}

// UpsertTracking inserts or refreshes the tracking row for a position.
// Stop-loss fields are only overwritten when the incoming value is non-null,
// so a cycle without broker stop data never wipes a manually tracked stop.
func (r *TrackingRepository) UpsertTracking(ctx context.Context, p UpsertParams) error {
	record := model.TrackingRecord{
		Symbol:             p.Symbol,
		PositionID:         p.PositionID,
		EntryPrice:         p.EntryPrice,
		Quantity:           p.Quantity,
		StopLossPrice:      p.StopLossPrice,
		StopLossType:       p.StopLossType,
		StopLossPct:        p.StopLossPct,
		CurrentPrice:       p.CurrentPrice,
		CurrentDrawdownPct: p.CurrentDrawdownPct,
		PriceUpdatedAt:     p.PriceUpdatedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "position_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"entry_price":          gorm.Expr("excluded.entry_price"),
			"quantity":             gorm.Expr("excluded.quantity"),
			"stop_loss_price":      gorm.Expr("COALESCE(excluded.stop_loss_price, stop_loss_tracking.stop_loss_price)"),
			"stop_loss_type":       gorm.Expr("COALESCE(NULLIF(excluded.stop_loss_type, ''), stop_loss_tracking.stop_loss_type)"),
			"stop_loss_pct":        gorm.Expr("COALESCE(excluded.stop_loss_pct, stop_loss_tracking.stop_loss_pct)"),
			"current_price":        gorm.Expr("excluded.current_price"),
			"current_drawdown_pct": gorm.Expr("excluded.current_drawdown_pct"),
			"price_updated_at":     gorm.Expr("excluded.price_updated_at"),
			"updated_at":           time.Now().UTC(),
		}),
	}).Create(&record).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TrackingRepository",
			"op":     "UpsertTracking",
			"symbol": p.Symbol,
		}).WithError(err).Error("Failed to upsert tracking record")
		return err
	}

	return nil
}

// UpdateStopLoss records a stop loss on the tracking row and resets alert
// state: the missing-stop flag clears and the row is marked acknowledged.
func (r *TrackingRepository) UpdateStopLoss(
	ctx context.Context,
	symbol string,
	stopPrice decimal.Decimal,
	stopType string,
	stopPct decimal.Decimal,
) error {
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).
		Model(&model.TrackingRecord{}).
		Where("symbol = ?", symbol).
		Updates(map[string]interface{}{
			"stop_loss_price":         stopPrice,
			"stop_loss_type":          stopType,
			"stop_loss_pct":           stopPct,
			"stop_loss_set_at":        now,
			"missing_stop_alert_sent": false,
			"acknowledged":            true,
			"acknowledged_at":         now,
			"updated_at":              now,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TrackingRepository",
			"op":     "UpdateStopLoss",
			"symbol": symbol,
		}).WithError(err).Error("Failed to update stop loss")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"stop_price": stopPrice.String(),
	}).Info("Stop loss updated")
	return nil
}

// MarkAlertSent bumps the alert counter and records the level that was used.
func (r *TrackingRepository) MarkAlertSent(ctx context.Context, symbol string, level model.EscalationLevel) error {
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).
		Model(&model.TrackingRecord{}).
		Where("symbol = ?", symbol).
		Updates(map[string]interface{}{
			"missing_stop_alert_sent": true,
			"last_alert_sent":         now,
			"alert_count":             gorm.Expr("alert_count + 1"),
			"alert_escalation_level":  level,
			"updated_at":              now,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TrackingRepository",
			"op":     "MarkAlertSent",
			"symbol": symbol,
			"level":  level.String(),
		}).WithError(err).Error("Failed to mark alert sent")
		return err
	}

	return nil
}

// Acknowledge silences further alerting for a symbol until a new qualifying
// condition arises or the row is reset.
func (r *TrackingRepository) Acknowledge(ctx context.Context, symbol, reason string) error {
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).
		Model(&model.TrackingRecord{}).
		Where("symbol = ?", symbol).
		Updates(map[string]interface{}{
			"acknowledged":        true,
			"acknowledged_at":     now,
			"acknowledged_reason": reason,
			"updated_at":          now,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TrackingRepository",
			"op":     "Acknowledge",
			"symbol": symbol,
		}).WithError(err).Error("Failed to acknowledge alert")
		return err
	}

	logger.WithField("symbol", symbol).Info("Alert acknowledged")
	return nil
}

// LogAlert writes one audit row for a dispatched alert.
func (r *TrackingRepository) LogAlert(ctx context.Context, entry *model.AlertLog) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TrackingRepository",
			"op":     "LogAlert",
			"symbol": entry.Symbol,
		}).WithError(err).Error("Failed to log alert")
		return err
	}
	return nil
}

// CleanupClosedPositions removes tracking rows whose journal position is no
// longer open. Returns the number of rows removed.
func (r *TrackingRepository) CleanupClosedPositions(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		DELETE FROM stop_loss_tracking
		WHERE position_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM journal_positions jp
			WHERE jp.id = stop_loss_tracking.position_id
			  AND jp.status = ?
		  )`, model.PositionStatusOpen)
	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TrackingRepository",
			"op":   "CleanupClosedPositions",
		}).WithError(result.Error).Error("Failed to cleanup closed positions")
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		logger.WithField("deleted", result.RowsAffected).Info("Cleaned up closed positions from tracking")
	}
	return result.RowsAffected, nil
}
