package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StopLossTypeManual     = "manual"
	StopLossTypeBroker     = "broker"
	StopLossTypePercentage = "percentage"
	StopLossTypeATR        = "atr_based"
)

// TrackingRecord is the persisted stop-loss compliance state for one open
// position. One live row per (symbol, position). Alert escalation state lives
// here; it only resets when a stop is set or the alert is acknowledged.
type TrackingRecord struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Symbol     string `gorm:"size:20;not null;uniqueIndex:idx_tracking_symbol_pos" json:"symbol"`
	PositionID *uint  `gorm:"uniqueIndex:idx_tracking_symbol_pos" json:"position_id,omitempty"`

	EntryPrice decimal.Decimal `gorm:"type:numeric(18,6)" json:"entry_price"`
	Quantity   decimal.Decimal `gorm:"type:numeric(18,6)" json:"quantity"`

	StopLossPrice *decimal.Decimal `gorm:"type:numeric(18,6)" json:"stop_loss_price,omitempty"`
	StopLossType  string           `gorm:"size:20" json:"stop_loss_type,omitempty"`
	StopLossPct   *decimal.Decimal `gorm:"type:numeric(8,4)" json:"stop_loss_pct,omitempty"`
	StopLossSetAt *time.Time       `json:"stop_loss_set_at,omitempty"`

	CurrentPrice       *decimal.Decimal `gorm:"type:numeric(18,6)" json:"current_price,omitempty"`
	CurrentDrawdownPct *decimal.Decimal `gorm:"type:numeric(8,4)" json:"current_drawdown_pct,omitempty"`
	PriceUpdatedAt     *time.Time       `json:"price_updated_at,omitempty"`

	MissingStopAlertSent bool            `gorm:"not null;default:false" json:"missing_stop_alert_sent"`
	AlertCount           int             `gorm:"not null;default:0" json:"alert_count"`
	EscalationLevel      EscalationLevel `gorm:"column:alert_escalation_level;size:20;default:telegram" json:"escalation_level"`
	LastAlertSent        *time.Time      `json:"last_alert_sent,omitempty"`

	Acknowledged       bool       `gorm:"not null;default:false" json:"acknowledged"`
	AcknowledgedAt     *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedReason string     `gorm:"size:255" json:"acknowledged_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TrackingRecord) TableName() string {
	return "stop_loss_tracking"
}

// HasStop reports whether any stop loss is recorded for this row.
func (t TrackingRecord) HasStop() bool {
	return t.StopLossPrice != nil
}
