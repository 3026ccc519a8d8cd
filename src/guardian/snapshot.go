package guardian

import (
	"time"

	"github.com/shopspring/decimal"

	"stopguardian/src/model"
)

// Position is the per-cycle working view of one open position: the journal
// row merged with live market data and whatever stop loss is known. It is
// rebuilt every tick and never persisted as-is.
type Position struct {
	PositionID uint
	Symbol     string
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal

	CurrentPrice   *decimal.Decimal
	CurrentEquity  *decimal.Decimal
	PercentChange  *decimal.Decimal
	PriceUpdatedAt *time.Time

	StopLossPrice *decimal.Decimal
	StopLossType  string
	StopLossPct   *decimal.Decimal
}

func (p Position) HasStop() bool {
	return p.StopLossPrice != nil
}

// DrawdownPct is the percent change from entry, negative when the position is
// under water. Nil without a current price or with a non-positive entry.
func (p Position) DrawdownPct() *decimal.Decimal {
	if p.CurrentPrice == nil || !p.EntryPrice.IsPositive() {
		return nil
	}
	dd := p.CurrentPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
	return &dd
}

// StopTriggered reports whether the current price is at or below the
// recorded stop. False when either price is unknown.
func (p Position) StopTriggered() bool {
	if p.CurrentPrice == nil || p.StopLossPrice == nil {
		return false
	}
	return p.CurrentPrice.LessThanOrEqual(*p.StopLossPrice)
}

// IsPriceStale reports whether the live price is too old to act on. No
// timestamp at all is always stale; a reading exactly at the threshold age is
// stale too.
func (p Position) IsPriceStale(now time.Time, threshold time.Duration) bool {
	if p.PriceUpdatedAt == nil {
		return true
	}
	return now.Sub(*p.PriceUpdatedAt) >= threshold
}

// Severity grades a drawdown alert: at or beyond the critical threshold it is
// critical, at or beyond the warning threshold it is urgent, otherwise plain
// warning. Thresholds are positive percentages, drawdowns negative.
func drawdownSeverity(drawdown *decimal.Decimal, warningPct, criticalPct decimal.Decimal) model.Severity {
	if drawdown == nil {
		return model.SeverityWarning
	}
	if drawdown.LessThanOrEqual(criticalPct.Neg()) {
		return model.SeverityCritical
	}
	if drawdown.LessThanOrEqual(warningPct.Neg()) {
		return model.SeverityUrgent
	}
	return model.SeverityWarning
}
