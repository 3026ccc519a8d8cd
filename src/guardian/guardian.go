package guardian

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"stopguardian/src/alerting"
	"stopguardian/src/marketdata"
	"stopguardian/src/model"
	"stopguardian/src/repository"
	"stopguardian/src/sizing"
)

// PositionStore is the persistence surface the guardian needs: journal reads
// plus the stop-loss tracking table.
type PositionStore interface {
	ListOpenPositions(ctx context.Context) ([]model.JournalPosition, error)
	GetTracking(ctx context.Context, symbol string) (*model.TrackingRecord, error)
	UpsertTracking(ctx context.Context, p repository.UpsertParams) error
	MarkAlertSent(ctx context.Context, symbol string, level model.EscalationLevel) error
	UpdateStopLoss(ctx context.Context, symbol string, stopPrice decimal.Decimal, stopType string, stopPct decimal.Decimal) error
	Acknowledge(ctx context.Context, symbol, reason string) error
	CleanupClosedPositions(ctx context.Context) (int64, error)
}

// MarketData is the live broker-state surface, served from the Redis cache.
type MarketData interface {
	GetLivePosition(ctx context.Context, symbol string) (*marketdata.LivePosition, error)
	GetExternalStopOrder(ctx context.Context, symbol string) (*marketdata.StopOrder, error)
	GetAccountEquity(ctx context.Context) (*marketdata.AccountState, error)
}

// Notifier dispatches alerts with escalation and plain informational
// messages.
type Notifier interface {
	Dispatch(ctx context.Context, alert model.Alert, current model.EscalationLevel, alertCount int, lastAlert *time.Time, trackingID *uint) (model.EscalationLevel, bool)
	SendInfo(ctx context.Context, message string) error
}

// Guardian runs the monitoring loop: every tick it reconciles tracking rows
// with the journal, enriches open positions with live prices, and alerts on
// missing stops, deep drawdowns and triggered stops.
type Guardian struct {
	store     PositionStore
	market    MarketData
	notifier  Notifier
	cooldowns *CooldownStore
	sizer     *sizing.Sizer
	cfg       Config
	watchdog  *watchdog

	// ensureDB revalidates the database connection at tick start; nil skips
	// the check (tests).
	ensureDB func(ctx context.Context) error

	running atomic.Bool
}

type Params struct {
	Store     PositionStore
	Market    MarketData
	Notifier  Notifier
	Cooldowns *CooldownStore
	Sizer     *sizing.Sizer
	Config    Config
	EnsureDB  func(ctx context.Context) error
}

func New(p Params) *Guardian {
	g := &Guardian{
		store:     p.Store,
		market:    p.Market,
		notifier:  p.Notifier,
		cooldowns: p.Cooldowns,
		sizer:     p.Sizer,
		cfg:       p.Config,
		ensureDB:  p.EnsureDB,
	}
	g.watchdog = newWatchdog(p.Notifier.SendInfo)
	return g
}

// Running reports whether the monitoring loop has started. Used by the
// health endpoint.
func (g *Guardian) Running() bool {
	return g.running.Load()
}

// Run executes the monitoring loop until the context is cancelled. The first
// cycle runs immediately, then one per check interval. A failed cycle never
// stops the loop.
func (g *Guardian) Run(ctx context.Context) error {
	logger.WithFields(map[string]interface{}{
		"check_interval":      g.cfg.CheckInterval().String(),
		"escalation_interval": g.cfg.EscalationInterval().String(),
	}).Info("Starting monitoring loop")

	g.cooldowns.Restore(ctx)

	g.running.Store(true)
	defer g.running.Store(false)

	ticker := time.NewTicker(g.cfg.CheckInterval())
	defer ticker.Stop()

	g.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Monitoring loop stopped")
			return ctx.Err()
		case <-ticker.C:
			g.runCycle(ctx)
		}
	}
}

func (g *Guardian) runCycle(ctx context.Context) {
	err := g.tick(ctx)
	if err != nil {
		g.watchdog.failure(ctx, err)
		return
	}
	g.watchdog.success()
}

// tick is one full monitoring cycle.
func (g *Guardian) tick(ctx context.Context) error {
	if g.ensureDB != nil {
		if err := g.ensureDB(ctx); err != nil {
			return fmt.Errorf("database unavailable: %w", err)
		}
	}

	if _, err := g.store.CleanupClosedPositions(ctx); err != nil {
		return err
	}

	open, err := g.store.ListOpenPositions(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		logger.Debug("No open positions to monitor")
		return nil
	}

	positions := g.enrich(ctx, open)
	g.syncTracking(ctx, positions)

	for _, pos := range positions {
		err := g.checkPosition(ctx, pos)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": pos.Symbol,
			}).WithError(err).Error("Position check failed")
			// keep going, one bad position must not shadow the rest
		}
		metricPositionsChecked.Inc()
	}

	logger.WithField("count", len(positions)).Info("Checked positions")
	return nil
}

// enrich merges journal rows with live market data and resolves the stop
// loss for each position. A broker-side stop order wins over anything in the
// tracking table.
func (g *Guardian) enrich(ctx context.Context, open []model.JournalPosition) []Position {
	positions := make([]Position, 0, len(open))

	for _, jp := range open {
		pos := Position{
			PositionID: jp.ID,
			Symbol:     jp.Symbol,
			EntryPrice: jp.EntryPrice,
			Quantity:   jp.Quantity,
		}

		live, err := g.market.GetLivePosition(ctx, jp.Symbol)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": jp.Symbol,
			}).WithError(err).Warn("Live position lookup failed")
		} else if live != nil {
			pos.CurrentPrice = live.CurrentPrice
			pos.CurrentEquity = live.Equity
			pos.PercentChange = live.PercentChange
			pos.PriceUpdatedAt = live.UpdatedAt
		}

		stopOrder, err := g.market.GetExternalStopOrder(ctx, jp.Symbol)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": jp.Symbol,
			}).WithError(err).Warn("Stop order lookup failed")
		}

		switch {
		case stopOrder != nil:
			price := stopOrder.StopPrice
			pos.StopLossPrice = &price
			pos.StopLossType = model.StopLossTypeBroker
			if jp.EntryPrice.IsPositive() {
				pct := jp.EntryPrice.Sub(price).Div(jp.EntryPrice).Mul(decimal.NewFromInt(100))
				pos.StopLossPct = &pct
			}
		default:
			tracking, err := g.store.GetTracking(ctx, jp.Symbol)
			if err == nil && tracking != nil && tracking.StopLossPrice != nil {
				pos.StopLossPrice = tracking.StopLossPrice
				pos.StopLossType = tracking.StopLossType
				pos.StopLossPct = tracking.StopLossPct
			}
		}

		positions = append(positions, pos)
	}

	return positions
}

// syncTracking upserts one tracking row per enriched position. Sync failures
// are logged per symbol and do not abort the cycle.
func (g *Guardian) syncTracking(ctx context.Context, positions []Position) {
	for _, pos := range positions {
		positionID := pos.PositionID
		err := g.store.UpsertTracking(ctx, repository.UpsertParams{
			Symbol:             pos.Symbol,
			PositionID:         &positionID,
			EntryPrice:         pos.EntryPrice,
			Quantity:           pos.Quantity,
			StopLossPrice:      pos.StopLossPrice,
			StopLossType:       pos.StopLossType,
			StopLossPct:        pos.StopLossPct,
			CurrentPrice:       pos.CurrentPrice,
			CurrentDrawdownPct: pos.DrawdownPct(),
			PriceUpdatedAt:     pos.PriceUpdatedAt,
		})
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": pos.Symbol,
			}).WithError(err).Error("Tracking sync failed")
		}
	}
}

// checkPosition applies the compliance checks to one position. A missing
// stop always alerts, stale price or not; drawdown and stop-trigger checks
// only run on fresh prices.
func (g *Guardian) checkPosition(ctx context.Context, pos Position) error {
	tracking, err := g.store.GetTracking(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	if tracking == nil {
		return nil
	}
	if tracking.Acknowledged {
		logger.WithField("symbol", pos.Symbol).Debug("Alert acknowledged, skipping")
		return nil
	}

	now := time.Now().UTC()
	stale := pos.IsPriceStale(now, g.cfg.StalenessThreshold())

	if !pos.HasStop() {
		if stale {
			logger.WithField("symbol", pos.Symbol).Warn(
				"Price data is stale, missing stop alert will omit live figures")
		}
		g.handleMissingStop(ctx, pos, tracking, stale, now)
		return nil
	}

	if stale {
		logger.WithFields(map[string]interface{}{
			"symbol":    pos.Symbol,
			"threshold": g.cfg.StalenessThreshold().String(),
		}).Warn("Price data is stale, skipping drawdown and trigger checks")
		return nil
	}

	if dd := pos.DrawdownPct(); dd != nil {
		if dd.LessThanOrEqual(g.cfg.DrawdownCritical().Neg()) {
			g.handleCriticalDrawdown(ctx, pos, tracking, now)
		} else if dd.LessThanOrEqual(g.cfg.DrawdownWarning().Neg()) {
			logger.WithFields(map[string]interface{}{
				"symbol":   pos.Symbol,
				"drawdown": dd.StringFixed(1),
				"stop":     pos.StopLossPrice.String(),
			}).Warn("Drawdown warning, stop is in place")
		}
	}

	if pos.StopTriggered() {
		g.handleStopTriggered(ctx, pos)
	}

	return nil
}

func (g *Guardian) handleMissingStop(
	ctx context.Context,
	pos Position,
	tracking *model.TrackingRecord,
	stale bool,
	now time.Time,
) {
	if !alerting.ShouldSend(tracking, now, g.cfg.EscalationInterval()) {
		return
	}

	suggested := g.sizer.SuggestStop(pos.EntryPrice, model.StopLossTypePercentage, nil, decimal.Zero)

	drawdown := pos.DrawdownPct()
	severity := model.SeverityWarning
	details := map[string]interface{}{
		"entry_price": pos.EntryPrice.String(),
	}
	message := fmt.Sprintf("Position %s has NO STOP LOSS set!", pos.Symbol)

	// When the price is stale the condition is still reported, but live
	// figures stay out of the payload.
	if !stale {
		severity = drawdownSeverity(drawdown, g.cfg.DrawdownWarning(), g.cfg.DrawdownCritical())
		if pos.CurrentPrice != nil {
			details["current_price"] = pos.CurrentPrice.String()
		}
		if drawdown != nil {
			details["drawdown_pct"] = drawdown.StringFixed(1)
			if drawdown.IsNegative() {
				message += fmt.Sprintf(" Currently down %s%%.", drawdown.Abs().StringFixed(1))
			}
		}
	}
	message += " Set a stop loss immediately to protect your capital."

	positionID := pos.PositionID
	alert := model.Alert{
		Type:               model.AlertTypeMissingStopLoss,
		Severity:           severity,
		Symbol:             pos.Symbol,
		Message:            message,
		PositionID:         &positionID,
		Details:            details,
		SuggestedStopPrice: &suggested,
		SuggestedAction:    "Set stop loss at suggested level or below",
	}

	level, ok := g.notifier.Dispatch(
		ctx, alert,
		tracking.EscalationLevel, tracking.AlertCount,
		lastAlertTime(tracking), &tracking.ID,
	)
	if !ok {
		return
	}

	metricAlertsSent.WithLabelValues(string(alert.Type), string(level.Channel())).Inc()

	err := g.store.MarkAlertSent(ctx, pos.Symbol, level)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"symbol": pos.Symbol,
		}).WithError(err).Error("Failed to record alert dispatch")
	}

	logger.WithFields(map[string]interface{}{
		"symbol": pos.Symbol,
		"entry":  pos.EntryPrice.String(),
		"level":  int(level),
	}).Warn("ALERT: position has no stop loss")
}

func (g *Guardian) handleCriticalDrawdown(
	ctx context.Context,
	pos Position,
	tracking *model.TrackingRecord,
	now time.Time,
) {
	if !g.cooldowns.ShouldSend(pos.Symbol, now) {
		return
	}

	drawdown := pos.DrawdownPct()

	message := fmt.Sprintf("Position %s is down %s%%!", pos.Symbol, drawdown.Abs().StringFixed(1))
	if pos.StopLossPrice != nil {
		message += fmt.Sprintf(" Stop loss at $%s.", pos.StopLossPrice.StringFixed(2))
	} else {
		message += " NO STOP LOSS SET!"
	}

	positionID := pos.PositionID
	alert := model.Alert{
		Type:       model.AlertTypeDrawdownCritical,
		Severity:   model.SeverityCritical,
		Symbol:     pos.Symbol,
		Message:    message,
		PositionID: &positionID,
		Details: map[string]interface{}{
			"entry_price":   pos.EntryPrice.String(),
			"current_price": pos.CurrentPrice.String(),
			"drawdown_pct":  drawdown.StringFixed(1),
		},
		SuggestedAction: "Review position and consider taking action",
	}

	level, ok := g.notifier.Dispatch(ctx, alert, model.LevelSMS, 0, nil, &tracking.ID)
	if !ok {
		return
	}

	metricAlertsSent.WithLabelValues(string(alert.Type), string(level.Channel())).Inc()
	g.cooldowns.MarkSent(ctx, pos.Symbol, now)

	logger.WithFields(map[string]interface{}{
		"symbol":   pos.Symbol,
		"drawdown": drawdown.StringFixed(1),
	}).Error("CRITICAL DRAWDOWN")
}

// handleStopTriggered is informational only: the broker executes the stop,
// the guardian just tells the trader to verify it did.
func (g *Guardian) handleStopTriggered(ctx context.Context, pos Position) {
	logger.WithFields(map[string]interface{}{
		"symbol":  pos.Symbol,
		"current": pos.CurrentPrice.String(),
		"stop":    pos.StopLossPrice.String(),
	}).Info("Stop loss triggered")

	message := fmt.Sprintf(
		"Stop loss triggered for %s!\nCurrent: $%s\nStop: $%s\nCheck that the stop order executed at the broker.",
		pos.Symbol, pos.CurrentPrice.StringFixed(2), pos.StopLossPrice.StringFixed(2))

	err := g.notifier.SendInfo(ctx, message)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"symbol": pos.Symbol,
		}).WithError(err).Error("Failed to send stop-triggered notice")
	}
}

// CheckPositionSize sizes a prospective trade against the live account
// equity and returns the formatted recommendation.
func (g *Guardian) CheckPositionSize(ctx context.Context, symbol string, entryPrice, stopPrice decimal.Decimal) (string, error) {
	account, err := g.market.GetAccountEquity(ctx)
	if err != nil {
		return "", fmt.Errorf("account equity lookup: %w", err)
	}
	if account == nil {
		return "", fmt.Errorf("no account balance available")
	}

	result := g.sizer.Calculate(symbol, entryPrice, stopPrice, account.TotalEquity, decimal.Zero)
	return result.FormatMessage(), nil
}

// SetStopLoss records a manual stop for an open position and confirms over
// Telegram. Alerting for the symbol resets.
func (g *Guardian) SetStopLoss(ctx context.Context, symbol string, stopPrice decimal.Decimal, stopType string) error {
	open, err := g.store.ListOpenPositions(ctx)
	if err != nil {
		return err
	}

	var position *model.JournalPosition
	for i := range open {
		if open[i].Symbol == symbol {
			position = &open[i]
			break
		}
	}
	if position == nil {
		return fmt.Errorf("no open position found for %s", symbol)
	}
	if !position.EntryPrice.IsPositive() {
		return fmt.Errorf("position %s has no usable entry price", symbol)
	}

	stopPct := position.EntryPrice.Sub(stopPrice).Div(position.EntryPrice).Mul(decimal.NewFromInt(100))

	err = g.store.UpdateStopLoss(ctx, symbol, stopPrice, stopType, stopPct)
	if err != nil {
		return err
	}

	message := fmt.Sprintf(
		"Stop loss set for %s\nEntry: $%s\nStop: $%s (%s%% below)\nRisk per share: $%s",
		symbol,
		position.EntryPrice.String(),
		stopPrice.String(),
		stopPct.StringFixed(1),
		position.EntryPrice.Sub(stopPrice).StringFixed(2))

	err = g.notifier.SendInfo(ctx, message)
	if err != nil {
		logger.WithField("symbol", symbol).WithError(err).Warn("Stop set, confirmation message failed")
	}

	logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"stop_price": stopPrice.String(),
	}).Info("Stop loss set")
	return nil
}

// AcknowledgeAlert silences alerting for a symbol until its tracking row is
// reset by a new sync.
func (g *Guardian) AcknowledgeAlert(ctx context.Context, symbol, reason string) error {
	return g.store.Acknowledge(ctx, symbol, reason)
}

func lastAlertTime(tracking *model.TrackingRecord) *time.Time {
	if tracking.AlertCount == 0 {
		return nil
	}
	t := tracking.UpdatedAt
	return &t
}
