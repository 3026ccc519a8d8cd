package sizing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Risk limits used when the caller does not override them. Two percent of
// equity at risk per trade, twenty percent of equity in any one position.
var (
	DefaultMaxRiskPct     = decimal.NewFromInt(2)
	DefaultMaxPositionPct = decimal.NewFromInt(20)
	DefaultStopLossPct    = decimal.NewFromInt(10)
	DefaultATRMultiplier  = decimal.NewFromInt(2)
)

var hundred = decimal.NewFromInt(100)

// Sizer computes maximum position sizes under the risk limits. All math is
// decimal; share counts are floored, never rounded up.
type Sizer struct {
	maxRiskPct     decimal.Decimal
	maxPositionPct decimal.Decimal
	defaultStopPct decimal.Decimal
}

func NewSizer(maxRiskPct, maxPositionPct, defaultStopPct decimal.Decimal) *Sizer {
	if maxRiskPct.IsZero() {
		maxRiskPct = DefaultMaxRiskPct
	}
	if maxPositionPct.IsZero() {
		maxPositionPct = DefaultMaxPositionPct
	}
	if defaultStopPct.IsZero() {
		defaultStopPct = DefaultStopLossPct
	}
	return &Sizer{
		maxRiskPct:     maxRiskPct,
		maxPositionPct: maxPositionPct,
		defaultStopPct: defaultStopPct,
	}
}

// Result carries the calculated size plus everything needed to explain it.
type Result struct {
	Symbol         string          `json:"symbol"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	StopPrice      decimal.Decimal `json:"stop_price"`
	AccountBalance decimal.Decimal `json:"account_balance"`

	RiskPerShare  decimal.Decimal `json:"risk_per_share"`
	MaxShares     int64           `json:"max_shares"`
	DollarRisk    decimal.Decimal `json:"dollar_risk"`
	RiskPct       decimal.Decimal `json:"risk_pct"`
	PositionValue decimal.Decimal `json:"position_value"`
	PositionPct   decimal.Decimal `json:"position_pct"`

	RewardRiskRatio *decimal.Decimal `json:"reward_risk_ratio,omitempty"`

	IsValid       bool     `json:"is_valid"`
	BlockedReason string   `json:"blocked_reason,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Calculate sizes a long position: shares are capped by both the per-trade
// risk limit and the position concentration limit, and the smaller cap wins.
// targetPrice is optional; pass the zero decimal to skip the reward:risk
// check. The function is pure, identical inputs produce identical results.
func (s *Sizer) Calculate(
	symbol string,
	entryPrice, stopPrice, accountBalance decimal.Decimal,
	targetPrice decimal.Decimal,
) Result {
	result := Result{
		Symbol:         symbol,
		EntryPrice:     entryPrice,
		StopPrice:      stopPrice,
		AccountBalance: accountBalance,
	}

	if entryPrice.LessThanOrEqual(decimal.Zero) {
		result.BlockedReason = "Entry price must be positive"
		return result
	}
	if stopPrice.LessThanOrEqual(decimal.Zero) {
		result.BlockedReason = "Stop price must be positive"
		return result
	}
	if stopPrice.GreaterThanOrEqual(entryPrice) {
		result.BlockedReason = "Stop price must be below entry price for long positions"
		return result
	}

	riskPerShare := entryPrice.Sub(stopPrice)
	result.RiskPerShare = riskPerShare

	maxDollarRisk := accountBalance.Mul(s.maxRiskPct).Div(hundred)
	maxPositionValue := accountBalance.Mul(s.maxPositionPct).Div(hundred)

	maxSharesByRisk := maxDollarRisk.Div(riskPerShare).Floor().IntPart()
	maxSharesByPosition := maxPositionValue.Div(entryPrice).Floor().IntPart()

	maxShares := maxSharesByRisk
	if maxSharesByPosition < maxShares {
		maxShares = maxSharesByPosition
	}
	result.MaxShares = maxShares

	if maxShares <= 0 {
		result.MaxShares = 0
		result.BlockedReason = fmt.Sprintf(
			"Stock too expensive for account size. Entry $%s needs minimum equity $%s.",
			entryPrice.StringFixed(2), s.minEquityForOneShare(entryPrice, riskPerShare).StringFixed(2))
		return result
	}

	shares := decimal.NewFromInt(maxShares)
	result.PositionValue = shares.Mul(entryPrice)
	result.DollarRisk = shares.Mul(riskPerShare)
	result.RiskPct = result.DollarRisk.Div(accountBalance).Mul(hundred)
	result.PositionPct = result.PositionValue.Div(accountBalance).Mul(hundred)

	result.IsValid = true

	if maxShares < 2 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Can only buy %d share(s) - limited diversification", maxShares))
	}

	if result.RiskPct.GreaterThan(s.maxRiskPct) {
		result.IsValid = false
		result.BlockedReason = fmt.Sprintf("Risk %s%% exceeds max %s%%",
			result.RiskPct.StringFixed(1), s.maxRiskPct.String())
	}
	if result.PositionPct.GreaterThan(s.maxPositionPct) {
		result.IsValid = false
		result.BlockedReason = fmt.Sprintf("Position %s%% exceeds max %s%%",
			result.PositionPct.StringFixed(1), s.maxPositionPct.String())
	}

	stopPct := riskPerShare.Div(entryPrice).Mul(hundred)
	if stopPct.LessThan(decimal.NewFromInt(3)) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Very tight stop (%s%%) - may get stopped out by noise", stopPct.StringFixed(1)))
	} else if stopPct.GreaterThan(decimal.NewFromInt(15)) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Wide stop (%s%%) - consider tighter risk management", stopPct.StringFixed(1)))
	}

	if targetPrice.GreaterThan(entryPrice) {
		rr := targetPrice.Sub(entryPrice).Div(riskPerShare)
		result.RewardRiskRatio = &rr
		if rr.LessThan(decimal.NewFromInt(2)) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("R:R ratio %s:1 is below recommended 2:1", rr.StringFixed(1)))
		}
	}

	return result
}

// minEquityForOneShare is the smallest account balance that buys a single
// share without breaching either limit.
func (s *Sizer) minEquityForOneShare(entryPrice, riskPerShare decimal.Decimal) decimal.Decimal {
	byRisk := riskPerShare.Mul(hundred).Div(s.maxRiskPct)
	byPosition := entryPrice.Mul(hundred).Div(s.maxPositionPct)
	if byRisk.GreaterThan(byPosition) {
		return byRisk
	}
	return byPosition
}

// SuggestStop proposes a stop price for an entry. Method "atr" uses
// entry - atr*multiplier when an ATR value is supplied; anything else falls
// back to the percentage stop.
func (s *Sizer) SuggestStop(
	entryPrice decimal.Decimal,
	method string,
	atr *decimal.Decimal,
	atrMultiplier decimal.Decimal,
) decimal.Decimal {
	if method == "atr" && atr != nil && atr.GreaterThan(decimal.Zero) {
		if atrMultiplier.LessThanOrEqual(decimal.Zero) {
			atrMultiplier = DefaultATRMultiplier
		}
		return entryPrice.Sub(atr.Mul(atrMultiplier))
	}
	factor := decimal.NewFromInt(1).Sub(s.defaultStopPct.Div(hundred))
	return entryPrice.Mul(factor)
}

// FormatMessage renders the result for Telegram or the CLI.
func (r Result) FormatMessage() string {
	status := "✅ VALID"
	if !r.IsValid {
		status = "❌ BLOCKED: " + r.BlockedReason
	}

	lines := []string{
		fmt.Sprintf("Position Size Calculator - %s", r.Symbol),
		fmt.Sprintf("Status: %s", status),
		"",
		fmt.Sprintf("Entry: $%s", r.EntryPrice.String()),
		fmt.Sprintf("Stop: $%s", r.StopPrice.String()),
		fmt.Sprintf("Risk/Share: $%s", r.RiskPerShare.String()),
		"",
		fmt.Sprintf("Max Shares: %d", r.MaxShares),
		fmt.Sprintf("Position Value: $%s", r.PositionValue.StringFixed(2)),
		fmt.Sprintf("Dollar Risk: $%s", r.DollarRisk.StringFixed(2)),
		fmt.Sprintf("Risk %%: %s%%", r.RiskPct.StringFixed(2)),
		fmt.Sprintf("Position %%: %s%%", r.PositionPct.StringFixed(2)),
	}

	if len(r.Warnings) > 0 {
		lines = append(lines, "", "Warnings:")
		for _, w := range r.Warnings {
			lines = append(lines, "  ⚠️ "+w)
		}
	}

	return strings.Join(lines, "\n")
}
