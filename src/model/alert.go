package model

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type AlertType string

const (
	AlertTypeMissingStopLoss   AlertType = "missing_stop_loss"
	AlertTypeDrawdownWarning   AlertType = "drawdown_warning"
	AlertTypeDrawdownCritical  AlertType = "drawdown_critical"
	AlertTypeStopLossTriggered AlertType = "stop_loss_triggered"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityUrgent   Severity = "urgent"
	SeverityCritical Severity = "critical"
)

type Channel string

const (
	ChannelTelegram  Channel = "telegram"
	ChannelSMS       Channel = "sms"
	ChannelPhoneCall Channel = "phone_call"
)

// EscalationLevel is the ordinal urgency of an alert: Telegram < SMS < phone
// call. It is stored in the database under its legacy string name so existing
// rows keep working, but all comparisons in code are integer comparisons.
type EscalationLevel int

const (
	LevelTelegram EscalationLevel = iota
	LevelSMS
	LevelPhoneCall
)

func (l EscalationLevel) String() string {
	switch l {
	case LevelSMS:
		return "sms"
	case LevelPhoneCall:
		return "phone_call"
	default:
		return "telegram"
	}
}

// Channel maps an escalation level to its delivery channel.
func (l EscalationLevel) Channel() Channel {
	switch {
	case l >= LevelPhoneCall:
		return ChannelPhoneCall
	case l == LevelSMS:
		return ChannelSMS
	default:
		return ChannelTelegram
	}
}

// ParseEscalationLevel accepts the legacy string names. "none" and unknown
// values map to the lowest level rather than erroring, matching how tracking
// rows created before escalation started are interpreted.
func ParseEscalationLevel(s string) EscalationLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sms":
		return LevelSMS
	case "phone_call":
		return LevelPhoneCall
	default:
		return LevelTelegram
	}
}

func (l *EscalationLevel) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = LevelTelegram
	case string:
		*l = ParseEscalationLevel(v)
	case []byte:
		*l = ParseEscalationLevel(string(v))
	case int64:
		*l = EscalationLevel(v)
	default:
		return fmt.Errorf("cannot scan %T into EscalationLevel", value)
	}
	return nil
}

func (l EscalationLevel) Value() (driver.Value, error) {
	return l.String(), nil
}

// Alert is a notification intent built fresh per dispatch. It is never
// persisted directly; the dispatcher writes a derived AlertLog row instead.
type Alert struct {
	Type               AlertType
	Severity           Severity
	Symbol             string
	Message            string
	PositionID         *uint
	Details            map[string]interface{}
	SuggestedStopPrice *decimal.Decimal
	SuggestedAction    string
}

var severityEmoji = map[Severity]string{
	SeverityInfo:     "ℹ️",
	SeverityWarning:  "⚠️",
	SeverityUrgent:   "🚨",
	SeverityCritical: "🔴",
}

// FormatMessage renders the alert for delivery over any channel.
func (a Alert) FormatMessage() string {
	words := strings.Split(string(a.Type), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	title := strings.Join(words, " ")

	lines := []string{
		fmt.Sprintf("%s %s: %s", severityEmoji[a.Severity], strings.ToUpper(string(a.Severity)), title),
		fmt.Sprintf("Symbol: %s", a.Symbol),
		a.Message,
	}

	if v, ok := a.Details["entry_price"]; ok && v != nil {
		lines = append(lines, fmt.Sprintf("Entry: $%v", v))
	}
	if v, ok := a.Details["current_price"]; ok && v != nil {
		lines = append(lines, fmt.Sprintf("Current: $%v", v))
	}
	if v, ok := a.Details["drawdown_pct"]; ok && v != nil {
		lines = append(lines, fmt.Sprintf("Drawdown: %v%%", v))
	}
	if a.SuggestedStopPrice != nil {
		lines = append(lines, fmt.Sprintf("Suggested Stop: $%s", a.SuggestedStopPrice.StringFixed(2)))
	}
	if a.SuggestedAction != "" {
		lines = append(lines, fmt.Sprintf("Action: %s", a.SuggestedAction))
	}

	return strings.Join(lines, "\n")
}
