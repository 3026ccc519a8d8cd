package guardian

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	CheckIntervalSeconds      int `envconfig:"CHECK_INTERVAL_SECONDS" default:"60"`
	EscalationIntervalMinutes int `envconfig:"ESCALATION_INTERVAL_MINUTES" default:"60"`
	PriceStalenessMinutes     int `envconfig:"PRICE_STALENESS_MINUTES" default:"15"`

	DrawdownWarningPct  float64 `envconfig:"DRAWDOWN_WARNING_PCT" default:"5"`
	DrawdownCriticalPct float64 `envconfig:"DRAWDOWN_CRITICAL_PCT" default:"10"`

	MaxTelegramAlerts int `envconfig:"MAX_TELEGRAM_ALERTS" default:"2"`
	MaxSMSAlerts      int `envconfig:"MAX_SMS_ALERTS" default:"2"`

	MaxRiskPerTradePct float64 `envconfig:"MAX_RISK_PER_TRADE_PCT" default:"2"`
	MaxPositionPct     float64 `envconfig:"MAX_POSITION_PCT" default:"20"`
	DefaultStopLossPct float64 `envconfig:"DEFAULT_STOP_LOSS_PCT" default:"10"`
}

func GetConfig() Config {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

func (c Config) EscalationInterval() time.Duration {
	return time.Duration(c.EscalationIntervalMinutes) * time.Minute
}

func (c Config) StalenessThreshold() time.Duration {
	return time.Duration(c.PriceStalenessMinutes) * time.Minute
}

func (c Config) DrawdownWarning() decimal.Decimal {
	return decimal.NewFromFloat(c.DrawdownWarningPct)
}

func (c Config) DrawdownCritical() decimal.Decimal {
	return decimal.NewFromFloat(c.DrawdownCriticalPct)
}

func (c Config) MaxRiskPct() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxRiskPerTradePct)
}

func (c Config) MaxPosPct() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxPositionPct)
}

func (c Config) DefaultStopPct() decimal.Decimal {
	return decimal.NewFromFloat(c.DefaultStopLossPct)
}
