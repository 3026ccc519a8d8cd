package guardian

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"stopguardian/src/alerting"
	"stopguardian/src/database"
	svc "stopguardian/src/guardian"
	"stopguardian/src/marketdata"
	"stopguardian/src/repository"
	"stopguardian/src/server"
	"stopguardian/src/sizing"
)

// Runner wires the full service together and runs the monitoring loop until
// SIGINT or SIGTERM.
type Runner struct{}

func (r *Runner) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	g, cleanup, err := Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := svc.GetConfig()
	logrus.WithFields(map[string]interface{}{
		"check_interval_s":      cfg.CheckIntervalSeconds,
		"escalation_interval_m": cfg.EscalationIntervalMinutes,
		"staleness_m":           cfg.PriceStalenessMinutes,
		"drawdown_warning_pct":  cfg.DrawdownWarningPct,
		"drawdown_critical_pct": cfg.DrawdownCriticalPct,
	}).Info("Stop Loss Guardian starting")

	go server.Start(ctx, server.GetConfig().Port, g)

	err = g.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Bootstrap connects the databases and Redis and assembles a ready Guardian.
// The returned cleanup closes what Bootstrap opened and is idempotent.
func Bootstrap(ctx context.Context) (*svc.Guardian, func(), error) {
	cfg := svc.GetConfig()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return nil, nil, err
	}

	market := marketdata.NewClient()
	if err := market.Connect(ctx); err != nil {
		logrus.WithError(err).Error("Failed to connect to Redis")
		return nil, nil, err
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := market.Close(); err != nil {
			logrus.WithError(err).Warn("Redis close failed")
		}
		logrus.Info("Stop Loss Guardian shutdown complete")
	}

	alertCfg := alerting.GetConfig()
	repo := repository.NewTrackingRepository()

	dispatcher := alerting.NewDispatcher(alerting.DispatcherParams{
		Telegram:           alerting.NewTelegramClient(alertCfg),
		Phone:              alerting.NewTwilioClient(alertCfg),
		Store:              repo,
		EscalationInterval: cfg.EscalationInterval(),
		MaxTelegramAlerts:  cfg.MaxTelegramAlerts,
		MaxSMSAlerts:       cfg.MaxSMSAlerts,
	})

	g := svc.New(svc.Params{
		Store:     repo,
		Market:    market,
		Notifier:  dispatcher,
		Cooldowns: svc.NewCooldownStore(market, cfg.EscalationInterval()),
		Sizer:     sizing.NewSizer(cfg.MaxRiskPct(), cfg.MaxPosPct(), cfg.DefaultStopPct()),
		Config:    cfg,
		EnsureDB:  database.EnsureConnected,
	})

	return g, cleanup, nil
}
