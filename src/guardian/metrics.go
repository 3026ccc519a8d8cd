package guardian

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPositionsChecked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stopguardian",
		Name:      "positions_checked_total",
		Help:      "Positions evaluated by the monitoring loop.",
	})

	metricAlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stopguardian",
		Name:      "alerts_sent_total",
		Help:      "Alerts dispatched, labelled by type and channel.",
	}, []string{"type", "channel"})

	metricTickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stopguardian",
		Name:      "tick_errors_total",
		Help:      "Monitoring cycles that failed with an error.",
	})

	metricConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stopguardian",
		Name:      "consecutive_tick_failures",
		Help:      "Current run of consecutive failed monitoring cycles.",
	})
)
