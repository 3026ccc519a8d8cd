package guardian

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"
)

// Consecutive failed cycles before the degraded-service alert goes out.
const failureAlertThreshold = 5

// watchdog tracks consecutive monitoring-cycle failures. Crossing the
// threshold sends a single degraded-service message; the counter keeps
// climbing after that but no further meta-alerts are sent until a recovery.
type watchdog struct {
	failures int
	notify   func(ctx context.Context, message string) error
}

func newWatchdog(notify func(ctx context.Context, message string) error) *watchdog {
	return &watchdog{notify: notify}
}

func (w *watchdog) failure(ctx context.Context, cause error) {
	w.failures++
	metricTickErrors.Inc()
	metricConsecutiveFailures.Set(float64(w.failures))

	logger.WithFields(map[string]interface{}{
		"consecutive": w.failures,
	}).WithError(cause).Error("Monitoring cycle failed")

	if w.failures != failureAlertThreshold {
		return
	}

	logger.WithFields(map[string]interface{}{
		"consecutive": w.failures,
	}).Error("Monitoring degraded, positions may be unprotected")

	message := fmt.Sprintf(
		"🚨 STOP LOSS GUARDIAN DEGRADED\n\n"+
			"%d consecutive monitoring failures.\n"+
			"Positions may be UNPROTECTED.\n\n"+
			"Last error: %v\n\n"+
			"Check service logs immediately.",
		w.failures, cause)

	err := w.notify(ctx, message)
	if err != nil {
		logger.WithError(err).Error("Failed to send degraded-service alert")
	}
}

func (w *watchdog) success() {
	if w.failures > 0 {
		logger.WithFields(map[string]interface{}{
			"consecutive": w.failures,
		}).Info("Monitoring loop recovered")
	}
	w.failures = 0
	metricConsecutiveFailures.Set(0)
}
