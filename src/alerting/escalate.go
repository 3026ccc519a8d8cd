package alerting

import (
	"time"

	"stopguardian/src/model"
)

// Decide returns the escalation level for a new dispatch based on severity
// and elapsed time since the last alert.
//
//   - CRITICAL always goes straight to a phone call, whatever the history.
//   - URGENT starts no lower than SMS.
//   - Otherwise, once the escalation interval has elapsed since the last
//     alert, step up exactly one level, capped at phone call.
//   - With no reason to move, the level stays where it is. It never steps
//     down; only an acknowledgment or a stop being set resets it.
func Decide(
	severity model.Severity,
	current model.EscalationLevel,
	lastAlert *time.Time,
	now time.Time,
	interval time.Duration,
) model.EscalationLevel {
	if severity == model.SeverityCritical {
		return model.LevelPhoneCall
	}

	if severity == model.SeverityUrgent && current < model.LevelSMS {
		return model.LevelSMS
	}

	if lastAlert != nil && now.Sub(*lastAlert) >= interval {
		next := current + 1
		if next > model.LevelPhoneCall {
			next = model.LevelPhoneCall
		}
		return next
	}

	return current
}

// PromoteByCount escalates once a channel has used up its alert quota:
// maxTelegram alerts on the chat channel promote to SMS, and
// maxTelegram+maxSMS total alerts promote to phone call.
func PromoteByCount(
	current model.EscalationLevel,
	alertCount int,
	maxTelegram, maxSMS int,
) model.EscalationLevel {
	switch current {
	case model.LevelTelegram:
		if alertCount >= maxTelegram {
			return model.LevelSMS
		}
	case model.LevelSMS:
		if alertCount >= maxTelegram+maxSMS {
			return model.LevelPhoneCall
		}
	}
	return current
}

// ResolveLevel combines the time-based and count-based escalation paths for a
// new send. Both can fire in the same evaluation; the higher of the two
// proposed levels wins.
func ResolveLevel(
	severity model.Severity,
	current model.EscalationLevel,
	alertCount int,
	lastAlert *time.Time,
	now time.Time,
	interval time.Duration,
	maxTelegram, maxSMS int,
) model.EscalationLevel {
	byTime := Decide(severity, current, lastAlert, now, interval)
	byCount := PromoteByCount(current, alertCount, maxTelegram, maxSMS)
	if byCount > byTime {
		return byCount
	}
	return byTime
}

// ShouldSend reports whether a new alert is due for a tracking record: the
// first alert always goes out, after that one alert per escalation interval.
func ShouldSend(record *model.TrackingRecord, now time.Time, interval time.Duration) bool {
	if record.AlertCount == 0 {
		return true
	}
	return now.Sub(record.UpdatedAt) >= interval
}
