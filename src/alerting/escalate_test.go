package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stopguardian/src/model"
)

var (
	now      = time.Date(2025, time.June, 10, 15, 0, 0, 0, time.UTC)
	interval = 60 * time.Minute
)

func minutesAgo(m int) *time.Time {
	t := now.Add(-time.Duration(m) * time.Minute)
	return &t
}

func TestDecide_CriticalAlwaysPhoneCall(t *testing.T) {
	for _, current := range []model.EscalationLevel{model.LevelTelegram, model.LevelSMS, model.LevelPhoneCall} {
		got := Decide(model.SeverityCritical, current, nil, now, interval)
		assert.Equal(t, model.LevelPhoneCall, got, "current=%d", current)

		got = Decide(model.SeverityCritical, current, minutesAgo(5), now, interval)
		assert.Equal(t, model.LevelPhoneCall, got, "current=%d recent alert", current)
	}
}

func TestDecide_UrgentStartsAtSMS(t *testing.T) {
	got := Decide(model.SeverityUrgent, model.LevelTelegram, nil, now, interval)
	assert.Equal(t, model.LevelSMS, got)
}

func TestDecide_UrgentDoesNotDemote(t *testing.T) {
	got := Decide(model.SeverityUrgent, model.LevelPhoneCall, minutesAgo(5), now, interval)
	assert.Equal(t, model.LevelPhoneCall, got)
}

func TestDecide_TimeBasedEscalation(t *testing.T) {
	tests := []struct {
		name      string
		current   model.EscalationLevel
		lastAlert *time.Time
		want      model.EscalationLevel
	}{
		{"interval elapsed steps one up", model.LevelTelegram, minutesAgo(60), model.LevelSMS},
		{"interval elapsed from sms", model.LevelSMS, minutesAgo(61), model.LevelPhoneCall},
		{"capped at phone call", model.LevelPhoneCall, minutesAgo(120), model.LevelPhoneCall},
		{"interval not elapsed holds level", model.LevelSMS, minutesAgo(30), model.LevelSMS},
		{"no history holds level", model.LevelTelegram, nil, model.LevelTelegram},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(model.SeverityWarning, tc.current, tc.lastAlert, now, interval)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecide_MonotonicAcrossRepeatedCalls(t *testing.T) {
	level := model.LevelTelegram
	last := minutesAgo(90)

	for i := 0; i < 5; i++ {
		next := Decide(model.SeverityWarning, level, last, now, interval)
		assert.GreaterOrEqual(t, next, level, "call %d demoted %d -> %d", i, level, next)
		level = next
	}
	assert.Equal(t, model.LevelPhoneCall, level)
}

func TestPromoteByCount(t *testing.T) {
	tests := []struct {
		name    string
		current model.EscalationLevel
		count   int
		want    model.EscalationLevel
	}{
		{"under telegram quota", model.LevelTelegram, 1, model.LevelTelegram},
		{"telegram quota spent", model.LevelTelegram, 2, model.LevelSMS},
		{"sms under combined quota", model.LevelSMS, 3, model.LevelSMS},
		{"combined quota spent", model.LevelSMS, 4, model.LevelPhoneCall},
		{"phone call is terminal", model.LevelPhoneCall, 10, model.LevelPhoneCall},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PromoteByCount(tc.current, tc.count, 2, 2)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveLevel_HigherProposalWins(t *testing.T) {
	// count-based path proposes SMS, time-based path proposes nothing
	got := ResolveLevel(model.SeverityWarning, model.LevelTelegram, 2, minutesAgo(10), now, interval, 2, 2)
	assert.Equal(t, model.LevelSMS, got)

	// both fire: time-based proposes SMS, count stays; SMS either way
	got = ResolveLevel(model.SeverityWarning, model.LevelTelegram, 2, minutesAgo(60), now, interval, 2, 2)
	assert.Equal(t, model.LevelSMS, got)

	// severity outranks both paths
	got = ResolveLevel(model.SeverityCritical, model.LevelTelegram, 0, nil, now, interval, 2, 2)
	assert.Equal(t, model.LevelPhoneCall, got)
}

func TestShouldSend(t *testing.T) {
	fresh := model.TrackingRecord{AlertCount: 0, UpdatedAt: now}
	assert.True(t, ShouldSend(&fresh, now, interval), "first alert always sends")

	recent := model.TrackingRecord{AlertCount: 1, UpdatedAt: now.Add(-30 * time.Minute)}
	assert.False(t, ShouldSend(&recent, now, interval))

	due := model.TrackingRecord{AlertCount: 1, UpdatedAt: now.Add(-60 * time.Minute)}
	assert.True(t, ShouldSend(&due, now, interval))
}
