package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	logger "github.com/sirupsen/logrus"

	"stopguardian/src/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageSender delivers a chat message, the lowest escalation channel.
type MessageSender interface {
	SendMessage(ctx context.Context, text string) error
	Enabled() bool
}

// PhoneSender covers the two Twilio channels. The returned string is the
// provider SID for the audit log.
type PhoneSender interface {
	SendSMS(ctx context.Context, message string) (string, error)
	MakeCall(ctx context.Context, message string) (string, error)
	Enabled() bool
}

// AlertLogStore persists one audit row per dispatched alert.
type AlertLogStore interface {
	LogAlert(ctx context.Context, entry *model.AlertLog) error
}

// Dispatcher routes alerts to the channel matching their escalation level:
// Telegram for level 0, SMS for level 1, phone call for level 2. A phone-call
// dispatch also sends a backup SMS and counts as delivered if either goes out.
type Dispatcher struct {
	telegram MessageSender
	phone    PhoneSender
	store    AlertLogStore

	escalationInterval time.Duration
	maxTelegramAlerts  int
	maxSMSAlerts       int
}

type DispatcherParams struct {
	Telegram MessageSender
	Phone    PhoneSender
	Store    AlertLogStore

	EscalationInterval time.Duration
	MaxTelegramAlerts  int
	MaxSMSAlerts       int
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		telegram:           p.Telegram,
		phone:              p.Phone,
		store:              p.Store,
		escalationInterval: p.EscalationInterval,
		maxTelegramAlerts:  p.MaxTelegramAlerts,
		maxSMSAlerts:       p.MaxSMSAlerts,
	}
}

// SendInfo delivers a plain informational message over the chat channel,
// bypassing escalation entirely.
func (d *Dispatcher) SendInfo(ctx context.Context, message string) error {
	return d.telegram.SendMessage(ctx, message)
}

// Dispatch resolves the escalation level for the alert, sends it over the
// matching channel and records the outcome. It returns the level actually
// used and whether delivery succeeded.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	alert model.Alert,
	current model.EscalationLevel,
	alertCount int,
	lastAlert *time.Time,
	trackingID *uint,
) (model.EscalationLevel, bool) {
	level := ResolveLevel(
		alert.Severity, current, alertCount,
		lastAlert, time.Now().UTC(), d.escalationInterval,
		d.maxTelegramAlerts, d.maxSMSAlerts,
	)
	if level > current {
		logger.WithFields(map[string]interface{}{
			"symbol": alert.Symbol,
			"from":   current.String(),
			"to":     level.String(),
		}).Info("escalating alert channel")
	}

	channel := level.Channel()
	message := alert.FormatMessage()

	var success bool
	var providerSID string

	switch channel {
	case model.ChannelTelegram:
		err := d.telegram.SendMessage(ctx, message)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": alert.Symbol,
				"error":  err.Error(),
			}).Error("telegram alert failed")
		}
		success = err == nil

	case model.ChannelSMS:
		sid, err := d.phone.SendSMS(ctx, message)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": alert.Symbol,
				"error":  err.Error(),
			}).Error("SMS alert failed")
		}
		success = err == nil
		providerSID = sid

	case model.ChannelPhoneCall:
		smsSID, smsErr := d.phone.SendSMS(ctx, message)
		callSID, callErr := d.phone.MakeCall(ctx, message)
		if smsErr != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": alert.Symbol,
				"error":  smsErr.Error(),
			}).Error("backup SMS failed")
		}
		if callErr != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": alert.Symbol,
				"error":  callErr.Error(),
			}).Error("phone call failed")
		}
		success = smsErr == nil || callErr == nil
		providerSID = callSID
		if providerSID == "" {
			providerSID = smsSID
		}
	}

	if success {
		d.logAlert(ctx, alert, channel, level, trackingID, providerSID)
	}

	fields := map[string]interface{}{
		"type":    string(alert.Type),
		"symbol":  alert.Symbol,
		"channel": string(channel),
		"level":   int(level),
	}
	if success {
		logger.WithFields(fields).Info("alert sent")
	} else {
		logger.WithFields(fields).Error("alert delivery failed on all channels")
	}

	return level, success
}

func (d *Dispatcher) logAlert(
	ctx context.Context,
	alert model.Alert,
	channel model.Channel,
	level model.EscalationLevel,
	trackingID *uint,
	providerSID string,
) {
	details := ""
	if len(alert.Details) > 0 {
		raw, err := json.Marshal(alert.Details)
		if err == nil {
			details = string(raw)
		}
	}

	entry := &model.AlertLog{
		DispatchID:      uuid.New().String(),
		AlertType:       alert.Type,
		Symbol:          alert.Symbol,
		PositionID:      alert.PositionID,
		TrackingID:      trackingID,
		Severity:        alert.Severity,
		EscalationLevel: level,
		Message:         alert.Message,
		Details:         details,
		Channel:         channel,
		ProviderSID:     providerSID,
	}

	err := d.store.LogAlert(ctx, entry)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"symbol": alert.Symbol,
			"error":  err.Error(),
		}).Error("failed to persist alert log")
	}
}
