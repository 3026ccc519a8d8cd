package alerting

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	twilioAPIBaseURL = "https://api.twilio.com/2010-04-01"

	// Concatenated SMS tops out around 1600 chars; truncate well before that.
	smsMaxLength = 1500

	// Text-to-speech is slow, keep spoken messages short.
	callMaxLength = 200
)

type twilioCreateResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// TwilioClient sends SMS and initiates voice calls through the Twilio REST
// API. Both target the single configured alert phone number.
type TwilioClient struct {
	accountSID string
	fromNumber string
	toNumber   string
	enabled    bool
	http       *resty.Client
}

func NewTwilioClient(cfg Config) *TwilioClient {
	if !cfg.TwilioEnabled() {
		logger.Warn("Twilio credentials not configured, SMS and phone alerts disabled")
	}

	httpClient := resty.New().
		SetBaseURL(twilioAPIBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(4 * time.Second).
		AddRetryCondition(isRetryableResp).
		SetBasicAuth(cfg.TwilioAccountSID, cfg.TwilioAuthToken)

	return &TwilioClient{
		accountSID: cfg.TwilioAccountSID,
		fromNumber: cfg.TwilioFromNumber,
		toNumber:   cfg.AlertPhoneNumber,
		enabled:    cfg.TwilioEnabled(),
		http:       httpClient,
	}
}

func (c *TwilioClient) Enabled() bool {
	return c.enabled
}

// SendSMS sends one text message and returns the Twilio message SID.
func (c *TwilioClient) SendSMS(ctx context.Context, message string) (string, error) {
	if !c.enabled {
		return "", fmt.Errorf("twilio channel disabled")
	}

	if len(message) > smsMaxLength {
		message = message[:smsMaxLength-3] + "..."
	}

	var result twilioCreateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   c.toNumber,
			"From": c.fromNumber,
			"Body": message,
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/Accounts/%s/Messages.json", c.accountSID))
	if err != nil {
		return "", fmt.Errorf("twilio SMS request failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("twilio SMS rejected: status=%d code=%d message=%s",
			resp.StatusCode(), result.Code, result.Message)
	}

	logger.WithFields(map[string]interface{}{
		"sid": result.SID,
	}).Info("SMS sent")

	return result.SID, nil
}

// MakeCall initiates a voice call that reads the message aloud twice and
// returns the Twilio call SID.
func (c *TwilioClient) MakeCall(ctx context.Context, message string) (string, error) {
	if !c.enabled {
		return "", fmt.Errorf("twilio channel disabled")
	}

	if len(message) > callMaxLength {
		message = message[:callMaxLength]
	}

	var result twilioCreateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":    c.toNumber,
			"From":  c.fromNumber,
			"Twiml": buildCallTwiML(message),
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/Accounts/%s/Calls.json", c.accountSID))
	if err != nil {
		return "", fmt.Errorf("twilio call request failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("twilio call rejected: status=%d code=%d message=%s",
			resp.StatusCode(), result.Code, result.Message)
	}

	logger.WithFields(map[string]interface{}{
		"sid": result.SID,
	}).Info("Phone call initiated")

	return result.SID, nil
}

func buildCallTwiML(message string) string {
	escaped := html.EscapeString(message)
	return fmt.Sprintf(`<Response>`+
		`<Say voice="alice">Alert from Stop Loss Guardian. %s</Say>`+
		`<Pause length="2"/>`+
		`<Say voice="alice">Repeating: %s</Say>`+
		`<Pause length="1"/>`+
		`<Say voice="alice">Please check your trading app immediately.</Say>`+
		`</Response>`, escaped, escaped)
}
