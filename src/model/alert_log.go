package model

import "time"

// AlertLog is the audit row written for every dispatched alert. ProviderSID is
// the Twilio message/call SID when the alert went out over SMS or voice.
type AlertLog struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	DispatchID      string          `gorm:"size:36;index" json:"dispatch_id"`
	AlertType       AlertType       `gorm:"size:40;not null" json:"alert_type"`
	Symbol          string          `gorm:"size:20;not null;index" json:"symbol"`
	PositionID      *uint           `json:"position_id,omitempty"`
	TrackingID      *uint           `gorm:"index" json:"tracking_id,omitempty"`
	Severity        Severity        `gorm:"size:20;not null" json:"severity"`
	EscalationLevel EscalationLevel `gorm:"size:20" json:"escalation_level"`
	Message         string          `gorm:"type:text" json:"message"`
	Details         string          `gorm:"type:text" json:"details,omitempty"`
	Channel         Channel         `gorm:"size:20;not null" json:"channel"`
	ProviderSID     string          `gorm:"size:64" json:"provider_sid,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (AlertLog) TableName() string {
	return "urgent_alerts"
}
