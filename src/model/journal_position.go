package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// JournalPosition is an entry in the trading journal. The guardian only reads
// this table; entries are created and closed by the journaling service.
type JournalPosition struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Symbol     string          `gorm:"size:20;not null;index" json:"symbol"`
	EntryPrice decimal.Decimal `gorm:"type:numeric(18,6)" json:"entry_price"`
	Quantity   decimal.Decimal `gorm:"type:numeric(18,6)" json:"quantity"`
	EntryDate  *time.Time      `json:"entry_date,omitempty"`
	Status     string          `gorm:"size:50;not null;default:open" json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (JournalPosition) TableName() string {
	return "journal_positions"
}
