package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV observation for a contract at a timeframe and
// timestamp; re-ingesting the same key overwrites the row.
type Bar struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ContractID uint64    `gorm:"not null;uniqueIndex:ux_bars_key,priority:1;index" json:"contract_id"`
	Timeframe  string    `gorm:"type:varchar(8);not null;uniqueIndex:ux_bars_key,priority:2" json:"timeframe"`
	Timestamp  time.Time `gorm:"type:timestamptz;not null;uniqueIndex:ux_bars_key,priority:3;index" json:"timestamp"`

	Open   decimal.Decimal `gorm:"type:numeric;not null" json:"open"`
	High   decimal.Decimal `gorm:"type:numeric;not null" json:"high"`
	Low    decimal.Decimal `gorm:"type:numeric;not null" json:"low"`
	Close  decimal.Decimal `gorm:"type:numeric;not null" json:"close"`
	Volume int64           `gorm:"not null;default:0" json:"volume"`

	WAP        *decimal.Decimal `gorm:"type:numeric" json:"wap,omitempty"`
	TradeCount *int             `json:"trade_count,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"-"`
}

func (Bar) TableName() string {
	return "bars"
}
