package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract is one tradable instrument variant. The composite unique
// index is the natural key; rows are immutable once created.
type Contract struct {
	ID       uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol   string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_contracts_key,priority:1;index" json:"symbol"`
	SecType  string          `gorm:"type:varchar(10);not null;uniqueIndex:ux_contracts_key,priority:2" json:"sec_type"`
	Exchange string          `gorm:"type:varchar(32);not null;uniqueIndex:ux_contracts_key,priority:3" json:"exchange"`
	Currency string          `gorm:"type:varchar(8);not null;uniqueIndex:ux_contracts_key,priority:4" json:"currency"`
	Expiry   string          `gorm:"type:varchar(16);not null;default:'';uniqueIndex:ux_contracts_key,priority:5" json:"expiry,omitempty"`
	Strike   decimal.Decimal `gorm:"type:numeric;not null;default:0;uniqueIndex:ux_contracts_key,priority:6" json:"strike,omitempty"`
	Right    string          `gorm:"type:varchar(4);not null;default:'';uniqueIndex:ux_contracts_key,priority:7" json:"right,omitempty"`

	Multiplier    *string   `gorm:"type:varchar(16)" json:"multiplier,omitempty"`
	LocalSymbol   *string   `gorm:"type:varchar(64)" json:"local_symbol,omitempty"`
	UpstreamConID *int64    `gorm:"index" json:"upstream_con_id,omitempty"`
	CreatedAt     time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Contract) TableName() string {
	return "contracts"
}
