package models

import (
	"strconv"
	"time"
)

// Indicator names as stored; period is a separate column so the same
// name can carry several parameterizations.
const (
	IndicatorSMA        = "SMA"
	IndicatorEMA        = "EMA"
	IndicatorRSI        = "RSI"
	IndicatorMACD       = "MACD"
	IndicatorMACDSignal = "MACD_SIGNAL"
	IndicatorMACDHist   = "MACD_HIST"
	IndicatorBBUpper    = "BB_UPPER"
	IndicatorBBMiddle   = "BB_MIDDLE"
	IndicatorBBLower    = "BB_LOWER"
	IndicatorATR        = "ATR"
	IndicatorStochK     = "STOCH_K"
	IndicatorStochD     = "STOCH_D"
	IndicatorOBV        = "OBV"
	IndicatorVWAP       = "VWAP"
)

// IndicatorValue is one derived metric attached to a bar's timeline.
// Only finite values are ever stored.
type IndicatorValue struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ContractID uint64    `gorm:"not null;uniqueIndex:ux_indicator_values_key,priority:1;index" json:"contract_id"`
	Timeframe  string    `gorm:"type:varchar(8);not null;uniqueIndex:ux_indicator_values_key,priority:2" json:"timeframe"`
	Timestamp  time.Time `gorm:"type:timestamptz;not null;uniqueIndex:ux_indicator_values_key,priority:3;index" json:"timestamp"`
	Name       string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_indicator_values_key,priority:4" json:"name"`
	Period     int       `gorm:"not null;default:0;uniqueIndex:ux_indicator_values_key,priority:5" json:"period"`

	Value float64 `gorm:"type:numeric;not null" json:"value"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"-"`
}

func (IndicatorValue) TableName() string {
	return "indicator_values"
}

// Key returns the display key used when attaching values to a bar,
// e.g. "RSI_14" or "MACD".
func (v IndicatorValue) Key() string {
	if v.Period > 0 {
		return v.Name + "_" + strconv.Itoa(v.Period)
	}
	return v.Name
}
