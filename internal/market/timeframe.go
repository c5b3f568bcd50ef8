package market

import (
	"strings"
)

// Timeframe is the bucket width of a bar.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF8h  Timeframe = "8h"
	TF1d  Timeframe = "1d"
)

// canonical timeframe to the upstream bar-size string.
var timeframes = map[Timeframe]string{
	TF1m:  "1 min",
	TF5m:  "5 mins",
	TF15m: "15 mins",
	TF30m: "30 mins",
	TF1h:  "1 hour",
	TF4h:  "4 hours",
	TF8h:  "8 hours",
	TF1d:  "1 day",
}

// timeframe aliases accepted at the boundary; the canonical short
// form is what gets stored.
var timeframeAliases = map[string]Timeframe{
	"1min":   TF1m,
	"5min":   TF5m,
	"15min":  TF15m,
	"30min":  TF30m,
	"1hour":  TF1h,
	"4hour":  TF4h,
	"8hour":  TF8h,
	"1day":   TF1d,
	"daily":  TF1d,
	"1 min":  TF1m,
	"1 hour": TF1h,
	"1 day":  TF1d,
}

func ParseTimeframe(raw string) (Timeframe, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", Ef(KindInvalidRange, "market.ParseTimeframe", "timeframe is required")
	}
	tf := Timeframe(v)
	if _, ok := timeframes[tf]; ok {
		return tf, nil
	}
	if alias, ok := timeframeAliases[v]; ok {
		return alias, nil
	}
	return "", Ef(KindInvalidRange, "market.ParseTimeframe", "unknown timeframe %q", raw)
}

func Timeframes() []Timeframe {
	return []Timeframe{TF1m, TF5m, TF15m, TF30m, TF1h, TF4h, TF8h, TF1d}
}

func (t Timeframe) String() string { return string(t) }

func (t Timeframe) Valid() bool {
	_, ok := timeframes[t]
	return ok
}

// BarSize returns the upstream bar-size string ("5 mins", "1 hour").
func (t Timeframe) BarSize() string {
	return timeframes[t]
}
