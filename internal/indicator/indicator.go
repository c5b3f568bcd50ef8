// Package indicator computes per-bar technical indicators over an
// ascending bar window. Outputs line up index-for-index with the
// input; positions where an indicator is undefined hold NaN and are
// filtered out before storage.
package indicator

import (
	"math"

	"marketgw/internal/market"
	"marketgw/internal/models"
)

// Default parameterization, matching common charting conventions.
const (
	DefaultSMAPeriod    = 20
	DefaultEMAPeriod    = 20
	DefaultRSIPeriod    = 14
	DefaultMACDFast     = 12
	DefaultMACDSlow     = 26
	DefaultMACDSignal   = 9
	DefaultBBPeriod     = 20
	DefaultBBWidth      = 2.0
	DefaultATRPeriod    = 14
	DefaultStochKPeriod = 14
	DefaultStochDPeriod = 3
)

// Compute derives the default indicator suite for bars and returns
// rows keyed to contractID/timeframe and each bar's timestamp. bars
// must be ascending by timestamp.
func Compute(contractID uint64, timeframe market.Timeframe, bars []market.BarData) []models.IndicatorValue {
	if len(bars) == 0 {
		return nil
	}
	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
		highs[i] = b.High.InexactFloat64()
		lows[i] = b.Low.InexactFloat64()
		volumes[i] = float64(b.Volume)
	}

	sma := SMA(closes, DefaultSMAPeriod)
	ema := EMA(closes, DefaultEMAPeriod)
	rsi := RSI(closes, DefaultRSIPeriod)
	macd, macdSignal, macdHist := MACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	bbUpper, bbMiddle, bbLower := Bollinger(closes, DefaultBBPeriod, DefaultBBWidth)
	atr := ATR(highs, lows, closes, DefaultATRPeriod)
	stochK, stochD := Stochastic(highs, lows, closes, DefaultStochKPeriod, DefaultStochDPeriod)
	obv := OBV(closes, volumes)
	vwap := VWAP(highs, lows, closes, volumes)

	out := make([]models.IndicatorValue, 0, len(bars)*14)
	add := func(i int, name string, period int, values []float64) {
		out = append(out, models.IndicatorValue{
			ContractID: contractID,
			Timeframe:  timeframe.String(),
			Timestamp:  bars[i].Timestamp,
			Name:       name,
			Period:     period,
			Value:      values[i],
		})
	}
	for i := range bars {
		add(i, models.IndicatorSMA, DefaultSMAPeriod, sma)
		add(i, models.IndicatorEMA, DefaultEMAPeriod, ema)
		add(i, models.IndicatorRSI, DefaultRSIPeriod, rsi)
		add(i, models.IndicatorMACD, 0, macd)
		add(i, models.IndicatorMACDSignal, 0, macdSignal)
		add(i, models.IndicatorMACDHist, 0, macdHist)
		add(i, models.IndicatorBBUpper, DefaultBBPeriod, bbUpper)
		add(i, models.IndicatorBBMiddle, DefaultBBPeriod, bbMiddle)
		add(i, models.IndicatorBBLower, DefaultBBPeriod, bbLower)
		add(i, models.IndicatorATR, DefaultATRPeriod, atr)
		add(i, models.IndicatorStochK, DefaultStochKPeriod, stochK)
		add(i, models.IndicatorStochD, DefaultStochDPeriod, stochD)
		add(i, models.IndicatorOBV, 0, obv)
		add(i, models.IndicatorVWAP, 0, vwap)
	}
	return out
}

// SMA is a rolling mean over up to period samples; early positions
// average whatever is available.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		n := period
		if i+1 < period {
			n = i + 1
		} else if i >= period {
			sum -= values[i-period]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// EMA uses alpha = 2/(period+1), seeded with the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI uses Wilder smoothing of average gain and loss. Positions
// before the first full period are NaN.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if len(values) <= period {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)
	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func MACD(values []float64, fast, slow, signal int) (macd, signalLine, hist []float64) {
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)
	macd = make([]float64, len(values))
	for i := range values {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signalLine = EMA(macd, signal)
	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, hist
}

// Bollinger bands around the rolling mean, width standard deviations
// wide; undefined until a full window exists.
func Bollinger(values []float64, period int, width float64) (upper, middle, lower []float64) {
	upper = nanSlice(len(values))
	middle = nanSlice(len(values))
	lower = nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean := meanOf(window)
		sd := stddevOf(window, mean)
		middle[i] = mean
		upper[i] = mean + width*sd
		lower[i] = mean - width*sd
	}
	return upper, middle, lower
}

// ATR over Wilder-smoothed true range.
func ATR(highs, lows, closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if len(closes) <= period {
		return out
	}
	tr := make([]float64, len(closes))
	tr[0] = highs[0] - lows[0]
	for i := 1; i < len(closes); i++ {
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period-1] = atr
	for i := period; i < len(closes); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}
	return out
}

// Stochastic %K over the rolling high/low range and %D as its SMA.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d []float64) {
	k = nanSlice(len(closes))
	for i := kPeriod - 1; i < len(closes); i++ {
		hh := highs[i]
		ll := lows[i]
		for j := i - kPeriod + 1; j < i; j++ {
			hh = math.Max(hh, highs[j])
			ll = math.Min(ll, lows[j])
		}
		if hh == ll {
			k[i] = 50
			continue
		}
		k[i] = 100 * (closes[i] - ll) / (hh - ll)
	}
	d = nanSlice(len(closes))
	for i := kPeriod + dPeriod - 2; i < len(closes); i++ {
		var sum float64
		for j := i - dPeriod + 1; j <= i; j++ {
			sum += k[j]
		}
		d[i] = sum / float64(dPeriod)
	}
	return k, d
}

// OBV accumulates volume with the sign of the close-to-close move.
func OBV(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = volumes[0]
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// VWAP is the cumulative typical-price volume average across the
// window. With zero cumulative volume the value is NaN.
func VWAP(highs, lows, closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	var cumPV, cumV float64
	for i := range closes {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		cumPV += typical * volumes[i]
		cumV += volumes[i]
		if cumV == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cumPV / cumV
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevOf(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
