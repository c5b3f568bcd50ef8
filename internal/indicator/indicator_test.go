package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketgw/internal/market"
	"marketgw/internal/models"
	"marketgw/internal/repository"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA_RollingMean(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{1, 1.5, 2, 3, 4}
	for i := range want {
		if !almostEqual(out[i], want[i]) {
			t.Fatalf("sma[%d]=%v want %v", i, out[i], want[i])
		}
	}
}

func TestEMA_SeededWithFirstValue(t *testing.T) {
	out := EMA([]float64{10, 20}, 3)
	if !almostEqual(out[0], 10) {
		t.Fatalf("ema[0]=%v want 10", out[0])
	}
	// alpha = 0.5 for period 3
	if !almostEqual(out[1], 15) {
		t.Fatalf("ema[1]=%v want 15", out[1])
	}
}

func TestRSI_MonotonicUp(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(100 + i)
	}
	out := RSI(values, 14)
	for i := 0; i < 14; i++ {
		if !math.IsNaN(out[i]) {
			t.Fatalf("rsi[%d]=%v want NaN before full period", i, out[i])
		}
	}
	for i := 14; i < len(out); i++ {
		if !almostEqual(out[i], 100) {
			t.Fatalf("rsi[%d]=%v want 100 for pure gains", i, out[i])
		}
	}
}

func TestRSI_FlatSeries(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 50
	}
	out := RSI(values, 14)
	if !almostEqual(out[14], 50) {
		t.Fatalf("rsi=%v want 50 for a flat series", out[14])
	}
}

func TestBollinger_UndefinedBeforeWindow(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	upper, middle, lower := Bollinger(values, 3, 2)
	if !math.IsNaN(upper[1]) || !math.IsNaN(middle[1]) || !math.IsNaN(lower[1]) {
		t.Fatalf("bands defined before full window")
	}
	if !almostEqual(middle[2], 2) {
		t.Fatalf("middle[2]=%v want 2", middle[2])
	}
	if !(upper[2] > middle[2] && lower[2] < middle[2]) {
		t.Fatalf("band ordering broken: %v %v %v", upper[2], middle[2], lower[2])
	}
}

func TestStochastic_FlatWindowIsMidpoint(t *testing.T) {
	highs := []float64{5, 5, 5}
	lows := []float64{5, 5, 5}
	closes := []float64{5, 5, 5}
	k, _ := Stochastic(highs, lows, closes, 3, 3)
	if !almostEqual(k[2], 50) {
		t.Fatalf("k=%v want 50 for a flat window", k[2])
	}
}

func TestOBV_SignedAccumulation(t *testing.T) {
	out := OBV([]float64{10, 11, 10, 10}, []float64{100, 200, 300, 400})
	want := []float64{100, 300, 0, 0}
	for i := range want {
		if !almostEqual(out[i], want[i]) {
			t.Fatalf("obv[%d]=%v want %v", i, out[i], want[i])
		}
	}
}

func TestVWAP_ZeroVolumeIsNaN(t *testing.T) {
	out := VWAP([]float64{10}, []float64{10}, []float64{10}, []float64{0})
	if !math.IsNaN(out[0]) {
		t.Fatalf("vwap=%v want NaN with zero volume", out[0])
	}
}

func testBars(n int) []market.BarData {
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	bars := make([]market.BarData, n)
	for i := range bars {
		price := decimal.NewFromFloat(100 + float64(i))
		bars[i] = market.BarData{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price,
			High:      price.Add(decimal.NewFromInt(1)),
			Low:       price.Sub(decimal.NewFromInt(1)),
			Close:     price,
			Volume:    1000,
		}
	}
	return bars
}

func TestCompute_RowShape(t *testing.T) {
	bars := testBars(30)
	values := Compute(7, market.TF5m, bars)
	if len(values) != len(bars)*14 {
		t.Fatalf("rows=%d want %d", len(values), len(bars)*14)
	}
	for _, v := range values {
		if v.ContractID != 7 || v.Timeframe != "5m" {
			t.Fatalf("bad row keying: %+v", v)
		}
	}
}

// Undefined positions come out of Compute as NaN rows and must be
// dropped silently before they hit the store.
func TestCompute_NaNRowsFilteredForStorage(t *testing.T) {
	values := Compute(1, market.TF1m, testBars(5))
	finite := repository.FiniteValues(values)
	if len(finite) >= len(values) {
		t.Fatalf("expected NaN rows to be dropped: finite=%d total=%d", len(finite), len(values))
	}
	for _, v := range finite {
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			t.Fatalf("non-finite value survived filtering: %+v", v)
		}
	}
	// RSI_14 needs 15 samples, so a 5-bar window has none.
	for _, v := range finite {
		if v.Name == models.IndicatorRSI {
			t.Fatalf("rsi should be undefined on 5 bars")
		}
	}
}
