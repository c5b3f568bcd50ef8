package market

import (
	"errors"
	"testing"
)

func TestParseTimeframe_Canonical(t *testing.T) {
	tf, err := ParseTimeframe("5m")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tf != TF5m {
		t.Fatalf("tf=%q want 5m", tf)
	}
	if tf.BarSize() != "5 mins" {
		t.Fatalf("barSize=%q want %q", tf.BarSize(), "5 mins")
	}
}

func TestParseTimeframe_Aliases(t *testing.T) {
	cases := map[string]Timeframe{
		"5min":   TF5m,
		"1hour":  TF1h,
		"daily":  TF1d,
		"1D":     TF1d,
		" 15m ":  TF15m,
		"30min":  TF30m,
	}
	for raw, want := range cases {
		got, err := ParseTimeframe(raw)
		if err != nil {
			t.Fatalf("parse %q: err=%v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got=%q want %q", raw, got, want)
		}
	}
}

func TestParseTimeframe_Invalid(t *testing.T) {
	for _, raw := range []string{"", "2m", "weekly", "bogus"} {
		_, err := ParseTimeframe(raw)
		if err == nil {
			t.Fatalf("parse %q: expected error", raw)
		}
		if KindOf(err) != KindInvalidRange {
			t.Fatalf("parse %q: kind=%q want invalid_range", raw, KindOf(err))
		}
	}
}

func TestContractSpec_NormalizeDefaults(t *testing.T) {
	spec := ContractSpec{Symbol: " msft "}.Normalize()
	if spec.Symbol != "MSFT" {
		t.Fatalf("symbol=%q want MSFT", spec.Symbol)
	}
	if spec.SecType != SecTypeStock || spec.Exchange != DefaultExchange || spec.Currency != DefaultCurrency {
		t.Fatalf("defaults not applied: %+v", spec)
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestContractSpec_ValidateRejectsUnknownSecType(t *testing.T) {
	spec := ContractSpec{Symbol: "MSFT", SecType: "EQTY"}.Normalize()
	if err := spec.Validate(); err == nil {
		t.Fatalf("expected error for sec type EQTY")
	}
}

func TestKindOf_Unwraps(t *testing.T) {
	inner := Ef(KindUpstreamTimeout, "broker.fetch", "deadline exceeded")
	wrapped := E(KindUpstreamTimeout, "service.history", inner)
	if KindOf(wrapped) != KindUpstreamTimeout {
		t.Fatalf("kind=%q want upstream_timeout", KindOf(wrapped))
	}
	if !IsKind(wrapped, KindUpstreamTimeout) {
		t.Fatalf("IsKind=false want true")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("plain error should map to internal")
	}
}
