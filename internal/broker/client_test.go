package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketgw/internal/market"
)

func TestFetchHistoricalBars_ParsesResponse(t *testing.T) {
	var gotPath, gotBarSize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBarSize = r.URL.Query().Get("bar_size")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"MSFT","bars":[
			{"timestamp":"2026-03-02T14:30:00Z","open":"400.1","high":401,"low":399.5,"close":"400.9","volume":12345,"wap":"400.4","trade_count":87},
			{"timestamp":"2026-03-02T14:35:00Z","open":401,"high":402,"low":400,"close":401.5,"volume":9999}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	spec := market.ContractSpec{Symbol: "MSFT"}.Normalize()
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	bars, err := c.FetchHistoricalBars(context.Background(), spec, market.TF5m, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if gotPath != "/historical/MSFT" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotBarSize != "5 mins" {
		t.Fatalf("bar_size=%q want %q", gotBarSize, "5 mins")
	}
	if len(bars) != 2 {
		t.Fatalf("bars=%d want 2", len(bars))
	}
	if bars[0].Open.String() != "400.1" {
		t.Fatalf("open=%s want 400.1", bars[0].Open)
	}
	if bars[0].WAP == nil || bars[0].TradeCount == nil {
		t.Fatalf("optional fields lost: %+v", bars[0])
	}
	if bars[1].WAP != nil {
		t.Fatalf("absent wap should stay nil")
	}
}

func TestDoRequest_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   market.Kind
	}{
		{http.StatusTooManyRequests, market.KindUpstreamRateLimited},
		{http.StatusGatewayTimeout, market.KindUpstreamTimeout},
		{http.StatusRequestTimeout, market.KindUpstreamTimeout},
		{http.StatusInternalServerError, market.KindUpstreamUnavailable},
		{http.StatusNotFound, market.KindUpstreamUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewClient(srv.Client(), srv.URL)
		_, err := c.FetchQuote(context.Background(), "MSFT")
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if !market.IsKind(err, tc.kind) {
			t.Fatalf("status %d: kind=%q want %q", tc.status, market.KindOf(err), tc.kind)
		}
	}
}

func TestDoRequest_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(nil, srv.URL)
	_, err := c.FetchQuote(context.Background(), "MSFT")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !market.IsKind(err, market.KindUpstreamUnavailable) {
		t.Fatalf("kind=%q want upstream_unavailable", market.KindOf(err))
	}
}

func TestFetchQuote_Parses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market-data/AAPL" {
			t.Errorf("path=%q", r.URL.Path)
		}
		w.Write([]byte(`{"symbol":"AAPL","last":190.25,"bid":190.2,"ask":190.3,"volume":1000,"timestamp":"2026-03-02T14:30:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	q, err := c.FetchQuote(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if q.Symbol != "AAPL" || q.Last.String() != "190.25" {
		t.Fatalf("quote=%+v", q)
	}
	if q.Bid == nil || q.Ask == nil {
		t.Fatalf("bid/ask lost: %+v", q)
	}
}

func TestSearchContracts_Parses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "micro" {
			t.Errorf("q=%q", r.URL.Query().Get("q"))
		}
		w.Write([]byte(`{"contracts":[{"symbol":"MSFT","sec_type":"STK","exchange":"SMART","currency":"USD"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	specs, err := c.SearchContracts(context.Background(), "micro")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(specs) != 1 || specs[0].Symbol != "MSFT" {
		t.Fatalf("specs=%+v", specs)
	}
}

func TestParseTick_NumberAndStringPrices(t *testing.T) {
	tick, err := parseTick([]byte(`{"symbol":"MSFT","price":"400.5","size":10,"timestamp":"2026-03-02T14:30:00Z"}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tick.Symbol != "MSFT" || tick.Price.String() != "400.5" {
		t.Fatalf("tick=%+v", tick)
	}

	tick, err = parseTick([]byte(`{"symbol":"MSFT","price":401.25}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tick.Price.String() != "401.25" {
		t.Fatalf("price=%s want 401.25", tick.Price)
	}
}
