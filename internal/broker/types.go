package broker

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"marketgw/internal/market"
)

type historicalResponse struct {
	Symbol string    `json:"symbol"`
	Bars   []wireBar `json:"bars"`
}

type wireBar struct {
	Timestamp  time.Time        `json:"timestamp"`
	Open       decimal.Decimal  `json:"open"`
	High       decimal.Decimal  `json:"high"`
	Low        decimal.Decimal  `json:"low"`
	Close      decimal.Decimal  `json:"close"`
	Volume     int64            `json:"volume"`
	WAP        *decimal.Decimal `json:"wap,omitempty"`
	TradeCount *int             `json:"trade_count,omitempty"`
}

type wireQuote struct {
	Symbol    string           `json:"symbol"`
	Last      decimal.Decimal  `json:"last"`
	Bid       *decimal.Decimal `json:"bid,omitempty"`
	Ask       *decimal.Decimal `json:"ask,omitempty"`
	Volume    int64            `json:"volume,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Low       *decimal.Decimal `json:"low,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type searchResponse struct {
	Contracts []market.ContractSpec `json:"contracts"`
}

func parseHistorical(body []byte) ([]market.BarData, error) {
	var resp historicalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([]market.BarData, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		out = append(out, market.BarData{
			Timestamp:  b.Timestamp.UTC(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			WAP:        b.WAP,
			TradeCount: b.TradeCount,
		})
	}
	return out, nil
}

func parseQuote(body []byte) (market.Quote, error) {
	var q wireQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return market.Quote{}, err
	}
	return market.Quote{
		Symbol:    q.Symbol,
		Last:      q.Last,
		Bid:       q.Bid,
		Ask:       q.Ask,
		Volume:    q.Volume,
		High:      q.High,
		Low:       q.Low,
		Timestamp: q.Timestamp.UTC(),
	}, nil
}

func parseSearch(body []byte) ([]market.ContractSpec, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.Contracts, nil
}
