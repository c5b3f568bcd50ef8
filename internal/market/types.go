package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Security types, upstream notation.
const (
	SecTypeStock     = "STK"
	SecTypeOption    = "OPT"
	SecTypeFuture    = "FUT"
	SecTypeForex     = "CASH"
	SecTypeBond      = "BOND"
	SecTypeCFD       = "CFD"
	SecTypeCommodity = "CMDTY"
	SecTypeCrypto    = "CRYPTO"
	SecTypeWarrant   = "WAR"
	SecTypeFund      = "FUND"
	SecTypeIndex     = "IND"
	SecTypeBasket    = "BAG"
)

const (
	DefaultExchange = "SMART"
	DefaultCurrency = "USD"
)

var validSecTypes = map[string]struct{}{
	SecTypeStock: {}, SecTypeOption: {}, SecTypeFuture: {}, SecTypeForex: {},
	SecTypeBond: {}, SecTypeCFD: {}, SecTypeCommodity: {}, SecTypeCrypto: {},
	SecTypeWarrant: {}, SecTypeFund: {}, SecTypeIndex: {}, SecTypeBasket: {},
}

// ContractSpec is the natural key of an instrument plus optional
// derivative parameters.
type ContractSpec struct {
	Symbol      string          `json:"symbol"`
	SecType     string          `json:"sec_type"`
	Exchange    string          `json:"exchange"`
	Currency    string          `json:"currency"`
	Expiry      string          `json:"expiry,omitempty"`
	Strike      decimal.Decimal `json:"strike,omitempty"`
	Right       string          `json:"right,omitempty"`
	Multiplier  string          `json:"multiplier,omitempty"`
	LocalSymbol string          `json:"local_symbol,omitempty"`
}

// Normalize trims and uppercases the key fields and fills defaults.
func (s ContractSpec) Normalize() ContractSpec {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.SecType = strings.ToUpper(strings.TrimSpace(s.SecType))
	s.Exchange = strings.ToUpper(strings.TrimSpace(s.Exchange))
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	s.Expiry = strings.TrimSpace(s.Expiry)
	s.Right = strings.ToUpper(strings.TrimSpace(s.Right))
	if s.SecType == "" {
		s.SecType = SecTypeStock
	}
	if s.Exchange == "" {
		s.Exchange = DefaultExchange
	}
	if s.Currency == "" {
		s.Currency = DefaultCurrency
	}
	return s
}

func (s ContractSpec) Validate() error {
	if s.Symbol == "" {
		return Ef(KindContractResolutionFailed, "market.ContractSpec", "symbol is required")
	}
	if _, ok := validSecTypes[s.SecType]; !ok {
		return Ef(KindContractResolutionFailed, "market.ContractSpec", "unknown security type %q", s.SecType)
	}
	return nil
}

// BarData is one OHLCV observation as it moves between the upstream
// client, the coordinator, and the boundary.
type BarData struct {
	Timestamp  time.Time        `json:"timestamp"`
	Open       decimal.Decimal  `json:"open"`
	High       decimal.Decimal  `json:"high"`
	Low        decimal.Decimal  `json:"low"`
	Close      decimal.Decimal  `json:"close"`
	Volume     int64            `json:"volume"`
	WAP        *decimal.Decimal `json:"wap,omitempty"`
	TradeCount *int             `json:"trade_count,omitempty"`
}

// EnrichedBar is a bar with the indicator values attached to its
// timestamp. Indicators may be empty, never nil semantics-wise.
type EnrichedBar struct {
	BarData
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Tick is one real-time observation pushed to subscribers.
type Tick struct {
	Symbol    string           `json:"symbol"`
	Price     decimal.Decimal  `json:"price"`
	Bid       *decimal.Decimal `json:"bid,omitempty"`
	Ask       *decimal.Decimal `json:"ask,omitempty"`
	Size      int64            `json:"size,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Quote is a polled snapshot for a symbol.
type Quote struct {
	Symbol    string           `json:"symbol"`
	Last      decimal.Decimal  `json:"last"`
	Bid       *decimal.Decimal `json:"bid,omitempty"`
	Ask       *decimal.Decimal `json:"ask,omitempty"`
	Volume    int64            `json:"volume,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Low       *decimal.Decimal `json:"low,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

const (
	SourceCache    = "cache"
	SourceUpstream = "upstream"
)
