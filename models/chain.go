package models

import (
	"time"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// PricingMode selects where a chain row price comes from.
type PricingMode string

const (
	// PricingModeMid prices rows from the order book mid (best bid/ask mean).
	PricingModeMid PricingMode = "mid"
	// PricingModeMark prices rows from the exchange mark price.
	PricingModeMark PricingMode = "mark"
)

// Instrument is one tradable option contract from the exchange catalog.
type Instrument struct {
	Symbol         string     `json:"symbol"`
	ProductID      int64      `json:"product_id"`
	Underlying     string     `json:"underlying"`
	OptionType     OptionType `json:"option_type"`
	Strike         float64    `json:"strike"`
	SettlementTime time.Time  `json:"settlement_time"`
	TickSize       float64    `json:"tick_size,omitempty"`
}

// Quote is a bid/ask/mark snapshot for one instrument at fetch time.
// Absent values stay nil; a missing side is never coerced to zero.
type Quote struct {
	Symbol    string     `json:"symbol"`
	BestBid   *float64   `json:"best_bid,omitempty"`
	BestAsk   *float64   `json:"best_ask,omitempty"`
	MarkPrice *float64   `json:"mark_price,omitempty"`
	SpotPrice *float64   `json:"spot_price,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ChainRow is one output record per strike. Nil prices mean "no data" and are
// rendered as blanks, never as zero.
type ChainRow struct {
	Strike     float64  `json:"strike"`
	CallSymbol string   `json:"call_symbol,omitempty"`
	CallPrice  *float64 `json:"call_price,omitempty"`
	CallBid    *float64 `json:"call_bid,omitempty"`
	CallAsk    *float64 `json:"call_ask,omitempty"`
	PutSymbol  string   `json:"put_symbol,omitempty"`
	PutPrice   *float64 `json:"put_price,omitempty"`
	PutBid     *float64 `json:"put_bid,omitempty"`
	PutAsk     *float64 `json:"put_ask,omitempty"`
}

// MarketSlice is the raw message produced by the reader for one fetch cycle:
// the nearest-expiry instrument set plus whatever quotes resolved for them.
type MarketSlice struct {
	Underlying  string           `json:"underlying"`
	Expiry      time.Time        `json:"expiry"`
	Instruments []Instrument     `json:"instruments"`
	Quotes      map[string]Quote `json:"quotes"`
	SpotPrice   *float64         `json:"spot_price,omitempty"`
	// DroppedInstruments counts catalog entries excluded because neither the
	// structured fields nor the symbol yielded a usable contract.
	DroppedInstruments int       `json:"dropped_instruments"`
	FetchedAt          time.Time `json:"fetched_at"`
}

// ChainSnapshot is the normalized output of one chain build.
type ChainSnapshot struct {
	Underlying         string      `json:"underlying"`
	Expiry             time.Time   `json:"expiry"`
	PricingMode        PricingMode `json:"pricing_mode"`
	Rows               []ChainRow  `json:"rows"`
	SpotPrice          *float64    `json:"spot_price,omitempty"`
	InstrumentCount    int         `json:"instrument_count"`
	DroppedInstruments int         `json:"dropped_instruments"`
	MissingQuotes      int         `json:"missing_quotes"`
	FetchedAt          time.Time   `json:"fetched_at"`
	BuiltAt            time.Time   `json:"built_at"`
}

// Empty reports whether the snapshot carries no rows, which callers must
// render as an explicit "no options found" state.
func (s ChainSnapshot) Empty() bool {
	return len(s.Rows) == 0
}

// Float64Ptr returns a pointer to v. Convenience for literals in tests and
// wire decoding.
func Float64Ptr(v float64) *float64 {
	return &v
}
