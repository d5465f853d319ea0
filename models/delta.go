package models

import "encoding/json"

// Wire shapes for the Delta Exchange v2 REST API. Numeric fields arrive as
// JSON strings on most endpoints, so they are decoded as json.Number and
// parsed late; a value that fails to parse degrades to "no data" rather than
// failing the whole payload.

// DeltaEnvelope is the common success/result wrapper on v2 responses.
type DeltaEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *DeltaAPIError  `json:"error,omitempty"`
}

// DeltaAPIError carries the error object Delta returns on success=false.
type DeltaAPIError struct {
	Code    string `json:"code"`
	Context any    `json:"context,omitempty"`
}

// DeltaProduct is one catalog entry from GET /v2/products.
type DeltaProduct struct {
	ID              int64            `json:"id"`
	Symbol          string           `json:"symbol"`
	Description     string           `json:"description"`
	ContractType    string           `json:"contract_type"`
	State           string           `json:"state"`
	StrikePrice     json.Number      `json:"strike_price"`
	TickSize        json.Number      `json:"tick_size"`
	SettlementTime  string           `json:"settlement_time"`
	LaunchTime      string           `json:"launch_time,omitempty"`
	UnderlyingAsset *DeltaAssetRef   `json:"underlying_asset,omitempty"`
	QuotingAsset    *DeltaAssetRef   `json:"quoting_asset,omitempty"`
	SettlingAsset   *DeltaAssetRef   `json:"settling_asset,omitempty"`
	Spec            *DeltaProductRef `json:"spot_index,omitempty"`
}

// DeltaAssetRef is the nested asset descriptor on a product.
type DeltaAssetRef struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
}

// DeltaProductRef is a nested reference to another product (e.g. spot index).
type DeltaProductRef struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
}

// DeltaTicker is the result payload of GET /v2/tickers/{symbol}.
type DeltaTicker struct {
	Symbol       string      `json:"symbol"`
	ProductID    int64       `json:"product_id,omitempty"`
	ContractType string      `json:"contract_type,omitempty"`
	BestBidPrice json.Number `json:"best_bid_price"`
	BestAskPrice json.Number `json:"best_ask_price"`
	MarkPrice    json.Number `json:"mark_price"`
	SpotPrice    json.Number `json:"spot_price"`
	Timestamp    int64       `json:"timestamp,omitempty"`
}

// DeltaOrderbookLevel is one price level of the L2 book, price/size as
// numeric strings.
type DeltaOrderbookLevel struct {
	Price json.Number `json:"price"`
	Size  json.Number `json:"size"`
}

// DeltaOrderbook is the result payload of GET /v2/l2orderbook/{symbol}.
// Buy levels are sorted best-first by the exchange, as are sell levels.
type DeltaOrderbook struct {
	Symbol string                `json:"symbol"`
	Buy    []DeltaOrderbookLevel `json:"buy"`
	Sell   []DeltaOrderbookLevel `json:"sell"`
}
