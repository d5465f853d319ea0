package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestChainSnapshotJSON(t *testing.T) {
	snap := ChainSnapshot{
		Underlying:      "BTC",
		Expiry:          time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC),
		PricingMode:     PricingModeMid,
		InstrumentCount: 2,
		Rows: []ChainRow{
			{
				Strike:     100000,
				CallSymbol: "C-BTC-100000-290825",
				CallPrice:  Float64Ptr(11),
				PutSymbol:  "P-BTC-100000-290825",
			},
		},
		FetchedAt: time.Unix(0, 0).UTC(),
		BuiltAt:   time.Unix(1, 0).UTC(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ChainSnapshot
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Underlying != snap.Underlying || !out.Expiry.Equal(snap.Expiry) || len(out.Rows) != 1 {
		t.Fatalf("round trip mismatch: %+v != %+v", out, snap)
	}
	row := out.Rows[0]
	if row.CallPrice == nil || *row.CallPrice != 11 {
		t.Fatalf("call price lost in round trip: %+v", row)
	}
	if row.PutPrice != nil {
		t.Fatalf("undefined put price must stay nil, got %v", *row.PutPrice)
	}
}

func TestChainSnapshotEmpty(t *testing.T) {
	if !(ChainSnapshot{}).Empty() {
		t.Fatal("snapshot without rows should be empty")
	}
	snap := ChainSnapshot{Rows: []ChainRow{{Strike: 1}}}
	if snap.Empty() {
		t.Fatal("snapshot with rows should not be empty")
	}
}

func TestDeltaTickerDecode(t *testing.T) {
	payload := `{"success":true,"result":{"symbol":"P-BTC-116400-160825","best_bid_price":"10.5","best_ask_price":"12.5","mark_price":"11.2","spot_price":"116000"}}`
	var env DeltaEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if !env.Success {
		t.Fatal("expected success envelope")
	}
	var ticker DeltaTicker
	if err := json.Unmarshal(env.Result, &ticker); err != nil {
		t.Fatalf("unmarshal ticker: %v", err)
	}
	if ticker.Symbol != "P-BTC-116400-160825" {
		t.Fatalf("unexpected symbol %q", ticker.Symbol)
	}
	if bid, err := ticker.BestBidPrice.Float64(); err != nil || bid != 10.5 {
		t.Fatalf("best bid: %v %v", bid, err)
	}
}

func TestDeltaTickerDecodeNullSides(t *testing.T) {
	payload := `{"symbol":"C-BTC-100000-290825","best_bid_price":null,"best_ask_price":"12","mark_price":"11"}`
	var ticker DeltaTicker
	if err := json.Unmarshal([]byte(payload), &ticker); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ticker.BestBidPrice.String() != "" {
		t.Fatalf("null bid should decode empty, got %q", ticker.BestBidPrice.String())
	}
}
