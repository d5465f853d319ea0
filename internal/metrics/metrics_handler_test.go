package metrics

import (
	"testing"

	"optionflow/logger"
)

func TestRegisterAndDispatch(t *testing.T) {
	var got []Metric
	id := RegisterMetricHandler(func(m Metric) { got = append(got, m) })
	if id == 0 {
		t.Fatal("expected non-zero handler id")
	}
	defer UnregisterMetricHandler(id)

	EmitMetric(logger.GetLogger(), "test", "chain_builds", 1, "counter", logger.Fields{"underlying": "BTC"})
	if len(got) != 1 {
		t.Fatalf("expected one dispatched metric, got %d", len(got))
	}
	m := got[0]
	if m.Name != "chain_builds" || m.Component != "test" || m.Type != "counter" {
		t.Fatalf("unexpected metric: %+v", m)
	}
	if m.Fields["underlying"] != "BTC" {
		t.Fatalf("fields not carried: %+v", m.Fields)
	}
}

func TestEmitMetricWithoutName(t *testing.T) {
	var calls int
	id := RegisterMetricHandler(func(Metric) { calls++ })
	defer UnregisterMetricHandler(id)

	EmitMetric(nil, "test", "", 1, "", nil)
	if calls != 0 {
		t.Fatalf("nameless metric must not dispatch, got %d calls", calls)
	}
}

func TestRegisterNilHandler(t *testing.T) {
	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("nil handler should return zero id, got %d", id)
	}
	// Unregistering the zero id is a no-op.
	UnregisterMetricHandler(0)
}

func TestPrometheusCountersNilSafe(t *testing.T) {
	// Counters are nil until Init; increments must not panic.
	IncrementCatalogSuccess("BTC")
	IncrementCatalogError("BTC")
	IncrementQuoteSuccess("BTC")
	IncrementQuoteError("BTC")
	IncrementChainBuild("BTC")
	IncrementDroppedInstruments("BTC", 2)
}
