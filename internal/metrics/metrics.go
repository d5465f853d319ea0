// Prometheus counters for the fetch/build pipeline, exposed on a dedicated
// listener via the standard promhttp handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once           sync.Once
	catalogSuccess *prometheus.CounterVec
	catalogErrors  *prometheus.CounterVec
	quoteSuccess   *prometheus.CounterVec
	quoteErrors    *prometheus.CounterVec
	chainBuilds    *prometheus.CounterVec
	droppedInstrs  *prometheus.CounterVec
)

// Init registers the pipeline counters and serves them on addr. Safe to call
// more than once; only the first call has any effect.
func Init(addr string) {
	once.Do(func() {
		catalogSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionflow_catalog_fetch_success_total",
				Help: "Number of successful product catalog fetches",
			},
			[]string{"underlying"},
		)
		catalogErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionflow_catalog_fetch_errors_total",
				Help: "Number of failed product catalog fetches",
			},
			[]string{"underlying"},
		)
		quoteSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionflow_quote_fetch_success_total",
				Help: "Number of successful per-symbol quote fetches",
			},
			[]string{"underlying"},
		)
		quoteErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionflow_quote_fetch_errors_total",
				Help: "Number of failed or timed out quote fetches",
			},
			[]string{"underlying"},
		)
		chainBuilds = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionflow_chain_builds_total",
				Help: "Number of chain snapshots assembled",
			},
			[]string{"underlying"},
		)
		droppedInstrs = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionflow_instruments_dropped_total",
				Help: "Number of catalog entries dropped as malformed",
			},
			[]string{"underlying"},
		)

		_ = prometheus.Register(catalogSuccess)
		_ = prometheus.Register(catalogErrors)
		_ = prometheus.Register(quoteSuccess)
		_ = prometheus.Register(quoteErrors)
		_ = prometheus.Register(chainBuilds)
		_ = prometheus.Register(droppedInstrs)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if addr == "" {
			addr = "0.0.0.0:2112"
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

func IncrementCatalogSuccess(underlying string) {
	if catalogSuccess != nil {
		catalogSuccess.WithLabelValues(underlying).Inc()
	}
}

func IncrementCatalogError(underlying string) {
	if catalogErrors != nil {
		catalogErrors.WithLabelValues(underlying).Inc()
	}
}

func IncrementQuoteSuccess(underlying string) {
	if quoteSuccess != nil {
		quoteSuccess.WithLabelValues(underlying).Inc()
	}
}

func IncrementQuoteError(underlying string) {
	if quoteErrors != nil {
		quoteErrors.WithLabelValues(underlying).Inc()
	}
}

func IncrementChainBuild(underlying string) {
	if chainBuilds != nil {
		chainBuilds.WithLabelValues(underlying).Inc()
	}
}

func IncrementDroppedInstruments(underlying string, n int) {
	if droppedInstrs != nil && n > 0 {
		droppedInstrs.WithLabelValues(underlying).Add(float64(n))
	}
}
