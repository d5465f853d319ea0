package delta

import (
	"encoding/json"
	"time"

	"optionflow/models"
)

// tickerToQuote extracts best bid, best ask, mark and spot from a ticker
// payload. The exchange encodes prices as JSON strings; any field that is
// absent or unparsable is left nil so the chain renders it as undefined
// rather than zero.
func tickerToQuote(symbol string, t models.DeltaTicker, at time.Time) models.Quote {
	return models.Quote{
		Symbol:    symbol,
		BestBid:   parsePrice(t.BestBidPrice),
		BestAsk:   parsePrice(t.BestAskPrice),
		MarkPrice: parsePrice(t.MarkPrice),
		SpotPrice: parsePrice(t.SpotPrice),
		Timestamp: at,
	}
}

// orderbookToQuote derives a quote from the top of book. Buy levels are bids
// sorted best-first, sell levels are asks sorted best-first.
func orderbookToQuote(symbol string, ob models.DeltaOrderbook, at time.Time) models.Quote {
	q := models.Quote{Symbol: symbol, Timestamp: at}
	if len(ob.Buy) > 0 {
		q.BestBid = parsePrice(ob.Buy[0].Price)
	}
	if len(ob.Sell) > 0 {
		q.BestAsk = parsePrice(ob.Sell[0].Price)
	}
	return q
}

func parsePrice(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	v, err := n.Float64()
	if err != nil {
		return nil
	}
	return &v
}
