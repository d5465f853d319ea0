package processor

import (
	"sort"
	"time"

	"optionflow/models"
)

// SelectNearestExpiry filters the catalog to instruments on the given
// underlying whose settlement time is strictly after now, then keeps every
// instrument sharing the minimum settlement time. Nearest expiry is a point
// in time, not a single contract, so ties are all retained. An empty catalog
// or a fully filtered-out one yields an empty slice, not an error.
func SelectNearestExpiry(catalog []models.Instrument, underlying string, now time.Time) []models.Instrument {
	var nearest time.Time
	for _, inst := range catalog {
		if inst.Underlying != underlying || inst.SettlementTime.IsZero() {
			continue
		}
		if !inst.SettlementTime.After(now) {
			continue
		}
		if nearest.IsZero() || inst.SettlementTime.Before(nearest) {
			nearest = inst.SettlementTime
		}
	}
	if nearest.IsZero() {
		return nil
	}

	var selected []models.Instrument
	for _, inst := range catalog {
		if inst.Underlying == underlying && inst.SettlementTime.Equal(nearest) {
			selected = append(selected, inst)
		}
	}
	return selected
}

// ComputeMid returns the arithmetic mean of best bid and best ask, or nil
// when either side is absent. A one-sided book has no mid; the caller renders
// that as missing data, never as zero.
func ComputeMid(q models.Quote) *float64 {
	if q.BestBid == nil || q.BestAsk == nil {
		return nil
	}
	mid := (*q.BestBid + *q.BestAsk) / 2
	return &mid
}

// BuildChain assembles the options chain for one expiry. Rows cover the
// union of strikes present among calls and puts, in ascending strike order,
// one row per strike. A strike with only one leg still gets a row with the
// other side left nil. Should the catalog carry two instruments of the same
// type at one strike, the first in iteration order wins. Missing or
// unresolved quotes surface as nil prices; the function itself never fails.
func BuildChain(instruments []models.Instrument, quotes map[string]models.Quote, mode models.PricingMode) []models.ChainRow {
	calls := make(map[float64]models.Instrument)
	puts := make(map[float64]models.Instrument)
	var strikes []float64

	seen := func(strike float64) bool {
		_, c := calls[strike]
		_, p := puts[strike]
		return c || p
	}

	for _, inst := range instruments {
		switch inst.OptionType {
		case models.OptionTypeCall:
			if _, dup := calls[inst.Strike]; dup {
				continue
			}
			if !seen(inst.Strike) {
				strikes = append(strikes, inst.Strike)
			}
			calls[inst.Strike] = inst
		case models.OptionTypePut:
			if _, dup := puts[inst.Strike]; dup {
				continue
			}
			if !seen(inst.Strike) {
				strikes = append(strikes, inst.Strike)
			}
			puts[inst.Strike] = inst
		}
	}

	sort.Float64s(strikes)

	rows := make([]models.ChainRow, 0, len(strikes))
	for _, strike := range strikes {
		row := models.ChainRow{Strike: strike}
		if call, ok := calls[strike]; ok {
			row.CallSymbol = call.Symbol
			if q, ok := quotes[call.Symbol]; ok {
				row.CallBid = q.BestBid
				row.CallAsk = q.BestAsk
				row.CallPrice = rowPrice(q, mode)
			}
		}
		if put, ok := puts[strike]; ok {
			row.PutSymbol = put.Symbol
			if q, ok := quotes[put.Symbol]; ok {
				row.PutBid = q.BestBid
				row.PutAsk = q.BestAsk
				row.PutPrice = rowPrice(q, mode)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func rowPrice(q models.Quote, mode models.PricingMode) *float64 {
	switch mode {
	case models.PricingModeMark:
		return q.MarkPrice
	default:
		return ComputeMid(q)
	}
}
