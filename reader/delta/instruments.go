package delta

import (
	"time"

	"optionflow/internal/symbols"
	"optionflow/models"
)

// BuildInstruments converts catalog products into instruments. Structured
// product fields are authoritative; when strike, option type or underlying
// are missing, the symbol is parsed as a fallback. Products for which neither
// source yields a full contract are counted and dropped, never fatal.
func BuildInstruments(products []models.DeltaProduct) ([]models.Instrument, int) {
	instruments := make([]models.Instrument, 0, len(products))
	dropped := 0

	for _, p := range products {
		inst, ok := buildInstrument(p)
		if !ok {
			dropped++
			continue
		}
		instruments = append(instruments, inst)
	}
	return instruments, dropped
}

func buildInstrument(p models.DeltaProduct) (models.Instrument, bool) {
	inst := models.Instrument{
		Symbol:    p.Symbol,
		ProductID: p.ID,
	}

	switch p.ContractType {
	case "call_options":
		inst.OptionType = models.OptionTypeCall
	case "put_options":
		inst.OptionType = models.OptionTypePut
	}

	if p.UnderlyingAsset != nil {
		inst.Underlying = p.UnderlyingAsset.Symbol
	}

	if strike, err := p.StrikePrice.Float64(); err == nil && strike > 0 {
		inst.Strike = strike
	}

	if p.SettlementTime != "" {
		if ts, err := time.Parse(time.RFC3339, p.SettlementTime); err == nil {
			inst.SettlementTime = ts.UTC()
		}
	}

	if tick, err := p.TickSize.Float64(); err == nil {
		inst.TickSize = tick
	}

	if complete(inst) {
		return inst, true
	}

	// Structured fields incomplete; fall back to the symbol grammar.
	opt, err := symbols.ParseOption(p.Symbol)
	if err != nil {
		return models.Instrument{}, false
	}
	if inst.Underlying == "" {
		inst.Underlying = opt.Underlying
	}
	if inst.OptionType == "" {
		inst.OptionType = opt.Type
	}
	if inst.Strike == 0 {
		inst.Strike = opt.Strike
	}
	if inst.SettlementTime.IsZero() {
		inst.SettlementTime = opt.Expiry
	}

	if !complete(inst) {
		return models.Instrument{}, false
	}
	return inst, true
}

func complete(inst models.Instrument) bool {
	return inst.Underlying != "" &&
		(inst.OptionType == models.OptionTypeCall || inst.OptionType == models.OptionTypePut) &&
		inst.Strike > 0 &&
		!inst.SettlementTime.IsZero()
}
