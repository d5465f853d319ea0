package symbols

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"optionflow/models"
)

// Delta settles daily options at 12:00 UTC. The time of day is not encoded in
// the symbol, so parsed expiries carry this settlement hour.
const settlementHourUTC = 12

var monthCodes = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Option holds the contract attributes encoded in an option symbol.
type Option struct {
	Underlying string
	Type       models.OptionType
	Strike     float64
	Expiry     time.Time
}

// ParseOption decodes an option symbol in either the Delta native grammar
// (C-BTC-128400-290825, type-asset-strike-DDMMYY) or the Deribit style
// grammar (BTC-29AUG25-128400-C). Symbols that match neither grammar, or
// whose strike/expiry fields do not parse, return an error; callers drop the
// instrument and keep going.
func ParseOption(symbol string) (Option, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(symbol)), "-")
	if len(parts) != 4 {
		return Option{}, fmt.Errorf("symbol %q: expected 4 dash-separated fields, got %d", symbol, len(parts))
	}

	if t, ok := optionType(parts[0]); ok {
		return parseDeltaGrammar(symbol, t, parts[1], parts[2], parts[3])
	}
	if t, ok := optionType(parts[3]); ok {
		return parseDeribitGrammar(symbol, t, parts[0], parts[1], parts[2])
	}
	return Option{}, fmt.Errorf("symbol %q: no option type marker in first or last field", symbol)
}

func optionType(field string) (models.OptionType, bool) {
	switch field {
	case "C", "CALL":
		return models.OptionTypeCall, true
	case "P", "PUT":
		return models.OptionTypePut, true
	}
	return "", false
}

func parseDeltaGrammar(symbol string, t models.OptionType, asset, strikeField, dateField string) (Option, error) {
	strike, err := strconv.ParseFloat(strikeField, 64)
	if err != nil {
		return Option{}, fmt.Errorf("symbol %q: strike %q: %w", symbol, strikeField, err)
	}
	expiry, err := parseCompactDate(dateField)
	if err != nil {
		return Option{}, fmt.Errorf("symbol %q: %w", symbol, err)
	}
	return Option{Underlying: asset, Type: t, Strike: strike, Expiry: expiry}, nil
}

func parseDeribitGrammar(symbol string, t models.OptionType, asset, dateField, strikeField string) (Option, error) {
	strike, err := strconv.ParseFloat(strikeField, 64)
	if err != nil {
		return Option{}, fmt.Errorf("symbol %q: strike %q: %w", symbol, strikeField, err)
	}
	expiry, err := parseNamedMonthDate(dateField)
	if err != nil {
		return Option{}, fmt.Errorf("symbol %q: %w", symbol, err)
	}
	return Option{Underlying: asset, Type: t, Strike: strike, Expiry: expiry}, nil
}

// parseCompactDate decodes DDMMYY, e.g. 290825 -> 2025-08-29.
func parseCompactDate(field string) (time.Time, error) {
	if len(field) != 6 {
		return time.Time{}, fmt.Errorf("expiry %q: want DDMMYY", field)
	}
	day, err1 := strconv.Atoi(field[0:2])
	month, err2 := strconv.Atoi(field[2:4])
	year, err3 := strconv.Atoi(field[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("expiry %q: non-numeric fields", field)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("expiry %q: out of range", field)
	}
	return time.Date(2000+year, time.Month(month), day, settlementHourUTC, 0, 0, 0, time.UTC), nil
}

// parseNamedMonthDate decodes D[D]MONYY, e.g. 29AUG25 or 5SEP25.
func parseNamedMonthDate(field string) (time.Time, error) {
	if len(field) < 6 || len(field) > 7 {
		return time.Time{}, fmt.Errorf("expiry %q: want DMONYY or DDMONYY", field)
	}
	dayDigits := len(field) - 5
	day, err := strconv.Atoi(field[:dayDigits])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("expiry %q: bad day", field)
	}
	month, ok := monthCodes[field[dayDigits:dayDigits+3]]
	if !ok {
		return time.Time{}, fmt.Errorf("expiry %q: unknown month code", field)
	}
	year, err := strconv.Atoi(field[dayDigits+3:])
	if err != nil {
		return time.Time{}, fmt.Errorf("expiry %q: bad year", field)
	}
	return time.Date(2000+year, month, day, settlementHourUTC, 0, 0, 0, time.UTC), nil
}
