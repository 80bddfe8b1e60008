package normalize

import (
	"strings"

	"github.com/shopspring/decimal"

	"teklif/internal/types"
)

// currencyMarkers are stripped off the raw text before parsing. Portals
// render prices like "1.234,56 TL" or "₺30,83".
var currencyMarkers = []string{"TL", "TRY", "₺"}

// ParsePrice converts a locale-formatted portal price into a decimal with
// two fractional digits. Turkish convention: "." groups thousands, ","
// separates decimals. Already-normalized input ("1234.56") passes through
// unchanged, so normalization is idempotent.
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	for _, marker := range currencyMarkers {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
		cleaned = strings.ReplaceAll(cleaned, strings.ToLower(marker), "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || !strings.ContainsAny(cleaned, "0123456789") {
		return decimal.Decimal{}, &types.PriceParseError{Raw: raw}
	}

	if i := strings.LastIndex(cleaned, ","); i >= 0 {
		// Locale form: drop thousands dots, comma becomes the point.
		intPart := strings.ReplaceAll(cleaned[:i], ".", "")
		fracPart := cleaned[i+1:]
		if strings.ContainsAny(fracPart, ".,") {
			return decimal.Decimal{}, &types.PriceParseError{Raw: raw}
		}
		cleaned = intPart + "." + fracPart
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, &types.PriceParseError{Raw: raw}
	}
	if value.IsNegative() {
		return decimal.Decimal{}, &types.PriceParseError{Raw: raw}
	}
	return value.Round(2), nil
}
