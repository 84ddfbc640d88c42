package model

var symbolToCode = map[string]string{
	"£": "GBP",
	"€": "EUR",
	"$": "USD",
}

// CurrencyFromSymbol maps a currency symbol to its ISO 4217 code. Returns an
// empty string for unrecognized symbols.
func CurrencyFromSymbol(symbol string) string {
	return symbolToCode[symbol]
}

// ValidCurrency reports whether code is a recognized 3-letter currency code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
