package market

import "strings"

// symbolAliases maps common words and typos to tradable tickers.
var symbolAliases = map[string]string{
	"BONDS":       "BND",
	"BOND":        "BND",
	"FIXEDINCOME": "BND",
	"APPL":        "AAPL",
}

// CanonicalSymbol uppercases sym and resolves known aliases.
func CanonicalSymbol(sym string) string {
	s := strings.ToUpper(strings.TrimSpace(sym))
	if alias, ok := symbolAliases[s]; ok {
		return alias
	}
	return s
}
