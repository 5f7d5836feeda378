package domain

import "fmt"

// SupportedPair is the single tradable market this tier of the exchange
// accepts; cross-pair routing is a Non-goal.
const SupportedPair = "btc_jpy"

const (
	BaseCurrency  = "BTC"
	QuoteCurrency = "JPY"
)

// CurrenciesFor returns (base, quote) for a pair. Only SupportedPair is
// recognized today; the function still takes a pair argument rather
// than being a constant pair so a second market is a data change, not
// a structural one.
func CurrenciesFor(pair string) (base, quote string, err error) {
	if pair != SupportedPair {
		return "", "", fmt.Errorf("%w: unsupported pair %q", ErrMalformedMessage, pair)
	}
	return BaseCurrency, QuoteCurrency, nil
}
