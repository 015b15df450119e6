package billing

import "github.com/ledgergate/ledgergate/internal/usage"

// Cached input tokens bill at one tenth of the input price. Every component
// uses ceiling division so any nonzero priced usage costs at least one micro.
const cachedInputDivisor = int64(10)

// CostUSDMicros prices a token breakdown against per-million-token prices.
// Nil prices mean the corresponding side is free.
func CostUSDMicros(tokens usage.Tokens, inputUSDMicrosPerM, outputUSDMicrosPerM *int64) int64 {
	var cost int64
	if inputUSDMicrosPerM != nil && *inputUSDMicrosPerM > 0 {
		price := *inputUSDMicrosPerM
		cached := tokens.Cached
		if cached > tokens.Input {
			cached = tokens.Input
		}
		if cached < 0 {
			cached = 0
		}
		uncached := tokens.Input - cached
		if uncached > 0 {
			cost += ceilDiv(uncached*price, 1_000_000)
		}
		if cached > 0 {
			cost += ceilDiv(cached*price, 1_000_000*cachedInputDivisor)
		}
	}
	if outputUSDMicrosPerM != nil && *outputUSDMicrosPerM > 0 && tokens.Output > 0 {
		cost += ceilDiv(tokens.Output**outputUSDMicrosPerM, 1_000_000)
	}
	return cost
}

func ceilDiv(numerator, denominator int64) int64 {
	return (numerator + denominator - 1) / denominator
}
