// Package price attaches USD valuations to raw token amounts. Prices come
// from an external feed as 6-decimal USD integers keyed by token address;
// a missing price values to zero rather than failing, trading strict
// correctness for availability.
package price

import (
	"github.com/debtline/line-engine/internal/amount"
	"github.com/debtline/line-engine/internal/model"
)

// Map holds 6-decimal USD prices keyed by checksummed token address.
type Map map[string]amount.Amount

// ParseMap builds a price Map from a raw feed payload. Keys are
// checksummed; malformed values degrade to zero.
func ParseMap(raw map[string]string) Map {
	m := make(Map, len(raw))
	for addr, v := range raw {
		m[model.Checksum(addr)] = amount.ParseOrZero(v, amount.PriceDecimals)
	}
	return m
}

// PriceOf returns the 6-decimal USD price for a token, or zero if the
// feed has no entry for it.
func (m Map) PriceOf(addr string) amount.Amount {
	if p, ok := m[model.Checksum(addr)]; ok {
		return p
	}
	return amount.Zero(amount.PriceDecimals)
}

// ValueOf converts a raw token amount to its 24-decimal USD valuation:
// the amount rescaled to 18 decimals, multiplied by the token's 6-decimal
// price. Missing prices yield a zero valuation.
func (m Map) ValueOf(addr string, raw amount.Amount) amount.Amount {
	return raw.Rescale(amount.WadDecimals).MulPrice(m.PriceOf(addr))
}

// Merge returns a copy of m with entries from other overlaid per key.
func (m Map) Merge(other Map) Map {
	out := make(Map, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
