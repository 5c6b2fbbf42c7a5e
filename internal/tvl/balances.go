package tvl

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"
)

// Balances maps price-feed identifiers to token amounts normalized by decimals.
type Balances map[string]decimal.Decimal

// Get returns the amount held under id, or zero.
func (b Balances) Get(id string) decimal.Decimal {
	if v, ok := b[id]; ok {
		return v
	}
	return decimal.Zero
}

// Add accumulates amount under id.
func (b Balances) Add(id string, amount decimal.Decimal) {
	b[id] = b.Get(id).Add(amount)
}

// IDs returns the identifiers in sorted order.
func (b Balances) IDs() []string {
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Floats converts the amounts for consumers that expect plain numbers.
func (b Balances) Floats() map[string]float64 {
	out := make(map[string]float64, len(b))
	for id, v := range b {
		out[id], _ = v.Float64()
	}
	return out
}

// SumBalances merges maps by adding amounts per identifier. A missing
// identifier counts as zero; the inputs are not modified.
func SumBalances(maps ...Balances) Balances {
	out := make(Balances)
	for _, m := range maps {
		for id, amount := range m {
			out.Add(id, amount)
		}
	}
	return out
}

// Normalize converts a raw token amount into whole units.
func Normalize(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
