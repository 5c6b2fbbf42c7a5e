package tvl

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      *big.Int
		decimals uint8
		want     string
	}{
		{"six decimals", big.NewInt(1_500_000), 6, "1.5"},
		{"eighteen decimals", new(big.Int).Mul(big.NewInt(25), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)), 18, "0.25"},
		{"zero decimals", big.NewInt(42), 0, "42"},
		{"zero", big.NewInt(0), 18, "0"},
		{"nil", nil, 18, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertAmount(t, tt.want, Normalize(tt.raw, tt.decimals))
		})
	}
}

func TestBalancesGetDefaultsToZero(t *testing.T) {
	b := Balances{}
	assertAmount(t, "0", b.Get("missing"))

	b.Add("missing", dec("0.25"))
	assertAmount(t, "0.25", b.Get("missing"))

	b.Add("missing", dec("1"))
	assertAmount(t, "1.25", b.Get("missing"))
}

func TestSumBalances(t *testing.T) {
	a := Balances{"rootstock": dec("1.1"), "ethereum": dec("2")}
	b := Balances{"rootstock": dec("0.2"), "rsk:0xBDX": dec("5")}
	c := Balances{"ethereum": dec("0.3")}

	t.Run("sums per identifier", func(t *testing.T) {
		got := SumBalances(a, b, c)
		assert.Len(t, got, 3)
		assertAmount(t, "1.3", got["rootstock"])
		assertAmount(t, "2.3", got["ethereum"])
		assertAmount(t, "5", got["rsk:0xBDX"])
	})

	t.Run("order independent", func(t *testing.T) {
		x := SumBalances(a, b, c)
		y := SumBalances(c, a, b)
		z := SumBalances(b, c, a)
		for _, id := range x.IDs() {
			assertAmount(t, x[id].String(), y[id], id)
			assertAmount(t, x[id].String(), z[id], id)
		}
		assert.Equal(t, x.IDs(), y.IDs())
		assert.Equal(t, x.IDs(), z.IDs())
	})

	t.Run("inputs untouched", func(t *testing.T) {
		_ = SumBalances(a, b)
		assertAmount(t, "1.1", a["rootstock"])
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, SumBalances())
		assert.Empty(t, SumBalances(Balances{}, nil))
	})
}

func TestBalancesFloats(t *testing.T) {
	f := Balances{"ethereum": dec("0.5")}.Floats()
	assert.InDelta(t, 0.5, f["ethereum"], 1e-12)
}
