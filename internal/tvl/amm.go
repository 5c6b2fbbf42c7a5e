package tvl

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// AMMBalances sums the reserves of every pair created by the chain's factory.
func (a *Adapter) AMMBalances(ctx context.Context, chain string, block *big.Int) (Balances, error) {
	cfg, backend, err := a.lookup(chain)
	if err != nil {
		return nil, err
	}

	raw, err := backend.Reserves.Reserves(ctx, cfg.FactoryAddress, block, cfg.PairOffset)
	if err != nil {
		return nil, fmt.Errorf("amm reserves: %w", err)
	}

	tokens := make([]common.Address, 0, len(raw))
	for token := range raw {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return bytes.Compare(tokens[i][:], tokens[j][:]) < 0
	})

	balances := make(Balances, len(tokens))
	for _, token := range tokens {
		decimals, err := backend.Reader.Decimals(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("amm token %s: %w", token.Hex(), err)
		}
		id, err := a.mapper.PriceID(cfg.Name, token.Hex())
		if err != nil {
			return nil, err
		}
		balances.Add(id, Normalize(raw[token], decimals))
	}

	a.logBalances(cfg.Name, "amm", balances)
	return balances, nil
}
