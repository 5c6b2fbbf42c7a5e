package tvl

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// StableAsset is a BDStable registered on the BDX token.
type StableAsset struct {
	Address common.Address
}

// CollateralPool holds one collateral token backing a StableAsset.
type CollateralPool struct {
	Address    common.Address
	Collateral common.Address
}

// StableAssets enumerates the BDStables registered on the chain's BDX token.
func (a *Adapter) StableAssets(ctx context.Context, chain string, block *big.Int) ([]StableAsset, error) {
	cfg, backend, err := a.lookup(chain)
	if err != nil {
		return nil, err
	}

	n, err := backend.Reader.CallUint(ctx, cfg.BDXTokenAddress, "getBdStablesLength", block)
	if err != nil {
		return nil, fmt.Errorf("stable assets: %w", err)
	}
	total, err := count(n, "stable asset count")
	if err != nil {
		return nil, err
	}

	assets := make([]StableAsset, 0, total)
	for i := uint64(0); i < total; i++ {
		addr, err := backend.Reader.CallAddress(ctx, cfg.BDXTokenAddress, "getBDStable", block, new(big.Int).SetUint64(i))
		if err != nil {
			return nil, fmt.Errorf("stable asset %d: %w", i, err)
		}
		assets = append(assets, StableAsset{Address: addr})
	}

	a.logger.Debug().
		Str("chain", cfg.Name).
		Int("count", len(assets)).
		Msg("Enumerated stable assets")
	return assets, nil
}

// CollateralPools enumerates the collateral pools of a StableAsset.
func (a *Adapter) CollateralPools(ctx context.Context, chain string, block *big.Int, asset StableAsset) ([]CollateralPool, error) {
	_, backend, err := a.lookup(chain)
	if err != nil {
		return nil, err
	}

	n, err := backend.Reader.CallUint(ctx, asset.Address, "getBdStablesPoolsLength", block)
	if err != nil {
		return nil, fmt.Errorf("pools of %s: %w", asset.Address.Hex(), err)
	}
	total, err := count(n, "pool count")
	if err != nil {
		return nil, err
	}

	pools := make([]CollateralPool, 0, total)
	for i := uint64(0); i < total; i++ {
		addr, err := backend.Reader.CallAddress(ctx, asset.Address, "bdstable_pools_array", block, new(big.Int).SetUint64(i))
		if err != nil {
			return nil, fmt.Errorf("pool %d of %s: %w", i, asset.Address.Hex(), err)
		}
		pools = append(pools, CollateralPool{Address: addr})
	}

	for i := range pools {
		collateral, err := backend.Reader.CallAddress(ctx, pools[i].Address, "getBDStablePoolCollateral", block)
		if err != nil {
			return nil, fmt.Errorf("collateral of pool %s: %w", pools[i].Address.Hex(), err)
		}
		pools[i].Collateral = collateral
	}
	return pools, nil
}

// CollateralBalances returns the collateral held by every pool of asset plus
// the BDX held by the asset itself.
func (a *Adapter) CollateralBalances(ctx context.Context, chain string, block *big.Int, asset StableAsset) (Balances, error) {
	cfg, backend, err := a.lookup(chain)
	if err != nil {
		return nil, err
	}

	pools, err := a.CollateralPools(ctx, chain, block, asset)
	if err != nil {
		return nil, err
	}

	balances := make(Balances)
	for _, pool := range pools {
		id, err := a.mapper.PriceID(cfg.Name, pool.Collateral.Hex())
		if err != nil {
			return nil, err
		}
		amount, err := normalizedBalance(ctx, backend.Reader, pool.Collateral, pool.Address, block)
		if err != nil {
			return nil, err
		}
		balances.Add(id, amount)
	}

	bdxID, err := a.mapper.PriceID(cfg.Name, cfg.BDXTokenAddress.Hex())
	if err != nil {
		return nil, err
	}
	bdx, err := normalizedBalance(ctx, backend.Reader, cfg.BDXTokenAddress, asset.Address, block)
	if err != nil {
		return nil, err
	}
	// Add reads a missing id as zero, so a stable without BDX pools still counts its BDX.
	balances.Add(bdxID, bdx)

	a.logBalances(cfg.Name, "collateral:"+asset.Address.Hex(), balances)
	return balances, nil
}

func normalizedBalance(ctx context.Context, reader ContractReader, token, owner common.Address, block *big.Int) (decimal.Decimal, error) {
	raw, err := reader.BalanceOf(ctx, token, owner, block)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s in %s: %w", owner.Hex(), token.Hex(), err)
	}
	decimals, err := reader.Decimals(ctx, token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decimals of %s: %w", token.Hex(), err)
	}
	return Normalize(raw, decimals), nil
}
