package rpc

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ERC20ABI contains the read-only ERC20 methods used for balances.
const ERC20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// BlindexABI covers the BDX token registry, BDStable and collateral pool getters.
const BlindexABI = `[
	{"inputs":[],"name":"getBdStablesLength","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"index","type":"uint256"}],"name":"getBDStable","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getBdStablesPoolsLength","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"","type":"uint256"}],"name":"bdstable_pools_array","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getBDStablePoolCollateral","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const UniswapV2FactoryABI = `[
	{"constant":true,"inputs":[],"name":"allPairsLength","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"","type":"uint256"}],"name":"allPairs","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const UniswapV2PairABI = `[
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"_reserve0","type":"uint112"},{"name":"_reserve1","type":"uint112"},{"name":"_blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}
]`

// ContractsABI merges every ABI above. Method names do not collide, so a
// single ABI can pack and unpack calls to any of the protocol's contracts.
var ContractsABI = mustMergeABIs(ERC20ABI, BlindexABI, UniswapV2FactoryABI, UniswapV2PairABI)

func mustMergeABIs(defs ...string) abi.ABI {
	merged := abi.ABI{Methods: make(map[string]abi.Method)}
	for _, def := range defs {
		parsed, err := abi.JSON(strings.NewReader(def))
		if err != nil {
			panic(fmt.Sprintf("failed to parse ABI: %v", err))
		}
		for name, method := range parsed.Methods {
			if _, exists := merged.Methods[name]; exists {
				panic(fmt.Sprintf("duplicate ABI method %s", name))
			}
			merged.Methods[name] = method
		}
	}
	return merged
}
