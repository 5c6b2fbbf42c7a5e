package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/kazazor/DefiLlama-Adapters/internal/metrics"
)

const defaultTimeout = 30 * time.Second

var errNoHeadSource = errors.New("client has no head source")

// Client issues read-only contract calls against one chain.
type Client struct {
	caller   bind.ContractCaller
	eth      *ethclient.Client
	chain    string
	endpoint string
	timeout  time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	// decimals never change for a deployed token
	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

// NewClient dials an EVM JSON-RPC endpoint.
func NewClient(endpoint string, chainID int64, chain string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rpcClient, err := rpc.DialHTTPWithClient(endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	client := ethclient.NewClient(rpcClient)

	logger = logger.With().Str("component", "rpc").Str("chain", chain).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	networkID, err := client.ChainID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to verify chain ID, continuing anyway")
	} else if chainID != 0 && networkID.Int64() != chainID {
		logger.Warn().
			Int64("expected", chainID).
			Int64("got", networkID.Int64()).
			Msg("Chain ID mismatch, continuing anyway")
	}

	logger.Info().
		Str("endpoint", endpoint).
		Int64("chain_id", chainID).
		Msg("Connected to RPC endpoint")

	c := newClient(client, chain, timeout, logger)
	c.eth = client
	c.endpoint = endpoint
	return c, nil
}

// NewCallerClient wraps any contract caller, such as a simulated backend.
func NewCallerClient(caller bind.ContractCaller, chain string, logger zerolog.Logger) *Client {
	return newClient(caller, chain, defaultTimeout, logger.With().Str("component", "rpc").Str("chain", chain).Logger())
}

func newClient(caller bind.ContractCaller, chain string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		caller:   caller,
		chain:    chain,
		timeout:  timeout,
		logger:   logger,
		decimals: make(map[common.Address]uint8),
	}
}

// SetMetrics enables call accounting.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
		c.logger.Info().Msg("RPC client connection closed")
	}
}

func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// Call invokes a view method at the given block (nil = latest) and returns
// the unpacked outputs.
func (c *Client) Call(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contract := bind.NewBoundContract(target, ContractsABI, c.caller, nil, nil)

	var out []interface{}
	err := contract.Call(&bind.CallOpts{Context: ctx, BlockNumber: block}, &out, method, args...)
	c.metrics.RPCCall(c.chain, method, err)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, target.Hex(), err)
	}

	c.logger.Trace().
		Str("target", target.Hex()).
		Str("method", method).
		Interface("args", args).
		Msg("Contract call")

	return out, nil
}

// CallUint calls a method returning a single unsigned integer.
func (c *Client) CallUint(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) (*big.Int, error) {
	out, err := c.Call(ctx, target, method, block, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("call %s on %s: expected 1 output, got %d", method, target.Hex(), len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("call %s on %s: unexpected output type %T", method, target.Hex(), out[0])
	}
	return v, nil
}

// CallAddress calls a method returning a single address.
func (c *Client) CallAddress(ctx context.Context, target common.Address, method string, block *big.Int, args ...interface{}) (common.Address, error) {
	out, err := c.Call(ctx, target, method, block, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("call %s on %s: expected 1 output, got %d", method, target.Hex(), len(out))
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("call %s on %s: unexpected output type %T", method, target.Hex(), out[0])
	}
	return v, nil
}

// BalanceOf returns the raw ERC20 balance of owner at block.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	return c.CallUint(ctx, token, "balanceOf", block, owner)
}

// Decimals returns the token's decimals, queried at the latest block.
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	c.mu.RLock()
	d, ok := c.decimals[token]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	out, err := c.Call(ctx, token, "decimals", nil)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("call decimals on %s: expected 1 output, got %d", token.Hex(), len(out))
	}
	d, ok = out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("call decimals on %s: unexpected output type %T", token.Hex(), out[0])
	}

	c.mu.Lock()
	c.decimals[token] = d
	c.mu.Unlock()
	return d, nil
}

// LatestBlockNumber returns the chain head.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if c.eth == nil {
		return 0, errNoHeadSource
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return n, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
