package chains

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kazazor/DefiLlama-Adapters/internal/config"
)

// BaseChain is the chain whose token addresses are used as price ids without a prefix.
const BaseChain = "ethereum"

var (
	ErrUnknownChain   = errors.New("unknown chain")
	ErrInvalidAddress = errors.New("invalid address")
)

// ChainConfig describes where the protocol lives on one chain.
type ChainConfig struct {
	Name        string
	ChainID     int64
	RPCEndpoint string

	// Prefix namespaces fallback price ids, e.g. "rsk:0xAbC...".
	Prefix string

	FactoryAddress  common.Address
	BDXTokenAddress common.Address

	// Overrides maps lowercase token addresses to price ids for tokens the
	// price feed does not list, usually to the asset they wrap.
	Overrides map[string]string

	// ChecksumChainID selects EIP-1191 checksums when non-zero.
	ChecksumChainID int64

	// PairOffset is the first factory pair index counted towards AMM reserves.
	PairOffset uint64
}

// Registry is an immutable set of chain configurations.
type Registry struct {
	chains map[string]ChainConfig
	names  []string
}

// DefaultChains returns the chains the protocol is deployed on.
func DefaultChains() []ChainConfig {
	return []ChainConfig{
		{
			Name:            "rsk",
			ChainID:         30,
			RPCEndpoint:     "https://public-node.rsk.co",
			Prefix:          "rsk",
			FactoryAddress:  common.HexToAddress("0x5Af7cba7CDfE30664ab6E06D8D2210915Ef73c2E"),
			BDXTokenAddress: common.HexToAddress("0x6542a10E68cEAc1Fa0641ec0D799a7492795AAC1"),
			Overrides: map[string]string{
				"0x542fda317318ebf1d3deaf76e0b632741a7e677d": "rootstock", // WRBTC
				"0x1d931bf8656d795e50ef6d639562c5bd8ac2b78f": "ethereum",  // ETHs
			},
		},
	}
}

// NewRegistry validates and freezes the given chain configurations.
func NewRegistry(configs ...ChainConfig) (*Registry, error) {
	r := &Registry{chains: make(map[string]ChainConfig, len(configs))}
	for _, cfg := range configs {
		name := strings.ToLower(strings.TrimSpace(cfg.Name))
		if name == "" {
			return nil, errors.New("chain name is required")
		}
		if _, exists := r.chains[name]; exists {
			return nil, fmt.Errorf("chain %s is registered twice", name)
		}
		if name != BaseChain && cfg.Prefix == "" {
			return nil, fmt.Errorf("chain %s: prefix is required", name)
		}
		if cfg.FactoryAddress == (common.Address{}) {
			return nil, fmt.Errorf("chain %s: factory address is required", name)
		}
		if cfg.BDXTokenAddress == (common.Address{}) {
			return nil, fmt.Errorf("chain %s: bdx token address is required", name)
		}

		overrides := make(map[string]string, len(cfg.Overrides))
		for addr, id := range cfg.Overrides {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("chain %s: override %q: %w", name, addr, ErrInvalidAddress)
			}
			overrides[strings.ToLower(addr)] = id
		}

		cfg.Name = name
		cfg.Overrides = overrides
		r.chains[name] = cfg
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// FromSettings merges configured chains over the defaults and builds a registry.
// A configured chain unknown to the defaults must carry every required field.
func FromSettings(settings map[string]config.ChainSettings) (*Registry, error) {
	merged := make(map[string]config.ChainSettings)
	for _, cfg := range DefaultChains() {
		merged[cfg.Name] = settingsOf(cfg)
	}
	for name, s := range settings {
		name = strings.ToLower(name)
		merged[name] = overlay(merged[name], s)
	}

	configs := make([]ChainConfig, 0, len(merged))
	for name, s := range merged {
		cfg, err := configOf(name, s)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return NewRegistry(configs...)
}

func settingsOf(cfg ChainConfig) config.ChainSettings {
	overrides := make(map[string]string, len(cfg.Overrides))
	for addr, id := range cfg.Overrides {
		overrides[addr] = id
	}
	return config.ChainSettings{
		ChainID:         cfg.ChainID,
		RPCEndpoint:     cfg.RPCEndpoint,
		Prefix:          cfg.Prefix,
		FactoryAddress:  cfg.FactoryAddress.Hex(),
		BDXTokenAddress: cfg.BDXTokenAddress.Hex(),
		Overrides:       overrides,
		ChecksumChainID: cfg.ChecksumChainID,
		PairOffset:      cfg.PairOffset,
	}
}

func configOf(name string, s config.ChainSettings) (ChainConfig, error) {
	factory, err := parseAddress(s.FactoryAddress)
	if err != nil {
		return ChainConfig{}, fmt.Errorf("chain %s: factory: %w", name, err)
	}
	bdxToken, err := parseAddress(s.BDXTokenAddress)
	if err != nil {
		return ChainConfig{}, fmt.Errorf("chain %s: bdx token: %w", name, err)
	}
	return ChainConfig{
		Name:            name,
		ChainID:         s.ChainID,
		RPCEndpoint:     s.RPCEndpoint,
		Prefix:          s.Prefix,
		FactoryAddress:  factory,
		BDXTokenAddress: bdxToken,
		Overrides:       s.Overrides,
		ChecksumChainID: s.ChecksumChainID,
		PairOffset:      s.PairOffset,
	}, nil
}

// parseAddress leaves an empty string as the zero address for NewRegistry to reject.
func parseAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Chain returns a copy of the named chain's configuration.
func (r *Registry) Chain(name string) (ChainConfig, error) {
	cfg, ok := r.chains[strings.ToLower(name)]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	overrides := make(map[string]string, len(cfg.Overrides))
	for addr, id := range cfg.Overrides {
		overrides[addr] = id
	}
	cfg.Overrides = overrides
	return cfg, nil
}

// Names returns the registered chain names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// override looks an address up as given, then lowercased.
func (c ChainConfig) override(address string) (string, bool) {
	if id, ok := c.Overrides[address]; ok {
		return id, true
	}
	id, ok := c.Overrides[strings.ToLower(address)]
	return id, ok
}
