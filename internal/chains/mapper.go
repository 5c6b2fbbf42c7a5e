package chains

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Mapper resolves token addresses to price-feed identifiers.
type Mapper struct {
	registry *Registry
}

func NewMapper(registry *Registry) *Mapper {
	return &Mapper{registry: registry}
}

// PriceID returns the price-feed identifier for a token on a chain. Overrides
// win; otherwise the checksummed address is used, prefixed by the chain's
// namespace unless the chain is the base chain.
func (m *Mapper) PriceID(chain, address string) (string, error) {
	cfg, err := m.registry.Chain(chain)
	if err != nil {
		return "", err
	}

	if id, ok := cfg.override(address); ok {
		return id, nil
	}

	checksummed, err := cfg.Checksum(address)
	if err != nil {
		return "", err
	}
	if cfg.Name == BaseChain {
		return checksummed, nil
	}
	return cfg.Prefix + ":" + checksummed, nil
}

// Checksum formats an address with EIP-55, or EIP-1191 when the chain sets
// ChecksumChainID.
func (c ChainConfig) Checksum(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)
	if c.ChecksumChainID == 0 {
		return addr.Hex(), nil
	}
	return checksumWithChainID(addr, c.ChecksumChainID), nil
}

func checksumWithChainID(addr common.Address, chainID int64) string {
	lower := strings.ToLower(addr.Hex()[2:])
	hash := crypto.Keccak256([]byte(fmt.Sprintf("%d0x%s", chainID, lower)))

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' {
			continue
		}
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}
