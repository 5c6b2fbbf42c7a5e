package chains

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kazazor/DefiLlama-Adapters/internal/config"
)

type registryFile struct {
	Chains map[string]config.ChainSettings `yaml:"chains"`
}

// LoadFile reads chain settings from a standalone YAML registry file.
func LoadFile(path string) (map[string]config.ChainSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain registry %s: %w", path, err)
	}
	return ParseSettings(data)
}

func ParseSettings(data []byte) (map[string]config.ChainSettings, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chain registry: %w", err)
	}
	if file.Chains == nil {
		file.Chains = make(map[string]config.ChainSettings)
	}
	return file.Chains, nil
}

// Load builds the registry from the config, layering the optional registry
// file between the defaults and the inline chain settings.
func Load(cfg *config.Config) (*Registry, error) {
	settings := make(map[string]config.ChainSettings)
	if cfg.ChainsFile != "" {
		fromFile, err := LoadFile(cfg.ChainsFile)
		if err != nil {
			return nil, err
		}
		for name, s := range fromFile {
			settings[name] = s
		}
	}
	for name, s := range cfg.Chains {
		if prev, ok := settings[name]; ok {
			s = overlay(prev, s)
		}
		settings[name] = s
	}
	return FromSettings(settings)
}

// overlay applies the non-empty fields of top over base.
func overlay(base, top config.ChainSettings) config.ChainSettings {
	if top.ChainID != 0 {
		base.ChainID = top.ChainID
	}
	if top.RPCEndpoint != "" {
		base.RPCEndpoint = top.RPCEndpoint
	}
	if top.Prefix != "" {
		base.Prefix = top.Prefix
	}
	if top.FactoryAddress != "" {
		base.FactoryAddress = top.FactoryAddress
	}
	if top.BDXTokenAddress != "" {
		base.BDXTokenAddress = top.BDXTokenAddress
	}
	if len(top.Overrides) > 0 {
		merged := make(map[string]string, len(base.Overrides)+len(top.Overrides))
		for k, v := range base.Overrides {
			merged[strings.ToLower(k)] = v
		}
		for k, v := range top.Overrides {
			merged[strings.ToLower(k)] = v
		}
		base.Overrides = merged
	}
	if top.ChecksumChainID != 0 {
		base.ChecksumChainID = top.ChecksumChainID
	}
	if top.PairOffset != 0 {
		base.PairOffset = top.PairOffset
	}
	return base
}
