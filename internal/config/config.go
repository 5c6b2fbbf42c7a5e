package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	RPC       RPCConfig                `mapstructure:"rpc"`
	Scheduler SchedulerConfig          `mapstructure:"scheduler"`
	Realtime  RealtimeConfig           `mapstructure:"realtime"`
	Logging   LoggingConfig            `mapstructure:"logging"`
	Chains    map[string]ChainSettings `mapstructure:"chains"`
	// ChainsFile optionally points at a standalone YAML chain registry.
	ChainsFile string `mapstructure:"chains_file"`
}

type ServerConfig struct {
	Port          int `mapstructure:"port"`
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

type RPCConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type RealtimeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	APIURL        string `mapstructure:"api_url"`
	APIKey        string `mapstructure:"api_key"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ChainSettings is the user-facing shape of one chain registry entry. Empty
// fields fall back to the built-in defaults for a known chain.
type ChainSettings struct {
	ChainID         int64             `mapstructure:"chain_id" yaml:"chain_id"`
	RPCEndpoint     string            `mapstructure:"rpc_endpoint" yaml:"rpc_endpoint"`
	Prefix          string            `mapstructure:"prefix" yaml:"prefix"`
	FactoryAddress  string            `mapstructure:"factory_address" yaml:"factory_address"`
	BDXTokenAddress string            `mapstructure:"bdx_token_address" yaml:"bdx_token_address"`
	Overrides       map[string]string `mapstructure:"overrides" yaml:"overrides"`
	ChecksumChainID int64             `mapstructure:"checksum_chain_id" yaml:"checksum_chain_id"`
	PairOffset      uint64            `mapstructure:"pair_offset" yaml:"pair_offset"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TVL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return unmarshal(v)
}

// Default returns the configuration used when no config file is given.
func Default() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TVL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return unmarshal(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent", 4)
	v.SetDefault("rpc.timeout", "30s")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("realtime.enabled", false)
	v.SetDefault("realtime.channel_prefix", "tvl")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}
