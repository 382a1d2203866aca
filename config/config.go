package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Storage backends.
const (
	StorageLevelDB = "leveldb"
	StorageMemory  = "memory"
)

type Config struct {
	Environment string              `toml:"Environment"`
	ProgramID   string              `toml:"ProgramID"`
	DataDir     string              `toml:"DataDir"`
	Storage     string              `toml:"Storage"`
	Genesis     []GenesisAllocation `toml:"genesis"`

	Clock     Clock     `toml:"clock"`
	RPC       RPC       `toml:"rpc"`
	Faucet    Faucet    `toml:"faucet"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Environment: "dev",
		DataDir:     "./lotto-data",
		Storage:     StorageLevelDB,
		Genesis:     []GenesisAllocation{},
		Clock:       Clock{SlotDurationMs: 400},
		RPC: RPC{
			ListenAddress:         "127.0.0.1:8899",
			RateLimitPerSecond:    20,
			RateLimitBurst:        40,
			DuplicateTTLSecs:      120,
			MaxBodyBytes:          1 << 20,
			ReadHeaderTimeoutSecs: 5,
			WriteTimeoutSecs:      15,
			IdleTimeoutSecs:       60,
			TrustedProxies:        []string{},
		},
		Faucet:    Faucet{},
		Logging:   Logging{Format: "json", Level: "info"},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true, SampleRatio: 1},
		Indexer:   Indexer{QueueSize: 1024},
	}
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.Storage == "" {
		c.Storage = StorageLevelDB
	}
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
	if c.Genesis == nil {
		c.Genesis = []GenesisAllocation{}
	}
	if c.RPC.TrustedProxies == nil {
		c.RPC.TrustedProxies = []string{}
	}
}

// IsProduction reports whether the node runs with production safeguards.
func (c *Config) IsProduction() bool {
	switch c.Environment {
	case "prod", "production", "mainnet":
		return true
	}
	return false
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
