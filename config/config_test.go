package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "lottod.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	if cfg.Storage != StorageLevelDB || cfg.Clock.SlotDurationMs != 400 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Faucet.MaxAirdropLamports != 0 {
		t.Fatalf("faucet should default to disabled")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RPC.ListenAddress != cfg.RPC.ListenAddress {
		t.Fatalf("listen address changed across reload: %q vs %q", reloaded.RPC.ListenAddress, cfg.RPC.ListenAddress)
	}
}

func TestLoadParsesSections(t *testing.T) {
	funded := solana.NewWallet().PublicKey()
	dir := t.TempDir()
	path := filepath.Join(dir, "lottod.toml")
	contents := `Environment = "Staging"
DataDir = "./data"
Storage = "memory"

[[genesis]]
Address = "` + funded.String() + `"
Lamports = 5000

[clock]
SlotDurationMs = 250

[rpc]
ListenAddress = "0.0.0.0:9000"
AuthToken = "secret"
RateLimitPerSecond = 5
RateLimitBurst = 10
DuplicateTTLSeconds = 30
MaxBodyBytes = 4096

[faucet]
MaxAirdropLamports = 1000

[logging]
Format = "text"
Level = "debug"

[indexer]
Driver = "sqlite"
DSN = "file:indexer.db"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("environment not normalised: %q", cfg.Environment)
	}
	if cfg.Storage != StorageMemory || cfg.Clock.SlotDurationMs != 250 {
		t.Fatalf("unexpected storage or clock: %+v", cfg)
	}
	if cfg.RPC.ListenAddress != "0.0.0.0:9000" || cfg.RPC.RateLimitBurst != 10 {
		t.Fatalf("unexpected rpc config: %+v", cfg.RPC)
	}
	if cfg.RPC.IdleTimeoutSecs != 60 {
		t.Fatalf("unset rpc fields should keep defaults, got idle=%d", cfg.RPC.IdleTimeoutSecs)
	}
	if cfg.Indexer.Driver != "sqlite" || cfg.Indexer.QueueSize != 1024 {
		t.Fatalf("unexpected indexer config: %+v", cfg.Indexer)
	}
	allocs, err := cfg.GenesisAllocations()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if allocs[funded] != 5000 {
		t.Fatalf("genesis allocation missing: %v", allocs)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lottod.toml")
	if err := os.WriteFile(path, []byte("ListenAddress = \":6001\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ListenAddress") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvRPCToken, "from-env")
	t.Setenv(EnvEnvironment, "qa")
	t.Setenv(EnvOTLPHeaders, "x-api-key=abc, tenant = lotto")
	t.Setenv(EnvOTLPInsecure, "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "lottod.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.AuthToken != "from-env" || cfg.Environment != "qa" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Telemetry.Headers["x-api-key"] != "abc" || cfg.Telemetry.Headers["tenant"] != "lotto" {
		t.Fatalf("unexpected headers: %v", cfg.Telemetry.Headers)
	}
	if cfg.Telemetry.Insecure {
		t.Fatalf("insecure override ignored")
	}
}

func TestValidate(t *testing.T) {
	dup := solana.NewWallet().PublicKey().String()
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad program id", func(c *Config) { c.ProgramID = "nope" }, "ProgramID"},
		{"unknown storage", func(c *Config) { c.Storage = "redis" }, "Storage"},
		{"slot too short", func(c *Config) { c.Clock.SlotDurationMs = 1 }, "SlotDurationMs"},
		{"burst missing", func(c *Config) { c.RPC.RateLimitBurst = 0 }, "RateLimitBurst"},
		{"faucet without auth", func(c *Config) { c.Faucet.MaxAirdropLamports = 1 }, "faucet requires"},
		{"faucet in production", func(c *Config) {
			c.Environment = "production"
			c.RPC.AuthToken = "t"
			c.Faucet.MaxAirdropLamports = 1
		}, "disabled in production"},
		{"indexer without dsn", func(c *Config) { c.Indexer.Driver = "postgres" }, "indexer.DSN"},
		{"duplicate genesis", func(c *Config) {
			c.Genesis = []GenesisAllocation{{Address: dup, Lamports: 1}, {Address: dup, Lamports: 2}}
		}, "duplicate"},
		{"empty genesis credit", func(c *Config) {
			c.Genesis = []GenesisAllocation{{Address: dup}}
		}, "must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestProgramKey(t *testing.T) {
	cfg := Default()
	key, err := cfg.ProgramKey()
	if err != nil || !key.IsZero() {
		t.Fatalf("expected zero key, got %s %v", key, err)
	}
	want := solana.NewWallet().PublicKey()
	cfg.ProgramID = want.String()
	key, err = cfg.ProgramKey()
	if err != nil || !key.Equals(want) {
		t.Fatalf("expected %s, got %s %v", want, key, err)
	}
}
