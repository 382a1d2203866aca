package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	MinSlotDurationMs = int64(10)
	MaxSlotDurationMs = int64(60_000)
)

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ProgramID) != "" {
		if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
			errs = append(errs, fmt.Errorf("ProgramID: %w", err))
		}
	}
	switch c.Storage {
	case StorageLevelDB:
		if strings.TrimSpace(c.DataDir) == "" {
			errs = append(errs, errors.New("DataDir required for leveldb storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("Storage: unknown backend %q", c.Storage))
	}
	if c.Clock.SlotDurationMs < MinSlotDurationMs || c.Clock.SlotDurationMs > MaxSlotDurationMs {
		errs = append(errs, fmt.Errorf("clock.SlotDurationMs must be within [%d, %d]", MinSlotDurationMs, MaxSlotDurationMs))
	}
	if strings.TrimSpace(c.RPC.ListenAddress) == "" {
		errs = append(errs, errors.New("rpc.ListenAddress required"))
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rpc rate limits must not be negative"))
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst == 0 {
		errs = append(errs, errors.New("rpc.RateLimitBurst required when RateLimitPerSecond is set"))
	}
	if c.RPC.DuplicateTTLSecs <= 0 {
		errs = append(errs, errors.New("rpc.DuplicateTTLSeconds must be positive"))
	}
	if c.RPC.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("rpc.MaxBodyBytes must be positive"))
	}
	if c.IsProduction() && c.Faucet.MaxAirdropLamports > 0 {
		errs = append(errs, errors.New("faucet must be disabled in production"))
	}
	if c.Faucet.MaxAirdropLamports > 0 && c.RPC.AuthToken == "" && c.RPC.JWTSecret == "" {
		errs = append(errs, errors.New("faucet requires rpc.AuthToken or rpc.JWTSecret"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry.SampleRatio must be within [0, 1]"))
	}
	switch c.Indexer.Driver {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			errs = append(errs, errors.New("indexer.DSN required when a driver is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("indexer.Driver: unknown driver %q", c.Indexer.Driver))
	}
	if _, err := c.GenesisAllocations(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
