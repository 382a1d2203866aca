package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Environment variables that override file settings.
const (
	EnvEnvironment  = "LOTTO_ENV"
	EnvRPCToken     = "LOTTO_RPC_TOKEN"
	EnvJWTSecret    = "LOTTO_JWT_SECRET"
	EnvIndexerDSN   = "LOTTO_INDEXER_DSN"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
	EnvOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEnvironment); ok && strings.TrimSpace(v) != "" {
		c.Environment = v
	}
	if v, ok := lookup(EnvRPCToken); ok && v != "" {
		c.RPC.AuthToken = v
	}
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.RPC.JWTSecret = v
	}
	if v, ok := lookup(EnvIndexerDSN); ok && v != "" {
		c.Indexer.DSN = v
	}
	if v, ok := lookup(EnvOTLPEndpoint); ok && strings.TrimSpace(v) != "" {
		c.Telemetry.Endpoint = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvOTLPHeaders); ok && strings.TrimSpace(v) != "" {
		if c.Telemetry.Headers == nil {
			c.Telemetry.Headers = map[string]string{}
		}
		for _, pair := range strings.Split(v, ",") {
			key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
			if found && strings.TrimSpace(key) != "" {
				c.Telemetry.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
			}
		}
	}
	if v, ok := lookup(EnvOTLPInsecure); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Telemetry.Insecure = parsed
		}
	}
}

// GenesisAllocations parses the configured allocations into a credit map.
// Duplicate addresses are rejected.
func (c *Config) GenesisAllocations() (map[solana.PublicKey]uint64, error) {
	out := make(map[solana.PublicKey]uint64, len(c.Genesis))
	for i, alloc := range c.Genesis {
		addr, err := solana.PublicKeyFromBase58(strings.TrimSpace(alloc.Address))
		if err != nil {
			return nil, fmt.Errorf("genesis[%d].Address: %w", i, err)
		}
		if alloc.Lamports == 0 {
			return nil, fmt.Errorf("genesis[%d].Lamports must be positive", i)
		}
		if _, dup := out[addr]; dup {
			return nil, fmt.Errorf("genesis[%d]: duplicate address %s", i, addr)
		}
		out[addr] = alloc.Lamports
	}
	return out, nil
}

// ProgramKey returns the configured program identity, or the zero key when
// the default should be used.
func (c *Config) ProgramKey() (solana.PublicKey, error) {
	if strings.TrimSpace(c.ProgramID) == "" {
		return solana.PublicKey{}, nil
	}
	return solana.PublicKeyFromBase58(strings.TrimSpace(c.ProgramID))
}
