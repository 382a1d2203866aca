package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"gorm.io/gorm"

	"lottochain/config"
	"lottochain/core/clock"
	"lottochain/core/events"
	"lottochain/core/runtime"
	"lottochain/core/state"
	"lottochain/observability"
	"lottochain/observability/logging"
	telemetry "lottochain/observability/otel"
	"lottochain/rpc"
	"lottochain/services/indexer"
	"lottochain/storage"
)

const (
	serviceName     = "lottod"
	genesisTimeFile = "clock-genesis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type overrides struct {
	listen   string
	dataDir  string
	storage  string
	logLevel string
	env      string
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configPath := fs.String("config", "./lotto.toml", "path to the TOML configuration file (created with defaults when missing)")
	var ov overrides
	fs.StringVar(&ov.listen, "listen", "", "JSON-RPC listen address (overrides rpc.ListenAddress)")
	fs.StringVar(&ov.dataDir, "data-dir", "", "ledger data directory (overrides DataDir)")
	fs.StringVar(&ov.storage, "storage", "", "storage backend: leveldb or memory (overrides Storage)")
	fs.StringVar(&ov.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&ov.env, "env", "", "deployment environment (overrides Environment and LOTTO_ENV)")
	allowMigrate := fs.Bool("allow-migrate", false, "start even when the stored schema version differs from this binary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(cfg, ov); err != nil {
		return err
	}

	logger := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Format:     cfg.Logging.Format,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Attributes: map[string]string{
			"lotto.program_id": cfg.ProgramID,
			"lotto.storage":    cfg.Storage,
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	n, err := newNode(ctx, cfg, logger, *allowMigrate)
	if err != nil {
		return err
	}
	defer n.close()

	listener, err := net.Listen("tcp", cfg.RPC.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPC.ListenAddress, err)
	}
	return n.serve(ctx, listener)
}

func applyOverrides(cfg *config.Config, ov overrides) error {
	changed := false
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
			changed = true
		}
	}
	set(&cfg.RPC.ListenAddress, ov.listen)
	set(&cfg.DataDir, ov.dataDir)
	set(&cfg.Storage, strings.ToLower(ov.storage))
	set(&cfg.Logging.Level, ov.logLevel)
	set(&cfg.Environment, strings.ToLower(ov.env))
	if !changed {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flag overrides: %w", err)
	}
	return nil
}

// node owns every long-lived component of the daemon.
type node struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      storage.Database
	runtime *runtime.Runtime
	hub     *events.Hub
	indexer *indexer.Indexer
	gormDB  *gorm.DB
	server  *rpc.Server
}

func newNode(ctx context.Context, cfg *config.Config, logger *slog.Logger, allowMigrate bool) (*node, error) {
	n := &node{cfg: cfg, logger: logger, hub: events.NewHub()}
	ready := false
	defer func() {
		if !ready {
			n.close()
		}
	}()

	genesis := time.Now()
	switch cfg.Storage {
	case config.StorageMemory:
		n.db = storage.NewMemDB()
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		n.db = ldb
		if genesis, err = loadGenesisTime(cfg.DataDir, genesis); err != nil {
			return nil, err
		}
	}

	if err := state.EnsureStateVersion(n.db, allowMigrate); err != nil {
		return nil, fmt.Errorf("state version: %w", err)
	}

	slots, err := clock.NewSlotClock(nil, genesis, time.Duration(cfg.Clock.SlotDurationMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	programID, err := cfg.ProgramKey()
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	n.runtime, err = runtime.New(n.db, slots, runtime.Options{
		ProgramID:          programID,
		Logger:             logger,
		Metrics:            observability.Lotto(),
		MaxAirdropLamports: cfg.Faucet.MaxAirdropLamports,
	})
	if err != nil {
		return nil, err
	}

	sinks := events.Multi{n.hub, observability.Events()}
	if cfg.Indexer.Driver != "" {
		n.gormDB, err = indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return nil, fmt.Errorf("open indexer: %w", err)
		}
		n.indexer, err = indexer.New(n.gormDB, indexer.Options{QueueSize: cfg.Indexer.QueueSize, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init indexer: %w", err)
		}
		n.indexer.Start(ctx)
		logger.Info("indexer enabled",
			slog.String("driver", cfg.Indexer.Driver),
			slog.String("indexer_dsn", cfg.Indexer.DSN))
		sinks = append(sinks, n.indexer)
	}
	n.runtime.SetSink(sinks)

	allocations, err := cfg.GenesisAllocations()
	if err != nil {
		return nil, err
	}
	if err := n.runtime.ApplyGenesis(ctx, allocations); err != nil {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}

	serverCfg := rpc.ServerConfig{
		AuthToken:          cfg.RPC.AuthToken,
		JWTSecret:          cfg.RPC.JWTSecret,
		JWTIssuer:          cfg.RPC.JWTIssuer,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		DuplicateTTL:       time.Duration(cfg.RPC.DuplicateTTLSecs) * time.Second,
		MaxRequestBytes:    cfg.RPC.MaxBodyBytes,
		TrustedProxies:     cfg.RPC.TrustedProxies,
		ReadHeaderTimeout:  time.Duration(cfg.RPC.ReadHeaderTimeoutSecs) * time.Second,
		WriteTimeout:       time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
		IdleTimeout:        time.Duration(cfg.RPC.IdleTimeoutSecs) * time.Second,
		Logger:             logger,
		Events:             n.hub,
	}
	if n.indexer != nil {
		serverCfg.Activity = n.indexer
	}
	n.server = rpc.NewServer(n.runtime, serverCfg)

	logger.Info("node initialised",
		slog.String("program_id", n.runtime.ProgramID().String()),
		slog.String("storage", cfg.Storage),
		slog.Bool("faucet", cfg.Faucet.MaxAirdropLamports > 0),
		slog.Bool("indexer", n.indexer != nil),
		slog.Time("genesis", slots.Genesis()),
		slog.Duration("slot_duration", slots.SlotDuration()),
		slog.Uint64("slot", n.runtime.Slot()))
	ready = true
	return n, nil
}

func (n *node) serve(ctx context.Context, listener net.Listener) error {
	err := n.server.Serve(ctx, listener)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	n.logger.Info("node stopped", slog.Uint64("slot", n.runtime.Slot()))
	return nil
}

func (n *node) close() {
	if n.indexer != nil {
		n.indexer.Close()
	}
	if n.gormDB != nil {
		if sqlDB, err := n.gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if n.db != nil {
		n.db.Close()
	}
}

// loadGenesisTime returns the persisted slot-zero timestamp, recording now
// on first start so slots keep advancing across restarts.
func loadGenesisTime(dataDir string, now time.Time) (time.Time, error) {
	path := filepath.Join(dataDir, genesisTimeFile)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
		if err != nil {
			return time.Time{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return parsed, nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.WriteFile(path, []byte(now.UTC().Format(time.RFC3339Nano)+"\n"), 0o644); err != nil {
			return time.Time{}, fmt.Errorf("record genesis time: %w", err)
		}
		return now, nil
	default:
		return time.Time{}, err
	}
}
