package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"lottochain/core/events"
	"lottochain/core/state"
	"lottochain/core/types"
	"lottochain/native/lotto"
	"lottochain/observability"
	"lottochain/storage"
)

// Operation names used in logs and metrics.
const (
	OpInitializeRound = "initialize_round"
	OpJoinRound       = "join_round"
	OpSettleRound     = "settle_round"
	OpClaimPayout     = "claim_payout"
	OpClaimRefund     = "claim_refund"
	OpAdminClose      = "admin_close"
	OpAirdrop         = "airdrop"
	OpGenesis         = "genesis"
)

var (
	errNilDatabase = errors.New("runtime: database required")
	errNilClock    = errors.New("runtime: clock required")
	// ErrAirdropDisabled is returned when the faucet limit is zero.
	ErrAirdropDisabled = errors.New("runtime: airdrop disabled")
	// ErrAirdropLimit is returned when a request exceeds the faucet limit.
	ErrAirdropLimit = errors.New("runtime: airdrop exceeds per-request limit")
)

// Clock supplies the current slot.
type Clock interface {
	Slot() uint64
}

// Options configures a Runtime.
type Options struct {
	ProgramID solana.PublicKey
	Logger    *slog.Logger
	Metrics   *observability.LottoMetrics
	// Sink receives events after their operation committed.
	Sink events.Emitter
	// MaxAirdropLamports caps a single faucet credit. Zero disables it.
	MaxAirdropLamports uint64
}

// Runtime executes ledger operations atomically. Every operation runs in its
// own storage transaction under locks covering each account it can touch; it
// either commits in full and then publishes its events, or leaves no trace.
type Runtime struct {
	db         storage.Database
	clock      Clock
	programID  solana.PublicKey
	logger     *slog.Logger
	metrics    *observability.LottoMetrics
	maxAirdrop uint64

	locks    *keyedLocks
	supplyMu sync.Mutex

	sinkMu sync.RWMutex
	sink   events.Emitter
}

// New constructs a runtime over db.
func New(db storage.Database, clock Clock, opts Options) (*Runtime, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if clock == nil {
		return nil, errNilClock
	}
	programID := opts.ProgramID
	if programID.IsZero() {
		programID = lotto.DefaultProgramID
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		db:         db,
		clock:      clock,
		programID:  programID,
		logger:     logger.With(slog.String("component", "runtime")),
		metrics:    opts.Metrics,
		maxAirdrop: opts.MaxAirdropLamports,
		locks:      newKeyedLocks(),
	}
	rt.SetSink(opts.Sink)
	return rt, nil
}

// ProgramID returns the identity scoping every derived address.
func (r *Runtime) ProgramID() solana.PublicKey { return r.programID }

// SetSink replaces the committed-event sink. Passing nil discards events.
func (r *Runtime) SetSink(sink events.Emitter) {
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	r.sinkMu.Lock()
	r.sink = sink
	r.sinkMu.Unlock()
}

func (r *Runtime) publish(buf *events.Buffer) {
	r.sinkMu.RLock()
	sink := r.sink
	r.sinkMu.RUnlock()
	buf.Flush(sink)
}

// Slot returns the current slot.
func (r *Runtime) Slot() uint64 { return r.clock.Slot() }

// execute runs fn inside a fresh transaction while holding locks on keys.
func (r *Runtime) execute(ctx context.Context, op string, keys []solana.PublicKey, fn func(*lotto.Engine, *state.Manager) error) error {
	started := time.Now()
	release := r.locks.acquire(keys...)
	defer release()

	if err := ctx.Err(); err != nil {
		r.observe(op, 0, started, err)
		return err
	}

	slot := r.clock.Slot()
	tx := storage.NewTx(r.db)
	mgr := state.NewManager(tx)
	var buf events.Buffer
	engine := lotto.NewEngine(r.programID)
	engine.SetState(mgr)
	engine.SetEmitter(&buf)
	engine.SetSlotFunc(func() uint64 { return slot })

	err := fn(engine, mgr)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.Discard()
		r.observe(op, slot, started, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		err = fmt.Errorf("runtime: commit %s: %w", op, err)
		r.observe(op, slot, started, err)
		return err
	}
	r.publish(&buf)
	r.observe(op, slot, started, nil)
	return nil
}

func (r *Runtime) observe(op string, slot uint64, started time.Time, err error) {
	elapsed := time.Since(started)
	if err == nil {
		r.metrics.ObserveOperation(op, "", slot, elapsed)
		r.logger.Debug("operation committed",
			slog.String("op", op),
			slog.Uint64("slot", slot),
			slog.Duration("elapsed", elapsed))
		return
	}
	kind := lotto.KindOf(err)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.metrics.ObserveOperation(op, "cancelled", slot, elapsed)
		r.logger.Warn("operation cancelled", slog.String("op", op), slog.Any("error", err))
	case kind == lotto.KindInternal:
		r.metrics.ObserveOperation(op, kind.String(), slot, elapsed)
		r.logger.Error("operation failed", slog.String("op", op), slog.Any("error", err))
	default:
		coded, _ := lotto.AsError(err)
		r.metrics.ObserveOperation(op, kind.String(), slot, elapsed)
		r.logger.Warn("operation rejected",
			slog.String("op", op),
			slog.String("kind", kind.String()),
			slog.Uint64("code", uint64(coded.Code)),
			slog.Uint64("slot", slot),
			slog.Any("error", err))
	}
}

// roundAuthority resolves the immutable operator of a committed round. An
// unknown round resolves to the zero key; the engine then rejects the
// operation itself.
func (r *Runtime) roundAuthority(addr solana.PublicKey) (solana.PublicKey, error) {
	round, ok, err := state.NewManager(r.db).RoundGet(addr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !ok {
		return solana.PublicKey{}, nil
	}
	return round.Authority, nil
}

// InitializeRound opens a round for accts.Authority.
func (r *Runtime) InitializeRound(ctx context.Context, accts lotto.InitializeRoundAccounts, args lotto.InitializeRoundArgs) (*lotto.Round, error) {
	var out *lotto.Round
	keys := []solana.PublicKey{accts.Authority, accts.Round, accts.Treasury, accts.TreasuryVault}
	err := r.execute(ctx, OpInitializeRound, keys, func(engine *lotto.Engine, _ *state.Manager) error {
		round, err := engine.InitializeRound(accts, args)
		out = round
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// JoinRound buys tickets for accts.Entrant.
func (r *Runtime) JoinRound(ctx context.Context, accts lotto.JoinRoundAccounts, args lotto.JoinRoundArgs) (*lotto.Entry, error) {
	authority, err := r.roundAuthority(accts.Round)
	if err != nil {
		return nil, err
	}
	var out *lotto.Entry
	keys := []solana.PublicKey{authority, accts.Entrant, accts.Round, accts.Treasury, accts.TreasuryVault, accts.Entry}
	err = r.execute(ctx, OpJoinRound, keys, func(engine *lotto.Engine, _ *state.Manager) error {
		entry, err := engine.JoinRound(accts, args)
		out = entry
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SettleRound designates the owner of accts.WinningEntry as the winner.
func (r *Runtime) SettleRound(ctx context.Context, accts lotto.SettleRoundAccounts) (*lotto.Round, error) {
	authority, err := r.roundAuthority(accts.Round)
	if err != nil {
		return nil, err
	}
	var out *lotto.Round
	keys := []solana.PublicKey{authority, accts.Authority, accts.Round, accts.Treasury, accts.WinningEntry}
	err = r.execute(ctx, OpSettleRound, keys, func(engine *lotto.Engine, _ *state.Manager) error {
		round, err := engine.SettleRound(accts)
		out = round
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimPayout pays the winner and returns the amount transferred.
func (r *Runtime) ClaimPayout(ctx context.Context, accts lotto.ClaimPayoutAccounts) (*lotto.Round, uint64, error) {
	authority, err := r.roundAuthority(accts.Round)
	if err != nil {
		return nil, 0, err
	}
	var (
		out    *lotto.Round
		amount uint64
	)
	keys := []solana.PublicKey{authority, accts.Winner, accts.Round, accts.Treasury, accts.TreasuryVault}
	err = r.execute(ctx, OpClaimPayout, keys, func(engine *lotto.Engine, _ *state.Manager) error {
		round, paid, err := engine.ClaimPayout(accts)
		out, amount = round, paid
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return out, amount, nil
}

// ClaimRefund returns a cancelled purchase to its entrant.
func (r *Runtime) ClaimRefund(ctx context.Context, accts lotto.ClaimRefundAccounts) (*lotto.Entry, error) {
	authority, err := r.roundAuthority(accts.Round)
	if err != nil {
		return nil, err
	}
	var out *lotto.Entry
	keys := []solana.PublicKey{authority, accts.Entrant, accts.Round, accts.Treasury, accts.TreasuryVault, accts.Entry}
	err = r.execute(ctx, OpClaimRefund, keys, func(engine *lotto.Engine, _ *state.Manager) error {
		entry, err := engine.ClaimRefund(accts)
		out = entry
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdminClose cancels an unsettled round.
func (r *Runtime) AdminClose(ctx context.Context, accts lotto.AdminCloseAccounts, args lotto.AdminCloseArgs) (*lotto.Round, error) {
	authority, err := r.roundAuthority(accts.Round)
	if err != nil {
		return nil, err
	}
	var out *lotto.Round
	keys := []solana.PublicKey{authority, accts.Authority, accts.Round}
	err = r.execute(ctx, OpAdminClose, keys, func(engine *lotto.Engine, _ *state.Manager) error {
		round, err := engine.AdminClose(accts, args)
		out = round
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Airdrop mints lamports into to. It exists for development networks and is
// bounded by the configured per-request limit.
func (r *Runtime) Airdrop(ctx context.Context, to solana.PublicKey, lamports uint64) (*types.Account, error) {
	if r.maxAirdrop == 0 {
		return nil, ErrAirdropDisabled
	}
	if lamports == 0 || lamports > r.maxAirdrop {
		return nil, ErrAirdropLimit
	}
	if to.IsZero() {
		return nil, fmt.Errorf("runtime: airdrop recipient required")
	}
	r.supplyMu.Lock()
	defer r.supplyMu.Unlock()
	var out *types.Account
	err := r.execute(ctx, OpAirdrop, []solana.PublicKey{to}, func(_ *lotto.Engine, mgr *state.Manager) error {
		account, err := mgr.Mint(to, lamports)
		out = account
		return err
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordAirdrop(lamports)
	return out, nil
}

// ApplyGenesis credits the configured allocations exactly once per database.
func (r *Runtime) ApplyGenesis(ctx context.Context, allocations map[solana.PublicKey]uint64) error {
	if len(allocations) == 0 {
		return nil
	}
	keys := make([]solana.PublicKey, 0, len(allocations))
	for addr := range allocations {
		keys = append(keys, addr)
	}
	r.supplyMu.Lock()
	defer r.supplyMu.Unlock()
	return r.execute(ctx, OpGenesis, keys, func(_ *lotto.Engine, mgr *state.Manager) error {
		applied, err := mgr.GenesisApplied()
		if err != nil || applied {
			return err
		}
		for _, addr := range sortedUnique(keys) {
			if _, err := mgr.Mint(addr, allocations[addr]); err != nil {
				return fmt.Errorf("genesis allocation %s: %w", addr, err)
			}
		}
		return mgr.MarkGenesisApplied()
	})
}
