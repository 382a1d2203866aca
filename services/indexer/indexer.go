package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"lottochain/core/events"
	"lottochain/core/types"
	"lottochain/native/lotto"
	"lottochain/observability"
)

const (
	defaultQueueSize = 1024
	maxQueryLimit    = 500
	sinkName         = "indexer"
)

// ErrValueOutOfRange reports a numeric attribute that does not fit the signed
// 64-bit columns postgres uses for lamports and slots.
var ErrValueOutOfRange = errors.New("indexer: value exceeds signed 64-bit column range")

// Open connects to the read-model database.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// Options tunes the indexer.
type Options struct {
	QueueSize int
	Logger    *slog.Logger
}

// Indexer projects committed ledger events into SQL tables. Emit never blocks
// the ledger: when the queue is full the event is dropped and counted.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu      sync.RWMutex
	queue   chan *types.Event
	closed  bool
	done    chan struct{}
	started bool
}

// New migrates the schema and returns an idle indexer. Call Start to begin
// consuming queued events.
func New(db *gorm.DB, opts Options) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		db:     db,
		logger: log.With(slog.String("component", sinkName)),
		queue:  make(chan *types.Event, size),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the worker that drains the queue. It returns once the
// worker is running; the worker exits when ctx ends or Close is called.
func (ix *Indexer) Start(ctx context.Context) {
	ix.mu.Lock()
	if ix.started || ix.closed {
		ix.mu.Unlock()
		return
	}
	ix.started = true
	ix.mu.Unlock()

	go func() {
		defer close(ix.done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ix.queue:
				if !ok {
					return
				}
				if err := ix.Apply(ctx, evt); err != nil {
					ix.logger.Warn("index event failed",
						slog.String("type", evt.Type),
						slog.String("round", evt.Attr("round")),
						slog.Any("error", err))
				}
			}
		}
	}()
}

// Close stops accepting events and waits for queued ones to be applied.
func (ix *Indexer) Close() {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return
	}
	ix.closed = true
	close(ix.queue)
	started := ix.started
	ix.mu.Unlock()
	if started {
		<-ix.done
	}
}

// Emit implements events.Emitter.
func (ix *Indexer) Emit(evt events.Event) {
	payload := events.Render(evt)
	if payload == nil {
		return
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		observability.Events().RecordDropped(sinkName)
		return
	}
	select {
	case ix.queue <- payload:
	default:
		observability.Events().RecordDropped(sinkName)
		ix.logger.Warn("index queue full, event dropped", slog.String("type", payload.Type))
	}
}

// Apply projects a single event synchronously. Replayed purchases, refunds
// and initialisations are ignored.
func (ix *Indexer) Apply(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	if err := checkColumnRange(evt); err != nil {
		return err
	}
	slot := attrUint(evt, "slot")
	round := evt.Attr("round")
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			wallet string
			amount uint64
		)
		switch evt.Type {
		case lotto.EventTypeRoundInitialized:
			wallet = evt.Attr("authority")
			record := RoundRecord{
				Address:             round,
				Authority:           wallet,
				RoundID:             attrUint(evt, "roundId"),
				TicketPriceLamports: attrUint(evt, "ticketPriceLamports"),
				MaxEntries:          uint32(attrUint(evt, "maxEntries")),
				StartSlot:           slot,
				EndSlot:             slot + attrUint(evt, "durationSlots"),
				Status:              lotto.RoundOpen.String(),
				LastSlot:            slot,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
			if res.Error != nil || res.RowsAffected == 0 {
				return res.Error
			}
		case lotto.EventTypeRoundJoined:
			wallet = evt.Attr("entrant")
			amount = attrUint(evt, "lamportsPaid")
			tickets := attrUint(evt, "tickets")
			entry := EntryRecord{
				Address:      evt.Attr("entry"),
				Round:        round,
				Entrant:      wallet,
				Nonce:        uint8(attrUint(evt, "nonce")),
				Tickets:      uint16(tickets),
				LamportsPaid: amount,
				CreatedSlot:  slot,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
			if res.Error != nil || res.RowsAffected == 0 {
				return res.Error
			}
			if err := tx.Model(&RoundRecord{}).Where("address = ?", round).Updates(map[string]any{
				"pot_lamports": gorm.Expr("pot_lamports + ?", amount),
				"entry_count":  gorm.Expr("entry_count + ?", tickets),
				"last_slot":    slot,
			}).Error; err != nil {
				return err
			}
		case lotto.EventTypeRoundSettled:
			wallet = evt.Attr("winner")
			amount = attrUint(evt, "potLamports")
			if err := tx.Model(&RoundRecord{}).Where("address = ?", round).Updates(map[string]any{
				"status":                lotto.RoundSettled.String(),
				"winner":                wallet,
				"winning_entry":         evt.Attr("winningEntry"),
				"pot_lamports":          amount,
				"treasury_cut_lamports": attrUint(evt, "treasuryCutLamports"),
				"last_slot":             slot,
			}).Error; err != nil {
				return err
			}
		case lotto.EventTypePayoutClaimed:
			wallet = evt.Attr("winner")
			amount = attrUint(evt, "amount")
			if err := tx.Model(&RoundRecord{}).Where("address = ?", round).Updates(map[string]any{
				"status":       lotto.RoundClosedOut.String(),
				"pot_lamports": gorm.Expr("pot_lamports - ?", amount),
				"last_slot":    slot,
			}).Error; err != nil {
				return err
			}
		case lotto.EventTypeRefundClaimed:
			wallet = evt.Attr("entrant")
			amount = attrUint(evt, "amount")
			res := tx.Model(&EntryRecord{}).
				Where("address = ? AND claimed = ?", evt.Attr("entry"), false).
				Update("claimed", true)
			if res.Error != nil || res.RowsAffected == 0 {
				return res.Error
			}
			if err := tx.Model(&RoundRecord{}).Where("address = ?", round).Updates(map[string]any{
				"pot_lamports": gorm.Expr("pot_lamports - ?", amount),
				"last_slot":    slot,
			}).Error; err != nil {
				return err
			}
		case lotto.EventTypeRoundClosed:
			wallet = evt.Attr("authority")
			if err := tx.Model(&RoundRecord{}).Where("address = ?", round).Updates(map[string]any{
				"status":    lotto.RoundCancelled.String(),
				"last_slot": slot,
			}).Error; err != nil {
				return err
			}
		default:
			return nil
		}

		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return err
		}
		return tx.Create(&ActivityRecord{
			ID:         uuid.New(),
			Type:       evt.Type,
			Round:      round,
			Wallet:     wallet,
			Amount:     amount,
			Slot:       slot,
			Attributes: string(attrs),
		}).Error
	})
}

func checkColumnRange(evt *types.Event) error {
	for key, raw := range evt.Attributes {
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil && v > math.MaxInt64 {
			return fmt.Errorf("%w: %s=%s", ErrValueOutOfRange, key, raw)
		}
	}
	return nil
}

func attrUint(evt *types.Event, key string) uint64 {
	v, err := strconv.ParseUint(evt.Attr(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// Activity returns the most recent events touching wallet, newest first. An
// empty wallet lists activity across all wallets.
func (ix *Indexer) Activity(ctx context.Context, wallet string, limit int) ([]ActivityRecord, error) {
	q := ix.db.WithContext(ctx).Order("slot DESC").Order("created_at DESC").Limit(clampLimit(limit))
	if wallet = strings.TrimSpace(wallet); wallet != "" {
		q = q.Where("wallet = ?", wallet)
	}
	var out []ActivityRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Rounds lists rounds in the given status (all when empty), newest first.
func (ix *Indexer) Rounds(ctx context.Context, status string, limit int) ([]RoundRecord, error) {
	q := ix.db.WithContext(ctx).Order("start_slot DESC").Limit(clampLimit(limit))
	if status = strings.TrimSpace(status); status != "" {
		parsed, err := lotto.ParseRoundStatus(status)
		if err != nil {
			return nil, err
		}
		q = q.Where("status = ?", parsed.String())
	}
	var out []RoundRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Round returns the projection of a single round.
func (ix *Indexer) Round(ctx context.Context, address string) (*RoundRecord, error) {
	var out RoundRecord
	if err := ix.db.WithContext(ctx).First(&out, "address = ?", address).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Entries lists the projected receipts of a round in slot order.
func (ix *Indexer) Entries(ctx context.Context, round string, limit int) ([]EntryRecord, error) {
	var out []EntryRecord
	err := ix.db.WithContext(ctx).
		Where("round = ?", round).
		Order("created_slot ASC").Order("created_at ASC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
