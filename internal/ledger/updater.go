package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/zombor/receipt-ledger/internal/metrics"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// IDGenerator generates entry IDs
type IDGenerator interface {
	Generate() uuid.UUID
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() uuid.UUID {
	return uuid.New()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// UpdaterConfig bounds how long and how often an append is tried
type UpdaterConfig struct {
	LockTimeout     time.Duration // waiting for the per-ledger lock
	CallTimeout     time.Duration // each store call
	MaxConflicts    int           // version conflicts retried before ErrLedgerConcurrency
	MaxWriteRetries int           // I/O failures retried before ErrLedgerWrite
	Backoff         time.Duration // base of the exponential backoff
}

// DefaultUpdaterConfig returns the default limits
func DefaultUpdaterConfig() UpdaterConfig {
	return UpdaterConfig{
		LockTimeout:     10 * time.Second,
		CallTimeout:     10 * time.Second,
		MaxConflicts:    3,
		MaxWriteRetries: 3,
		Backoff:         50 * time.Millisecond,
	}
}

// Updater appends validated records to a Store. Appends to the same ledger
// are serialized in-process and guarded by the store's version check.
type Updater struct {
	store       Store
	cfg         UpdaterConfig
	logger      *slog.Logger
	metrics     *metrics.Metrics
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewUpdater creates a new Updater with default ID generator and time source
func NewUpdater(store Store, cfg UpdaterConfig, logger *slog.Logger, m *metrics.Metrics) *Updater {
	return NewUpdaterWithDeps(store, cfg, logger, m, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewUpdaterWithDeps creates a new Updater with custom dependencies for testing
func NewUpdaterWithDeps(store Store, cfg UpdaterConfig, logger *slog.Logger, m *metrics.Metrics, idGen IDGenerator, timeSrc TimeSource) *Updater {
	def := DefaultUpdaterConfig()
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.MaxConflicts < 0 {
		cfg.MaxConflicts = 0
	}
	if cfg.MaxWriteRetries < 0 {
		cfg.MaxWriteRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		store:       store,
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Append writes one entry for the record and returns it with the new
// remaining budget. On error nothing was appended.
func (u *Updater) Append(ctx context.Context, rec ValidatedRecord, source scanning.Source) (LedgerEntry, error) {
	release, err := ledgerLocks.acquire(ctx, u.store.Name(), u.cfg.LockTimeout)
	if err != nil {
		if errors.Is(err, ErrLedgerConcurrency) {
			return LedgerEntry{}, fmt.Errorf("%w: lock for %s not acquired within %s", ErrLedgerConcurrency, u.store.Name(), u.cfg.LockTimeout)
		}
		return LedgerEntry{}, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	defer release()

	entry := LedgerEntry{
		ID:        u.idGenerator.Generate(),
		Date:      rec.Date(),
		Item:      rec.Item(),
		Price:     rec.Price(),
		Qty:       rec.Qty(),
		Total:     rec.Total(),
		Source:    source,
		CreatedAt: u.timeSource.Now().UTC(),
	}

	var (
		conflicts int
		failures  int
		stored    LedgerEntry
	)
	backoff := retry.WithMaxRetries(uint64(u.cfg.MaxConflicts+u.cfg.MaxWriteRetries), retry.NewExponential(u.cfg.Backoff))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		st, err := u.readState(ctx)
		if err == nil {
			entry.BudgetRemainingAfter = st.Remaining.Sub(entry.Total)
			stored, err = u.append(ctx, entry, st.Version)
		}

		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrConflict):
			conflicts++
			u.metrics.ObserveLedgerRetry("conflict")
			u.logger.Warn("ledger.append.conflict", "ledger", u.store.Name(), "attempt", conflicts, "entry_id", entry.ID)
			if conflicts > u.cfg.MaxConflicts {
				return fmt.Errorf("%w: version changed %d times", ErrLedgerConcurrency, conflicts)
			}
			return retry.RetryableError(err)
		default:
			failures++
			u.metrics.ObserveLedgerRetry("io")
			u.logger.Warn("ledger.append.failed", "ledger", u.store.Name(), "attempt", failures, "entry_id", entry.ID, "error", err)
			if failures > u.cfg.MaxWriteRetries {
				return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
			}
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrLedgerConcurrency), errors.Is(err, ErrLedgerWrite):
			return LedgerEntry{}, err
		case errors.Is(err, ErrConflict):
			return LedgerEntry{}, fmt.Errorf("%w: %w", ErrLedgerConcurrency, err)
		default:
			return LedgerEntry{}, fmt.Errorf("%w: %w", ErrLedgerWrite, err)
		}
	}

	u.logger.Info("ledger.append",
		"ledger", u.store.Name(),
		"entry_id", stored.ID,
		"total", stored.Total.StringFixed(2),
		"remaining", stored.BudgetRemainingAfter.StringFixed(2),
	)
	return stored, nil
}

func (u *Updater) readState(ctx context.Context) (State, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
	defer cancel()
	st, err := u.store.ReadState(ctx)
	if err != nil {
		return State{}, fmt.Errorf("reading ledger state: %w", err)
	}
	return st, nil
}

func (u *Updater) append(ctx context.Context, entry LedgerEntry, version int64) (LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
	defer cancel()
	return u.store.Append(ctx, entry, version)
}

// Summary returns all entries and the current remaining budget
func (u *Updater) Summary(ctx context.Context) ([]LedgerEntry, State, error) {
	st, err := u.readState(ctx)
	if err != nil {
		return nil, State{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
	defer cancel()
	entries, err := u.store.Entries(ctx)
	if err != nil {
		return nil, State{}, fmt.Errorf("listing ledger entries: %w", err)
	}
	return entries, st, nil
}
