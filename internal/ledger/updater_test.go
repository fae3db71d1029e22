package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-ledger/internal/metrics"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

type mockIDGenerator struct {
	id uuid.UUID
}

func (m *mockIDGenerator) Generate() uuid.UUID { return m.id }

type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time { return m.now }

// flakyStore fails the first conflicts appends with ErrConflict and the
// first failures appends with an I/O error
type flakyStore struct {
	*MemoryStore
	mu        sync.Mutex
	conflicts int
	failures  int
	commitErr bool // commit and still report the failure
}

func (f *flakyStore) Append(ctx context.Context, entry LedgerEntry, expectedVersion int64) (LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return LedgerEntry{}, ErrConflict
	}
	if f.failures > 0 {
		f.failures--
		if f.commitErr {
			_, _ = f.MemoryStore.Append(ctx, entry, expectedVersion)
		}
		return LedgerEntry{}, errors.New("connection reset")
	}
	return f.MemoryStore.Append(ctx, entry, expectedVersion)
}

func fastConfig() UpdaterConfig {
	return UpdaterConfig{
		LockTimeout:     time.Second,
		CallTimeout:     time.Second,
		MaxConflicts:    3,
		MaxWriteRetries: 3,
		Backoff:         time.Millisecond,
	}
}

var _ = Describe("Updater", func() {
	var (
		ctx     context.Context
		memory  *MemoryStore
		store   Store
		m       *metrics.Metrics
		updater *Updater
		idGen   *mockIDGenerator
		now     time.Time
		record  ValidatedRecord
		entry   LedgerEntry
		err     error
	)

	BeforeEach(func() {
		ctx = context.Background()
		memory = NewMemoryStore(uuid.NewString(), dec("100.00"))
		store = memory
		m = metrics.New(prometheus.NewRegistry())
		idGen = &mockIDGenerator{id: uuid.MustParse("0b7c3c3e-3c1e-4a53-8f7e-2f4a9c1d2e3f")}
		now = time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
		record = mustValidate(scanning.CandidateRecord{Date: "2024-03-01", Item: "Widget", Price: "11.75", Qty: "2", Total: "23.50"})
	})

	JustBeforeEach(func() {
		updater = NewUpdaterWithDeps(store, fastConfig(), discardLogger(), m, idGen, &mockTimeSource{now: now})
		entry, err = updater.Append(ctx, record, scanning.SourceDigitalText)
	})

	When("the append succeeds", func() {
		It("returns the entry with the new remainder", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.ID).To(Equal(idGen.id))
			Expect(entry.CreatedAt).To(Equal(now))
			Expect(entry.Item).To(Equal("Widget"))
			Expect(entry.Source).To(Equal(scanning.SourceDigitalText))
			Expect(entry.BudgetRemainingAfter.Equal(dec("76.50"))).To(BeTrue())
		})

		It("stores exactly one entry and the remainder", func() {
			entries, st, sumErr := updater.Summary(ctx)
			Expect(sumErr).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(st.Remaining.Equal(dec("76.50"))).To(BeTrue())
		})
	})

	When("the version moves a few times", func() {
		BeforeEach(func() {
			store = &flakyStore{MemoryStore: memory, conflicts: 2}
		})

		It("retries and succeeds", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.ToFloat64(m.LedgerRetries.WithLabelValues("conflict"))).To(Equal(2.0))
		})
	})

	When("the version keeps moving", func() {
		BeforeEach(func() {
			store = &flakyStore{MemoryStore: memory, conflicts: 10}
		})

		It("returns ErrLedgerConcurrency and appends nothing", func() {
			Expect(err).To(MatchError(ErrLedgerConcurrency))
			entries, _ := memory.Entries(ctx)
			Expect(entries).To(BeEmpty())
		})
	})

	When("the store fails transiently", func() {
		BeforeEach(func() {
			store = &flakyStore{MemoryStore: memory, failures: 2}
		})

		It("retries the whole read-compute-append", func() {
			Expect(err).NotTo(HaveOccurred())
			entries, _ := memory.Entries(ctx)
			Expect(entries).To(HaveLen(1))
			Expect(testutil.ToFloat64(m.LedgerRetries.WithLabelValues("io"))).To(Equal(2.0))
		})
	})

	When("the store keeps failing", func() {
		BeforeEach(func() {
			store = &flakyStore{MemoryStore: memory, failures: 10}
		})

		It("returns ErrLedgerWrite and appends nothing", func() {
			Expect(err).To(MatchError(ErrLedgerWrite))
			Expect(err.Error()).To(ContainSubstring("connection reset"))
			entries, _ := memory.Entries(ctx)
			Expect(entries).To(BeEmpty())
			st, _ := memory.ReadState(ctx)
			Expect(st.Remaining.Equal(dec("100"))).To(BeTrue())
		})
	})

	When("a failed write actually landed", func() {
		BeforeEach(func() {
			store = &flakyStore{MemoryStore: memory, failures: 1, commitErr: true}
		})

		It("does not append twice", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.BudgetRemainingAfter.Equal(dec("76.50"))).To(BeTrue())
			entries, _ := memory.Entries(ctx)
			Expect(entries).To(HaveLen(1))
		})
	})

	When("the ledger lock is held elsewhere", func() {
		var release func()

		BeforeEach(func() {
			var lockErr error
			release, lockErr = ledgerLocks.acquire(context.Background(), memory.Name(), time.Second)
			Expect(lockErr).NotTo(HaveOccurred())
		})

		JustBeforeEach(func() {
			release()
		})

		It("returns ErrLedgerConcurrency after the lock timeout", func() {
			Expect(err).To(MatchError(ErrLedgerConcurrency))
			entries, _ := memory.Entries(ctx)
			Expect(entries).To(BeEmpty())
		})
	})
})

var _ = Describe("Updater all-or-nothing", func() {
	It("leaves the bolt ledger unchanged when the write fails after computing the remainder", func() {
		ctx := context.Background()
		store, err := NewBoltStore(filepath.Join(GinkgoT().TempDir(), "ledger.db"), dec("100"))
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		store.beforeCommit = func() error { return errors.New("power cut") }
		cfg := fastConfig()
		cfg.MaxWriteRetries = 1
		updater := NewUpdater(store, cfg, discardLogger(), nil)

		rec := mustValidate(scanning.CandidateRecord{Date: "2024-03-01", Total: "40"})
		_, err = updater.Append(ctx, rec, scanning.SourceOCR)
		Expect(err).To(MatchError(ErrLedgerWrite))

		entries, _ := store.Entries(ctx)
		Expect(entries).To(BeEmpty())
		st, _ := store.ReadState(ctx)
		Expect(st.Remaining.Equal(dec("100"))).To(BeTrue())
		Expect(st.Version).To(Equal(int64(0)))
	})
})

var _ = Describe("Updater concurrency", func() {
	appendConcurrently := func(store Store, totals []string) {
		var wg sync.WaitGroup
		errs := make(chan error, len(totals))
		for _, t := range totals {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				cfg := fastConfig()
				cfg.LockTimeout = 30 * time.Second
				updater := NewUpdater(store, cfg, discardLogger(), nil)
				rec := mustValidate(scanning.CandidateRecord{Date: "2024-03-01", Total: t})
				_, err := updater.Append(context.Background(), rec, scanning.SourceDigitalText)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}
	}

	totals := func(n int) ([]string, decimal.Decimal) {
		out := make([]string, n)
		sum := decimal.Zero
		for i := range out {
			out[i] = fmt.Sprintf("%d.%02d", i+1, i%100)
			sum = sum.Add(dec(out[i]))
		}
		return out, sum
	}

	It("keeps the bolt remainder equal to the budget minus every total", func() {
		store, err := NewBoltStore(filepath.Join(GinkgoT().TempDir(), "ledger.db"), dec("10000"))
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		ts, sum := totals(25)
		appendConcurrently(store, ts)

		entries, err := store.Entries(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(25))
		st, _ := store.ReadState(context.Background())
		Expect(st.Remaining.Equal(dec("10000").Sub(sum))).To(BeTrue(), "remaining %s", st.Remaining)

		seen := map[string]bool{}
		for _, e := range entries {
			seen[e.BudgetRemainingAfter.String()] = true
		}
		Expect(seen).To(HaveLen(25))
	})

	It("keeps the memory remainder equal to the budget minus every total", func() {
		store := NewMemoryStore(uuid.NewString(), dec("500"))
		ts, sum := totals(40)
		appendConcurrently(store, ts)

		entries, _ := store.Entries(context.Background())
		Expect(entries).To(HaveLen(40))
		st, _ := store.ReadState(context.Background())
		Expect(st.Remaining.Equal(dec("500").Sub(sum))).To(BeTrue())
	})
})
