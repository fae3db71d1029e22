package ledger

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltStore", func() {
	var (
		ctx    context.Context
		dbPath string
		store  *BoltStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "ledger.db")
		var err error
		store, err = NewBoltStore(dbPath, dec("500.00"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	Describe("ReadState", func() {
		It("starts from the configured budget at version 0", func() {
			st, err := store.ReadState(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Remaining.Equal(dec("500"))).To(BeTrue())
			Expect(st.Version).To(Equal(int64(0)))
		})

		It("keeps the stored remainder on reopen", func() {
			_, err := store.Append(ctx, newEntry("20", "480"), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Close()).To(Succeed())

			store, err = NewBoltStore(dbPath, dec("999"))
			Expect(err).NotTo(HaveOccurred())
			st, err := store.ReadState(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Remaining.Equal(dec("480"))).To(BeTrue())
			Expect(st.Version).To(Equal(int64(1)))
		})
	})

	Describe("Append", func() {
		var (
			entry LedgerEntry
			err   error
		)

		BeforeEach(func() {
			entry = newEntry("23.50", "476.50")
		})

		JustBeforeEach(func() {
			_, err = store.Append(ctx, entry, 0)
		})

		When("the version matches", func() {
			It("writes the entry and the remainder together", func() {
				Expect(err).NotTo(HaveOccurred())

				entries, listErr := store.Entries(ctx)
				Expect(listErr).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(entries[0].ID).To(Equal(entry.ID))
				Expect(entries[0].Total.Equal(dec("23.50"))).To(BeTrue())

				st, _ := store.ReadState(ctx)
				Expect(st.Remaining.Equal(dec("476.50"))).To(BeTrue())
				Expect(st.Version).To(Equal(int64(1)))
			})

			It("returns the stored entry when the same ID is appended again", func() {
				again, err := store.Append(ctx, entry, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(again.ID).To(Equal(entry.ID))

				entries, _ := store.Entries(ctx)
				Expect(entries).To(HaveLen(1))
			})
		})

		When("the version moved", func() {
			It("returns ErrConflict", func() {
				_, err := store.Append(ctx, newEntry("1", "475.50"), 0)
				Expect(err).To(MatchError(ErrConflict))

				entries, _ := store.Entries(ctx)
				Expect(entries).To(HaveLen(1))
			})
		})

		When("the transaction fails before commit", func() {
			BeforeEach(func() {
				store.beforeCommit = func() error { return errors.New("disk full") }
			})

			It("leaves the ledger unchanged", func() {
				Expect(err).To(MatchError("disk full"))

				entries, _ := store.Entries(ctx)
				Expect(entries).To(BeEmpty())

				st, _ := store.ReadState(ctx)
				Expect(st.Remaining.Equal(dec("500"))).To(BeTrue())
				Expect(st.Version).To(Equal(int64(0)))
			})
		})
	})

	Describe("Entries", func() {
		It("returns entries in append order", func() {
			first := newEntry("1", "499")
			second := newEntry("2", "497")
			_, err := store.Append(ctx, first, 0)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Append(ctx, second, 1)
			Expect(err).NotTo(HaveOccurred())

			entries, err := store.Entries(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].ID).To(Equal(first.ID))
			Expect(entries[1].ID).To(Equal(second.ID))
		})
	})

	It("is named after its file", func() {
		Expect(store.Name()).To(HavePrefix("bolt:"))
		Expect(store.Name()).To(HaveSuffix("ledger.db"))
	})
})
