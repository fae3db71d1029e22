package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

var (
	entriesBucket = []byte("entries")
	idsBucket     = []byte("entry_ids")
	metaBucket    = []byte("meta")

	remainingKey = []byte("remaining")
	versionKey   = []byte("version")
)

// BoltStore implements Store using BoltDB. Each append is a single
// read-write transaction, so a failed append leaves no trace.
type BoltStore struct {
	db   *bbolt.DB
	name string

	// beforeCommit runs inside the append transaction after all writes
	beforeCommit func() error
}

// NewBoltStore opens the ledger at path, initialising the remaining budget on first use
func NewBoltStore(path string, budget decimal.Decimal) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, idsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if meta.Get(remainingKey) != nil {
			return nil
		}
		if err := meta.Put(remainingKey, []byte(budget.String())); err != nil {
			return err
		}
		return meta.Put(versionKey, itob(0))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &BoltStore{db: db, name: "bolt:" + abs}, nil
}

func (b *BoltStore) Name() string { return b.name }

func (b *BoltStore) ReadState(ctx context.Context) (State, error) {
	var st State
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		st, err = readMeta(tx.Bucket(metaBucket))
		return err
	})
	return st, err
}

func (b *BoltStore) Append(ctx context.Context, entry LedgerEntry, expectedVersion int64) (LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return LedgerEntry{}, err
	}

	var stored LedgerEntry
	err := b.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		ids := tx.Bucket(idsBucket)
		meta := tx.Bucket(metaBucket)

		if key := ids.Get(entry.ID[:]); key != nil {
			return json.Unmarshal(entries.Get(key), &stored)
		}

		st, err := readMeta(meta)
		if err != nil {
			return err
		}
		if st.Version != expectedVersion {
			return ErrConflict
		}

		seq, err := entries.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating sequence: %w", err)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		key := itob(int64(seq))
		if err := entries.Put(key, data); err != nil {
			return err
		}
		if err := ids.Put(entry.ID[:], key); err != nil {
			return err
		}
		if err := meta.Put(remainingKey, []byte(entry.BudgetRemainingAfter.String())); err != nil {
			return err
		}
		if err := meta.Put(versionKey, itob(st.Version+1)); err != nil {
			return err
		}

		if b.beforeCommit != nil {
			if err := b.beforeCommit(); err != nil {
				return err
			}
		}
		stored = entry
		return nil
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return stored, nil
}

func (b *BoltStore) Entries(ctx context.Context) ([]LedgerEntry, error) {
	entries := make([]LedgerEntry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(k, v []byte) error {
			var e LedgerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func readMeta(meta *bbolt.Bucket) (State, error) {
	remaining, err := decimal.NewFromString(string(meta.Get(remainingKey)))
	if err != nil {
		return State{}, fmt.Errorf("reading remaining budget: %w", err)
	}
	v := meta.Get(versionKey)
	if len(v) != 8 {
		return State{}, fmt.Errorf("reading ledger version: bad length %d", len(v))
	}
	return State{Remaining: remaining, Version: int64(binary.BigEndian.Uint64(v))}, nil
}

// itob encodes n big-endian so keys sort in append order
func itob(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}
