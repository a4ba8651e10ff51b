// Package journal provides a persistent record of processed
// transactions, keyed by signature and backed by BoltDB.
//
// The journal answers two questions: has a given transaction already
// been processed, and what happened to it (slot, success or failure,
// program logs). A secondary bucket orders signatures by slot so recent
// history can be replayed in commit order.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/GotokHQ/stamp/internal/types"
)

var (
	// ErrNotFound is returned when a signature is not in the journal.
	ErrNotFound = errors.New("transaction not found")

	// ErrClosed is returned when operating on a closed journal.
	ErrClosed = errors.New("journal closed")

	// ErrDuplicate is returned when recording a signature twice.
	ErrDuplicate = errors.New("transaction already recorded")
)

// Bucket names for BoltDB.
var (
	// bucketEntries stores journal entries keyed by signature.
	bucketEntries = []byte("entries")

	// bucketSlotIndex maps slot (big-endian) + signature -> nil so a
	// cursor scan yields signatures in slot order.
	bucketSlotIndex = []byte("slot_index")

	// bucketMetadata stores journal metadata.
	bucketMetadata = []byte("metadata")
)

var keyLatestSlot = []byte("latest_slot")

// Entry is the recorded outcome of one processed transaction.
type Entry struct {
	// Signature identifies the transaction.
	Signature types.Signature

	// Slot is the slot the transaction was committed in.
	Slot uint64

	// Ok reports whether every instruction succeeded.
	Ok bool

	// ErrCode is the program error code for failed transactions. Only
	// meaningful when Ok is false and the failure carried a code.
	ErrCode uint32

	// ErrMsg is the failure message, empty on success.
	ErrMsg string

	// Logs are the program log lines emitted during execution.
	Logs []string
}

// Config holds journal configuration options.
type Config struct {
	// Path is the file path for the journal database.
	Path string

	// NoSync disables fsync after each write.
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// Journal is a BoltDB-backed transaction journal.
type Journal struct {
	db     *bolt.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) a journal at the configured path.
func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	opts := &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   cfg.NoSync,
		ReadOnly: cfg.ReadOnly,
	}
	db, err := bolt.Open(cfg.Path, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db}
	if !cfg.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			for _, name := range [][]byte{bucketEntries, bucketSlotIndex, bucketMetadata} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return fmt.Errorf("create bucket %s: %w", name, err)
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return j, nil
}

// slotIndexKey builds a slot-index key ordering by slot, then
// signature.
func slotIndexKey(slot uint64, sig types.Signature) []byte {
	key := make([]byte, 8+types.SignatureSize)
	binary.BigEndian.PutUint64(key, slot)
	copy(key[8:], sig[:])
	return key
}

// Record appends an entry to the journal. Recording the same signature
// twice returns ErrDuplicate.
func (j *Journal) Record(entry *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		if entries.Get(entry.Signature[:]) != nil {
			return ErrDuplicate
		}
		if err := entries.Put(entry.Signature[:], buf.Bytes()); err != nil {
			return err
		}
		if err := tx.Bucket(bucketSlotIndex).Put(slotIndexKey(entry.Slot, entry.Signature), nil); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMetadata)
		latest := meta.Get(keyLatestSlot)
		if latest == nil || binary.BigEndian.Uint64(latest) < entry.Slot {
			var slotBuf [8]byte
			binary.BigEndian.PutUint64(slotBuf[:], entry.Slot)
			return meta.Put(keyLatestSlot, slotBuf[:])
		}
		return nil
	})
}

// Get returns the journal entry for a signature.
func (j *Journal) Get(sig types.Signature) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	var entry *Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEntries).Get(sig[:])
		if raw == nil {
			return ErrNotFound
		}
		var e Entry
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Has reports whether a signature is already recorded.
func (j *Journal) Has(sig types.Signature) (bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return false, ErrClosed
	}

	exists := false
	err := j.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketEntries).Get(sig[:]) != nil
		return nil
	})
	return exists, err
}

// SlotSignatures returns the signatures recorded for a slot, in
// signature order.
func (j *Journal) SlotSignatures(slot uint64) ([]types.Signature, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], slot)

	var sigs []types.Signature
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSlotIndex).Cursor()
		for k, _ := c.Seek(prefix[:]); k != nil && bytes.HasPrefix(k, prefix[:]); k, _ = c.Next() {
			if len(k) != 8+types.SignatureSize {
				continue
			}
			var sig types.Signature
			copy(sig[:], k[8:])
			sigs = append(sigs, sig)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sigs, nil
}

// LatestSlot returns the highest slot recorded so far, or zero when the
// journal is empty.
func (j *Journal) LatestSlot() (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return 0, ErrClosed
	}

	var slot uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketMetadata).Get(keyLatestSlot); raw != nil {
			slot = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return slot, err
}

// Count returns the number of recorded transactions.
func (j *Journal) Count() (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return 0, ErrClosed
	}

	count := 0
	err := j.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
