package accounts

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/runtime"
)

// Key prefixes for BadgerDB storage. Prefixes allow efficient iteration
// over specific data types.
var (
	// prefixAccount is the prefix for account data.
	// Key format: prefixAccount + pubkey (32 bytes)
	prefixAccount = []byte{0x01}

	// prefixMeta is the prefix for metadata.
	prefixMeta = []byte{0x02}

	// metaSlot is the key for storing the current slot.
	metaSlot = append(prefixMeta, []byte("slot")...)
)

// Config contains storage configuration.
type Config struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk. Async improves
	// throughput but risks losing the latest writes on crash.
	SyncWrites bool

	// Logger is an optional badger logger. Nil disables logging.
	Logger badger.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// Store is the BadgerDB-backed account store.
type Store struct {
	db *badger.DB

	// slot is cached in memory for fast access.
	slot atomic.Uint64

	// mu serializes writers.
	mu sync.Mutex

	closed atomic.Bool
}

// Open opens (or creates) an account store.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &Store{db: db}
	if err := s.loadMetadata(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return s, nil
}

// loadMetadata loads the persisted slot.
func (s *Store) loadMetadata() error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaSlot)
		if err == badger.ErrKeyNotFound {
			s.slot.Store(0)
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) >= 8 {
				s.slot.Store(binary.LittleEndian.Uint64(val))
			}
			return nil
		})
	})
}

// accountKey returns the storage key for an account.
func accountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, 1+types.PubkeySize)
	key[0] = prefixAccount[0]
	copy(key[1:], pubkey[:])
	return key
}

// GetAccount retrieves an account by public key.
func (s *Store) GetAccount(pubkey types.Pubkey) (*Account, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var account *Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(pubkey))
		if err == badger.ErrKeyNotFound {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			acc, err := DeserializeAccount(val)
			if err != nil {
				return fmt.Errorf("account %s: %w", pubkey, err)
			}
			account = acc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// SetAccount stores an account. Zero accounts (no lamports, no data)
// are deleted instead.
func (s *Store) SetAccount(pubkey types.Pubkey, account *Account) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if account.IsZero() {
		return s.db.Update(func(txn *badger.Txn) error {
			err := txn.Delete(accountKey(pubkey))
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		})
	}

	data := account.Serialize()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(accountKey(pubkey), data)
	})
}

// DeleteAccount removes an account.
func (s *Store) DeleteAccount(pubkey types.Pubkey) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(accountKey(pubkey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// HasAccount checks if an account exists.
func (s *Store) HasAccount(pubkey types.Pubkey) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(accountKey(pubkey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// ForEach iterates over all stored accounts. The callback must not
// retain the account beyond the call.
func (s *Store) ForEach(fn func(pubkey types.Pubkey, account *Account) error) error {
	if s.closed.Load() {
		return ErrClosed
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != 1+types.PubkeySize {
				continue
			}
			pubkey, err := types.PubkeyFromBytes(key[1:])
			if err != nil {
				continue
			}
			err = item.Value(func(val []byte) error {
				acc, err := DeserializeAccount(val)
				if err != nil {
					return fmt.Errorf("account %s: %w", pubkey, err)
				}
				return fn(pubkey, acc)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Slot returns the last committed slot.
func (s *Store) Slot() uint64 {
	return s.slot.Load()
}

// SetSlot persists the current slot.
func (s *Store) SetSlot(slot uint64) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slot)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaSlot, buf[:])
	})
	if err != nil {
		return err
	}
	s.slot.Store(slot)
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// StateStore adapts the store to the executor's persistence interface.
type StateStore struct {
	store *Store
}

// NewStateStore wraps a store for use by the executor.
func NewStateStore(store *Store) *StateStore {
	return &StateStore{store: store}
}

// Account returns the committed state of an account.
func (s *StateStore) Account(key types.Pubkey) (runtime.AccountState, bool, error) {
	acc, err := s.store.GetAccount(key)
	if err == ErrAccountNotFound {
		return runtime.AccountState{}, false, nil
	}
	if err != nil {
		return runtime.AccountState{}, false, err
	}
	return runtime.AccountState{
		Lamports:   acc.Lamports,
		Data:       acc.Data,
		Owner:      acc.Owner,
		Executable: acc.Executable,
		RentEpoch:  acc.RentEpoch,
	}, true, nil
}

// SetAccount commits new state for an account.
func (s *StateStore) SetAccount(key types.Pubkey, state runtime.AccountState) error {
	return s.store.SetAccount(key, &Account{
		Lamports:   state.Lamports,
		Data:       state.Data,
		Owner:      state.Owner,
		Executable: state.Executable,
		RentEpoch:  state.RentEpoch,
	})
}
