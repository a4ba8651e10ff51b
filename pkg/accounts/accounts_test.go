package accounts

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/GotokHQ/stamp/internal/types"
)

func randomPubkey(t *testing.T) types.Pubkey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := types.PubkeyFromBytes(pub)
	if err != nil {
		t.Fatalf("pubkey from bytes: %v", err)
	}
	return key
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAccountSerializeRoundTrip(t *testing.T) {
	owner := randomPubkey(t)
	account := &Account{
		Lamports:   1_000_000,
		Data:       []byte{1, 2, 3, 4, 5},
		Owner:      owner,
		Executable: true,
		RentEpoch:  42,
	}

	decoded, err := DeserializeAccount(account.Serialize())
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if decoded.Lamports != account.Lamports {
		t.Errorf("lamports = %d, want %d", decoded.Lamports, account.Lamports)
	}
	if !bytes.Equal(decoded.Data, account.Data) {
		t.Errorf("data = %x, want %x", decoded.Data, account.Data)
	}
	if decoded.Owner != owner {
		t.Errorf("owner = %s, want %s", decoded.Owner, owner)
	}
	if !decoded.Executable {
		t.Error("executable flag lost")
	}
	if decoded.RentEpoch != 42 {
		t.Errorf("rent epoch = %d, want 42", decoded.RentEpoch)
	}
}

func TestAccountSerializeEmptyData(t *testing.T) {
	account := &Account{Lamports: 7, Owner: randomPubkey(t)}
	decoded, err := DeserializeAccount(account.Serialize())
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(decoded.Data) != 0 {
		t.Errorf("data length = %d, want 0", len(decoded.Data))
	}
}

func TestDeserializeDetectsCorruption(t *testing.T) {
	account := &Account{
		Lamports: 500,
		Data:     []byte("hello"),
		Owner:    randomPubkey(t),
	}
	encoded := account.Serialize()

	// Flip a byte in the payload.
	encoded[3] ^= 0xFF
	if _, err := DeserializeAccount(encoded); !errors.Is(err, ErrCorrupted) {
		t.Errorf("payload corruption: err = %v, want ErrCorrupted", err)
	}
}

func TestDeserializeRejectsShortInput(t *testing.T) {
	if _, err := DeserializeAccount(make([]byte, 10)); !errors.Is(err, ErrInvalidData) {
		t.Errorf("short input: err = %v, want ErrInvalidData", err)
	}
}

func TestDeserializeRejectsLengthMismatch(t *testing.T) {
	account := &Account{Lamports: 1, Data: []byte{1, 2, 3}, Owner: randomPubkey(t)}
	encoded := account.Serialize()

	// Truncate one data byte and recompute nothing; the checksum fails
	// first, so instead corrupt the declared length to keep the
	// checksum valid over a different shape.
	truncated := encoded[:len(encoded)-1]
	_, err := DeserializeAccount(truncated)
	if err == nil {
		t.Error("truncated account deserialized without error")
	}
}

func TestStoreSetGet(t *testing.T) {
	store := openTestStore(t)

	key := randomPubkey(t)
	account := &Account{
		Lamports: 123456,
		Data:     []byte{0xAA, 0xBB},
		Owner:    randomPubkey(t),
	}
	if err := store.SetAccount(key, account); err != nil {
		t.Fatalf("set account: %v", err)
	}

	got, err := store.GetAccount(key)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Lamports != account.Lamports || !bytes.Equal(got.Data, account.Data) {
		t.Errorf("got %+v, want %+v", got, account)
	}

	exists, err := store.HasAccount(key)
	if err != nil {
		t.Fatalf("has account: %v", err)
	}
	if !exists {
		t.Error("HasAccount = false after SetAccount")
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.GetAccount(randomPubkey(t)); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("missing account: err = %v, want ErrAccountNotFound", err)
	}
}

func TestStoreZeroAccountDeleted(t *testing.T) {
	store := openTestStore(t)

	key := randomPubkey(t)
	if err := store.SetAccount(key, &Account{Lamports: 10, Owner: randomPubkey(t)}); err != nil {
		t.Fatalf("set account: %v", err)
	}
	if err := store.SetAccount(key, &Account{}); err != nil {
		t.Fatalf("set zero account: %v", err)
	}

	exists, err := store.HasAccount(key)
	if err != nil {
		t.Fatalf("has account: %v", err)
	}
	if exists {
		t.Error("zero account still present")
	}
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)

	key := randomPubkey(t)
	if err := store.SetAccount(key, &Account{Lamports: 10, Owner: randomPubkey(t)}); err != nil {
		t.Fatalf("set account: %v", err)
	}
	if err := store.DeleteAccount(key); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if _, err := store.GetAccount(key); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("deleted account: err = %v, want ErrAccountNotFound", err)
	}

	// Deleting a missing account is not an error.
	if err := store.DeleteAccount(randomPubkey(t)); err != nil {
		t.Errorf("delete missing account: %v", err)
	}
}

func TestStoreForEach(t *testing.T) {
	store := openTestStore(t)

	want := make(map[types.Pubkey]uint64)
	for i := 0; i < 5; i++ {
		key := randomPubkey(t)
		want[key] = uint64(i + 1)
		err := store.SetAccount(key, &Account{Lamports: uint64(i + 1), Owner: randomPubkey(t)})
		if err != nil {
			t.Fatalf("set account %d: %v", i, err)
		}
	}

	seen := make(map[types.Pubkey]uint64)
	err := store.ForEach(func(pubkey types.Pubkey, account *Account) error {
		seen[pubkey] = account.Lamports
		return nil
	})
	if err != nil {
		t.Fatalf("for each: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatalf("visited %d accounts, want %d", len(seen), len(want))
	}
	for key, lamports := range want {
		if seen[key] != lamports {
			t.Errorf("account %s lamports = %d, want %d", key, seen[key], lamports)
		}
	}
}

func TestStoreSlot(t *testing.T) {
	store := openTestStore(t)

	if store.Slot() != 0 {
		t.Errorf("initial slot = %d, want 0", store.Slot())
	}
	if err := store.SetSlot(77); err != nil {
		t.Fatalf("set slot: %v", err)
	}
	if store.Slot() != 77 {
		t.Errorf("slot = %d, want 77", store.Slot())
	}
}

func TestStoreClosed(t *testing.T) {
	store := openTestStore(t)
	store.Close()

	if _, err := store.GetAccount(randomPubkey(t)); !errors.Is(err, ErrClosed) {
		t.Errorf("get on closed store: err = %v, want ErrClosed", err)
	}
	if err := store.SetAccount(randomPubkey(t), &Account{Lamports: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("set on closed store: err = %v, want ErrClosed", err)
	}
}

func TestStateStoreAdapter(t *testing.T) {
	store := openTestStore(t)
	state := NewStateStore(store)

	key := randomPubkey(t)
	got, exists, err := state.Account(key)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if exists {
		t.Errorf("missing account reported present: %+v", got)
	}

	owner := randomPubkey(t)
	if err := store.SetAccount(key, &Account{Lamports: 9, Data: []byte{1}, Owner: owner}); err != nil {
		t.Fatalf("set account: %v", err)
	}
	got, exists, err = state.Account(key)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if !exists || got.Lamports != 9 || got.Owner != owner {
		t.Errorf("adapter state = %+v (exists %v)", got, exists)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := openTestStore(t)

	accounts := make(map[types.Pubkey]*Account)
	for i := 0; i < 8; i++ {
		key := randomPubkey(t)
		accounts[key] = &Account{
			Lamports:  uint64(1000 * (i + 1)),
			Data:      bytes.Repeat([]byte{byte(i)}, i),
			Owner:     randomPubkey(t),
			RentEpoch: uint64(i),
		}
		if err := src.SetAccount(key, accounts[key]); err != nil {
			t.Fatalf("set account %d: %v", i, err)
		}
	}
	if err := src.SetSlot(321); err != nil {
		t.Fatalf("set slot: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snap.stsn")
	if err := WriteSnapshot(src, path); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	dst := openTestStore(t)
	slot, err := LoadSnapshot(dst, path)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if slot != 321 {
		t.Errorf("snapshot slot = %d, want 321", slot)
	}
	if dst.Slot() != 321 {
		t.Errorf("restored slot = %d, want 321", dst.Slot())
	}

	for key, want := range accounts {
		got, err := dst.GetAccount(key)
		if err != nil {
			t.Fatalf("restored account %s: %v", key, err)
		}
		if got.Lamports != want.Lamports || !bytes.Equal(got.Data, want.Data) || got.Owner != want.Owner {
			t.Errorf("account %s = %+v, want %+v", key, got, want)
		}
	}
}

func TestSnapshotRejectsBadMagic(t *testing.T) {
	src := openTestStore(t)
	path := filepath.Join(t.TempDir(), "snap.stsn")
	if err := WriteSnapshot(src, path); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	raw[0] = 'X'
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("rewrite snapshot: %v", err)
	}

	dst := openTestStore(t)
	if _, err := LoadSnapshot(dst, path); !errors.Is(err, ErrBadSnapshot) {
		t.Errorf("bad magic: err = %v, want ErrBadSnapshot", err)
	}
}
