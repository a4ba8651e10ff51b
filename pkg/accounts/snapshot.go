package accounts

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/GotokHQ/stamp/internal/types"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// Snapshot file magic bytes.
var snapshotMagic = []byte{'S', 'T', 'S', 'N'}

// headerSize is the uncompressed snapshot header:
// magic (4) + version (4) + slot (8) + count (8).
const headerSize = 4 + 4 + 8 + 8

// ErrBadSnapshot is returned when a snapshot file is malformed.
var ErrBadSnapshot = errors.New("malformed snapshot")

// WriteSnapshot writes the full account state to a zstd-compressed
// snapshot file. Entries follow the header as pubkey (32) + length (4)
// + serialized account, inside a single zstd stream.
func WriteSnapshot(store *Store, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		file.Close()
		os.Remove(tmp)
	}()

	// Header with a count placeholder, patched before rename.
	header := make([]byte, headerSize)
	copy(header[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:8], snapshotVersion)
	binary.LittleEndian.PutUint64(header[8:16], store.Slot())
	if _, err := file.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	enc, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	w := bufio.NewWriter(enc)

	var count uint64
	var lenBuf [4]byte
	err = store.ForEach(func(pubkey types.Pubkey, account *Account) error {
		data := account.Serialize()
		if _, err := w.Write(pubkey[:]); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd stream: %w", err)
	}

	// Patch the account count into the header.
	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], count)
	if _, err := file.WriteAt(countBuf[:], 16); err != nil {
		return fmt.Errorf("patch header: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	return os.Rename(tmp, path)
}

// LoadSnapshot restores account state from a snapshot file into the
// store, replacing any accounts that also appear in the snapshot.
// Returns the snapshot slot.
func LoadSnapshot(store *Store, path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(file, header); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	for i := range snapshotMagic {
		if header[i] != snapshotMagic[i] {
			return 0, fmt.Errorf("%w: bad magic", ErrBadSnapshot)
		}
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != snapshotVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, v)
	}
	slot := binary.LittleEndian.Uint64(header[8:16])
	count := binary.LittleEndian.Uint64(header[16:24])

	dec, err := zstd.NewReader(file)
	if err != nil {
		return 0, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	r := bufio.NewReader(dec)

	var keyBuf [types.PubkeySize]byte
	var lenBuf [4]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, keyBuf[:]); err != nil {
			return 0, fmt.Errorf("%w: truncated at account %d", ErrBadSnapshot, i)
		}
		pubkey, _ := types.PubkeyFromBytes(keyBuf[:])

		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return 0, fmt.Errorf("%w: truncated at account %d", ErrBadSnapshot, i)
		}
		data := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(r, data); err != nil {
			return 0, fmt.Errorf("%w: truncated at account %d", ErrBadSnapshot, i)
		}

		account, err := DeserializeAccount(data)
		if err != nil {
			return 0, fmt.Errorf("account %s: %w", pubkey, err)
		}
		if err := store.SetAccount(pubkey, account); err != nil {
			return 0, fmt.Errorf("restore account %s: %w", pubkey, err)
		}
	}

	if err := store.SetSlot(slot); err != nil {
		return 0, fmt.Errorf("restore slot: %w", err)
	}
	return slot, nil
}
