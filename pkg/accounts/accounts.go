// Package accounts implements persistent storage for ledger account
// state, keyed by pubkey and backed by BadgerDB.
//
// Each account is stored in a compact binary format with a BLAKE3
// checksum over the encoded payload, so corruption in the value log is
// detected on read rather than silently interpreted as state. The
// package also provides zstd-compressed snapshots of the full store and
// an adapter implementing the executor's StateStore interface.
package accounts

import (
	"encoding/binary"
	"errors"

	"github.com/zeebo/blake3"

	"github.com/GotokHQ/stamp/internal/types"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCorrupted is returned when data corruption is detected.
	ErrCorrupted = errors.New("data corrupted")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrInvalidData is returned when stored account data is malformed.
	ErrInvalidData = errors.New("invalid account data")
)

// checksumSize is the size of the BLAKE3 checksum trailing every
// serialized account.
const checksumSize = 32

// Account is the persisted state of a single ledger account.
type Account struct {
	// Lamports is the account balance.
	Lamports uint64

	// Data is the account payload. For stamp accounts this is the
	// packed record.
	Data []byte

	// Owner is the program that owns this account.
	Owner types.Pubkey

	// Executable indicates a program account.
	Executable bool

	// RentEpoch is the epoch at which rent was last collected.
	RentEpoch uint64
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	dataCopy := make([]byte, len(a.Data))
	copy(dataCopy, a.Data)
	return &Account{
		Lamports:   a.Lamports,
		Data:       dataCopy,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

// IsZero returns true if the account has no lamports and no data.
// Zero accounts are deleted from storage rather than kept.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Size returns the total serialized size of the account.
func (a *Account) Size() int {
	// lamports (8) + data_len (8) + data + owner (32) + executable (1)
	// + rent_epoch (8) + checksum (32)
	return 8 + 8 + len(a.Data) + 32 + 1 + 8 + checksumSize
}

// Serialize encodes the account for storage and appends a BLAKE3
// checksum over the encoded payload.
func (a *Account) Serialize() []byte {
	buf := make([]byte, a.Size())
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], a.Lamports)
	offset += 8

	binary.LittleEndian.PutUint64(buf[offset:], uint64(len(a.Data)))
	offset += 8

	copy(buf[offset:], a.Data)
	offset += len(a.Data)

	copy(buf[offset:], a.Owner[:])
	offset += 32

	if a.Executable {
		buf[offset] = 1
	}
	offset++

	binary.LittleEndian.PutUint64(buf[offset:], a.RentEpoch)
	offset += 8

	sum := blake3.Sum256(buf[:offset])
	copy(buf[offset:], sum[:])
	return buf
}

// DeserializeAccount decodes a stored account, verifying its checksum.
func DeserializeAccount(data []byte) (*Account, error) {
	const fixedSize = 8 + 8 + 32 + 1 + 8 + checksumSize
	if len(data) < fixedSize {
		return nil, ErrInvalidData
	}

	payload := data[:len(data)-checksumSize]
	sum := blake3.Sum256(payload)
	stored := data[len(data)-checksumSize:]
	for i := range sum {
		if sum[i] != stored[i] {
			return nil, ErrCorrupted
		}
	}

	a := &Account{}
	offset := 0

	a.Lamports = binary.LittleEndian.Uint64(payload[offset:])
	offset += 8

	dataLen := binary.LittleEndian.Uint64(payload[offset:])
	offset += 8

	if uint64(len(payload)) != uint64(fixedSize-checksumSize)+dataLen {
		return nil, ErrInvalidData
	}
	a.Data = make([]byte, dataLen)
	copy(a.Data, payload[offset:offset+int(dataLen)])
	offset += int(dataLen)

	copy(a.Owner[:], payload[offset:])
	offset += 32

	a.Executable = payload[offset] != 0
	offset++

	a.RentEpoch = binary.LittleEndian.Uint64(payload[offset:])
	return a, nil
}
