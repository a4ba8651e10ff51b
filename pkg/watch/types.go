package watch

import (
	"time"

	"github.com/GotokHQ/stamp/internal/types"
)

// AccountUpdate is a single streamed account change.
type AccountUpdate struct {
	// Pubkey is the account address.
	Pubkey types.Pubkey

	// Lamports is the balance after the change.
	Lamports uint64

	// Owner is the program that owns the account.
	Owner types.Pubkey

	// Executable indicates a program account.
	Executable bool

	// RentEpoch is the account's rent epoch.
	RentEpoch uint64

	// Data is the account payload after the change.
	Data []byte

	// WriteVersion orders updates for the same account within a slot.
	WriteVersion uint64

	// Slot is the slot the change was observed in.
	Slot uint64

	// TxnSignature is the signature of the transaction that caused the
	// change, when the upstream provides it.
	TxnSignature *types.Signature

	// ReceivedAt is when the client received the update.
	ReceivedAt time.Time
}

// SlotStatus is the confirmation status of a slot update.
type SlotStatus int32

const (
	SlotProcessed SlotStatus = 0
	SlotConfirmed SlotStatus = 1
	SlotFinalized SlotStatus = 2
)

// SlotUpdate is a streamed slot progression notice.
type SlotUpdate struct {
	// Slot is the slot number.
	Slot uint64

	// ParentSlot is the parent slot, when known.
	ParentSlot *uint64

	// Status is the confirmation status.
	Status SlotStatus

	// ReceivedAt is when the client received the update.
	ReceivedAt time.Time
}

// ClientHealth is a snapshot of the watcher's connection state.
type ClientHealth struct {
	Connected      bool
	LastSlot       uint64
	LastUpdate     time.Time
	Provider       string
	Latency        time.Duration
	ReconnectCount int
	LastError      error
}
