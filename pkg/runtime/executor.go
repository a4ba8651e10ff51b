package runtime

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/GotokHQ/stamp/internal/types"
)

// StateStore is the persistence boundary of the executor. Implementations
// must return the current committed state of an account, or ok=false for
// an address that has never been written.
type StateStore interface {
	// Account returns the committed state of an account.
	Account(key types.Pubkey) (AccountState, bool, error)

	// SetAccount commits new state for an account.
	SetAccount(key types.Pubkey, state AccountState) error
}

// Transaction is a signed batch of instructions executed atomically.
type Transaction struct {
	// Instructions run in order; the first failure aborts the whole
	// transaction.
	Instructions []Instruction

	// Signers lists the public keys that authorized this transaction.
	Signers []types.Pubkey

	// Signatures holds one ed25519 signature per signer, over Message().
	Signatures []types.Signature
}

// Message returns the canonical byte encoding the signers sign over:
// signer count, signer keys, then each instruction as
// program id + account metas + length-prefixed data, all little-endian.
func (tx *Transaction) Message() []byte {
	var buf []byte
	var scratch [8]byte

	binary.LittleEndian.PutUint64(scratch[:], uint64(len(tx.Signers)))
	buf = append(buf, scratch[:]...)
	for _, s := range tx.Signers {
		buf = append(buf, s[:]...)
	}

	binary.LittleEndian.PutUint64(scratch[:], uint64(len(tx.Instructions)))
	buf = append(buf, scratch[:]...)
	for _, ix := range tx.Instructions {
		buf = append(buf, ix.ProgramID[:]...)
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(ix.Accounts)))
		buf = append(buf, scratch[:]...)
		for _, meta := range ix.Accounts {
			buf = append(buf, meta.Pubkey[:]...)
			var flags byte
			if meta.IsSigner {
				flags |= 0x01
			}
			if meta.IsWritable {
				flags |= 0x02
			}
			buf = append(buf, flags)
		}
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(ix.Data)))
		buf = append(buf, scratch[:]...)
		buf = append(buf, ix.Data...)
	}
	return buf
}

// ID returns the transaction identifier: its first signature.
func (tx *Transaction) ID() types.Signature {
	if len(tx.Signatures) == 0 {
		return types.Signature{}
	}
	return tx.Signatures[0]
}

// Verify checks that every signer produced a valid signature over the
// transaction message.
func (tx *Transaction) Verify() error {
	if len(tx.Signatures) != len(tx.Signers) {
		return fmt.Errorf("%w: %d signatures for %d signers",
			ErrSignatureVerificationFailed, len(tx.Signatures), len(tx.Signers))
	}
	msg := tx.Message()
	for i, signer := range tx.Signers {
		if !tx.Signatures[i].Verify(signer, msg) {
			return fmt.Errorf("%w: signer %s", ErrSignatureVerificationFailed, signer)
		}
	}
	return nil
}

// Result describes the outcome of one transaction.
type Result struct {
	// Signature is the transaction ID.
	Signature types.Signature

	// Slot is the slot the transaction was processed at.
	Slot uint64

	// Err is nil on success, otherwise the error that aborted execution.
	Err error

	// Logs are the log lines emitted during execution, kept even on
	// failure for diagnostics.
	Logs []string
}

// Executor runs transactions against a state store with all-or-nothing
// commit: every account mutation of a transaction is staged on copies of
// the committed state and written back only if every instruction
// succeeds. A failure at any point leaves the store untouched.
type Executor struct {
	rt    *Runtime
	store StateStore
}

// NewExecutor creates an executor over the given runtime and store.
func NewExecutor(rt *Runtime, store StateStore) *Executor {
	return &Executor{rt: rt, store: store}
}

// Process verifies and executes one transaction at the given slot.
// The returned Result carries the execution error, if any; the error
// return is reserved for store failures.
func (e *Executor) Process(tx *Transaction, slot uint64) (*Result, error) {
	res := &Result{Signature: tx.ID(), Slot: slot}

	if err := tx.Verify(); err != nil {
		res.Err = err
		return res, nil
	}

	signers := make(map[types.Pubkey]bool, len(tx.Signers))
	for _, s := range tx.Signers {
		signers[s] = true
	}

	// Stage every referenced account. Unknown addresses start as empty
	// system-owned accounts, which is how a yet-to-be-created derived
	// address appears to a program.
	staged := make(map[types.Pubkey]*AccountInfo)
	order := make([]types.Pubkey, 0)
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			info, ok := staged[meta.Pubkey]
			if !ok {
				state, found, err := e.store.Account(meta.Pubkey)
				if err != nil {
					return nil, fmt.Errorf("load account %s: %w", meta.Pubkey, err)
				}
				if !found {
					state = AccountState{Owner: types.SystemProgramAddr}
				} else {
					state = state.clone()
				}
				info = &AccountInfo{
					Key:        meta.Pubkey,
					Owner:      state.Owner,
					Lamports:   state.Lamports,
					Data:       state.Data,
					Executable: state.Executable,
					RentEpoch:  state.RentEpoch,
				}
				staged[meta.Pubkey] = info
				order = append(order, meta.Pubkey)
			}
			// Privileges accumulate across instructions; a signer meta
			// only takes effect if the key actually signed.
			if meta.IsSigner && signers[meta.Pubkey] {
				info.IsSigner = true
			}
			if meta.IsWritable {
				info.IsWritable = true
			}
		}
	}

	accounts := make([]*AccountInfo, 0, len(order))
	for _, key := range order {
		accounts = append(accounts, staged[key])
	}

	// Snapshot the read-only accounts so writes that sneak past the meta
	// flags fail the transaction instead of vanishing at commit.
	readonly := make(map[types.Pubkey]AccountState)
	for _, key := range order {
		info := staged[key]
		if info.IsWritable {
			continue
		}
		readonly[key] = AccountState{
			Lamports:   info.Lamports,
			Data:       append([]byte(nil), info.Data...),
			Owner:      info.Owner,
			Executable: info.Executable,
			RentEpoch:  info.RentEpoch,
		}
	}

	for i, ix := range tx.Instructions {
		if err := e.rt.RunInstruction(ix, accounts, &res.Logs); err != nil {
			res.Err = fmt.Errorf("instruction %d: %w", i, err)
			return res, nil
		}
	}

	for _, key := range order {
		snap, ok := readonly[key]
		if !ok {
			continue
		}
		info := staged[key]
		if info.Lamports != snap.Lamports || info.Owner != snap.Owner ||
			info.Executable != snap.Executable || info.RentEpoch != snap.RentEpoch ||
			!bytes.Equal(info.Data, snap.Data) {
			res.Err = fmt.Errorf("%w: %s", ErrReadonlyModified, key)
			return res, nil
		}
	}

	// Commit: only writable accounts may have changed.
	for _, key := range order {
		info := staged[key]
		if !info.IsWritable {
			continue
		}
		state := AccountState{
			Lamports:   info.Lamports,
			Data:       info.Data,
			Owner:      info.Owner,
			Executable: info.Executable,
			RentEpoch:  info.RentEpoch,
		}
		if err := e.store.SetAccount(key, state); err != nil {
			return nil, fmt.Errorf("commit account %s: %w", key, err)
		}
	}

	return res, nil
}
