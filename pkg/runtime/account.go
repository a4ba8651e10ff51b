package runtime

import (
	"github.com/GotokHQ/stamp/internal/types"
)

// Maximum account data size.
const MaxAccountDataSize = 10 * 1024 * 1024 // 10 MB

// AccountMeta describes an account referenced by an instruction.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation: the program to run, the
// accounts it may touch, and its opaque instruction data.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// AccountInfo holds account state during execution. Programs mutate
// Lamports, Data and Owner in place; the executor decides whether those
// mutations are committed.
type AccountInfo struct {
	Key        types.Pubkey
	Owner      types.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// IsEmpty returns true if the account holds no lamports, no data, and is
// still owned by the system program. This is the state of an address that
// has never been created.
func (a *AccountInfo) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner == types.SystemProgramAddr
}

// AccountState is the persisted portion of an account, as stored outside
// a transaction.
type AccountState struct {
	Lamports   uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
}

// clone returns a deep copy of the state.
func (s AccountState) clone() AccountState {
	out := s
	if s.Data != nil {
		out.Data = make([]byte, len(s.Data))
		copy(out.Data, s.Data)
	}
	return out
}
