package stamp

import (
	"fmt"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/pda"
	"github.com/GotokHQ/stamp/pkg/runtime"
)

// Prefix is the namespace seed of every stamp account address.
const Prefix = "stamp"

// FlagAccountSize is the exact packed size of a stamp account.
const FlagAccountSize = 1

// DefaultProgramID is the address the stamp program is deployed at.
// Operations take the program ID as a parameter so tests and alternate
// deployments can use their own identity.
var DefaultProgramID = types.MustPubkeyFromBase58("cardFRMHxFN4X1urijmqb7gWSMT7bAep4Pd4LuLciG3")

// Stamp is the persistent record: a fixed-size marker proving that a
// reference has been stamped exactly once. Its address is never stored;
// it is recomputed from the program ID and the reference key.
type Stamp struct {
	IsInit bool
}

// IsInitialized returns true once the record has been written.
func (s *Stamp) IsInitialized() bool {
	return s.IsInit
}

// Pack serializes the record into dst. dst must be exactly
// FlagAccountSize bytes; for the fixed shape used here serialization
// itself cannot fail.
func (s *Stamp) Pack(dst []byte) error {
	if len(dst) != FlagAccountSize {
		return fmt.Errorf("stamp account: %w", runtime.ErrInvalidAccountData)
	}
	if s.IsInit {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	return nil
}

// Unpack deserializes a stamp record. The buffer length must be exactly
// FlagAccountSize; within a valid buffer decoding is lenient so the
// layout can grow trailing fields without breaking old accounts.
func Unpack(src []byte) (Stamp, error) {
	if len(src) != FlagAccountSize {
		return Stamp{}, fmt.Errorf("stamp account: %w", runtime.ErrInvalidAccountData)
	}
	return Stamp{IsInit: src[0] != 0}, nil
}

// FindStampProgramAddress derives the stamp account address for a
// reference key: the PDA of [Prefix, reference] under the program.
// Deterministic; the same reference always yields the same (address,
// bump) pair for a given program identity.
func FindStampProgramAddress(programID, reference types.Pubkey) (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress(
		[][]byte{[]byte(Prefix), reference[:]},
		programID,
	)
}
