package stamp

import (
	"encoding/binary"
	"fmt"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/runtime"
)

// Instruction variant tags.
const (
	instructionInitStamp uint8 = 0
)

// maxReferenceLen bounds the embedded reference string when decoding.
const maxReferenceLen = 256

// InitStampArgs are the arguments of the InitStamp instruction. Bump is
// the derivation bump of the stamp account; Reference carries the
// reference in string form for clients that do not pass it as an
// account. Address derivation always uses the reference account's key.
type InitStampArgs struct {
	Bump      uint8
	Reference string
}

// encode serializes the args in borsh layout: u8 bump, then the
// reference as a u32 little-endian length prefix plus UTF-8 bytes.
func (a *InitStampArgs) encode(buf []byte) []byte {
	buf = append(buf, a.Bump)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(a.Reference)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, a.Reference...)
	return buf
}

// decodeInitStampArgs parses borsh-encoded args.
func decodeInitStampArgs(data []byte) (InitStampArgs, error) {
	if len(data) < 5 {
		return InitStampArgs{}, fmt.Errorf("init stamp args: %w", runtime.ErrInvalidInstructionData)
	}
	args := InitStampArgs{Bump: data[0]}
	refLen := binary.LittleEndian.Uint32(data[1:5])
	if refLen > maxReferenceLen || len(data) < int(5+refLen) {
		return InitStampArgs{}, fmt.Errorf("init stamp args: %w", runtime.ErrInvalidInstructionData)
	}
	args.Reference = string(data[5 : 5+refLen])
	return args, nil
}

// EncodeInitStamp serializes a full InitStamp instruction payload.
func EncodeInitStamp(args InitStampArgs) []byte {
	buf := []byte{instructionInitStamp}
	return args.encode(buf)
}

// InitStamp builds the InitStamp instruction.
//
// Accounts expected:
//
//	0. `[signer]` The authority issuing the stamp
//	1. `[signer, writable]` The fee payer
//	2. `[writable]` The stamp account, uninitialized
//	3. `[]` The reference account being stamped
//	4. `[]` The rent sysvar
//	5. `[]` The system program
func InitStamp(programID, authority, payer, stampAddr, reference types.Pubkey, args InitStampArgs) runtime.Instruction {
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			{Pubkey: authority, IsSigner: true},
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: stampAddr, IsWritable: true},
			{Pubkey: reference},
			{Pubkey: types.SysvarRentAddr},
			{Pubkey: types.SystemProgramAddr},
		},
		Data: EncodeInitStamp(args),
	}
}
