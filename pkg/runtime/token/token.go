// Package token implements the fungible-token program used by the
// non-native transfer path: token accounts with the standard SPL 165-byte
// layout and the Transfer instruction.
//
// Instruction data uses the SPL encoding: a single-byte discriminant
// followed by little-endian parameters.
package token

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/runtime"
)

// ProgramID is the token program address.
var ProgramID = types.TokenProgramAddr

// AccountLen is the packed size of a token account.
const AccountLen = 165

// Instruction discriminants. Only Transfer is executed by this runtime;
// the numbering matches SPL so instruction data stays compatible.
const (
	InstructionTransfer uint8 = 3
)

// Token account states.
const (
	StateUninitialized uint8 = 0
	StateInitialized   uint8 = 1
	StateFrozen        uint8 = 2
)

// Package errors.
var (
	// ErrMintMismatch is returned when source and destination accounts
	// hold different mints.
	ErrMintMismatch = errors.New("token account mint mismatch")

	// ErrOwnerMismatch is returned when the authority is not the token
	// account owner.
	ErrOwnerMismatch = errors.New("token owner mismatch")

	// ErrAccountFrozen is returned when transferring to or from a frozen
	// account.
	ErrAccountFrozen = errors.New("token account frozen")
)

// Account is the deserialized state of a token account.
type Account struct {
	Mint            types.Pubkey
	Owner           types.Pubkey
	Amount          uint64
	Delegate        *types.Pubkey
	State           uint8
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *types.Pubkey
}

// IsInitialized returns true once the account has been initialized.
func (a *Account) IsInitialized() bool {
	return a.State != StateUninitialized
}

// Pack serializes the account into dst, which must be exactly AccountLen
// bytes.
func (a *Account) Pack(dst []byte) error {
	if len(dst) != AccountLen {
		return runtime.ErrInvalidAccountData
	}
	copy(dst[0:32], a.Mint[:])
	copy(dst[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(dst[64:72], a.Amount)
	packCOptionKey(dst[72:108], a.Delegate)
	dst[108] = a.State
	packCOptionU64(dst[109:121], a.IsNative)
	binary.LittleEndian.PutUint64(dst[121:129], a.DelegatedAmount)
	packCOptionKey(dst[129:165], a.CloseAuthority)
	return nil
}

// Unpack deserializes a token account, rejecting buffers of the wrong
// length.
func Unpack(src []byte) (*Account, error) {
	if len(src) != AccountLen {
		return nil, runtime.ErrInvalidAccountData
	}
	a := &Account{}
	copy(a.Mint[:], src[0:32])
	copy(a.Owner[:], src[32:64])
	a.Amount = binary.LittleEndian.Uint64(src[64:72])
	var err error
	if a.Delegate, err = unpackCOptionKey(src[72:108]); err != nil {
		return nil, err
	}
	a.State = src[108]
	if a.IsNative, err = unpackCOptionU64(src[109:121]); err != nil {
		return nil, err
	}
	a.DelegatedAmount = binary.LittleEndian.Uint64(src[121:129])
	if a.CloseAuthority, err = unpackCOptionKey(src[129:165]); err != nil {
		return nil, err
	}
	return a, nil
}

func packCOptionKey(dst []byte, key *types.Pubkey) {
	if key == nil {
		binary.LittleEndian.PutUint32(dst[0:4], 0)
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	copy(dst[4:36], key[:])
}

func unpackCOptionKey(src []byte) (*types.Pubkey, error) {
	switch binary.LittleEndian.Uint32(src[0:4]) {
	case 0:
		return nil, nil
	case 1:
		var key types.Pubkey
		copy(key[:], src[4:36])
		return &key, nil
	default:
		return nil, runtime.ErrInvalidAccountData
	}
}

func packCOptionU64(dst []byte, v *uint64) {
	if v == nil {
		binary.LittleEndian.PutUint32(dst[0:4], 0)
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	binary.LittleEndian.PutUint64(dst[4:12], *v)
}

func unpackCOptionU64(src []byte) (*uint64, error) {
	switch binary.LittleEndian.Uint32(src[0:4]) {
	case 0:
		return nil, nil
	case 1:
		v := binary.LittleEndian.Uint64(src[4:12])
		return &v, nil
	default:
		return nil, runtime.ErrInvalidAccountData
	}
}

// Program executes token program instructions.
type Program struct{}

// New creates the token program.
func New() *Program {
	return &Program{}
}

// Execute runs one token program instruction.
func (p *Program) Execute(ctx *runtime.InstructionContext, data []byte) error {
	if len(data) < 1 {
		return runtime.ErrInvalidInstructionData
	}

	switch data[0] {
	case InstructionTransfer:
		return p.transfer(ctx, data[1:])
	default:
		return runtime.ErrInvalidInstructionData
	}
}

// transfer moves token units between two accounts of the same mint.
// Accounts: [source (writable), destination (writable), authority (signer)].
func (p *Program) transfer(ctx *runtime.InstructionContext, data []byte) error {
	if len(data) < 8 {
		return runtime.ErrInvalidInstructionData
	}
	amount := binary.LittleEndian.Uint64(data[0:8])

	sourceInfo, err := ctx.Account(0)
	if err != nil {
		return err
	}
	destInfo, err := ctx.Account(1)
	if err != nil {
		return err
	}
	authority, err := ctx.Account(2)
	if err != nil {
		return err
	}

	if sourceInfo.Owner != ProgramID || destInfo.Owner != ProgramID {
		return runtime.ErrIncorrectProgramID
	}

	source, err := Unpack(sourceInfo.Data)
	if err != nil {
		return fmt.Errorf("source account: %w", err)
	}
	dest, err := Unpack(destInfo.Data)
	if err != nil {
		return fmt.Errorf("destination account: %w", err)
	}

	if !source.IsInitialized() || !dest.IsInitialized() {
		return runtime.ErrUninitializedAccount
	}
	if source.State == StateFrozen || dest.State == StateFrozen {
		return ErrAccountFrozen
	}
	if source.Mint != dest.Mint {
		return ErrMintMismatch
	}
	if !authority.IsSigner {
		return runtime.ErrMissingRequiredSignature
	}
	if authority.Key != source.Owner {
		return ErrOwnerMismatch
	}
	if source.Amount < amount {
		return runtime.ErrInsufficientFunds
	}
	if sourceInfo.Key == destInfo.Key {
		// Self-transfer: validated above, balances stay as they are.
		ctx.Log("TokenTransfer: %d units %s -> %s", amount, sourceInfo.Key, destInfo.Key)
		return nil
	}
	if dest.Amount > ^uint64(0)-amount {
		return runtime.ErrArithmeticOverflow
	}

	source.Amount -= amount
	dest.Amount += amount

	if err := source.Pack(sourceInfo.Data); err != nil {
		return err
	}
	if err := dest.Pack(destInfo.Data); err != nil {
		return err
	}

	ctx.Log("TokenTransfer: %d units %s -> %s", amount, sourceInfo.Key, destInfo.Key)
	return nil
}

// Transfer builds a Transfer instruction.
func Transfer(source, destination, authority types.Pubkey, amount uint64) runtime.Instruction {
	data := make([]byte, 9)
	data[0] = InstructionTransfer
	binary.LittleEndian.PutUint64(data[1:9], amount)

	return runtime.Instruction{
		ProgramID: ProgramID,
		Accounts: []runtime.AccountMeta{
			{Pubkey: source, IsWritable: true},
			{Pubkey: destination, IsWritable: true},
			{Pubkey: authority, IsSigner: true},
		},
		Data: data,
	}
}
