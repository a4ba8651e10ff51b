// Package system implements the System Program: account creation,
// lamport transfers, space allocation, and ownership assignment.
//
// Instruction data uses bincode encoding: a little-endian u32
// discriminant followed by the fixed-width parameters.
package system

import (
	"encoding/binary"
	"fmt"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/runtime"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants. The gaps cover nonce instructions this
// runtime does not execute; keeping the numbering preserves wire
// compatibility with standard clients.
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// Program executes System Program instructions.
type Program struct{}

// New creates the System Program.
func New() *Program {
	return &Program{}
}

// Execute runs one System Program instruction.
func (p *Program) Execute(ctx *runtime.InstructionContext, data []byte) error {
	if len(data) < 4 {
		return runtime.ErrInvalidInstructionData
	}

	switch binary.LittleEndian.Uint32(data[:4]) {
	case InstructionCreateAccount:
		return p.createAccount(ctx, data[4:])
	case InstructionAssign:
		return p.assign(ctx, data[4:])
	case InstructionTransfer:
		return p.transfer(ctx, data[4:])
	case InstructionAllocate:
		return p.allocate(ctx, data[4:])
	default:
		return runtime.ErrInvalidInstructionData
	}
}

// createAccount funds, allocates, and assigns a brand-new account in one
// step. Accounts: [funder (signer, writable), new account (signer, writable)].
func (p *Program) createAccount(ctx *runtime.InstructionContext, data []byte) error {
	if len(data) < 48 {
		return runtime.ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(data[0:8])
	space := binary.LittleEndian.Uint64(data[8:16])
	owner, _ := types.PubkeyFromBytes(data[16:48])

	if space > runtime.MaxAccountDataSize {
		return fmt.Errorf("%w: space %d exceeds maximum", runtime.ErrInvalidInstructionData, space)
	}

	funder, err := ctx.Account(0)
	if err != nil {
		return err
	}
	newAccount, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if !funder.IsSigner {
		return runtime.ErrMissingRequiredSignature
	}
	if !newAccount.IsSigner {
		return runtime.ErrMissingRequiredSignature
	}
	if !newAccount.IsEmpty() {
		return fmt.Errorf("account %s: %w", newAccount.Key, runtime.ErrAccountAlreadyInitialized)
	}
	if funder.Lamports < lamports {
		return runtime.ErrInsufficientFunds
	}

	funder.Lamports -= lamports
	newAccount.Lamports = lamports
	newAccount.Data = make([]byte, space)
	newAccount.Owner = owner

	ctx.Log("CreateAccount: %s", newAccount.Key)
	return nil
}

// assign changes the owner of a system-owned account.
// Accounts: [account (signer, writable)].
func (p *Program) assign(ctx *runtime.InstructionContext, data []byte) error {
	if len(data) < 32 {
		return runtime.ErrInvalidInstructionData
	}
	newOwner, _ := types.PubkeyFromBytes(data[0:32])

	account, err := ctx.Account(0)
	if err != nil {
		return err
	}

	if !account.IsSigner {
		return runtime.ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return fmt.Errorf("account %s: %w", account.Key, runtime.ErrIncorrectProgramID)
	}

	account.Owner = newOwner

	ctx.Log("Assign: %s -> %s", account.Key, newOwner)
	return nil
}

// transfer moves lamports between accounts.
// Accounts: [from (signer, writable), to (writable)].
func (p *Program) transfer(ctx *runtime.InstructionContext, data []byte) error {
	if len(data) < 8 {
		return runtime.ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(data[0:8])

	from, err := ctx.Account(0)
	if err != nil {
		return err
	}
	to, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if !from.IsSigner {
		return runtime.ErrMissingRequiredSignature
	}
	if from.Lamports < lamports {
		return runtime.ErrInsufficientFunds
	}
	if to.Lamports > ^uint64(0)-lamports {
		return runtime.ErrArithmeticOverflow
	}

	from.Lamports -= lamports
	to.Lamports += lamports

	ctx.Log("Transfer: %d lamports %s -> %s", lamports, from.Key, to.Key)
	return nil
}

// allocate grows a system-owned account's data to the requested size.
// Accounts: [account (signer, writable)].
func (p *Program) allocate(ctx *runtime.InstructionContext, data []byte) error {
	if len(data) < 8 {
		return runtime.ErrInvalidInstructionData
	}
	space := binary.LittleEndian.Uint64(data[0:8])

	if space > runtime.MaxAccountDataSize {
		return fmt.Errorf("%w: space %d exceeds maximum", runtime.ErrInvalidInstructionData, space)
	}

	account, err := ctx.Account(0)
	if err != nil {
		return err
	}

	if !account.IsSigner {
		return runtime.ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return fmt.Errorf("account %s: %w", account.Key, runtime.ErrIncorrectProgramID)
	}
	if uint64(len(account.Data)) > space {
		return fmt.Errorf("%w: cannot shrink account", runtime.ErrInvalidInstructionData)
	}

	if uint64(len(account.Data)) < space {
		newData := make([]byte, space)
		copy(newData, account.Data)
		account.Data = newData
	}

	ctx.Log("Allocate: %s to %d bytes", account.Key, space)
	return nil
}

// CreateAccount builds a CreateAccount instruction.
func CreateAccount(funder, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) runtime.Instruction {
	data := make([]byte, 52)
	binary.LittleEndian.PutUint32(data[0:4], InstructionCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:52], owner[:])

	return runtime.Instruction{
		ProgramID: ProgramID,
		Accounts: []runtime.AccountMeta{
			{Pubkey: funder, IsSigner: true, IsWritable: true},
			{Pubkey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// Assign builds an Assign instruction.
func Assign(account, owner types.Pubkey) runtime.Instruction {
	data := make([]byte, 36)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAssign)
	copy(data[4:36], owner[:])

	return runtime.Instruction{
		ProgramID: ProgramID,
		Accounts: []runtime.AccountMeta{
			{Pubkey: account, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// Transfer builds a Transfer instruction.
func Transfer(from, to types.Pubkey, lamports uint64) runtime.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], InstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return runtime.Instruction{
		ProgramID: ProgramID,
		Accounts: []runtime.AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: data,
	}
}

// Allocate builds an Allocate instruction.
func Allocate(account types.Pubkey, space uint64) runtime.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAllocate)
	binary.LittleEndian.PutUint64(data[4:12], space)

	return runtime.Instruction{
		ProgramID: ProgramID,
		Accounts: []runtime.AccountMeta{
			{Pubkey: account, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}
