// Package runtime implements a minimal single-threaded ledger runtime for
// native programs: instruction execution, cross-program invocation with
// seed-derived signing, rent accounting, and all-or-nothing transaction
// commit against a pluggable account store.
//
// The execution model follows the Solana runtime: each instruction names
// a program and an ordered account list, programs mutate account state in
// place, and a failure anywhere discards every mutation of the enclosing
// transaction. Concurrency across transactions is the caller's concern;
// a single Executor invocation runs to completion with no suspension.
package runtime

import (
	"errors"
	"fmt"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/pda"
)

// MaxInvokeDepth is the maximum cross-program invocation nesting depth.
const MaxInvokeDepth = 4

// Program is a native program implementation executed by the runtime.
type Program interface {
	// Execute runs one instruction. Account access and CPI go through ctx.
	Execute(ctx *InstructionContext, data []byte) error
}

// Runtime holds the registered native programs and ledger parameters.
type Runtime struct {
	programs map[types.Pubkey]Program
	rent     Rent
}

// New creates a runtime with the given rent parameters.
func New(rent Rent) *Runtime {
	return &Runtime{
		programs: make(map[types.Pubkey]Program),
		rent:     rent,
	}
}

// Register installs a native program at the given address.
func (r *Runtime) Register(id types.Pubkey, p Program) {
	r.programs[id] = p
}

// Rent returns the runtime's rent parameters.
func (r *Runtime) Rent() Rent {
	return r.rent
}

// execute dispatches one instruction to its program.
func (r *Runtime) execute(ctx *InstructionContext, programID types.Pubkey, data []byte) error {
	prog, ok := r.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProgram, programID)
	}
	return prog.Execute(ctx, data)
}

// InstructionContext gives a program access to its accounts, the rent
// model, logging, and cross-program invocation.
type InstructionContext struct {
	rt        *Runtime
	programID types.Pubkey
	accounts  []*AccountInfo
	logs      *[]string
	depth     int
}

// ProgramID returns the address the current program is deployed at.
func (c *InstructionContext) ProgramID() types.Pubkey {
	return c.programID
}

// NumAccounts returns the number of accounts passed to the instruction.
func (c *InstructionContext) NumAccounts() int {
	return len(c.accounts)
}

// Account returns the account at the given index.
func (c *InstructionContext) Account(index int) (*AccountInfo, error) {
	if index < 0 || index >= len(c.accounts) {
		return nil, ErrNotEnoughAccountKeys
	}
	return c.accounts[index], nil
}

// Rent returns the rent parameters in effect.
func (c *InstructionContext) Rent() Rent {
	return c.rt.rent
}

// RentMinimum returns the rent-exempt minimum for dataLen bytes.
func (c *InstructionContext) RentMinimum(dataLen uint64) uint64 {
	return c.rt.rent.MinimumBalance(dataLen)
}

// Log records a log line for the enclosing transaction.
func (c *InstructionContext) Log(format string, args ...any) {
	if c.logs != nil {
		*c.logs = append(*c.logs, fmt.Sprintf(format, args...))
	}
}

// Invoke executes another program's instruction with the caller's
// privileges.
func (c *InstructionContext) Invoke(ix Instruction) error {
	return c.InvokeSigned(ix, nil)
}

// InvokeSigned executes another program's instruction, additionally
// treating any account whose address derives from one of signerSeeds
// (under the calling program) as a signer. This is how a program
// authorizes operations on its derived addresses: presenting the exact
// seeds stands in for a private-key signature.
func (c *InstructionContext) InvokeSigned(ix Instruction, signerSeeds [][][]byte) error {
	if c.depth+1 > MaxInvokeDepth {
		return ErrCallDepthExceeded
	}

	// Resolve the seed-derived signer addresses for this invocation.
	derivedSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := pda.CreateProgramAddress(seeds, c.programID)
		if err != nil {
			return fmt.Errorf("signer seeds: %w", err)
		}
		derivedSigners[addr] = true
	}

	inner := make([]*AccountInfo, len(ix.Accounts))
	restore := make([]AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		info := c.lookup(meta.Pubkey)
		if info == nil {
			return fmt.Errorf("%w: %s", ErrAccountMismatch, meta.Pubkey)
		}

		// A callee may only receive privileges the caller already holds
		// or that the seed derivation grants.
		if meta.IsSigner && !info.IsSigner && !derivedSigners[meta.Pubkey] {
			return fmt.Errorf("%w: %s is not a signer", ErrPrivilegeEscalation, meta.Pubkey)
		}
		if meta.IsWritable && !info.IsWritable {
			return fmt.Errorf("%w: %s is not writable", ErrPrivilegeEscalation, meta.Pubkey)
		}

		restore[i] = AccountInfo{IsSigner: info.IsSigner, IsWritable: info.IsWritable}
		info.IsSigner = meta.IsSigner || derivedSigners[meta.Pubkey]
		info.IsWritable = meta.IsWritable
		inner[i] = info
	}

	ctx := &InstructionContext{
		rt:        c.rt,
		programID: ix.ProgramID,
		accounts:  inner,
		logs:      c.logs,
		depth:     c.depth + 1,
	}
	err := c.rt.execute(ctx, ix.ProgramID, ix.Data)

	// Restore in reverse so duplicate metas unwind to the caller's view.
	for i := len(inner) - 1; i >= 0; i-- {
		inner[i].IsSigner = restore[i].IsSigner
		inner[i].IsWritable = restore[i].IsWritable
	}
	return err
}

// lookup finds one of the caller's accounts by address.
func (c *InstructionContext) lookup(key types.Pubkey) *AccountInfo {
	for _, info := range c.accounts {
		if info.Key == key {
			return info
		}
	}
	return nil
}

// RunInstruction executes a single top-level instruction against the
// given accounts. Used by the Executor and by program tests.
func (r *Runtime) RunInstruction(ix Instruction, accounts []*AccountInfo, logs *[]string) error {
	infos := make([]*AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		var found *AccountInfo
		for _, info := range accounts {
			if info.Key == meta.Pubkey {
				found = info
				break
			}
		}
		if found == nil {
			return fmt.Errorf("%w: %s", ErrAccountMismatch, meta.Pubkey)
		}
		infos[i] = found
	}

	ctx := &InstructionContext{
		rt:        r,
		programID: ix.ProgramID,
		accounts:  infos,
		logs:      logs,
	}
	return r.execute(ctx, ix.ProgramID, ix.Data)
}

// IsProgramError reports whether err belongs to the runtime's program
// error space.
func IsProgramError(err error) bool {
	for _, target := range []error{
		ErrInvalidInstructionData, ErrInvalidAccountData, ErrInvalidArgument,
		ErrMissingRequiredSignature, ErrAccountAlreadyInitialized,
		ErrUninitializedAccount, ErrAccountNotRentExempt, ErrInsufficientFunds,
		ErrArithmeticOverflow, ErrNotEnoughAccountKeys, ErrIncorrectProgramID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
