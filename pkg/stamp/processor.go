// Package stamp implements the stamp ledger program: creation of a
// uniquely-addressed, tamper-evident record for a reference key, plus
// the value-transfer and validation primitives the creation path needs.
//
// A stamp account lives at the program-derived address of
// [Prefix, reference key] and holds a single initialization flag. The
// program exposes one state transition, InitStamp, which creates and
// initializes that account exactly once; a second attempt for the same
// reference fails because the address is already in use.
package stamp

import (
	"fmt"

	"github.com/GotokHQ/stamp/pkg/runtime"
)

// Account indexes of the InitStamp instruction.
const (
	idxAuthority = iota
	idxPayer
	idxStamp
	idxReference
	idxRent
	idxSystem
)

// Processor executes stamp program instructions.
type Processor struct{}

// NewProcessor creates the stamp program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Execute decodes the instruction payload and routes it.
func (p *Processor) Execute(ctx *runtime.InstructionContext, data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("instruction tag: %w", ErrInvalidInstruction)
	}

	switch data[0] {
	case instructionInitStamp:
		args, err := decodeInitStampArgs(data[1:])
		if err != nil {
			return err
		}
		ctx.Log("Instruction: Init Stamp")
		return p.initStamp(ctx, args)
	default:
		return fmt.Errorf("instruction tag %d: %w", data[0], ErrInvalidInstruction)
	}
}

// initStamp creates and initializes the stamp account for a reference.
// The transition is strictly linear; every check is a hard abort and the
// enclosing transaction rolls back completely on failure.
func (p *Processor) initStamp(ctx *runtime.InstructionContext, args InitStampArgs) error {
	authority, err := ctx.Account(idxAuthority)
	if err != nil {
		return err
	}
	payer, err := ctx.Account(idxPayer)
	if err != nil {
		return err
	}
	stampInfo, err := ctx.Account(idxStamp)
	if err != nil {
		return err
	}
	reference, err := ctx.Account(idxReference)
	if err != nil {
		return err
	}
	if _, err := ctx.Account(idxSystem); err != nil {
		return err
	}

	if err := AssertSigner(authority); err != nil {
		return err
	}

	// An address that is already funded and holds data was stamped
	// before; creation is at-most-once per reference.
	if stampInfo.Lamports > 0 && len(stampInfo.Data) > 0 {
		return runtime.ErrAccountAlreadyInitialized
	}

	// The bump is caller-supplied; only the correct value produces an
	// address matching the stamp account, and a mismatch fails inside
	// the seed-signature verification of the creation calls.
	seeds := [][]byte{
		[]byte(Prefix),
		reference.Key[:],
		{args.Bump},
	}
	if err := CreateNewAccountRaw(ctx, ctx.ProgramID(), stampInfo, payer, FlagAccountSize, seeds); err != nil {
		return err
	}

	record, err := Unpack(stampInfo.Data)
	if err != nil {
		return err
	}
	if err := AssertUninitialized(&record); err != nil {
		return err
	}

	record.IsInit = true
	return record.Pack(stampInfo.Data)
}
