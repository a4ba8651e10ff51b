package runtime

import (
	"encoding/binary"
	"fmt"

	"github.com/GotokHQ/stamp/internal/types"
)

// maxWireInstructions bounds deserialization so a hostile payload cannot
// force huge allocations before validation.
const (
	maxWireInstructions = 64
	maxWireSigners      = 16
	maxWireAccounts     = 64
)

// Serialize returns the wire encoding of a signed transaction:
// signature count, signatures, then the canonical message bytes.
func (tx *Transaction) Serialize() []byte {
	msg := tx.Message()
	buf := make([]byte, 0, 8+len(tx.Signatures)*types.SignatureSize+len(msg))

	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(tx.Signatures)))
	buf = append(buf, scratch[:]...)
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, msg...)
}

// DeserializeTransaction parses a wire-encoded transaction. The result
// is structurally valid but not signature-verified; callers run Verify
// (or Executor.Process, which verifies) before acting on it.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	r := wireReader{data: data}

	sigCount, err := r.u64("signature count")
	if err != nil {
		return nil, err
	}
	if sigCount > maxWireSigners {
		return nil, fmt.Errorf("%w: %d signatures", ErrInvalidInstructionData, sigCount)
	}
	tx := &Transaction{Signatures: make([]types.Signature, sigCount)}
	for i := range tx.Signatures {
		b, err := r.bytes(types.SignatureSize, "signature")
		if err != nil {
			return nil, err
		}
		copy(tx.Signatures[i][:], b)
	}

	signerCount, err := r.u64("signer count")
	if err != nil {
		return nil, err
	}
	if signerCount > maxWireSigners {
		return nil, fmt.Errorf("%w: %d signers", ErrInvalidInstructionData, signerCount)
	}
	tx.Signers = make([]types.Pubkey, signerCount)
	for i := range tx.Signers {
		key, err := r.pubkey("signer")
		if err != nil {
			return nil, err
		}
		tx.Signers[i] = key
	}

	ixCount, err := r.u64("instruction count")
	if err != nil {
		return nil, err
	}
	if ixCount == 0 || ixCount > maxWireInstructions {
		return nil, fmt.Errorf("%w: %d instructions", ErrInvalidInstructionData, ixCount)
	}
	tx.Instructions = make([]Instruction, ixCount)
	for i := range tx.Instructions {
		ix, err := r.instruction()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		tx.Instructions[i] = ix
	}

	if r.pos != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidInstructionData, len(r.data)-r.pos)
	}
	return tx, nil
}

// wireReader is a cursor over wire bytes with bounds checking.
type wireReader struct {
	data []byte
	pos  int
}

func (r *wireReader) bytes(n int, what string) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: truncated %s", ErrInvalidInstructionData, what)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *wireReader) u64(what string) (uint64, error) {
	b, err := r.bytes(8, what)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *wireReader) pubkey(what string) (types.Pubkey, error) {
	b, err := r.bytes(types.PubkeySize, what)
	if err != nil {
		return types.Pubkey{}, err
	}
	var key types.Pubkey
	copy(key[:], b)
	return key, nil
}

func (r *wireReader) instruction() (Instruction, error) {
	var ix Instruction

	programID, err := r.pubkey("program id")
	if err != nil {
		return ix, err
	}
	ix.ProgramID = programID

	metaCount, err := r.u64("account count")
	if err != nil {
		return ix, err
	}
	if metaCount > maxWireAccounts {
		return ix, fmt.Errorf("%w: %d accounts", ErrInvalidInstructionData, metaCount)
	}
	ix.Accounts = make([]AccountMeta, metaCount)
	for i := range ix.Accounts {
		key, err := r.pubkey("account")
		if err != nil {
			return ix, err
		}
		flags, err := r.bytes(1, "account flags")
		if err != nil {
			return ix, err
		}
		ix.Accounts[i] = AccountMeta{
			Pubkey:     key,
			IsSigner:   flags[0]&0x01 != 0,
			IsWritable: flags[0]&0x02 != 0,
		}
	}

	dataLen, err := r.u64("data length")
	if err != nil {
		return ix, err
	}
	if dataLen > MaxAccountDataSize {
		return ix, fmt.Errorf("%w: %d byte payload", ErrInvalidInstructionData, dataLen)
	}
	payload, err := r.bytes(int(dataLen), "instruction data")
	if err != nil {
		return ix, err
	}
	ix.Data = make([]byte, dataLen)
	copy(ix.Data, payload)
	return ix, nil
}
