package runtime

import (
	"bytes"
	"errors"
	"testing"
)

func TestTransactionWireRoundTrip(t *testing.T) {
	payer := newKeypair(t)
	dest := newKeypair(t)
	program := newKeypair(t)

	tx := &Transaction{
		Instructions: []Instruction{{
			ProgramID: program.pub,
			Accounts: []AccountMeta{
				{Pubkey: payer.pub, IsSigner: true, IsWritable: true},
				{Pubkey: dest.pub, IsWritable: true},
			},
			Data: []byte{1, 2, 3, 4},
		}},
	}
	signTx(tx, payer)

	decoded, err := DeserializeTransaction(tx.Serialize())
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !bytes.Equal(decoded.Serialize(), tx.Serialize()) {
		t.Error("round trip changed wire bytes")
	}
	if err := decoded.Verify(); err != nil {
		t.Errorf("verify after round trip: %v", err)
	}
	if decoded.ID() != tx.ID() {
		t.Errorf("ID changed: %s != %s", decoded.ID(), tx.ID())
	}
	if len(decoded.Instructions) != 1 || decoded.Instructions[0].ProgramID != program.pub {
		t.Errorf("instructions = %+v", decoded.Instructions)
	}
	metas := decoded.Instructions[0].Accounts
	if len(metas) != 2 || !metas[0].IsSigner || !metas[0].IsWritable || metas[1].IsSigner || !metas[1].IsWritable {
		t.Errorf("account metas = %+v", metas)
	}
}

func TestDeserializeTransactionTruncated(t *testing.T) {
	payer := newKeypair(t)
	program := newKeypair(t)

	tx := &Transaction{
		Instructions: []Instruction{{
			ProgramID: program.pub,
			Accounts:  []AccountMeta{{Pubkey: payer.pub, IsSigner: true}},
			Data:      []byte{9},
		}},
	}
	signTx(tx, payer)
	wire := tx.Serialize()

	for _, cut := range []int{1, 8, len(wire) / 2, len(wire) - 1} {
		if _, err := DeserializeTransaction(wire[:cut]); !errors.Is(err, ErrInvalidInstructionData) {
			t.Errorf("truncated at %d: err = %v, want ErrInvalidInstructionData", cut, err)
		}
	}
}

func TestDeserializeTransactionTrailingBytes(t *testing.T) {
	payer := newKeypair(t)
	program := newKeypair(t)

	tx := &Transaction{
		Instructions: []Instruction{{ProgramID: program.pub, Data: []byte{1}}},
	}
	signTx(tx, payer)

	wire := append(tx.Serialize(), 0xFF)
	if _, err := DeserializeTransaction(wire); !errors.Is(err, ErrInvalidInstructionData) {
		t.Errorf("trailing byte: err = %v, want ErrInvalidInstructionData", err)
	}
}

func TestDeserializeTransactionRejectsEmpty(t *testing.T) {
	if _, err := DeserializeTransaction(nil); !errors.Is(err, ErrInvalidInstructionData) {
		t.Errorf("empty input: err = %v, want ErrInvalidInstructionData", err)
	}
}
