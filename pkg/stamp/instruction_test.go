package stamp

import (
	"errors"
	"testing"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/runtime"
)

func TestInitStampArgsEncodeDecode(t *testing.T) {
	args := InitStampArgs{Bump: 254, Reference: "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"}

	data := EncodeInitStamp(args)
	if data[0] != instructionInitStamp {
		t.Fatalf("instruction tag: got %d, want %d", data[0], instructionInitStamp)
	}
	got, err := decodeInitStampArgs(data[1:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != args {
		t.Errorf("decoded args: got %+v, want %+v", got, args)
	}
}

func TestDecodeInitStampArgsRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "bump only", data: []byte{255}},
		{name: "truncated length prefix", data: []byte{255, 4, 0}},
		{name: "length beyond payload", data: []byte{255, 10, 0, 0, 0, 'a', 'b'}},
		{name: "oversized length", data: []byte{255, 0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeInitStampArgs(tt.data); !errors.Is(err, runtime.ErrInvalidInstructionData) {
				t.Errorf("got %v, want %v", err, runtime.ErrInvalidInstructionData)
			}
		})
	}
}

func TestInitStampAccountOrder(t *testing.T) {
	programID := DefaultProgramID
	authority := newKeypair(t).pub
	payer := newKeypair(t).pub
	reference := newKeypair(t).pub
	stampAddr, bump, err := FindStampProgramAddress(programID, reference)
	if err != nil {
		t.Fatalf("FindStampProgramAddress: %v", err)
	}

	ix := InitStamp(programID, authority, payer, stampAddr, reference,
		InitStampArgs{Bump: bump, Reference: reference.String()})

	want := []struct {
		pubkey   types.Pubkey
		signer   bool
		writable bool
	}{
		{authority, true, false},
		{payer, true, true},
		{stampAddr, false, true},
		{reference, false, false},
		{types.SysvarRentAddr, false, false},
		{types.SystemProgramAddr, false, false},
	}
	if len(ix.Accounts) != len(want) {
		t.Fatalf("account count: got %d, want %d", len(ix.Accounts), len(want))
	}
	for i, w := range want {
		meta := ix.Accounts[i]
		if meta.Pubkey != w.pubkey || meta.IsSigner != w.signer || meta.IsWritable != w.writable {
			t.Errorf("account %d: got %+v, want %+v", i, meta, w)
		}
	}
	if ix.ProgramID != programID {
		t.Errorf("program id: got %s, want %s", ix.ProgramID, programID)
	}
}
