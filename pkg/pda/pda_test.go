package pda

import (
	"bytes"
	"testing"

	"github.com/GotokHQ/stamp/internal/types"
)

func testProgramID(t *testing.T) types.Pubkey {
	t.Helper()
	p, err := types.PubkeyFromBase58("cardFRMHxFN4X1urijmqb7gWSMT7bAep4Pd4LuLciG3")
	if err != nil {
		t.Fatalf("parse program id: %v", err)
	}
	return p
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	programID := testProgramID(t)
	seeds := [][]byte{[]byte("stamp"), bytes.Repeat([]byte{0x42}, 32)}

	addr1, bump1, err := FindProgramAddress(seeds, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	addr2, bump2, err := FindProgramAddress(seeds, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress (second call): %v", err)
	}

	if addr1 != addr2 {
		t.Errorf("address not deterministic: %s vs %s", addr1, addr2)
	}
	if bump1 != bump2 {
		t.Errorf("bump not deterministic: %d vs %d", bump1, bump2)
	}
}

func TestFindProgramAddressDistinctSeeds(t *testing.T) {
	programID := testProgramID(t)

	addrA, _, err := FindProgramAddress([][]byte{[]byte("stamp"), {0x01}}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	addrB, _, err := FindProgramAddress([][]byte{[]byte("stamp"), {0x02}}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	if addrA == addrB {
		t.Errorf("different seeds produced the same address: %s", addrA)
	}
}

func TestCreateProgramAddressMatchesFind(t *testing.T) {
	programID := testProgramID(t)
	seeds := [][]byte{[]byte("stamp"), bytes.Repeat([]byte{0x07}, 32)}

	addr, bump, err := FindProgramAddress(seeds, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	recreated, err := CreateProgramAddress(append(seeds, []byte{bump}), programID)
	if err != nil {
		t.Fatalf("CreateProgramAddress with found bump: %v", err)
	}
	if recreated != addr {
		t.Errorf("recreated address mismatch: got %s, want %s", recreated, addr)
	}
}

func TestCreateProgramAddressSeedLimits(t *testing.T) {
	programID := testProgramID(t)

	tooLong := make([]byte, MaxSeedLen+1)
	if _, err := CreateProgramAddress([][]byte{tooLong}, programID); err != ErrMaxSeedLengthExceeded {
		t.Errorf("oversized seed: got %v, want %v", err, ErrMaxSeedLengthExceeded)
	}

	tooMany := make([][]byte, MaxSeeds+1)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	if _, err := CreateProgramAddress(tooMany, programID); err != ErrMaxSeedsExceeded {
		t.Errorf("too many seeds: got %v, want %v", err, ErrMaxSeedsExceeded)
	}
}

func TestFindProgramAddressResultIsOffCurve(t *testing.T) {
	programID := testProgramID(t)

	addr, _, err := FindProgramAddress([][]byte{[]byte("stamp")}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if isOnCurve(addr[:]) {
		t.Errorf("derived address %s lies on the ed25519 curve", addr)
	}
}
