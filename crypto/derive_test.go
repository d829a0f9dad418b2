package crypto

import (
	"bytes"
	"testing"
)

var testProgram = bytes.Repeat([]byte{0xAB}, 20)

func TestDeriveProgramAddressDeterministic(t *testing.T) {
	seeds := [][]byte{[]byte("program_state")}
	addr1, bump1, err := DeriveProgramAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr2, bump2, err := DeriveProgramAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bump1 != bump2 {
		t.Fatalf("bump not deterministic: %d vs %d", bump1, bump2)
	}
	if !bytes.Equal(addr1.Bytes(), addr2.Bytes()) {
		t.Fatalf("address not deterministic: %s vs %s", addr1, addr2)
	}
	if addr1.Prefix() != ProgramPrefix {
		t.Fatalf("unexpected prefix: %s", addr1.Prefix())
	}
}

func TestDeriveProgramAddressSeedSensitivity(t *testing.T) {
	base, _, err := DeriveProgramAddress([][]byte{[]byte("amm_config")}, testProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other, _, err := DeriveProgramAddress([][]byte{[]byte("amm_config"), {0x01}}, testProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(base.Bytes(), other.Bytes()) {
		t.Fatalf("different seed lists produced the same address")
	}
	otherProgram, _, err := DeriveProgramAddress([][]byte{[]byte("amm_config")}, bytes.Repeat([]byte{0xCD}, 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(base.Bytes(), otherProgram.Bytes()) {
		t.Fatalf("different programs produced the same address")
	}
}

func TestDeriveProgramAddressRequiresSeeds(t *testing.T) {
	if _, _, err := DeriveProgramAddress(nil, testProgram); err == nil {
		t.Fatalf("expected error for empty seed list")
	}
}

func TestVerifyProgramAddress(t *testing.T) {
	seeds := [][]byte{[]byte("stablecoin_minter"), bytes.Repeat([]byte{0x42}, 20)}
	addr, bump, err := DeriveProgramAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !VerifyProgramAddress(addr, seeds, bump, testProgram) {
		t.Fatalf("expected verification to succeed")
	}
	if VerifyProgramAddress(addr, seeds, bump-1, testProgram) {
		t.Fatalf("expected verification to fail for wrong bump")
	}
	if VerifyProgramAddress(addr, [][]byte{[]byte("other")}, bump, testProgram) {
		t.Fatalf("expected verification to fail for wrong seeds")
	}
}
