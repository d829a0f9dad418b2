package crypto

import (
	"errors"

	"lukechampine.com/blake3"
)

// Program address derivation. Every protocol record (program state, vaults,
// miner info, positions) lives at an address computed from a list of seed
// byte-strings plus the program identity. Derivation is a pure function: the
// same seeds always map to the same address, and the bump records which nonce
// produced the first acceptable digest so verifiers can recompute it cheaply.

const deriveDomain = "bhrt-pda-v1"

var (
	// ErrNoValidBump is returned when no bump in [0,255] yields an acceptable
	// digest. With a 256-bit hash this is not expected to occur in practice.
	ErrNoValidBump = errors.New("crypto: unable to derive program address")

	errEmptySeeds = errors.New("crypto: derivation requires at least one seed")
)

// DeriveProgramAddress computes the deterministic program-owned address for
// the given seed list. Bumps are searched from 255 downward; a digest whose
// final byte is zero is rejected and the next bump is tried, giving each seed
// list a reproducible non-collision nonce.
func DeriveProgramAddress(seeds [][]byte, program []byte) (Address, uint8, error) {
	if len(seeds) == 0 {
		return Address{}, 0, errEmptySeeds
	}
	for bump := 255; bump >= 0; bump-- {
		digest := deriveDigest(seeds, byte(bump), program)
		if digest[len(digest)-1] == 0 {
			continue
		}
		return NewAddress(ProgramPrefix, digest[:20]), uint8(bump), nil
	}
	return Address{}, 0, ErrNoValidBump
}

// VerifyProgramAddress recomputes the address for the supplied seeds and bump
// and reports whether it matches the candidate.
func VerifyProgramAddress(candidate Address, seeds [][]byte, bump uint8, program []byte) bool {
	if len(seeds) == 0 {
		return false
	}
	digest := deriveDigest(seeds, bump, program)
	if digest[len(digest)-1] == 0 {
		return false
	}
	derived := NewAddress(ProgramPrefix, digest[:20])
	if candidate.Prefix() != derived.Prefix() {
		return false
	}
	a, b := candidate.Bytes(), derived.Bytes()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func deriveDigest(seeds [][]byte, bump byte, program []byte) []byte {
	hasher := blake3.New(32, nil)
	for _, seed := range seeds {
		hasher.Write(seed)
	}
	hasher.Write([]byte{bump})
	hasher.Write(program)
	hasher.Write([]byte(deriveDomain))
	return hasher.Sum(nil)
}
