package registry

// ProgramState is the singleton record anchoring the protocol: the admin
// authority, the monotonic NFT id counter, and the ordered set of approved
// miner addresses. The counter only ever increases and an address appears at
// most once in the approved set.
type ProgramState struct {
	Authority      []byte
	NFTIDCounter   uint64
	ApprovedMiners [][]byte
}

// Approved reports whether the address is present in the approved set.
func (ps *ProgramState) Approved(addr []byte) bool {
	if ps == nil || len(addr) == 0 {
		return false
	}
	for _, miner := range ps.ApprovedMiners {
		if string(miner) == string(addr) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (ps *ProgramState) Clone() *ProgramState {
	if ps == nil {
		return nil
	}
	clone := &ProgramState{
		Authority:    append([]byte(nil), ps.Authority...),
		NFTIDCounter: ps.NFTIDCounter,
	}
	if len(ps.ApprovedMiners) > 0 {
		clone.ApprovedMiners = make([][]byte, 0, len(ps.ApprovedMiners))
		for _, miner := range ps.ApprovedMiners {
			clone.ApprovedMiners = append(clone.ApprovedMiners, append([]byte(nil), miner...))
		}
	}
	return clone
}
