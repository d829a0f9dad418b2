package rewards

// MinerInfo maintains the mining ledger entry for an onboarded participant.
// HashratePower and MintAmount accumulate across repeated top-ups; the record
// is created at onboarding and deleted at revocation.
type MinerInfo struct {
	Miner               []byte
	HashratePower       uint64
	MintAmount          uint64
	HashrateTokenSymbol string
	Name                string
	LegalDocumentURI    string
	NFTID               uint64
}

var minerInfoPrefix = []byte("rewards/miner/")

func minerInfoKey(addr []byte) []byte {
	buf := make([]byte, len(minerInfoPrefix)+len(addr))
	copy(buf, minerInfoPrefix)
	copy(buf[len(minerInfoPrefix):], addr)
	return buf
}
