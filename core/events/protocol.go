package events

import "math/big"

const (
	// TypeMinerApproved is emitted when the authority approves a miner.
	TypeMinerApproved = "registry.approved"
	// TypeMinerOnboarded is emitted when an approved miner mints their identity NFT.
	TypeMinerOnboarded = "identity.onboarded"
	// TypeMinerRevoked is emitted when a miner's identity and balances are torn down.
	TypeMinerRevoked = "identity.revoked"
	// TypeRewardMinted is emitted for every hashrate-backed BHRT mint.
	TypeRewardMinted = "rewards.minted"
	// TypeRewardBurned is emitted when BHRT is burned from a participant.
	TypeRewardBurned = "rewards.burned"
)

// MinerApproved records a successful registry approval.
type MinerApproved struct {
	Miner []byte
	Total uint64
}

func (MinerApproved) EventType() string { return TypeMinerApproved }

// MinerOnboarded records identity issuance for a new participant.
type MinerOnboarded struct {
	Miner  []byte
	NFTID  uint64
	Name   string
	URI    string
	Power  uint64
	Minted *big.Int
}

func (MinerOnboarded) EventType() string { return TypeMinerOnboarded }

// MinerRevoked records the atomic teardown of a participant.
type MinerRevoked struct {
	Miner      []byte
	NFTID      uint64
	BurnedBHRT *big.Int
}

func (MinerRevoked) EventType() string { return TypeMinerRevoked }

// RewardMinted records a hashrate top-up mint.
type RewardMinted struct {
	Miner  []byte
	Power  uint64
	Amount *big.Int
}

func (RewardMinted) EventType() string { return TypeRewardMinted }

// RewardBurned records a reward-token burn.
type RewardBurned struct {
	Miner  []byte
	Amount *big.Int
}

func (RewardBurned) EventType() string { return TypeRewardBurned }
