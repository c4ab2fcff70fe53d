package rewards

import (
	"errors"
	"math/big"
)

var (
	ErrInvalidAmount        = errors.New("rewards: amount below minimum")
	ErrInvalidRecipient     = errors.New("rewards: invalid recipient")
	ErrInvalidExpiry        = errors.New("rewards: expiry duration out of range")
	ErrDuplicateContentHash = errors.New("rewards: content hash already in use")
	ErrNotFound             = errors.New("rewards: reward not found")
	ErrAlreadyClaimed       = errors.New("rewards: reward already claimed")
	ErrNotExpired           = errors.New("rewards: reward not yet expired")
	ErrExpired              = errors.New("rewards: reward expired")
	ErrNotRecipient         = errors.New("rewards: caller is not the recipient")
	ErrNotSender            = errors.New("rewards: caller is not the sender")
	ErrInvalidSignature     = errors.New("rewards: invalid signature")
	ErrContentHashMismatch  = errors.New("rewards: content hash does not match metadata")
	ErrClaimDelay           = errors.New("rewards: claim delay not elapsed")
	ErrUnauthorized         = errors.New("rewards: unauthorized")
	ErrPaused               = errors.New("rewards: module paused")
)

// Reward captures one escrowed incentive: the sender locks Amount until the
// recipient presents a valid signature over the metadata bound by
// ContentHash, or the sender cancels after expiry.
type Reward struct {
	ID          [32]byte
	Sender      [20]byte
	Recipient   [20]byte
	Amount      *big.Int
	CreatedAt   int64
	ExpiresAt   int64
	Claimed     bool
	ContentHash [32]byte
}

// Clone returns a deep copy of the reward so callers can safely mutate the
// copy without affecting the stored instance.
func (r *Reward) Clone() *Reward {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// AccountStats accumulates per-account counters. Counters are monotonic
// except ActiveCount, which tracks rewards currently in the Active state.
type AccountStats struct {
	SentCount      uint64
	SentAmount     *big.Int
	ReceivedCount  uint64
	ReceivedAmount *big.Int
	ActiveCount    uint64
}

// NewAccountStats returns a zeroed stats record with non-nil amounts.
func NewAccountStats() *AccountStats {
	return &AccountStats{SentAmount: big.NewInt(0), ReceivedAmount: big.NewInt(0)}
}

// Clone returns a deep copy of the stats record.
func (s *AccountStats) Clone() *AccountStats {
	if s == nil {
		return NewAccountStats()
	}
	clone := *s
	if s.SentAmount != nil {
		clone.SentAmount = new(big.Int).Set(s.SentAmount)
	} else {
		clone.SentAmount = big.NewInt(0)
	}
	if s.ReceivedAmount != nil {
		clone.ReceivedAmount = new(big.Int).Set(s.ReceivedAmount)
	} else {
		clone.ReceivedAmount = big.NewInt(0)
	}
	return &clone
}
