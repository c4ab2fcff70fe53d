package rewards

import (
	"fmt"
	"math/big"
)

const (
	// ClaimDelaySeconds is the minimum age a reward must reach before it
	// becomes claimable.
	ClaimDelaySeconds int64 = 60
	// ExpiryBufferSeconds keeps the claim window open for at least an hour
	// past the claim delay. Without it a reward could expire before it ever
	// became claimable while remaining cheap to cancel.
	ExpiryBufferSeconds int64 = 3_600
	// MinExpirySeconds is the smallest accepted expiry duration.
	MinExpirySeconds = ClaimDelaySeconds + ExpiryBufferSeconds
)

// Params holds the owner-tunable policy knobs read by every state machine
// operation.
type Params struct {
	MinRewardAmount    *big.Int
	MaxExpirySeconds   int64
	ProtocolFeeBps     uint32
	CancellationFeeBps uint32
	FeeCollector       [20]byte
	Paused             bool
}

// DefaultParams returns the policy used when configuration supplies nothing.
func DefaultParams() Params {
	return Params{
		MinRewardAmount:    big.NewInt(1),
		MaxExpirySeconds:   30 * 24 * 3_600,
		ProtocolFeeBps:     50,
		CancellationFeeBps: 100,
	}
}

// Validate checks the policy bounds enforced at configuration time.
func (p Params) Validate() error {
	if p.MinRewardAmount == nil || p.MinRewardAmount.Sign() <= 0 {
		return fmt.Errorf("rewards: minimum reward amount must be positive")
	}
	if p.MaxExpirySeconds < MinExpirySeconds {
		return fmt.Errorf("rewards: max expiry %d below minimum %d", p.MaxExpirySeconds, MinExpirySeconds)
	}
	if p.ProtocolFeeBps > MaxProtocolFeeBps {
		return fmt.Errorf("rewards: protocol fee %d exceeds cap %d", p.ProtocolFeeBps, MaxProtocolFeeBps)
	}
	if p.CancellationFeeBps > MaxCancellationFeeBps {
		return fmt.Errorf("rewards: cancellation fee %d exceeds cap %d", p.CancellationFeeBps, MaxCancellationFeeBps)
	}
	return nil
}

// Clone returns a deep copy of the params.
func (p Params) Clone() Params {
	clone := p
	if p.MinRewardAmount != nil {
		clone.MinRewardAmount = new(big.Int).Set(p.MinRewardAmount)
	} else {
		clone.MinRewardAmount = big.NewInt(0)
	}
	return clone
}
