package rewards

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"mailbond/core/types"
	"mailbond/crypto"
)

const (
	EventTypeRewardCreated   = "rewards.created"
	EventTypeRewardClaimed   = "rewards.claimed"
	EventTypeRewardCancelled = "rewards.cancelled"
	EventTypeParamUpdated    = "rewards.param.updated"
	EventTypePaused          = "rewards.paused"
	EventTypeResumed         = "rewards.resumed"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// reward.
func NewCreatedEvent(r *Reward) *types.Event {
	attrs := rewardAttributes(r)
	return &types.Event{Type: EventTypeRewardCreated, Attributes: attrs}
}

// NewClaimedEvent returns the canonical event payload emitted when a reward
// is claimed, including the fee split applied to the payout.
func NewClaimedEvent(r *Reward, fee, net *big.Int) *types.Event {
	attrs := rewardAttributes(r)
	attrs["fee"] = formatAmount(fee)
	attrs["net"] = formatAmount(net)
	return &types.Event{Type: EventTypeRewardClaimed, Attributes: attrs}
}

// NewCancelledEvent returns the canonical event payload emitted when an
// expired reward is cancelled by its sender.
func NewCancelledEvent(r *Reward, fee, refund *big.Int) *types.Event {
	attrs := rewardAttributes(r)
	attrs["fee"] = formatAmount(fee)
	attrs["refund"] = formatAmount(refund)
	return &types.Event{Type: EventTypeRewardCancelled, Attributes: attrs}
}

// NewParamUpdatedEvent records an administrative policy change.
func NewParamUpdatedEvent(name, previous, current string) *types.Event {
	return &types.Event{Type: EventTypeParamUpdated, Attributes: map[string]string{
		"param":    name,
		"previous": previous,
		"current":  current,
	}}
}

// NewPausedEvent records the creation path being paused or resumed.
func NewPausedEvent(paused bool) *types.Event {
	eventType := EventTypeResumed
	if paused {
		eventType = EventTypePaused
	}
	return &types.Event{Type: eventType, Attributes: map[string]string{}}
}

func rewardAttributes(r *Reward) map[string]string {
	attrs := make(map[string]string)
	if r == nil {
		return attrs
	}
	attrs["id"] = hex.EncodeToString(r.ID[:])
	attrs["sender"] = crypto.MustNewAddress(crypto.MBDPrefix, r.Sender[:]).String()
	attrs["recipient"] = crypto.MustNewAddress(crypto.MBDPrefix, r.Recipient[:]).String()
	attrs["amount"] = formatAmount(r.Amount)
	attrs["contentHash"] = hex.EncodeToString(r.ContentHash[:])
	attrs["createdAt"] = strconv.FormatInt(r.CreatedAt, 10)
	attrs["expiresAt"] = strconv.FormatInt(r.ExpiresAt, 10)
	attrs["claimed"] = strconv.FormatBool(r.Claimed)
	return attrs
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
