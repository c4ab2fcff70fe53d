package rewards

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"mailbond/core/events"
	"mailbond/core/types"
	"mailbond/crypto"
)

var (
	errNilState     = errors.New("rewards engine: state not configured")
	errNilLedger    = errors.New("rewards engine: token ledger not configured")
	errNilCollector = errors.New("rewards engine: fee collector not configured")
)

// engineState is the storage surface the engine mutates. The engine owns all
// Reward and AccountStats entries; nothing else writes them.
type engineState interface {
	RewardPut(*Reward) error
	RewardGet(id [32]byte) (*Reward, bool)
	RewardDelete(id [32]byte) error
	ContentHashUsed(hash [32]byte) bool
	ContentHashMark(hash [32]byte) error
	ContentHashRelease(hash [32]byte) error
	StatsGet(addr [20]byte) (*AccountStats, bool)
	StatsPut(addr [20]byte, stats *AccountStats) error
	NextSequence() (uint64, error)
}

// TokenLedger is the external transferable-balance store the engine debits
// and credits. Both calls must be atomic with respect to balance and must
// fail without partial transfer.
type TokenLedger interface {
	TransferInto(from [20]byte, amount *big.Int) error
	TransferOut(to [20]byte, amount *big.Int) error
}

type rewardEvent struct {
	evt *types.Event
}

func (e rewardEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e rewardEvent) Event() *types.Event { return e.evt }

// Engine wires the reward escrow business logic with external state, the
// value ledger and event emitters. Every mutating operation executes under a
// single lock, so two mutations never interleave and internal state is
// always fully applied before the ledger call that hands control outside the
// trust boundary.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	ledger  TokenLedger
	emitter events.Emitter
	params  Params
	owner   [20]byte
	domain  crypto.Domain
	nowFn   func() int64
}

// NewEngine creates a reward engine with default policy, the default signing
// domain and a no-op emitter. Callers wire state, ledger and owner before
// use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		params:  DefaultParams(),
		domain:  crypto.DefaultDomain,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the external value ledger.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetOwner configures the privileged account allowed to mutate policy.
func (e *Engine) SetOwner(owner [20]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.owner = owner
}

// SetDomain configures the signing domain claims are verified against.
func (e *Engine) SetDomain(domain crypto.Domain) { e.domain = domain }

// SetParams replaces the policy wholesale, validating bounds. Intended for
// system bring-up; runtime changes go through the owner-gated setters.
func (e *Engine) SetParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = params.Clone()
	return nil
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(rewardEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) statsFor(addr [20]byte) *AccountStats {
	stats, ok := e.state.StatsGet(addr)
	if !ok || stats == nil {
		return NewAccountStats()
	}
	return stats.Clone()
}

func rewardID(sender, recipient [20]byte, contentHash [32]byte, createdAt int64, seq uint64) [32]byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt))
	var sq [8]byte
	binary.BigEndian.PutUint64(sq[:], seq)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(sender[:], recipient[:], contentHash[:], ts[:], sq[:]))
	return id
}

// Create escrows amount from sender for recipient against the metadata bound
// by contentHash. Every precondition is checked before any mutation; the
// ledger debit happens last, after internal state is consistent, and a debit
// failure unwinds the internal state so no dangling hash reservation
// survives.
func (e *Engine) Create(sender, recipient [20]byte, amount *big.Int, contentHash [32]byte, subject, from, to string, expirySeconds int64) (*Reward, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.params.Paused {
		return nil, ErrPaused
	}
	if recipient == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 || amt.Cmp(e.params.MinRewardAmount) < 0 {
		return nil, ErrInvalidAmount
	}
	if expirySeconds < MinExpirySeconds || expirySeconds > e.params.MaxExpirySeconds {
		return nil, ErrInvalidExpiry
	}
	if e.state.ContentHashUsed(contentHash) {
		return nil, ErrDuplicateContentHash
	}
	if crypto.ContentHash(subject, from, to) != contentHash {
		return nil, ErrContentHashMismatch
	}

	now := e.now()
	seq, err := e.state.NextSequence()
	if err != nil {
		return nil, fmt.Errorf("rewards: allocate sequence: %w", err)
	}
	id := rewardID(sender, recipient, contentHash, now, seq)
	if _, ok := e.state.RewardGet(id); ok {
		return nil, fmt.Errorf("rewards: identifier collision for %x", id)
	}

	reward := &Reward{
		ID:          id,
		Sender:      sender,
		Recipient:   recipient,
		Amount:      amt,
		CreatedAt:   now,
		ExpiresAt:   now + expirySeconds,
		ContentHash: contentHash,
	}
	senderStats := e.statsFor(sender)
	recipientStats := e.statsFor(recipient)
	senderBefore := senderStats.Clone()
	recipientBefore := recipientStats.Clone()
	senderStats.SentCount++
	senderStats.SentAmount = new(big.Int).Add(senderStats.SentAmount, amt)
	senderStats.ActiveCount++
	recipientStats.ActiveCount++

	if err := e.state.RewardPut(reward); err != nil {
		return nil, err
	}
	if err := e.state.ContentHashMark(contentHash); err != nil {
		_ = e.state.RewardDelete(id)
		return nil, err
	}
	if err := e.putStatsPair(sender, senderStats, recipient, recipientStats); err != nil {
		_ = e.state.ContentHashRelease(contentHash)
		_ = e.state.RewardDelete(id)
		return nil, err
	}

	if err := e.ledger.TransferInto(sender, amt); err != nil {
		_ = e.putStatsPair(sender, senderBefore, recipient, recipientBefore)
		_ = e.state.ContentHashRelease(contentHash)
		_ = e.state.RewardDelete(id)
		return nil, fmt.Errorf("rewards: escrow deposit: %w", err)
	}

	e.emit(NewCreatedEvent(reward))
	return reward.Clone(), nil
}

// Claim releases the escrowed amount to the recipient once every gate passes:
// record liveness, caller identity, the claim delay, metadata consistency and
// signature verification against the sender. State is mutated before any
// value leaves the vault, so a reentrant claim on the same record observes
// Claimed and fails.
func (e *Engine) Claim(id [32]byte, caller [20]byte, contentHash [32]byte, signature []byte, subject, from, to string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	reward, ok := e.state.RewardGet(id)
	if !ok {
		return ErrNotFound
	}
	if reward.Claimed {
		return ErrAlreadyClaimed
	}
	now := e.now()
	if now > reward.ExpiresAt {
		return ErrExpired
	}
	if caller != reward.Recipient {
		return ErrNotRecipient
	}
	if contentHash != reward.ContentHash {
		return ErrContentHashMismatch
	}
	if now < reward.CreatedAt+ClaimDelaySeconds {
		return ErrClaimDelay
	}
	if crypto.ContentHash(subject, from, to) != contentHash {
		return ErrContentHashMismatch
	}
	digest := e.domain.TypedDigest(subject, from, to, uint64(reward.CreatedAt))
	if !crypto.VerifySignature(reward.Sender, digest, signature) {
		return ErrInvalidSignature
	}
	if err := e.ensureCollectorConfigured(); err != nil {
		return err
	}

	reward.Claimed = true
	senderStats := e.statsFor(reward.Sender)
	recipientStats := e.statsFor(reward.Recipient)
	senderBefore := senderStats.Clone()
	recipientBefore := recipientStats.Clone()
	decrementActive(senderStats)
	decrementActive(recipientStats)
	recipientStats.ReceivedCount++
	recipientStats.ReceivedAmount = new(big.Int).Add(recipientStats.ReceivedAmount, reward.Amount)

	if err := e.state.RewardPut(reward); err != nil {
		return err
	}
	if err := e.putStatsPair(reward.Sender, senderStats, reward.Recipient, recipientStats); err != nil {
		reward.Claimed = false
		_ = e.state.RewardPut(reward)
		return err
	}
	if err := e.state.ContentHashRelease(reward.ContentHash); err != nil {
		_ = e.putStatsPair(reward.Sender, senderBefore, reward.Recipient, recipientBefore)
		reward.Claimed = false
		_ = e.state.RewardPut(reward)
		return err
	}

	fee, net := SplitFee(reward.Amount, e.params.ProtocolFeeBps)
	if err := e.payOut(e.params.FeeCollector, fee, reward.Recipient, net); err != nil {
		_ = e.state.ContentHashMark(reward.ContentHash)
		_ = e.putStatsPair(reward.Sender, senderBefore, reward.Recipient, recipientBefore)
		reward.Claimed = false
		_ = e.state.RewardPut(reward)
		return fmt.Errorf("rewards: claim payout: %w", err)
	}

	e.emit(NewClaimedEvent(reward, fee, net))
	return nil
}

// Cancel is the sender's unilateral recovery path once a reward has expired
// unclaimed. It deletes the record, releases the content hash for reuse and
// refunds the sender minus the cancellation fee.
func (e *Engine) Cancel(id [32]byte, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	reward, ok := e.state.RewardGet(id)
	if !ok {
		return ErrNotFound
	}
	if caller != reward.Sender {
		return ErrNotSender
	}
	if reward.Claimed {
		return ErrAlreadyClaimed
	}
	if e.now() <= reward.ExpiresAt {
		return ErrNotExpired
	}
	if err := e.ensureCollectorConfigured(); err != nil {
		return err
	}

	senderStats := e.statsFor(reward.Sender)
	recipientStats := e.statsFor(reward.Recipient)
	senderBefore := senderStats.Clone()
	recipientBefore := recipientStats.Clone()
	decrementActive(senderStats)
	decrementActive(recipientStats)

	if err := e.putStatsPair(reward.Sender, senderStats, reward.Recipient, recipientStats); err != nil {
		return err
	}
	if err := e.state.ContentHashRelease(reward.ContentHash); err != nil {
		_ = e.putStatsPair(reward.Sender, senderBefore, reward.Recipient, recipientBefore)
		return err
	}
	if err := e.state.RewardDelete(id); err != nil {
		_ = e.state.ContentHashMark(reward.ContentHash)
		_ = e.putStatsPair(reward.Sender, senderBefore, reward.Recipient, recipientBefore)
		return err
	}

	fee, refund := SplitFee(reward.Amount, e.params.CancellationFeeBps)
	if err := e.payOut(e.params.FeeCollector, fee, reward.Sender, refund); err != nil {
		_ = e.state.RewardPut(reward)
		_ = e.state.ContentHashMark(reward.ContentHash)
		_ = e.putStatsPair(reward.Sender, senderBefore, reward.Recipient, recipientBefore)
		return fmt.Errorf("rewards: cancel refund: %w", err)
	}

	e.emit(NewCancelledEvent(reward, fee, refund))
	return nil
}

// Get returns a copy of the stored reward.
func (e *Engine) Get(id [32]byte) (*Reward, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	reward, ok := e.state.RewardGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return reward.Clone(), nil
}

// Stats returns the accumulated counters for an account. Accounts without
// history report zeroed stats.
func (e *Engine) Stats(addr [20]byte) *AccountStats {
	if e == nil || e.state == nil {
		return NewAccountStats()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsFor(addr)
}

// IsClaimable reports whether the reward exists and sits inside its claim
// window: past the claim delay, not yet expired and not claimed.
func (e *Engine) IsClaimable(id [32]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	reward, ok := e.state.RewardGet(id)
	if !ok || reward.Claimed {
		return false
	}
	now := e.now()
	return now >= reward.CreatedAt+ClaimDelaySeconds && now <= reward.ExpiresAt
}

// IsContentHashUsed reports whether an active reward currently reserves the
// hash.
func (e *Engine) IsContentHashUsed(hash [32]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ContentHashUsed(hash)
}

// Params returns a copy of the current policy.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Clone()
}

// --- Administrative operations ---

// requireOwner checks the caller against the configured owner. Callers hold
// e.mu so the check and the mutation it guards observe the same owner.
func (e *Engine) requireOwner(caller [20]byte) error {
	if e.owner == ([20]byte{}) || caller != e.owner {
		return ErrUnauthorized
	}
	return nil
}

// SetMinAmount updates the minimum reward amount.
func (e *Engine) SetMinAmount(caller [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	previous := e.params.MinRewardAmount.String()
	e.params.MinRewardAmount = new(big.Int).Set(amount)
	e.emit(NewParamUpdatedEvent("minRewardAmount", previous, amount.String()))
	return nil
}

// SetMaxExpiry updates the maximum expiry duration in seconds.
func (e *Engine) SetMaxExpiry(caller [20]byte, seconds int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if seconds < MinExpirySeconds {
		return ErrInvalidExpiry
	}
	previous := strconv.FormatInt(e.params.MaxExpirySeconds, 10)
	e.params.MaxExpirySeconds = seconds
	e.emit(NewParamUpdatedEvent("maxExpirySeconds", previous, strconv.FormatInt(seconds, 10)))
	return nil
}

// SetProtocolFeeBps updates the claim-path fee rate, capped at 500 bp.
func (e *Engine) SetProtocolFeeBps(caller [20]byte, bps uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if bps > MaxProtocolFeeBps {
		return fmt.Errorf("rewards: protocol fee %d exceeds cap %d", bps, MaxProtocolFeeBps)
	}
	previous := strconv.FormatUint(uint64(e.params.ProtocolFeeBps), 10)
	e.params.ProtocolFeeBps = bps
	e.emit(NewParamUpdatedEvent("protocolFeeBps", previous, strconv.FormatUint(uint64(bps), 10)))
	return nil
}

// SetCancellationFeeBps updates the cancel-path fee rate, capped at 1000 bp.
func (e *Engine) SetCancellationFeeBps(caller [20]byte, bps uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if bps > MaxCancellationFeeBps {
		return fmt.Errorf("rewards: cancellation fee %d exceeds cap %d", bps, MaxCancellationFeeBps)
	}
	previous := strconv.FormatUint(uint64(e.params.CancellationFeeBps), 10)
	e.params.CancellationFeeBps = bps
	e.emit(NewParamUpdatedEvent("cancellationFeeBps", previous, strconv.FormatUint(uint64(bps), 10)))
	return nil
}

// SetFeeCollector updates the account receiving protocol and cancellation
// fees.
func (e *Engine) SetFeeCollector(caller, collector [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if collector == ([20]byte{}) {
		return errNilCollector
	}
	previous := crypto.MustNewAddress(crypto.MBDPrefix, e.params.FeeCollector[:]).String()
	e.params.FeeCollector = collector
	e.emit(NewParamUpdatedEvent("feeCollector", previous, crypto.MustNewAddress(crypto.MBDPrefix, collector[:]).String()))
	return nil
}

// Pause stops the creation path. Claims and cancels stay available so
// escrowed value can never become stuck.
func (e *Engine) Pause(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.params.Paused = true
	e.emit(NewPausedEvent(true))
	return nil
}

// Unpause re-enables the creation path.
func (e *Engine) Unpause(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.params.Paused = false
	e.emit(NewPausedEvent(false))
	return nil
}

func (e *Engine) ensureCollectorConfigured() error {
	if e.params.FeeCollector == ([20]byte{}) {
		return errNilCollector
	}
	return nil
}

func (e *Engine) putStatsPair(a [20]byte, aStats *AccountStats, b [20]byte, bStats *AccountStats) error {
	if err := e.state.StatsPut(a, aStats); err != nil {
		return err
	}
	return e.state.StatsPut(b, bStats)
}

func (e *Engine) payOut(collector [20]byte, fee *big.Int, beneficiary [20]byte, amount *big.Int) error {
	feePaid := fee != nil && fee.Sign() > 0
	if feePaid {
		if err := e.ledger.TransferOut(collector, fee); err != nil {
			return err
		}
	}
	if amount != nil && amount.Sign() > 0 {
		if err := e.ledger.TransferOut(beneficiary, amount); err != nil {
			if feePaid {
				// Claw the fee back into the vault so the full escrow stays
				// available for a retry.
				if restoreErr := e.ledger.TransferInto(collector, fee); restoreErr != nil {
					return fmt.Errorf("restore fee after failed payout: %v: %w", restoreErr, err)
				}
			}
			return err
		}
	}
	return nil
}

func decrementActive(stats *AccountStats) {
	if stats.ActiveCount > 0 {
		stats.ActiveCount--
	}
}
