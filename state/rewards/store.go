package rewards

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"mailbond/native/rewards"
	"mailbond/storage"
)

const (
	rewardKeyPrefix = "rewards/record/"
	hashKeyPrefix   = "rewards/hash/"
	statsKeyPrefix  = "rewards/stats/"
	sequenceKey     = "rewards/sequence"
)

// Store persists reward records, the content-hash uniqueness index, account
// stats and the id sequence in a key-value database. It implements the
// engine's state interface; callers never touch the keys directly.
type Store struct {
	db  storage.Database
	log *slog.Logger
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db, log: slog.Default()}
}

// SetLogger overrides the logger used to report storage and decode failures.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.log = logger
	}
}

type rewardRecord struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Amount      string `json:"amount"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	Claimed     bool   `json:"claimed"`
	ContentHash string `json:"contentHash"`
}

type statsRecord struct {
	SentCount      uint64 `json:"sentCount"`
	SentAmount     string `json:"sentAmount"`
	ReceivedCount  uint64 `json:"receivedCount"`
	ReceivedAmount string `json:"receivedAmount"`
	ActiveCount    uint64 `json:"activeCount"`
}

func rewardKey(id [32]byte) []byte {
	return append([]byte(rewardKeyPrefix), id[:]...)
}

func hashKey(hash [32]byte) []byte {
	return append([]byte(hashKeyPrefix), hash[:]...)
}

func statsKey(addr [20]byte) []byte {
	return append([]byte(statsKeyPrefix), addr[:]...)
}

// RewardPut stores or replaces a reward record.
func (s *Store) RewardPut(reward *rewards.Reward) error {
	if reward == nil {
		return fmt.Errorf("rewards store: nil reward")
	}
	record := rewardRecord{
		ID:          encodeBytes(reward.ID[:]),
		Sender:      encodeBytes(reward.Sender[:]),
		Recipient:   encodeBytes(reward.Recipient[:]),
		Amount:      amountString(reward.Amount),
		CreatedAt:   reward.CreatedAt,
		ExpiresAt:   reward.ExpiresAt,
		Claimed:     reward.Claimed,
		ContentHash: encodeBytes(reward.ContentHash[:]),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("rewards store: encode record: %w", err)
	}
	return s.db.Put(rewardKey(reward.ID), encoded)
}

// RewardGet loads a reward record by id. Storage failures and corrupt
// records are logged so they are not silently mistaken for absence.
func (s *Store) RewardGet(id [32]byte) (*rewards.Reward, bool) {
	raw, err := s.db.Get(rewardKey(id))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("failed to load reward record", "id", hex.EncodeToString(id[:]), "error", err)
		}
		return nil, false
	}
	var record rewardRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		s.log.Error("corrupt reward record", "id", hex.EncodeToString(id[:]), "error", err)
		return nil, false
	}
	reward := &rewards.Reward{
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
		Claimed:   record.Claimed,
	}
	if !decodeInto(record.ID, reward.ID[:]) ||
		!decodeInto(record.Sender, reward.Sender[:]) ||
		!decodeInto(record.Recipient, reward.Recipient[:]) ||
		!decodeInto(record.ContentHash, reward.ContentHash[:]) {
		s.log.Error("corrupt reward record", "id", hex.EncodeToString(id[:]), "error", "malformed hex field")
		return nil, false
	}
	amount, ok := new(big.Int).SetString(record.Amount, 10)
	if !ok {
		s.log.Error("corrupt reward record", "id", hex.EncodeToString(id[:]), "error", "malformed amount")
		return nil, false
	}
	reward.Amount = amount
	return reward, true
}

// RewardDelete removes a reward record, reclaiming its storage.
func (s *Store) RewardDelete(id [32]byte) error {
	return s.db.Delete(rewardKey(id))
}

// ContentHashUsed reports whether an active reward reserves the hash.
func (s *Store) ContentHashUsed(hash [32]byte) bool {
	ok, err := s.db.Has(hashKey(hash))
	return err == nil && ok
}

// ContentHashMark reserves the hash for an active reward.
func (s *Store) ContentHashMark(hash [32]byte) error {
	return s.db.Put(hashKey(hash), []byte{1})
}

// ContentHashRelease frees the hash so a future reward may reuse it.
func (s *Store) ContentHashRelease(hash [32]byte) error {
	return s.db.Delete(hashKey(hash))
}

// StatsGet loads the accumulated counters for an account.
func (s *Store) StatsGet(addr [20]byte) (*rewards.AccountStats, bool) {
	raw, err := s.db.Get(statsKey(addr))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("failed to load account stats", "address", hex.EncodeToString(addr[:]), "error", err)
		}
		return nil, false
	}
	var record statsRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		s.log.Error("corrupt account stats", "address", hex.EncodeToString(addr[:]), "error", err)
		return nil, false
	}
	stats := rewards.NewAccountStats()
	stats.SentCount = record.SentCount
	stats.ReceivedCount = record.ReceivedCount
	stats.ActiveCount = record.ActiveCount
	if sent, ok := new(big.Int).SetString(record.SentAmount, 10); ok {
		stats.SentAmount = sent
	}
	if received, ok := new(big.Int).SetString(record.ReceivedAmount, 10); ok {
		stats.ReceivedAmount = received
	}
	return stats, true
}

// StatsPut stores the counters for an account.
func (s *Store) StatsPut(addr [20]byte, stats *rewards.AccountStats) error {
	if stats == nil {
		return fmt.Errorf("rewards store: nil stats")
	}
	record := statsRecord{
		SentCount:      stats.SentCount,
		SentAmount:     amountString(stats.SentAmount),
		ReceivedCount:  stats.ReceivedCount,
		ReceivedAmount: amountString(stats.ReceivedAmount),
		ActiveCount:    stats.ActiveCount,
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("rewards store: encode stats: %w", err)
	}
	return s.db.Put(statsKey(addr), encoded)
}

// NextSequence increments and returns the monotonic id counter.
func (s *Store) NextSequence() (uint64, error) {
	var current uint64
	raw, err := s.db.Get([]byte(sequenceKey))
	switch {
	case err == nil:
		if len(raw) != 8 {
			return 0, fmt.Errorf("rewards store: corrupt sequence value")
		}
		current = binary.BigEndian.Uint64(raw)
	case errors.Is(err, storage.ErrNotFound):
		current = 0
	default:
		return 0, fmt.Errorf("rewards store: load sequence: %w", err)
	}
	next := current + 1
	encoded := make([]byte, 8)
	binary.BigEndian.PutUint64(encoded, next)
	if err := s.db.Put([]byte(sequenceKey), encoded); err != nil {
		return 0, fmt.Errorf("rewards store: persist sequence: %w", err)
	}
	return next, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func encodeBytes(b []byte) string {
	return hex.EncodeToString(b)
}

func decodeInto(encoded string, out []byte) bool {
	decoded, err := hex.DecodeString(encoded)
	if err != nil || len(decoded) != len(out) {
		return false
	}
	copy(out, decoded)
	return true
}
