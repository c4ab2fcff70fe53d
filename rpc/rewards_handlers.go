package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"mailbond/crypto"
	"mailbond/native/rewards"
)

const (
	codeRewardsInvalidParams = -32051
	codeRewardsNotFound      = -32052
	codeRewardsForbidden     = -32053
	codeRewardsConflict      = -32054
	codeRewardsInternal      = -32055
)

type rewardCreateParams struct {
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	Amount        string `json:"amount"`
	ContentHash   string `json:"contentHash"`
	Subject       string `json:"subject"`
	From          string `json:"from"`
	To            string `json:"to"`
	ExpirySeconds int64  `json:"expirySeconds"`
}

type rewardClaimParams struct {
	ID          string `json:"id"`
	Caller      string `json:"caller"`
	ContentHash string `json:"contentHash"`
	Signature   string `json:"signature"`
	Subject     string `json:"subject"`
	From        string `json:"from"`
	To          string `json:"to"`
}

type rewardCancelParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type rewardIDParams struct {
	ID string `json:"id"`
}

type rewardAddressParams struct {
	Address string `json:"address"`
}

type rewardHashParams struct {
	Hash string `json:"hash"`
}

type rewardAdminParams struct {
	Caller    string `json:"caller"`
	Amount    string `json:"amount,omitempty"`
	Seconds   int64  `json:"seconds,omitempty"`
	Bps       uint32 `json:"bps,omitempty"`
	Collector string `json:"collector,omitempty"`
}

type rewardCreateResult struct {
	ID string `json:"id"`
}

type rewardOKResult struct {
	OK bool `json:"ok"`
}

type rewardBoolResult struct {
	Value bool `json:"value"`
}

type rewardJSON struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Amount      string `json:"amount"`
	ContentHash string `json:"contentHash"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	Claimed     bool   `json:"claimed"`
}

type rewardStatsJSON struct {
	Address        string `json:"address"`
	SentCount      uint64 `json:"sentCount"`
	SentAmount     string `json:"sentAmount"`
	ReceivedCount  uint64 `json:"receivedCount"`
	ReceivedAmount string `json:"receivedAmount"`
	ActiveCount    uint64 `json:"activeCount"`
}

func (s *Server) handleRewardCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return http.StatusUnauthorized
	}
	var params rewardCreateParams
	if status := decodeParams(w, req, &params); status != 0 {
		return status
	}
	sender, err := parseAddressParam(params.Sender)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	recipient, err := parseAddressParam(params.Recipient)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	contentHash, err := parseHash32(params.ContentHash)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	reward, err := s.engine.Create(sender, recipient, amount, contentHash, params.Subject, params.From, params.To, params.ExpirySeconds)
	if err != nil {
		return writeRewardsError(w, req.ID, err)
	}
	writeResult(w, req.ID, rewardCreateResult{ID: formatHash32(reward.ID)})
	return http.StatusOK
}

func (s *Server) handleRewardClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return http.StatusUnauthorized
	}
	var params rewardClaimParams
	if status := decodeParams(w, req, &params); status != 0 {
		return status
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	contentHash, err := parseHash32(params.ContentHash)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	signature, err := parseHexBytes(params.Signature)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	if err := s.engine.Claim(id, caller, contentHash, signature, params.Subject, params.From, params.To); err != nil {
		return writeRewardsError(w, req.ID, err)
	}
	writeResult(w, req.ID, rewardOKResult{OK: true})
	return http.StatusOK
}

func (s *Server) handleRewardCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return http.StatusUnauthorized
	}
	var params rewardCancelParams
	if status := decodeParams(w, req, &params); status != 0 {
		return status
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	if err := s.engine.Cancel(id, caller); err != nil {
		return writeRewardsError(w, req.ID, err)
	}
	writeResult(w, req.ID, rewardOKResult{OK: true})
	return http.StatusOK
}

func (s *Server) handleRewardGet(w http.ResponseWriter, req *RPCRequest) int {
	var params rewardIDParams
	if status := decodeParams(w, req, &params); status != 0 {
		return status
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	reward, err := s.engine.Get(id)
	if err != nil {
		return writeRewardsError(w, req.ID, err)
	}
	writeResult(w, req.ID, formatRewardJSON(reward))
	return http.StatusOK
}

func (s *Server) handleRewardStats(w http.ResponseWriter, req *RPCRequest) int {
	var params rewardAddressParams
	if status := decodeParams(w, req, &params); status != 0 {
		return status
	}
	addr, err := parseAddressParam(params.Address)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	stats := s.engine.Stats(addr)
	writeResult(w, req.ID, rewardStatsJSON{
		Address:        crypto.MustNewAddress(crypto.MBDPrefix, addr[:]).String(),
		SentCount:      stats.SentCount,
		SentAmount:     stats.SentAmount.String(),
		ReceivedCount:  stats.ReceivedCount,
		ReceivedAmount: stats.ReceivedAmount.String(),
		ActiveCount:    stats.ActiveCount,
	})
	return http.StatusOK
}

func (s *Server) handleIsClaimable(w http.ResponseWriter, req *RPCRequest) int {
	var params rewardIDParams
	if status := decodeParams(w, req, &params); status != 0 {
		return status
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	writeResult(w, req.ID, rewardBoolResult{Value: s.engine.IsClaimable(id)})
	return http.StatusOK
}

func (s *Server) handleIsContentHashUsed(w http.ResponseWriter, req *RPCRequest) int {
	var params rewardHashParams
	if status := decodeParams(w, req, &params); status != 0 {
		return status
	}
	hash, err := parseHash32(params.Hash)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	writeResult(w, req.ID, rewardBoolResult{Value: s.engine.IsContentHashUsed(hash)})
	return http.StatusOK
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return http.StatusUnauthorized
	}
	var params rewardAdminParams
	if status := decodeParams(w, req, &params); status != 0 {
		return status
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	switch req.Method {
	case "rewards_setMinAmount":
		amount, err := parsePositiveBigInt(params.Amount)
		if err != nil {
			return invalidParams(w, req.ID, err)
		}
		err = s.engine.SetMinAmount(caller, amount)
		if err != nil {
			return writeRewardsError(w, req.ID, err)
		}
	case "rewards_setMaxExpiry":
		if err := s.engine.SetMaxExpiry(caller, params.Seconds); err != nil {
			return writeRewardsError(w, req.ID, err)
		}
	case "rewards_setProtocolFee":
		if err := s.engine.SetProtocolFeeBps(caller, params.Bps); err != nil {
			return writeRewardsError(w, req.ID, err)
		}
	case "rewards_setCancellationFee":
		if err := s.engine.SetCancellationFeeBps(caller, params.Bps); err != nil {
			return writeRewardsError(w, req.ID, err)
		}
	case "rewards_setFeeCollector":
		collector, err := parseAddressParam(params.Collector)
		if err != nil {
			return invalidParams(w, req.ID, err)
		}
		if err := s.engine.SetFeeCollector(caller, collector); err != nil {
			return writeRewardsError(w, req.ID, err)
		}
	case "rewards_pause":
		if err := s.engine.Pause(caller); err != nil {
			return writeRewardsError(w, req.ID, err)
		}
	case "rewards_unpause":
		if err := s.engine.Unpause(caller); err != nil {
			return writeRewardsError(w, req.ID, err)
		}
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return http.StatusNotFound
	}
	writeResult(w, req.ID, rewardOKResult{OK: true})
	return http.StatusOK
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", "exactly one parameter object expected")
		return http.StatusBadRequest
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return http.StatusBadRequest
	}
	return 0
}

func invalidParams(w http.ResponseWriter, id interface{}, err error) int {
	writeError(w, http.StatusBadRequest, id, codeRewardsInvalidParams, "invalid_params", err.Error())
	return http.StatusBadRequest
}

func parseAddressParam(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("address required")
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseHash32(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("hash required")
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 64 {
		return out, fmt.Errorf("hash must be 32 bytes")
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded)
	return out, nil
}

func parseHexBytes(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if cleaned == "" {
		return []byte{}, nil
	}
	return hex.DecodeString(cleaned)
}

func formatHash32(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func formatRewardJSON(reward *rewards.Reward) rewardJSON {
	amount := "0"
	if reward.Amount != nil {
		amount = reward.Amount.String()
	}
	return rewardJSON{
		ID:          formatHash32(reward.ID),
		Sender:      crypto.MustNewAddress(crypto.MBDPrefix, reward.Sender[:]).String(),
		Recipient:   crypto.MustNewAddress(crypto.MBDPrefix, reward.Recipient[:]).String(),
		Amount:      amount,
		ContentHash: formatHash32(reward.ContentHash),
		CreatedAt:   reward.CreatedAt,
		ExpiresAt:   reward.ExpiresAt,
		Claimed:     reward.Claimed,
	}
}

func writeRewardsError(w http.ResponseWriter, id interface{}, err error) int {
	if err == nil {
		return http.StatusOK
	}
	status := http.StatusInternalServerError
	code := codeRewardsInternal
	message := "internal_error"
	switch {
	case errors.Is(err, rewards.ErrNotFound):
		status = http.StatusNotFound
		code = codeRewardsNotFound
		message = "not_found"
	case errors.Is(err, rewards.ErrUnauthorized),
		errors.Is(err, rewards.ErrNotRecipient),
		errors.Is(err, rewards.ErrNotSender):
		status = http.StatusForbidden
		code = codeRewardsForbidden
		message = "forbidden"
	case errors.Is(err, rewards.ErrInvalidAmount),
		errors.Is(err, rewards.ErrInvalidRecipient),
		errors.Is(err, rewards.ErrInvalidExpiry),
		errors.Is(err, rewards.ErrContentHashMismatch):
		status = http.StatusBadRequest
		code = codeRewardsInvalidParams
		message = "invalid_params"
	case errors.Is(err, rewards.ErrDuplicateContentHash),
		errors.Is(err, rewards.ErrAlreadyClaimed),
		errors.Is(err, rewards.ErrNotExpired),
		errors.Is(err, rewards.ErrExpired),
		errors.Is(err, rewards.ErrClaimDelay),
		errors.Is(err, rewards.ErrInvalidSignature),
		errors.Is(err, rewards.ErrPaused):
		status = http.StatusConflict
		code = codeRewardsConflict
		message = "conflict"
	}
	writeError(w, status, id, code, message, err.Error())
	return status
}
