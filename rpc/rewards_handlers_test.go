package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"mailbond/crypto"
	"mailbond/ledger"
	"mailbond/native/rewards"
	staterewards "mailbond/state/rewards"
	"mailbond/storage"
)

const testToken = "test-token"

type rpcFixture struct {
	server    *httptest.Server
	engine    *rewards.Engine
	bank      *ledger.Bank
	now       int64
	senderKey *crypto.PrivateKey
	sender    [20]byte
	recipient [20]byte
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	t.Setenv(AuthTokenEnv, testToken)

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	db := storage.NewMemDB()
	var vault, collector, owner, recipient [20]byte
	vault[0] = 0xEE
	collector[0] = 0xFE
	owner[0] = 0x0A
	recipient[0] = 0x22

	bank, err := ledger.NewBank(db, vault)
	require.NoError(t, err)

	f := &rpcFixture{
		engine:    rewards.NewEngine(),
		bank:      bank,
		now:       1_700_000_000,
		senderKey: key,
		sender:    key.PubKey().RawAddress(),
		recipient: recipient,
	}
	f.engine.SetState(staterewards.NewStore(db))
	f.engine.SetLedger(bank)
	f.engine.SetOwner(owner)
	f.engine.SetNowFunc(func() int64 { return f.now })
	params := rewards.DefaultParams()
	params.FeeCollector = collector
	require.NoError(t, f.engine.SetParams(params))
	require.NoError(t, bank.Mint(f.sender, big.NewInt(100_000_000)))

	srv := NewServer(f.engine, nil)
	f.server = httptest.NewServer(srv.Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *rpcFixture) call(t *testing.T, method string, params interface{}, authed bool) (*http.Response, RPCResponse) {
	t.Helper()
	encodedParams, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []json.RawMessage{encodedParams},
		ID:      1,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.server.URL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func addressString(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.MBDPrefix, addr[:]).String()
}

func TestCreateRequiresAuth(t *testing.T) {
	f := newRPCFixture(t)
	resp, decoded := f.call(t, "rewards_create", rewardCreateParams{}, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)
}

func TestCreateClaimFlow(t *testing.T) {
	f := newRPCFixture(t)
	subject, from, to := "Invoice 7", "a@example.com", "b@example.net"
	contentHash := crypto.ContentHash(subject, from, to)

	_, created := f.call(t, "rewards_create", rewardCreateParams{
		Sender:        addressString(f.sender),
		Recipient:     addressString(f.recipient),
		Amount:        "5000000",
		ContentHash:   fmt.Sprintf("0x%x", contentHash),
		Subject:       subject,
		From:          from,
		To:            to,
		ExpirySeconds: 7 * 24 * 3_600,
	}, true)
	require.Nil(t, created.Error)

	raw, err := json.Marshal(created.Result)
	require.NoError(t, err)
	var result rewardCreateResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.ID, 66)

	// The record is queryable without auth.
	_, got := f.call(t, "rewards_get", rewardIDParams{ID: result.ID}, false)
	require.Nil(t, got.Error)
	raw, err = json.Marshal(got.Result)
	require.NoError(t, err)
	var record rewardJSON
	require.NoError(t, json.Unmarshal(raw, &record))
	require.Equal(t, "5000000", record.Amount)
	require.False(t, record.Claimed)

	// Claim after the delay with a valid sender signature.
	f.now = record.CreatedAt + 61
	digest := crypto.DefaultDomain.TypedDigest(subject, from, to, uint64(record.CreatedAt))
	sig, err := f.senderKey.SignDigest(digest)
	require.NoError(t, err)

	_, claimed := f.call(t, "rewards_claim", rewardClaimParams{
		ID:          result.ID,
		Caller:      addressString(f.recipient),
		ContentHash: fmt.Sprintf("0x%x", contentHash),
		Signature:   fmt.Sprintf("0x%x", sig),
		Subject:     subject,
		From:        from,
		To:          to,
	}, true)
	require.Nil(t, claimed.Error)
	require.Equal(t, int64(4_975_000), f.bank.Balance(f.recipient).Int64())

	// Stats reflect the settled reward.
	_, stats := f.call(t, "rewards_stats", rewardAddressParams{Address: addressString(f.recipient)}, false)
	require.Nil(t, stats.Error)
	raw, err = json.Marshal(stats.Result)
	require.NoError(t, err)
	var statsResult rewardStatsJSON
	require.NoError(t, json.Unmarshal(raw, &statsResult))
	require.Equal(t, uint64(1), statsResult.ReceivedCount)
	require.Equal(t, "5000000", statsResult.ReceivedAmount)
}

func TestClaimConflictMapsToDistinctError(t *testing.T) {
	f := newRPCFixture(t)
	subject, from, to := "Invoice 8", "a@example.com", "b@example.net"
	contentHash := crypto.ContentHash(subject, from, to)

	_, created := f.call(t, "rewards_create", rewardCreateParams{
		Sender:        addressString(f.sender),
		Recipient:     addressString(f.recipient),
		Amount:        "5000000",
		ContentHash:   fmt.Sprintf("0x%x", contentHash),
		Subject:       subject,
		From:          from,
		To:            to,
		ExpirySeconds: 7 * 24 * 3_600,
	}, true)
	require.Nil(t, created.Error)
	raw, err := json.Marshal(created.Result)
	require.NoError(t, err)
	var result rewardCreateResult
	require.NoError(t, json.Unmarshal(raw, &result))

	// Claiming before the delay surfaces the conflict code, not a generic
	// failure.
	digest := crypto.DefaultDomain.TypedDigest(subject, from, to, uint64(f.now))
	sig, err := f.senderKey.SignDigest(digest)
	require.NoError(t, err)
	resp, claimed := f.call(t, "rewards_claim", rewardClaimParams{
		ID:          result.ID,
		Caller:      addressString(f.recipient),
		ContentHash: fmt.Sprintf("0x%x", contentHash),
		Signature:   fmt.Sprintf("0x%x", sig),
		Subject:     subject,
		From:        from,
		To:          to,
	}, true)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, claimed.Error)
	require.Equal(t, codeRewardsConflict, claimed.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	f := newRPCFixture(t)
	resp, decoded := f.call(t, "rewards_unknown", struct{}{}, false)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)
}

func TestAdminPauseFlow(t *testing.T) {
	f := newRPCFixture(t)
	var owner [20]byte
	owner[0] = 0x0A

	_, paused := f.call(t, "rewards_pause", rewardAdminParams{Caller: addressString(owner)}, true)
	require.Nil(t, paused.Error)

	subject, from, to := "Invoice 9", "a@example.com", "b@example.net"
	contentHash := crypto.ContentHash(subject, from, to)
	resp, created := f.call(t, "rewards_create", rewardCreateParams{
		Sender:        addressString(f.sender),
		Recipient:     addressString(f.recipient),
		Amount:        "5000000",
		ContentHash:   fmt.Sprintf("0x%x", contentHash),
		Subject:       subject,
		From:          from,
		To:            to,
		ExpirySeconds: 7 * 24 * 3_600,
	}, true)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, created.Error)

	_, unpaused := f.call(t, "rewards_unpause", rewardAdminParams{Caller: addressString(owner)}, true)
	require.Nil(t, unpaused.Error)
}
