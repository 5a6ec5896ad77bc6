package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/movie-review/pkg/testutil"
)

func TestSignatureStatus(t *testing.T) {
	zero, one := 0, 1

	testCases := []struct {
		s         SignatureStatus
		confirmed bool
		finalized bool
	}{
		{s: SignatureStatus{Slot: 10, Confirmations: &zero}},
		{s: SignatureStatus{Slot: 10, Confirmations: &zero, ConfirmationStatus: "random"}},
		{s: SignatureStatus{Slot: 10, Confirmations: &zero, ConfirmationStatus: confirmationStatusProcessed}},
		{s: SignatureStatus{Slot: 10, Confirmations: &one}, confirmed: true},
		{s: SignatureStatus{Slot: 10, Confirmations: &zero, ConfirmationStatus: confirmationStatusConfirmed}, confirmed: true},
		{s: SignatureStatus{Slot: 10, Confirmations: &zero, ConfirmationStatus: confirmationStatusFinalized}, confirmed: true, finalized: true},
		{s: SignatureStatus{Slot: 10}, confirmed: true, finalized: true},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.confirmed, tc.s.Confirmed())
		assert.Equal(t, tc.finalized, tc.s.Finalized())
		assert.Equal(t, tc.confirmed, tc.s.Reached(CommitmentConfirmed))
		assert.True(t, tc.s.Reached(CommitmentProcessed))
	}
}

func newTestClient(t *testing.T) (*testutil.RPCServer, Client) {
	node := testutil.NewRPCServer(t)
	return node, New(
		node.URL(),
		WithRetry(3, time.Millisecond),
		WithSignaturePolling(time.Millisecond, 5),
	)
}

func TestClient_GetBalance(t *testing.T) {
	node, c := newTestClient(t)
	account := testutil.GenerateSolanaKeys(t, 1)[0]

	node.HandleResult("getBalance", map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": 1500})

	balance, err := c.GetBalance(account, CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 1500, balance)
	params := node.LastParams("getBalance")
	require.Len(t, params, 2)
	assert.JSONEq(t, `"`+base58.Encode(account)+`"`, string(params[0]))
	assert.JSONEq(t, `{"commitment":"confirmed"}`, string(params[1]))

	node.HandleError("getBalance", invalidParamCode, "Invalid param", nil)
	_, err = c.GetBalance(account, CommitmentConfirmed)
	assert.Equal(t, ErrNoBalance, err)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	node, c := newTestClient(t)
	account := testutil.GenerateSolanaKeys(t, 1)[0]

	node.SetHTTPStatus(http.StatusServiceUnavailable)
	_, err := c.GetBalance(account, CommitmentConfirmed)
	assert.Error(t, err)
	assert.Equal(t, 3, node.Calls("getBalance"))

	node.SetHTTPStatus(0)
	node.HandleError("getSlot", 429, "Too many requests", nil)
	_, err = c.GetSlot(CommitmentConfirmed)
	assert.Error(t, err)
	assert.Equal(t, 3, node.Calls("getSlot"))

	// Application errors are never retried
	node.HandleError("requestAirdrop", testutil.RPCServerErrorCode, "airdrop limit reached", nil)
	_, err = c.RequestAirdrop(account, 1, CommitmentConfirmed)
	assert.Error(t, err)
	assert.Equal(t, 1, node.Calls("requestAirdrop"))
}

func TestClient_RequestAirdrop(t *testing.T) {
	node, c := newTestClient(t)
	account := testutil.GenerateSolanaKeys(t, 1)[0]

	var expected Signature
	expected[0], expected[63] = 1, 2
	node.HandleResult("requestAirdrop", expected.ToBase58())

	sig, err := c.RequestAirdrop(account, 1_000_000_000, CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, expected, sig)

	node.HandleResult("requestAirdrop", Signature{}.ToBase58())
	_, err = c.RequestAirdrop(account, 1_000_000_000, CommitmentConfirmed)
	assert.Error(t, err)
}

func TestClient_GetLatestBlockhash(t *testing.T) {
	node, c := newTestClient(t)

	var expected Blockhash
	expected[0] = 9
	node.HandleResult("getLatestBlockhash", map[string]interface{}{
		"value": map[string]interface{}{"blockhash": expected.ToBase58(), "lastValidBlockHeight": 100},
	})

	for i := 0; i < 3; i++ {
		hash, err := c.GetLatestBlockhash()
		require.NoError(t, err)
		assert.Equal(t, expected, hash.Blockhash)
		assert.EqualValues(t, 100, hash.LastValidBlockHeight)
	}
	assert.Equal(t, 1, node.Calls("getLatestBlockhash"))
}

func TestClient_SubmitTransaction(t *testing.T) {
	node, c := newTestClient(t)
	keys := generateKeys(t, 2)

	txn := NewLegacyTransaction(public(keys[0]), NewInstruction(public(keys[1]), []byte{1}))
	require.NoError(t, txn.Sign(keys[0]))

	node.HandleResult("sendTransaction", txn.Signature().ToBase58())

	sig, err := c.SubmitTransaction(txn, CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, txn.Signature(), sig)
	params := node.LastParams("sendTransaction")

	require.Len(t, params, 2)
	var encoded string
	require.NoError(t, json.Unmarshal(params[0], &encoded))
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, txn.Marshal(), raw)
	assert.JSONEq(t, `{"encoding":"base64","skipPreflight":false,"preflightCommitment":"confirmed"}`, string(params[1]))
}

func TestClient_SubmitTransaction_ServerErrorNotResent(t *testing.T) {
	node, c := newTestClient(t)
	keys := generateKeys(t, 2)

	txn := NewLegacyTransaction(public(keys[0]), NewInstruction(public(keys[1]), []byte{1}))
	require.NoError(t, txn.Sign(keys[0]))

	node.SetHTTPStatus(http.StatusBadGateway)
	_, err := c.SubmitTransaction(txn, CommitmentConfirmed)
	assert.Error(t, err)
	assert.Equal(t, 1, node.Calls("sendTransaction"))

	node.SetHTTPStatus(0)
	node.HandleError("sendTransaction", rpcNodeUnhealthyCode, "Node is unhealthy", nil)
	_, err = c.SubmitTransaction(txn, CommitmentConfirmed)
	assert.Error(t, err)
	assert.Equal(t, 2, node.Calls("sendTransaction"))

	// A rate limited request never reached the cluster
	node.HandleError("sendTransaction", http.StatusTooManyRequests, "Too many requests", nil)
	_, err = c.SubmitTransaction(txn, CommitmentConfirmed)
	assert.Error(t, err)
	assert.Equal(t, 5, node.Calls("sendTransaction"))
}

func TestClient_SubmitTransaction_PreflightFailure(t *testing.T) {
	node, c := newTestClient(t)
	keys := generateKeys(t, 2)

	txn := NewLegacyTransaction(public(keys[0]), NewInstruction(public(keys[1]), []byte{1}))
	require.NoError(t, txn.Sign(keys[0]))

	node.HandleError("sendTransaction", -32002, "Transaction simulation failed", map[string]interface{}{
		"err":  map[string]interface{}{"InstructionError": []interface{}{0, "InvalidSeeds"}},
		"logs": []string{"Program log: Error: seeds do not match"},
	})

	_, err := c.SubmitTransaction(txn, CommitmentConfirmed)
	require.Error(t, err)

	txErr, ok := err.(*TransactionError)
	require.True(t, ok, "unexpected error type %T", err)
	assert.Equal(t, TransactionErrorInstructionError, txErr.ErrorKey())
	assert.Equal(t, InstructionErrorInvalidSeeds, txErr.InstructionError().ErrorKey())
	assert.Equal(t, []string{"Program log: Error: seeds do not match"}, txErr.Logs())
	assert.Equal(t, 1, node.Calls("sendTransaction"))

	// Errors without transaction details are still failures
	node.HandleError("sendTransaction", -32002, "Transaction simulation failed", map[string]interface{}{"err": nil})
	_, err = c.SubmitTransaction(txn, CommitmentConfirmed)
	assert.Error(t, err)
}

func TestClient_ConfirmTransaction(t *testing.T) {
	node, c := newTestClient(t)

	var sig Signature
	sig[0] = 1

	node.Handle("getSignatureStatuses", func([]json.RawMessage) (interface{}, *testutil.RPCError) {
		switch node.Calls("getSignatureStatuses") {
		case 1:
			return map[string]interface{}{"value": []interface{}{nil}}, nil
		case 2:
			return map[string]interface{}{"value": []interface{}{
				map[string]interface{}{"slot": 5, "confirmations": 0, "confirmationStatus": "processed", "err": nil},
			}}, nil
		default:
			return map[string]interface{}{"value": []interface{}{
				map[string]interface{}{"slot": 5, "confirmations": 1, "confirmationStatus": "confirmed", "err": nil},
			}}, nil
		}
	})

	status, err := c.ConfirmTransaction(context.Background(), sig, 0, CommitmentConfirmed)
	require.NoError(t, err)
	assert.True(t, status.Confirmed())
	assert.Equal(t, 3, node.Calls("getSignatureStatuses"))

	node.HandleResult("getSignatureStatuses", map[string]interface{}{"value": []interface{}{
		map[string]interface{}{
			"slot":               6,
			"confirmations":      1,
			"confirmationStatus": "confirmed",
			"err":                map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 1}}},
		},
	}})
	status, err = c.ConfirmTransaction(context.Background(), sig, 0, CommitmentConfirmed)
	require.Error(t, err)
	require.NotNil(t, status)
	assert.Equal(t, CustomError(1), *status.ErrorResult.InstructionError().CustomError())

	node.HandleResult("getSignatureStatuses", map[string]interface{}{"value": []interface{}{nil}})
	_, err = c.ConfirmTransaction(context.Background(), sig, 0, CommitmentConfirmed)
	assert.Equal(t, ErrSignatureNotFound, err)
	assert.Zero(t, node.Calls("getBlockHeight"))
}

func TestClient_ConfirmTransaction_WaitsForBlockhashExpiry(t *testing.T) {
	node := testutil.NewRPCServer(t)
	c := New(node.URL(), WithRetry(1, time.Millisecond), WithSignaturePolling(time.Millisecond, 0))

	var sig Signature
	sig[0] = 1

	// The signature stays unknown for longer than any fixed poll budget
	// while the blockhash is still valid.
	node.HandleResult("getBlockHeight", 120)
	node.Handle("getSignatureStatuses", func([]json.RawMessage) (interface{}, *testutil.RPCError) {
		if node.Calls("getSignatureStatuses") <= 70 {
			return map[string]interface{}{"value": []interface{}{nil}}, nil
		}
		return map[string]interface{}{"value": []interface{}{
			map[string]interface{}{"slot": 9, "confirmations": 1, "confirmationStatus": "confirmed", "err": nil},
		}}, nil
	})

	status, err := c.ConfirmTransaction(context.Background(), sig, 150, CommitmentConfirmed)
	require.NoError(t, err)
	assert.True(t, status.Confirmed())
	assert.Equal(t, 71, node.Calls("getSignatureStatuses"))
	assert.Equal(t, 70, node.Calls("getBlockHeight"))

	// Once the height passes the last valid height the transaction can no
	// longer land.
	node.HandleResult("getSignatureStatuses", map[string]interface{}{"value": []interface{}{nil}})
	node.Handle("getBlockHeight", func([]json.RawMessage) (interface{}, *testutil.RPCError) {
		return 140 + node.Calls("getBlockHeight") - 70, nil
	})
	_, err = c.ConfirmTransaction(context.Background(), sig, 150, CommitmentConfirmed)
	assert.Equal(t, ErrBlockhashExpired, err)
	assert.Equal(t, 70+11, node.Calls("getBlockHeight"))
}

func TestClient_ConfirmTransaction_ContextDone(t *testing.T) {
	node, c := newTestClient(t)
	node.HandleResult("getSignatureStatuses", map[string]interface{}{"value": []interface{}{nil}})

	var sig Signature
	sig[0] = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ConfirmTransaction(ctx, sig, 0, CommitmentConfirmed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, node.Calls("getSignatureStatuses"))
}

func TestClient_GetAccountInfo(t *testing.T) {
	node, c := newTestClient(t)
	keys := testutil.GenerateSolanaKeys(t, 2)

	node.HandleResult("getAccountInfo", map[string]interface{}{
		"value": map[string]interface{}{
			"lamports":   10,
			"owner":      base58.Encode(keys[1]),
			"data":       []string{base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), "base64"},
			"executable": false,
		},
	})

	info, err := c.GetAccountInfo(keys[0], CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 10, info.Lamports)
	assert.Equal(t, ed25519.PublicKey(keys[1]), info.Owner)
	assert.Equal(t, []byte{1, 2, 3}, info.Data)

	node.HandleResult("getAccountInfo", map[string]interface{}{"value": nil})
	_, err = c.GetAccountInfo(keys[0], CommitmentConfirmed)
	assert.Equal(t, ErrNoAccountInfo, err)
}
