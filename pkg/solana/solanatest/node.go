// Package solanatest provides Solana clusters for tests: an in-process fake
// node and a solana-test-validator container.
package solanatest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/code-payments/movie-review/pkg/solana"
	"github.com/code-payments/movie-review/pkg/testutil"
)

// PreflightFailureCode is the JSON-RPC error code a node returns when a
// transaction fails simulation.
const PreflightFailureCode = -32002

// BlockhashLifetime is the number of blocks a blockhash handed out by a Node
// stays valid for.
const BlockhashLifetime = 150

type account struct {
	owner ed25519.PublicKey
	data  []byte
}

// Node is a fake RPC node that behaves like a healthy cluster: it hands out
// blockhashes and airdrops, accepts every transaction and reports it as
// confirmed. Individual methods can be overridden through the embedded
// RPCServer.
type Node struct {
	*testutil.RPCServer

	mu          sync.Mutex
	blockhash   solana.Blockhash
	blockHeight uint64
	unseen      int
	balance     uint64
	submitted   []solana.Transaction
	txErr       interface{}
	accounts    map[string]account
}

func NewNode(t testing.TB) *Node {
	n := &Node{
		RPCServer:   testutil.NewRPCServer(t),
		blockHeight: 1,
		accounts:    make(map[string]account),
	}
	_, _ = rand.Read(n.blockhash[:])

	n.HandleResult("getSlot", 1)
	n.Handle("getBalance", n.getBalance)
	n.Handle("getBlockHeight", n.getBlockHeight)
	n.Handle("getLatestBlockhash", n.getLatestBlockhash)
	n.Handle("requestAirdrop", n.requestAirdrop)
	n.Handle("sendTransaction", n.sendTransaction)
	n.Handle("getSignatureStatuses", n.getSignatureStatuses)
	n.Handle("getAccountInfo", n.getAccountInfo)
	return n
}

func (n *Node) SetBalance(lamports uint64) {
	n.mu.Lock()
	n.balance = lamports
	n.mu.Unlock()
}

// SetBlockHeight sets the height reported by getBlockHeight. Blockhashes handed
// out afterwards expire BlockhashLifetime blocks later.
func (n *Node) SetBlockHeight(height uint64) {
	n.mu.Lock()
	n.blockHeight = height
	n.mu.Unlock()
}

// DelayConfirmations makes the next polls lookups of signature statuses report
// every signature as unknown, as the cluster does before a transaction lands.
func (n *Node) DelayConfirmations(polls int) {
	n.mu.Lock()
	n.unseen = polls
	n.mu.Unlock()
}

func (n *Node) Blockhash() solana.Blockhash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blockhash
}

// SetAccount makes getAccountInfo return an account owned by owner.
func (n *Node) SetAccount(address, owner ed25519.PublicKey, data []byte) {
	n.mu.Lock()
	n.accounts[base58.Encode(address)] = account{owner: owner, data: data}
	n.mu.Unlock()
}

// RejectTransactions makes every subsequent submission fail preflight with
// txErr, in the JSON form the cluster uses (for example
// {"InstructionError": [0, "InvalidSeeds"]}).
func (n *Node) RejectTransactions(txErr interface{}, logs ...string) {
	n.Handle("sendTransaction", func(params []json.RawMessage) (interface{}, *testutil.RPCError) {
		if _, rpcErr := n.record(params); rpcErr != nil {
			return nil, rpcErr
		}

		return nil, &testutil.RPCError{
			Code:    PreflightFailureCode,
			Message: "Transaction simulation failed",
			Data: map[string]interface{}{
				"err":  txErr,
				"logs": logs,
			},
		}
	})
}

// FailTransactions accepts submissions but reports txErr as their result.
func (n *Node) FailTransactions(txErr interface{}) {
	n.mu.Lock()
	n.txErr = txErr
	n.mu.Unlock()
}

// Submitted returns every transaction that has been sent to the node.
func (n *Node) Submitted() []solana.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]solana.Transaction(nil), n.submitted...)
}

func (n *Node) record(params []json.RawMessage) (solana.Transaction, *testutil.RPCError) {
	var txn solana.Transaction

	var encoded string
	if len(params) == 0 || json.Unmarshal(params[0], &encoded) != nil {
		return txn, invalidParams("expected an encoded transaction")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return txn, invalidParams(err.Error())
	}
	if err := txn.Unmarshal(raw); err != nil {
		return txn, invalidParams(err.Error())
	}

	n.mu.Lock()
	n.submitted = append(n.submitted, txn)
	n.mu.Unlock()
	return txn, nil
}

func (n *Node) sendTransaction(params []json.RawMessage) (interface{}, *testutil.RPCError) {
	txn, rpcErr := n.record(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return txn.Signature().ToBase58(), nil
}

func (n *Node) getSignatureStatuses(params []json.RawMessage) (interface{}, *testutil.RPCError) {
	var sigs []string
	if len(params) == 0 || json.Unmarshal(params[0], &sigs) != nil {
		return nil, invalidParams("expected a list of signatures")
	}

	n.mu.Lock()
	txErr := n.txErr
	unseen := n.unseen > 0
	if unseen {
		n.unseen--
	}
	n.mu.Unlock()

	statuses := make([]interface{}, len(sigs))
	if unseen {
		return withContext(statuses), nil
	}
	for i := range sigs {
		statuses[i] = map[string]interface{}{
			"slot":               2,
			"confirmations":      1,
			"confirmationStatus": "confirmed",
			"err":                txErr,
		}
	}
	return withContext(statuses), nil
}

func (n *Node) getBalance([]json.RawMessage) (interface{}, *testutil.RPCError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return withContext(n.balance), nil
}

func (n *Node) getBlockHeight([]json.RawMessage) (interface{}, *testutil.RPCError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blockHeight, nil
}

func (n *Node) getLatestBlockhash([]json.RawMessage) (interface{}, *testutil.RPCError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return withContext(map[string]interface{}{
		"blockhash":            n.blockhash.ToBase58(),
		"lastValidBlockHeight": n.blockHeight + BlockhashLifetime,
	}), nil
}

func (n *Node) requestAirdrop(params []json.RawMessage) (interface{}, *testutil.RPCError) {
	var lamports uint64
	if len(params) < 2 || json.Unmarshal(params[1], &lamports) != nil {
		return nil, invalidParams("expected an amount")
	}

	var sig solana.Signature
	_, _ = rand.Read(sig[:])

	n.mu.Lock()
	n.balance += lamports
	n.mu.Unlock()

	return sig.ToBase58(), nil
}

func (n *Node) getAccountInfo(params []json.RawMessage) (interface{}, *testutil.RPCError) {
	var address string
	if len(params) == 0 || json.Unmarshal(params[0], &address) != nil {
		return nil, invalidParams("expected an address")
	}

	n.mu.Lock()
	acc, ok := n.accounts[address]
	n.mu.Unlock()

	if !ok {
		return withContext(nil), nil
	}
	return withContext(map[string]interface{}{
		"lamports":   1_000_000,
		"owner":      base58.Encode(acc.owner),
		"data":       []string{base64.StdEncoding.EncodeToString(acc.data), "base64"},
		"executable": false,
	}), nil
}

func withContext(value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"context": map[string]interface{}{"slot": 2},
		"value":   value,
	}
}

func invalidParams(message string) *testutil.RPCError {
	return &testutil.RPCError{Code: -32602, Message: message}
}
