package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/code-payments/movie-review/pkg/retry"
	"github.com/code-payments/movie-review/pkg/retry/backoff"
)

const (
	ticksPerSec  = 160
	ticksPerSlot = 64
	slotsPerSec  = ticksPerSec / ticksPerSlot

	// PollRate is the rate at which signature statuses are polled, roughly
	// twice per slot.
	PollRate = (time.Second / slotsPerSec) / 2

	// Reference: https://github.com/solana-labs/solana/blob/71e9958e061493d7545bd28d4ac7a85aaed6ffbb/client/src/rpc_custom_error.rs#L11
	rpcNodeUnhealthyCode = -32005

	invalidParamCode = -32602

	defaultMaxAttempts   = 3
	defaultRetryBackoff  = time.Second
	maxRetryBackoff      = 10 * time.Second
	blockhashCacheWindow = 2 * time.Second
)

type Commitment struct {
	Commitment string `json:"commitment"`
}

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrBlockhashExpired  = errors.New("blockhash expired before the transaction was confirmed")
	ErrNoBalance         = errors.New("no balance")
)

// AccountInfo contains the Solana account information (not to be confused with a TokenAccount)
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

// LatestBlockhash is a recent blockhash and the last block height at which a
// transaction referencing it can still be processed.
type LatestBlockhash struct {
	Blockhash            Blockhash
	LastValidBlockHeight uint64
}

type SignatureStatus struct {
	Slot        uint64
	ErrorResult *TransactionError

	// Confirmations will be nil if the transaction has been rooted.
	Confirmations      *int
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	if s.Finalized() {
		return true
	}

	if s.ConfirmationStatus == confirmationStatusConfirmed {
		return true
	}

	return *s.Confirmations >= 1
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

// Reached reports whether the status satisfies commitment.
func (s SignatureStatus) Reached(commitment Commitment) bool {
	switch commitment {
	case CommitmentProcessed:
		return true
	case CommitmentConfirmed:
		return s.Confirmed()
	default:
		return s.Finalized()
	}
}

// Client provides an interaction with the Solana JSON RPC API.
//
// Reference: https://docs.solana.com/apps/jsonrpc-api
type Client interface {
	ConfirmTransaction(ctx context.Context, sig Signature, lastValidBlockHeight uint64, commitment Commitment) (*SignatureStatus, error)
	GetAccountInfo(ed25519.PublicKey, Commitment) (AccountInfo, error)
	GetBalance(ed25519.PublicKey, Commitment) (uint64, error)
	GetBlockHeight(Commitment) (uint64, error)
	GetLatestBlockhash() (LatestBlockhash, error)
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
	GetSlot(Commitment) (uint64, error)
	RequestAirdrop(ed25519.PublicKey, uint64, Commitment) (Signature, error)
	SubmitTransaction(Transaction, Commitment) (Signature, error)
}

var (
	errRateLimited  = errors.New("rate limited")
	errServiceError = errors.New("service error")
)

type rpcResponse struct {
	Context struct {
		Slot int64 `json:"slot"`
	} `json:"context"`
	Value interface{} `json:"value"`
}

type clientOptions struct {
	timeout       time.Duration
	maxAttempts   uint
	retryBackoff  time.Duration
	pollRate      time.Duration
	pollLimit     uint
	skipPreflight bool
}

// Option configures a Client.
type Option func(*clientOptions)

// WithTimeout bounds every HTTP request made to the RPC node. A zero timeout
// disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithRetry configures how transport failures (rate limiting, 5xx responses and
// unhealthy nodes) are retried.
func WithRetry(maxAttempts uint, baseBackoff time.Duration) Option {
	return func(o *clientOptions) {
		o.maxAttempts = maxAttempts
		o.retryBackoff = baseBackoff
	}
}

// WithSignaturePolling configures how ConfirmTransaction polls for a
// commitment. A zero limit polls until the blockhash expires or the context is
// done.
func WithSignaturePolling(rate time.Duration, limit uint) Option {
	return func(o *clientOptions) {
		o.pollRate = rate
		o.pollLimit = limit
	}
}

// WithSkipPreflight disables transaction simulation on submission. Program
// failures are then only visible through the signature status.
func WithSkipPreflight() Option {
	return func(o *clientOptions) {
		o.skipPreflight = true
	}
}

type client struct {
	log           *logrus.Entry
	client        jsonrpc.RPCClient
	retrier       retry.Retrier
	submitRetrier retry.Retrier
	opts          clientOptions

	blockMu   sync.RWMutex
	blockhash LatestBlockhash
	lastWrite time.Time
}

// New returns a client using the specified endpoint.
func New(endpoint string, opts ...Option) Client {
	o := clientOptions{
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
		pollRate:     PollRate,
	}
	for _, opt := range opts {
		opt(&o)
	}

	rpcOpts := &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{Timeout: o.timeout},
	}

	strategies := []retry.Strategy{
		retry.RetriableErrors(errRateLimited, errServiceError),
		retry.Limit(o.maxAttempts),
		retry.BackoffWithJitter(backoff.BinaryExponential(o.retryBackoff), maxRetryBackoff, 0.1),
	}

	return &client{
		log:     logrus.StandardLogger().WithField("type", "solana/client"),
		client:  jsonrpc.NewClientWithOpts(endpoint, rpcOpts),
		retrier: retry.NewRetrier(strategies...),

		// A node that answered with a server error may already have forwarded
		// the transaction, so only rate limited submissions are sent again.
		submitRetrier: retry.NewRetrier(append([]retry.Strategy{retry.NonRetriableErrors(errServiceError)}, strategies...)...),
		opts:          o,
	}
}

func (c *client) call(out interface{}, method string, params ...interface{}) error {
	return c.callWith(c.retrier, out, method, params...)
}

func (c *client) callWith(retrier retry.Retrier, out interface{}, method string, params ...interface{}) error {
	var callErr error
	_, err := retrier.Retry(func() error {
		callErr = c.client.CallFor(out, method, params...)
		if callErr == nil {
			return nil
		}

		return c.classifyRpcError(method, callErr)
	})
	if err == errRateLimited || err == errServiceError {
		// Surface the node's own message once retries are exhausted
		return errors.Wrap(callErr, err.Error())
	}

	return err
}

// classifyRpcError maps transient failures to the errors the retrier retries
// on. Anything else, including transaction rejections, is returned as is.
func (c *client) classifyRpcError(method string, err error) error {
	log := c.log.WithField("method", method)

	switch e := err.(type) {
	case *jsonrpc.RPCError:
		if e.Code == http.StatusTooManyRequests {
			log.Warn("rate limited")
			return errRateLimited
		}
		if e.Code >= http.StatusInternalServerError || e.Code == rpcNodeUnhealthyCode {
			log.WithError(err).Warn("rpc node unavailable")
			return errServiceError
		}
	case *jsonrpc.HTTPError:
		if e.Code == http.StatusTooManyRequests {
			log.Warn("rate limited")
			return errRateLimited
		}
		if e.Code >= http.StatusInternalServerError {
			log.WithError(err).Warn("rpc node unavailable")
			return errServiceError
		}
	}

	return err
}

func (c *client) GetSlot(commitment Commitment) (slot uint64, err error) {
	// note: we have to wrap the commitment in an []interface{} otherwise the
	//       solana RPC node complains. Technically this is a violation of the
	//       JSON RPC v2.0 spec.
	if err := c.call(&slot, "getSlot", []interface{}{commitment}); err != nil {
		return 0, errors.Wrapf(err, "getSlot() failed to send request")
	}

	return slot, nil
}

func (c *client) GetBlockHeight(commitment Commitment) (height uint64, err error) {
	if err := c.call(&height, "getBlockHeight", []interface{}{commitment}); err != nil {
		return 0, errors.Wrapf(err, "getBlockHeight() failed to send request")
	}

	return height, nil
}

func (c *client) GetLatestBlockhash() (hash LatestBlockhash, err error) {
	// Refresh windows are randomized so that concurrent callers don't all
	// expire at once.
	window := time.Duration(float64(blockhashCacheWindow) * (0.8 + rand.Float64()))

	c.blockMu.RLock()
	if time.Since(c.lastWrite) < window {
		hash = c.blockhash
	}
	c.blockMu.RUnlock()

	if hash.Blockhash != (Blockhash{}) {
		return hash, nil
	}

	type response struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}

	var resp response
	if err := c.call(&resp, "getLatestBlockhash", []interface{}{CommitmentConfirmed}); err != nil {
		return hash, errors.Wrapf(err, "getLatestBlockhash() failed to send request")
	}

	hashBytes, err := base58.Decode(resp.Value.Blockhash)
	if err != nil || len(hashBytes) != len(hash.Blockhash) {
		return hash, errors.Errorf("invalid blockhash in response: %q", resp.Value.Blockhash)
	}
	copy(hash.Blockhash[:], hashBytes)
	hash.LastValidBlockHeight = resp.Value.LastValidBlockHeight

	c.blockMu.Lock()
	c.blockhash = hash
	c.lastWrite = time.Now()
	c.blockMu.Unlock()

	return hash, nil
}

func (c *client) GetBalance(account ed25519.PublicKey, commitment Commitment) (uint64, error) {
	var resp rpcResponse
	if err := c.call(&resp, "getBalance", base58.Encode(account), commitment); err != nil {
		if jsonRPCErr, ok := err.(*jsonrpc.RPCError); ok && jsonRPCErr.Code == invalidParamCode {
			return 0, ErrNoBalance
		}

		return 0, errors.Wrapf(err, "getBalance() failed to send request")
	}

	if balance, ok := resp.Value.(float64); ok {
		return uint64(balance), nil
	}

	return 0, errors.Errorf("invalid value in response")
}

// SubmitTransaction sends txn to the node. Unless preflight is skipped, the node
// simulates the transaction first, and a failed simulation is returned as a
// *TransactionError without being retried. Server errors are not retried
// either; only rate limited requests are sent again.
func (c *client) SubmitTransaction(txn Transaction, commitment Commitment) (Signature, error) {
	sig := txn.Signature()

	config := struct {
		Encoding            string `json:"encoding"`
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment"`
	}{
		Encoding:            "base64",
		SkipPreflight:       c.opts.skipPreflight,
		PreflightCommitment: commitment.Commitment,
	}

	var sigStr string
	err := c.callWith(c.submitRetrier, &sigStr, "sendTransaction", base64.StdEncoding.EncodeToString(txn.Marshal()), config)
	if err == nil {
		return sig, nil
	}

	jsonRPCErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return sig, errors.Wrapf(err, "sendTransaction() failed to send request")
	}

	txErr, parseErr := ParseRPCError(jsonRPCErr)
	if parseErr != nil {
		c.log.WithError(parseErr).Warn("failed to parse transaction error")
	}
	if txErr != nil {
		return sig, txErr
	}

	return sig, errors.Wrapf(err, "sendTransaction() rejected")
}

func (c *client) GetAccountInfo(account ed25519.PublicKey, commitment Commitment) (accountInfo AccountInfo, err error) {
	type rpcResponse struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Data       []string `json:"data"`
			Executable bool     `json:"executable"`
		} `json:"value"`
	}

	rpcConfig := struct {
		Commitment string `json:"commitment"`
		Encoding   string `json:"encoding"`
	}{
		Commitment: commitment.Commitment,
		Encoding:   "base64",
	}

	var resp rpcResponse
	if err := c.call(&resp, "getAccountInfo", base58.Encode(account), rpcConfig); err != nil {
		return accountInfo, errors.Wrap(err, "getAccountInfo() failed to send request")
	}

	if resp.Value == nil {
		return accountInfo, ErrNoAccountInfo
	}

	accountInfo.Owner, err = base58.Decode(resp.Value.Owner)
	if err != nil {
		return accountInfo, errors.Wrap(err, "invalid base58 encoded owner")
	}

	if len(resp.Value.Data) == 0 {
		return accountInfo, errors.New("missing account data in response")
	}
	accountInfo.Data, err = base64.StdEncoding.DecodeString(resp.Value.Data[0])
	if err != nil {
		return accountInfo, errors.Wrap(err, "invalid base64 encoded data")
	}

	accountInfo.Lamports = resp.Value.Lamports
	accountInfo.Executable = resp.Value.Executable

	return accountInfo, nil
}

func (c *client) RequestAirdrop(account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error) {
	var sigStr string
	if err := c.call(&sigStr, "requestAirdrop", base58.Encode(account), lamports, commitment); err != nil {
		return Signature{}, errors.Wrapf(err, "requestAirdrop() failed to send request")
	}

	sigBytes, err := base58.Decode(sigStr)
	if err != nil {
		return Signature{}, errors.Wrap(err, "invalid signature in response")
	}

	var sig Signature
	copy(sig[:], sigBytes)

	if sig == (Signature{}) {
		return Signature{}, errors.New("empty signature returned")
	}

	return sig, nil
}

// ConfirmTransaction polls until sig reaches commitment, the transaction
// fails, or ctx is done. While the signature is unknown to the node the block
// height is checked against lastValidBlockHeight, and ErrBlockhashExpired is
// returned once it has passed, since the transaction can no longer land. A zero
// lastValidBlockHeight skips the check. A failed transaction returns its status
// along with the *TransactionError.
func (c *client) ConfirmTransaction(ctx context.Context, sig Signature, lastValidBlockHeight uint64, commitment Commitment) (*SignatureStatus, error) {
	var s *SignatureStatus
	errConfirmationsNotReached := errors.New("confirmations not reached")

	strategies := []retry.Strategy{
		retry.RetriableErrors(ErrSignatureNotFound, errConfirmationsNotReached),
		retry.Context(ctx),
	}
	if c.opts.pollLimit > 0 {
		strategies = append(strategies, retry.Limit(c.opts.pollLimit))
	}
	strategies = append(strategies, retry.Backoff(backoff.Constant(c.opts.pollRate), c.opts.pollRate))

	_, err := retry.Retry(
		func() error {
			statuses, err := c.GetSignatureStatuses([]Signature{sig})
			if err != nil {
				return err
			}

			s = statuses[0]
			if s == nil {
				if lastValidBlockHeight == 0 {
					return ErrSignatureNotFound
				}

				height, err := c.GetBlockHeight(commitment)
				if err != nil {
					return err
				}
				if height > lastValidBlockHeight {
					return ErrBlockhashExpired
				}
				return ErrSignatureNotFound
			}
			if s.ErrorResult != nil {
				return s.ErrorResult
			}
			if s.Reached(commitment) {
				return nil
			}

			return errConfirmationsNotReached
		},
		strategies...,
	)
	if err != nil && ctx.Err() != nil && (err == ErrSignatureNotFound || err == errConfirmationsNotReached) {
		return s, errors.Wrap(ctx.Err(), "stopped waiting for confirmation")
	}

	return s, err
}

func (c *client) GetSignatureStatuses(sigs []Signature) ([]*SignatureStatus, error) {
	b58Sigs := make([]string, len(sigs))
	for i := range sigs {
		b58Sigs[i] = sigs[i].ToBase58()
	}

	req := struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{
		SearchTransactionHistory: true,
	}

	type signatureStatus struct {
		Slot               uint64          `json:"slot"`
		Confirmations      *int            `json:"confirmations"`
		ConfirmationStatus string          `json:"confirmationStatus"`
		Err                json.RawMessage `json:"err"`
	}

	type rpcResp struct {
		Context struct {
			Slot int `json:"slot"`
		} `json:"context"`
		Value []*signatureStatus `json:"value"`
	}

	var resp rpcResp
	if err := c.call(&resp, "getSignatureStatuses", b58Sigs, req); err != nil {
		return nil, errors.Wrap(err, "getSignatureStatuses() failed to send request")
	}
	if len(resp.Value) != len(sigs) {
		return nil, errors.Errorf("expected %d statuses, got %d", len(sigs), len(resp.Value))
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i, v := range resp.Value {
		if v == nil {
			continue
		}

		statuses[i] = &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: v.ConfirmationStatus,
		}

		if len(v.Err) > 0 {
			var txError interface{}
			d := json.NewDecoder(bytes.NewReader(v.Err))
			d.UseNumber()
			if err := d.Decode(&txError); err != nil {
				return nil, errors.Wrap(err, "failed to parse transaction result")
			}

			var err error
			statuses[i].ErrorResult, err = ParseTransactionError(txError)
			if err != nil {
				return nil, errors.Wrap(err, "failed to parse transaction result")
			}
		}
	}

	return statuses, nil
}
