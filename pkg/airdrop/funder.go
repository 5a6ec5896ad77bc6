// Package airdrop keeps the signing account funded from a test cluster's
// faucet.
package airdrop

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/movie-review/pkg/metrics"
	"github.com/code-payments/movie-review/pkg/retry"
	"github.com/code-payments/movie-review/pkg/retry/backoff"
	"github.com/code-payments/movie-review/pkg/solana"
)

const (
	metricsStructName = "airdrop.funder"

	airdropEventName = "AirdropRequested"

	requestedLamportsMetricName = "AirdropRequestedLamports"
)

var (
	// ErrAirdropNotConfirmed is returned when a grant was requested but did
	// not reach confirmed commitment within the configured timeout.
	ErrAirdropNotConfirmed = errors.New("airdrop not confirmed")

	errNotConfirmed = errors.New("grant not yet confirmed")
)

// Result describes what EnsureFunded observed and did.
type Result struct {
	// Balance is the balance before any grant, in lamports.
	Balance uint64

	// Requested is the number of lamports requested, or 0 if the balance was
	// already above the threshold.
	Requested uint64

	// Signature is the grant transaction, if one was requested.
	Signature solana.Signature

	// Confirmed is set once the grant has been observed at confirmed
	// commitment. It is never set when confirmation isn't awaited.
	Confirmed bool
}

// Funder tops up an account from the cluster faucet.
type Funder struct {
	log    *logrus.Entry
	conf   *conf
	client solana.Client
	out    io.Writer
}

// NewFunder returns a Funder that reports progress to out. A nil out discards
// progress.
func NewFunder(client solana.Client, out io.Writer, configProvider ConfigProvider) *Funder {
	if out == nil {
		out = io.Discard
	}

	return &Funder{
		log:    logrus.StandardLogger().WithField("type", "airdrop/funder"),
		conf:   configProvider(),
		client: client,
		out:    out,
	}
}

// EnsureFunded requests an airdrop for owner when its balance is below the
// configured threshold. Failures to query the balance or to request the grant
// are returned. The grant itself is only awaited when a confirmation timeout
// is configured.
func (f *Funder) EnsureFunded(ctx context.Context, owner ed25519.PublicKey) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "EnsureFunded")
	defer tracer.End()

	res, err := f.ensureFunded(ctx, owner)
	tracer.OnError(err)
	return res, err
}

func (f *Funder) ensureFunded(ctx context.Context, owner ed25519.PublicKey) (*Result, error) {
	log := f.log.WithField("owner", base58.Encode(owner))

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "funding not started")
	}

	balance, err := f.client.GetBalance(owner, solana.CommitmentConfirmed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get balance")
	}

	fmt.Fprintf(f.out, "Current balance is %d\n", balance)
	log = log.WithField("balance", balance)

	res := &Result{Balance: balance}

	threshold := f.conf.threshold.Get(ctx)
	if balance >= threshold {
		log.Debug("balance above threshold, skipping airdrop")
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "airdrop not requested")
	}

	amount := f.conf.amount.Get(ctx)
	fmt.Fprintf(f.out, "Airdropping %s SOL...\n", formatSol(amount))

	sig, err := f.client.RequestAirdrop(owner, amount, solana.CommitmentConfirmed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to request airdrop")
	}

	res.Requested = amount
	res.Signature = sig

	log = log.WithFields(logrus.Fields{
		"amount":    amount,
		"signature": sig.ToBase58(),
	})
	log.Info("airdrop requested")

	metrics.RecordCount(ctx, requestedLamportsMetricName, amount)

	metrics.RecordEvent(ctx, airdropEventName, map[string]interface{}{
		"owner":     base58.Encode(owner),
		"balance":   balance,
		"amount":    amount,
		"signature": sig.ToBase58(),
	})

	timeout := f.conf.confirmTimeout.Get(ctx)
	if timeout <= 0 {
		return res, nil
	}

	if err := f.awaitGrant(ctx, sig); err != nil {
		return res, err
	}

	log.Info("airdrop confirmed")
	res.Confirmed = true
	return res, nil
}

// awaitGrant polls the grant signature until it reaches confirmed commitment,
// the grant fails, or the confirmation timeout elapses.
func (f *Funder) awaitGrant(ctx context.Context, sig solana.Signature) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.conf.confirmTimeout.Get(ctx))
	defer cancel()

	interval := f.conf.pollInterval.Get(ctx)

	_, err := retry.Retry(
		func() error {
			statuses, err := f.client.GetSignatureStatuses([]solana.Signature{sig})
			if err != nil {
				return err
			}

			s := statuses[0]
			if s == nil {
				return errNotConfirmed
			}
			if s.ErrorResult != nil {
				return errors.Wrap(s.ErrorResult, "airdrop failed")
			}
			if !s.Reached(solana.CommitmentConfirmed) {
				return errNotConfirmed
			}
			return nil
		},
		retry.RetriableErrors(errNotConfirmed),
		retry.Context(timeoutCtx),
		retry.Backoff(backoff.Constant(interval), interval),
	)
	if errors.Is(err, errNotConfirmed) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "stopped waiting for airdrop")
		}
		return errors.Wrapf(ErrAirdropNotConfirmed, "signature %s", sig.ToBase58())
	}
	return err
}

func formatSol(lamports uint64) string {
	whole := lamports / LamportsPerSol
	frac := lamports % LamportsPerSol
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}

	s := fmt.Sprintf("%d.%09d", whole, frac)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}
