// Package review submits movie reviews to the movie review program and reads
// them back.
package review

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/movie-review/pkg/keypair"
	"github.com/code-payments/movie-review/pkg/metrics"
	"github.com/code-payments/movie-review/pkg/solana"
	"github.com/code-payments/movie-review/pkg/solana/moviereview"
)

const (
	metricsStructName = "review.sender"

	submittedEventName = "MovieReviewSubmitted"

	confirmationLatencyMetricName = "MovieReviewConfirmationLatency"

	maxTitleSuffix = 1_000_000
)

var (
	ErrTransactionTooLarge = errors.New("transaction exceeds the maximum size")
	ErrReviewNotFound      = errors.New("review account not found")
	ErrInvalidProgram      = errors.New("invalid program id")
)

// Receipt identifies a confirmed review submission.
type Receipt struct {
	Signature     solana.Signature
	ReviewAddress ed25519.PublicKey
	ExplorerURL   string
	ReviewURL     string
}

// Sender builds, signs and submits movie review transactions for a single
// signer.
type Sender struct {
	log     *logrus.Entry
	conf    *conf
	client  solana.Client
	signer  *keypair.Keypair
	cluster solana.Cluster
	out     io.Writer
}

// NewSender returns a Sender paying with and signing as signer. Progress is
// reported to out, which may be nil.
func NewSender(client solana.Client, signer *keypair.Keypair, cluster solana.Cluster, out io.Writer, configProvider ConfigProvider) *Sender {
	if out == nil {
		out = io.Discard
	}

	return &Sender{
		log:     logrus.StandardLogger().WithField("type", "review/sender"),
		conf:    configProvider(),
		client:  client,
		signer:  signer,
		cluster: cluster,
		out:     out,
	}
}

// NewArgs returns the review to submit using the configured rating and
// description. An empty title is replaced by the configured prefix followed by
// a random number, so repeated runs create distinct review accounts.
func (s *Sender) NewArgs(ctx context.Context, title string) (*moviereview.MovieReviewInstructionArgs, error) {
	rating := s.conf.rating.Get(ctx)
	if rating > math.MaxUint8 {
		return nil, errors.Errorf("rating %d does not fit in a u8", rating)
	}

	if title == "" {
		title = fmt.Sprintf("%s%d", s.conf.titlePrefix.Get(ctx), rand.Intn(maxTitleSuffix))
	}

	return &moviereview.MovieReviewInstructionArgs{
		Title:       title,
		Rating:      uint8(rating),
		Description: s.conf.description.Get(ctx),
	}, nil
}

// ShouldVerify reports whether the review account should be read back after a
// successful submission.
func (s *Sender) ShouldVerify(ctx context.Context) bool {
	return s.conf.verify.Get(ctx)
}

// Send submits a single movie review instruction of the given type and waits
// for the transaction to reach confirmed commitment.
//
// A transaction the cluster rejects, whether during preflight or after
// landing, is returned as a *solana.TransactionError. Submission is never
// retried, so a rejected review is sent exactly once.
func (s *Sender) Send(
	ctx context.Context,
	t moviereview.InstructionType,
	args *moviereview.MovieReviewInstructionArgs,
) (*Receipt, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Send")
	defer tracer.End()

	receipt, err := s.send(ctx, t, args)
	tracer.OnError(err)
	return receipt, err
}

func (s *Sender) send(
	ctx context.Context,
	t moviereview.InstructionType,
	args *moviereview.MovieReviewInstructionArgs,
) (*Receipt, error) {
	program, err := s.program(ctx)
	if err != nil {
		return nil, err
	}

	signer := s.signer.PublicKey()
	log := s.log.WithFields(logrus.Fields{
		"method":      "Send",
		"signer":      base58.Encode(signer),
		"program":     base58.Encode(program),
		"instruction": t.String(),
		"title":       args.Title,
	})

	reviewAddress, _, err := moviereview.GetReviewAddress(&moviereview.GetReviewAddressArgs{
		Reviewer: signer,
		Title:    args.Title,
		Program:  program,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive review address")
	}
	log = log.WithField("review", base58.Encode(reviewAddress))

	fmt.Fprintf(s.out, "PDA is: %s\n", base58.Encode(reviewAddress))

	accounts := &moviereview.MovieReviewInstructionAccounts{
		Initializer: signer,
		Review:      reviewAddress,
		Program:     program,
	}

	var ix solana.Instruction
	switch t {
	case moviereview.InstructionTypeAddMovieReview:
		ix = moviereview.NewAddMovieReviewInstruction(accounts, args)
	case moviereview.InstructionTypeUpdateMovieReview:
		ix = moviereview.NewUpdateMovieReviewInstruction(accounts, args)
	default:
		return nil, errors.Errorf("unsupported instruction type %d", uint8(t))
	}

	txn := solana.NewLegacyTransaction(signer, ix)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "review not submitted")
	}

	blockhash, err := s.client.GetLatestBlockhash()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest blockhash")
	}
	txn.SetBlockhash(blockhash.Blockhash)

	if err := txn.Sign(s.signer.PrivateKey()); err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	if size := len(txn.Marshal()); size > solana.MaxTransactionSize {
		return nil, errors.Wrapf(ErrTransactionTooLarge, "%d > %d bytes", size, solana.MaxTransactionSize)
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "review not submitted")
	}

	log = log.WithField("signature", txn.Signature().ToBase58())
	log.Debug("submitting transaction")

	start := time.Now()
	sig, err := s.client.SubmitTransaction(txn, solana.CommitmentConfirmed)
	if err != nil {
		log.WithError(err).Warn("transaction rejected on submission")
		return nil, errors.Wrap(err, "failed to submit transaction")
	}

	status, err := s.client.ConfirmTransaction(ctx, sig, blockhash.LastValidBlockHeight, solana.CommitmentConfirmed)
	if err != nil {
		log.WithError(err).Warn("transaction did not confirm")
		return nil, errors.Wrap(err, "failed to confirm transaction")
	}
	metrics.RecordDuration(ctx, confirmationLatencyMetricName, time.Since(start))

	receipt := &Receipt{
		Signature:     sig,
		ReviewAddress: reviewAddress,
		ExplorerURL:   solana.ExplorerTransactionURL(sig, s.cluster),
		ReviewURL:     solana.ExplorerAddressURL(base58.Encode(reviewAddress), s.cluster),
	}

	log.WithField("slot", status.Slot).Info("review confirmed")
	metrics.RecordEvent(ctx, submittedEventName, map[string]interface{}{
		"instruction": t.String(),
		"review":      base58.Encode(reviewAddress),
		"signature":   sig.ToBase58(),
		"slot":        status.Slot,
	})

	return receipt, nil
}

// FetchReview loads and decodes the review account at address. The account
// must be owned by the configured program.
func (s *Sender) FetchReview(ctx context.Context, address ed25519.PublicKey) (*moviereview.ReviewAccount, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "FetchReview")
	defer tracer.End()

	review, err := s.fetchReview(ctx, address)
	tracer.OnError(err)
	return review, err
}

func (s *Sender) fetchReview(ctx context.Context, address ed25519.PublicKey) (*moviereview.ReviewAccount, error) {
	program, err := s.program(ctx)
	if err != nil {
		return nil, err
	}

	info, err := s.client.GetAccountInfo(address, solana.CommitmentConfirmed)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrReviewNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get review account")
	}

	if !bytes.Equal(info.Owner, program) {
		return nil, errors.Wrapf(moviereview.ErrInvalidAccountData, "account owned by %s", base58.Encode(info.Owner))
	}

	var review moviereview.ReviewAccount
	if err := review.Unmarshal(info.Data); err != nil {
		return nil, err
	}
	return &review, nil
}

func (s *Sender) program(ctx context.Context) (ed25519.PublicKey, error) {
	encoded := s.conf.programId.Get(ctx)

	decoded, err := base58.Decode(encoded)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrInvalidProgram, "%q", encoded)
	}
	return decoded, nil
}
