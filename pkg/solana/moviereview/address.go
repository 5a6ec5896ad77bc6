package moviereview

import (
	"crypto/ed25519"

	"github.com/code-payments/movie-review/pkg/solana"
)

type GetReviewAddressArgs struct {
	Reviewer ed25519.PublicKey
	Title    string

	// Program defaults to PROGRAM_ID when unset.
	Program ed25519.PublicKey
}

// GetReviewAddress derives the review account owned by the program for a
// reviewer and title, seeded by [reviewer, title]. Titles longer than 32 bytes
// cannot be used as a seed and return solana.ErrMaxSeedLengthExceeded.
func GetReviewAddress(args *GetReviewAddressArgs) (ed25519.PublicKey, uint8, error) {
	program := args.Program
	if len(program) == 0 {
		program = PROGRAM_ID
	}

	return solana.FindProgramAddressAndBump(
		program,
		args.Reviewer,
		[]byte(args.Title),
	)
}
