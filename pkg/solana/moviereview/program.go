// Package moviereview contains the client bindings for the movie review
// program: instruction encoding, review address derivation and review account
// decoding.
package moviereview

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var (
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

// PROGRAM_ID is the devnet deployment of the movie review program.
var PROGRAM_ID = ed25519.PublicKey(mustBase58Decode("FnHUUiX2jLSaGdt6GpgoJYKnUxzbPG5VmRPEDr1NEekm"))

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
