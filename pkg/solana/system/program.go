// Package system holds the addresses of the Solana system program.
package system

import (
	"crypto/ed25519"
)

// ProgramKey is the system program, 11111111111111111111111111111111. Programs
// that create accounts on behalf of a user CPI into it and so require it in the
// instruction's account list.
var ProgramKey = ed25519.PublicKey(make([]byte, ed25519.PublicKeySize))
