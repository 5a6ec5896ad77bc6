// Package keypair provisions the ed25519 signing key used to pay for and sign
// transactions.
package keypair

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// ErrInvalidSecret is returned when a stored secret cannot be turned into a
// keypair. It is a configuration error and is not recoverable by retrying.
var ErrInvalidSecret = errors.New("invalid keypair secret")

// Keypair is an ed25519 signing key. The 64 byte private key is the 32 byte
// seed followed by the 32 byte public key.
type Keypair struct {
	private ed25519.PrivateKey
}

// Generate returns a keypair drawn from crypto/rand.
func Generate() (*Keypair, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate keypair")
	}
	return &Keypair{private: private}, nil
}

// FromPrivateKey wraps an existing 64 byte private key.
func FromPrivateKey(private ed25519.PrivateKey) (*Keypair, error) {
	if err := validate(private); err != nil {
		return nil, err
	}

	cloned := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(cloned, private)
	return &Keypair{private: cloned}, nil
}

// ParseSecret parses the bracketed decimal form produced by MarshalSecret, for
// example "[12, 255, ...]". Exactly 64 entries in 0..255 are required and the
// trailing 32 bytes must be the public key of the leading 32 byte seed.
func ParseSecret(secret string) (*Keypair, error) {
	var values []json.Number

	d := json.NewDecoder(strings.NewReader(secret))
	d.UseNumber()
	if err := d.Decode(&values); err != nil {
		return nil, errors.Wrapf(ErrInvalidSecret, "not a list of numbers: %v", err)
	}
	if d.More() {
		return nil, errors.Wrap(ErrInvalidSecret, "unexpected data after list")
	}
	if len(values) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(ErrInvalidSecret, "expected %d bytes, got %d", ed25519.PrivateKeySize, len(values))
	}

	private := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	for i, v := range values {
		b, err := strconv.ParseUint(v.String(), 10, 8)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSecret, "entry %d (%s) is not a byte", i, v)
		}
		private[i] = byte(b)
	}

	if err := validate(private); err != nil {
		return nil, err
	}
	return &Keypair{private: private}, nil
}

func validate(private ed25519.PrivateKey) error {
	if len(private) != ed25519.PrivateKeySize {
		return errors.Wrapf(ErrInvalidSecret, "expected %d bytes, got %d", ed25519.PrivateKeySize, len(private))
	}

	derived := ed25519.NewKeyFromSeed(private.Seed())
	if !bytes.Equal(derived[ed25519.SeedSize:], private[ed25519.SeedSize:]) {
		return errors.Wrap(ErrInvalidSecret, "public key does not match seed")
	}
	return nil
}

func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.private.Public().(ed25519.PublicKey)
}

func (k *Keypair) PrivateKey() ed25519.PrivateKey {
	return k.private
}

// ToBase58 returns the base58 encoded public key.
func (k *Keypair) ToBase58() string {
	return base58.Encode(k.PublicKey())
}

// MarshalSecret returns the private key in the bracketed decimal form accepted
// by ParseSecret.
func (k *Keypair) MarshalSecret() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, b := range k.private {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(b)))
	}
	sb.WriteByte(']')
	return sb.String()
}
