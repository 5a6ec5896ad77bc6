package keypair

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/subosito/gotenv"

	"github.com/code-payments/movie-review/pkg/config"
)

const (
	// DefaultSecretKey is the variable the secret is stored under.
	DefaultSecretKey = "PRIVATE_KEY"

	// DefaultEnvFile is the dotenv file new secrets are written to.
	DefaultEnvFile = ".env"

	envFileMode = 0600
)

// LoadEnvFile loads the dotenv file at path into the process environment.
// Variables that are already set win over the file. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := gotenv.Load(path); err != nil {
		return errors.Wrapf(err, "failed to load %s", path)
	}
	return nil
}

// Store provisions the signing keypair. It prefers the configured secret, then
// a secret already present in the dotenv file, and otherwise generates a new
// keypair and appends it to the dotenv file.
type Store struct {
	log     *logrus.Entry
	secret  config.String
	envFile string
	key     string
}

// NewStore returns a Store reading the secret from secret and persisting new
// secrets under key in envFile.
func NewStore(secret config.String, envFile, key string) *Store {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if key == "" {
		key = DefaultSecretKey
	}

	return &Store{
		log:     logrus.StandardLogger().WithField("type", "keypair/store"),
		secret:  secret,
		envFile: envFile,
		key:     key,
	}
}

// Load returns the signing keypair, and whether it was newly created.
func (s *Store) Load(ctx context.Context) (*Keypair, bool, error) {
	log := s.log.WithField("env_file", s.envFile)

	secret, err := s.secret.GetSafe(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to read keypair secret")
	}

	if secret == "" {
		secret, err = s.readEnvFile()
		if err != nil {
			return nil, false, err
		}
	}

	if secret != "" {
		kp, err := ParseSecret(secret)
		if err != nil {
			return nil, false, errors.Wrapf(err, "%s is malformed", s.key)
		}

		log.WithField("public_key", kp.ToBase58()).Debug("loaded existing keypair")
		return kp, false, nil
	}

	kp, err := Generate()
	if err != nil {
		return nil, false, err
	}

	if err := s.appendEnvFile(kp); err != nil {
		return nil, false, err
	}

	// Later reads in this process see the new secret without reloading the file
	if err := os.Setenv(s.key, kp.MarshalSecret()); err != nil {
		return nil, false, errors.Wrapf(err, "failed to export %s", s.key)
	}

	log.WithField("public_key", kp.ToBase58()).Info("generated new keypair")
	return kp, true, nil
}

func (s *Store) readEnvFile() (string, error) {
	f, err := os.Open(s.envFile)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Wrapf(err, "failed to open %s", s.envFile)
	}
	defer f.Close()

	vars, err := gotenv.StrictParse(f)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse %s", s.envFile)
	}
	return vars[s.key], nil
}

func (s *Store) appendEnvFile(kp *Keypair) error {
	existing, err := os.ReadFile(s.envFile)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to read %s", s.envFile)
	}

	var line bytes.Buffer
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		line.WriteByte('\n')
	}
	fmt.Fprintf(&line, "%s=%s\n", s.key, kp.MarshalSecret())

	f, err := os.OpenFile(s.envFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, envFileMode)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", s.envFile)
	}

	if _, err := f.Write(line.Bytes()); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", s.envFile)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", s.envFile)
}
