package airdrop

import (
	"time"

	"github.com/code-payments/movie-review/pkg/config"
	"github.com/code-payments/movie-review/pkg/config/env"
	"github.com/code-payments/movie-review/pkg/config/memory"
	"github.com/code-payments/movie-review/pkg/config/wrapper"
	"github.com/code-payments/movie-review/pkg/solana"
)

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

const (
	envConfigPrefix = "AIRDROP_"

	ThresholdConfigEnvName = envConfigPrefix + "THRESHOLD"
	defaultThreshold       = LamportsPerSol

	AmountConfigEnvName = envConfigPrefix + "AMOUNT"
	defaultAmount       = LamportsPerSol

	ConfirmTimeoutConfigEnvName = envConfigPrefix + "CONFIRM_TIMEOUT"
	defaultConfirmTimeout       = 0 // don't wait for the grant

	PollIntervalConfigEnvName = envConfigPrefix + "POLL_INTERVAL"
	defaultPollInterval       = solana.PollRate
)

type conf struct {
	threshold      config.Uint64
	amount         config.Uint64
	confirmTimeout config.Duration
	pollInterval   config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			threshold:      env.NewUint64Config(ThresholdConfigEnvName, defaultThreshold),
			amount:         env.NewUint64Config(AmountConfigEnvName, defaultAmount),
			confirmTimeout: env.NewDurationConfig(ConfirmTimeoutConfigEnvName, defaultConfirmTimeout),
			pollInterval:   env.NewDurationConfig(PollIntervalConfigEnvName, defaultPollInterval),
		}
	}
}

type testOverrides struct {
	threshold      uint64
	amount         uint64
	confirmTimeout time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			threshold:      wrapper.NewUint64Config(memory.NewConfig(overrides.threshold), defaultThreshold),
			amount:         wrapper.NewUint64Config(memory.NewConfig(overrides.amount), defaultAmount),
			confirmTimeout: wrapper.NewDurationConfig(memory.NewConfig(overrides.confirmTimeout), defaultConfirmTimeout),
			pollInterval:   wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultPollInterval),
		}
	}
}
