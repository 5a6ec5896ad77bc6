package review

import (
	"github.com/mr-tron/base58"

	"github.com/code-payments/movie-review/pkg/config"
	"github.com/code-payments/movie-review/pkg/config/env"
	"github.com/code-payments/movie-review/pkg/config/memory"
	"github.com/code-payments/movie-review/pkg/config/wrapper"
	"github.com/code-payments/movie-review/pkg/solana/moviereview"
)

const (
	envConfigPrefix = "REVIEW_"

	ProgramIdConfigEnvName = envConfigPrefix + "PROGRAM_ID"

	TitlePrefixConfigEnvName = envConfigPrefix + "TITLE_PREFIX"
	defaultTitlePrefix       = "Braveheart"

	RatingConfigEnvName = envConfigPrefix + "RATING"
	defaultRating       = 5

	DescriptionConfigEnvName = envConfigPrefix + "DESCRIPTION"
	defaultDescription       = "A great movie"

	VerifyConfigEnvName = envConfigPrefix + "VERIFY"
	defaultVerify       = false
)

var defaultProgramId = base58.Encode(moviereview.PROGRAM_ID)

type conf struct {
	programId   config.String
	titlePrefix config.String
	rating      config.Uint64
	description config.String
	verify      config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			programId:   env.NewStringConfig(ProgramIdConfigEnvName, defaultProgramId),
			titlePrefix: env.NewStringConfig(TitlePrefixConfigEnvName, defaultTitlePrefix),
			rating:      env.NewUint64Config(RatingConfigEnvName, defaultRating),
			description: env.NewStringConfig(DescriptionConfigEnvName, defaultDescription),
			verify:      env.NewBoolConfig(VerifyConfigEnvName, defaultVerify),
		}
	}
}

type testOverrides struct {
	programId string
	rating    uint64
	verify    bool
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		programId := overrides.programId
		if programId == "" {
			programId = defaultProgramId
		}

		rating := overrides.rating
		if rating == 0 {
			rating = defaultRating
		}

		return &conf{
			programId:   wrapper.NewStringConfig(memory.NewConfig(programId), defaultProgramId),
			titlePrefix: wrapper.NewStringConfig(memory.NewConfig(defaultTitlePrefix), defaultTitlePrefix),
			rating:      wrapper.NewUint64Config(memory.NewConfig(rating), defaultRating),
			description: wrapper.NewStringConfig(memory.NewConfig(defaultDescription), defaultDescription),
			verify:      wrapper.NewBoolConfig(memory.NewConfig(overrides.verify), defaultVerify),
		}
	}
}
