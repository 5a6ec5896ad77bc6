package moviereview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/movie-review/pkg/solana"
	"github.com/code-payments/movie-review/pkg/testutil"
)

func TestGetReviewAddress_Deterministic(t *testing.T) {
	reviewer := testutil.GenerateSolanaKeys(t, 1)[0]
	args := &GetReviewAddressArgs{Reviewer: reviewer, Title: "Braveheart123"}

	first, firstBump, err := GetReviewAddress(args)
	require.NoError(t, err)
	second, secondBump, err := GetReviewAddress(args)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstBump, secondBump)

	expected, err := solana.CreateProgramAddress(PROGRAM_ID, reviewer, []byte("Braveheart123"), []byte{firstBump})
	require.NoError(t, err)
	assert.Equal(t, expected, first)

	explicit, _, err := GetReviewAddress(&GetReviewAddressArgs{Reviewer: reviewer, Title: "Braveheart123", Program: PROGRAM_ID})
	require.NoError(t, err)
	assert.Equal(t, first, explicit)
}

func TestGetReviewAddress_SeedsMatter(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)

	base, _, err := GetReviewAddress(&GetReviewAddressArgs{Reviewer: keys[0], Title: "Braveheart1"})
	require.NoError(t, err)

	otherTitle, _, err := GetReviewAddress(&GetReviewAddressArgs{Reviewer: keys[0], Title: "Braveheart2"})
	require.NoError(t, err)
	assert.NotEqual(t, base, otherTitle)

	otherReviewer, _, err := GetReviewAddress(&GetReviewAddressArgs{Reviewer: keys[1], Title: "Braveheart1"})
	require.NoError(t, err)
	assert.NotEqual(t, base, otherReviewer)

	otherProgram, _, err := GetReviewAddress(&GetReviewAddressArgs{Reviewer: keys[0], Title: "Braveheart1", Program: keys[2]})
	require.NoError(t, err)
	assert.NotEqual(t, base, otherProgram)
}

func TestGetReviewAddress_TitleTooLong(t *testing.T) {
	reviewer := testutil.GenerateSolanaKeys(t, 1)[0]

	_, _, err := GetReviewAddress(&GetReviewAddressArgs{Reviewer: reviewer, Title: strings.Repeat("a", 32)})
	assert.NoError(t, err)

	_, _, err = GetReviewAddress(&GetReviewAddressArgs{Reviewer: reviewer, Title: strings.Repeat("a", 33)})
	assert.Equal(t, solana.ErrMaxSeedLengthExceeded, err)
}
