package moviereview

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/movie-review/pkg/solana"
	"github.com/code-payments/movie-review/pkg/solana/system"
	"github.com/code-payments/movie-review/pkg/testutil"
)

func TestMarshalInstructionData(t *testing.T) {
	args := &MovieReviewInstructionArgs{
		Title:       "Braveheart123",
		Rating:      5,
		Description: "A great movie",
	}

	expected := []byte{0}
	expected = append(expected, 13, 0, 0, 0)
	expected = append(expected, "Braveheart123"...)
	expected = append(expected, 5)
	expected = append(expected, 13, 0, 0, 0)
	expected = append(expected, "A great movie"...)

	data := MarshalInstructionData(InstructionTypeAddMovieReview, args)
	assert.Equal(t, expected, data)
	assert.Len(t, data, 1+args.Size())

	instructionType, decoded, err := UnmarshalInstructionData(data)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeAddMovieReview, instructionType)
	assert.Equal(t, args, decoded)

	data = MarshalInstructionData(InstructionTypeUpdateMovieReview, args)
	assert.EqualValues(t, 1, data[0])
	instructionType, _, err = UnmarshalInstructionData(data)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeUpdateMovieReview, instructionType)
}

func TestMarshalInstructionData_RatingNotValidated(t *testing.T) {
	args := &MovieReviewInstructionArgs{Title: "Braveheart", Rating: 200, Description: ""}

	data := MarshalInstructionData(InstructionTypeAddMovieReview, args)
	assert.EqualValues(t, 200, data[1+4+len("Braveheart")])

	_, decoded, err := UnmarshalInstructionData(data)
	require.NoError(t, err)
	assert.EqualValues(t, 200, decoded.Rating)
	assert.Empty(t, decoded.Description)
}

func TestMarshalInstructionData_Unicode(t *testing.T) {
	args := &MovieReviewInstructionArgs{Title: "Amélie", Rating: 4, Description: "☉"}

	data := MarshalInstructionData(InstructionTypeAddMovieReview, args)
	assert.EqualValues(t, len("Amélie"), data[1])

	_, decoded, err := UnmarshalInstructionData(data)
	require.NoError(t, err)
	assert.Equal(t, args, decoded)
}

func TestUnmarshalInstructionData_Invalid(t *testing.T) {
	valid := MarshalInstructionData(InstructionTypeAddMovieReview, &MovieReviewInstructionArgs{
		Title:       "Braveheart123",
		Rating:      5,
		Description: "A great movie",
	})

	unknownType := append([]byte{2}, valid[1:]...)
	trailing := append(append([]byte{}, valid...), 0)

	for name, data := range map[string][]byte{
		"empty":        nil,
		"unknown type": unknownType,
		"truncated":    valid[:len(valid)-1],
		"no rating":    valid[:1+4+len("Braveheart123")],
		"trailing":     trailing,
	} {
		_, _, err := UnmarshalInstructionData(data)
		assert.True(t, errors.Is(err, ErrInvalidInstructionData), name)
	}
}

func TestNewMovieReviewInstruction(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)
	initializer, review, program := keys[0], keys[1], keys[2]
	args := &MovieReviewInstructionArgs{Title: "Braveheart1", Rating: 5, Description: "A great movie"}

	for _, tc := range []struct {
		ctor     func(*MovieReviewInstructionAccounts, *MovieReviewInstructionArgs) solana.Instruction
		expected InstructionType
	}{
		{NewAddMovieReviewInstruction, InstructionTypeAddMovieReview},
		{NewUpdateMovieReviewInstruction, InstructionTypeUpdateMovieReview},
	} {
		ixn := tc.ctor(&MovieReviewInstructionAccounts{Initializer: initializer, Review: review, Program: program}, args)

		assert.Equal(t, program, ixn.Program)
		assert.Equal(t, MarshalInstructionData(tc.expected, args), ixn.Data)
		require.Len(t, ixn.Accounts, 3)

		assert.Equal(t, initializer, ixn.Accounts[0].PublicKey)
		assert.True(t, ixn.Accounts[0].IsSigner)
		assert.False(t, ixn.Accounts[0].IsWritable)

		assert.Equal(t, review, ixn.Accounts[1].PublicKey)
		assert.False(t, ixn.Accounts[1].IsSigner)
		assert.True(t, ixn.Accounts[1].IsWritable)

		assert.Equal(t, system.ProgramKey, ixn.Accounts[2].PublicKey)
		assert.False(t, ixn.Accounts[2].IsSigner)
		assert.False(t, ixn.Accounts[2].IsWritable)
	}

	ixn := NewAddMovieReviewInstruction(&MovieReviewInstructionAccounts{Initializer: initializer, Review: review}, args)
	assert.Equal(t, PROGRAM_ID, ixn.Program)
}

func TestDecompileMovieReview(t *testing.T) {
	signer := testutil.GenerateSolanaKeypair(t)
	reviewer := signer.Public().(ed25519.PublicKey)
	args := &MovieReviewInstructionArgs{Title: "Braveheart42", Rating: 3, Description: "Fine"}

	review, _, err := GetReviewAddress(&GetReviewAddressArgs{Reviewer: reviewer, Title: args.Title})
	require.NoError(t, err)

	txn := solana.NewLegacyTransaction(
		reviewer,
		NewUpdateMovieReviewInstruction(&MovieReviewInstructionAccounts{Initializer: reviewer, Review: review}, args),
	)
	require.NoError(t, txn.Sign(signer))

	var decoded solana.Transaction
	require.NoError(t, decoded.Unmarshal(txn.Marshal()))

	decompiled, err := DecompileMovieReview(decoded.Message, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeUpdateMovieReview, decompiled.Type)
	assert.Equal(t, args, decompiled.Args)
	assert.Equal(t, reviewer, decompiled.Initializer)
	assert.Equal(t, review, decompiled.Review)

	_, err = DecompileMovieReview(decoded.Message, 1, nil)
	assert.Error(t, err)

	_, err = DecompileMovieReview(decoded.Message, 0, testutil.GenerateSolanaKeys(t, 1)[0])
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func TestDecompileMovieReview_WrongShape(t *testing.T) {
	signer := testutil.GenerateSolanaKeypair(t)
	reviewer := signer.Public().(ed25519.PublicKey)

	txn := solana.NewLegacyTransaction(
		reviewer,
		solana.NewInstruction(PROGRAM_ID, []byte{0}, solana.NewReadonlyAccountMeta(reviewer, true)),
	)

	_, err := DecompileMovieReview(txn.Message, 0, nil)
	assert.True(t, errors.Is(err, solana.ErrIncorrectInstruction))
}

func TestInstructionType_String(t *testing.T) {
	assert.Equal(t, "AddMovieReview", InstructionTypeAddMovieReview.String())
	assert.Equal(t, "UpdateMovieReview", InstructionTypeUpdateMovieReview.String())
	assert.True(t, strings.HasPrefix(InstructionType(9).String(), "InstructionType("))
}
