package moviereview

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/movie-review/pkg/solana"
	"github.com/code-payments/movie-review/pkg/solana/binary"
	"github.com/code-payments/movie-review/pkg/solana/system"
)

type MovieReviewInstructionArgs struct {
	Title       string
	Rating      uint8
	Description string
}

// Size is the Borsh encoded size of the args, excluding the instruction type.
func (a *MovieReviewInstructionArgs) Size() int {
	return (binary.StringSize(a.Title) + // title
		1 + // rating
		binary.StringSize(a.Description)) // description
}

type MovieReviewInstructionAccounts struct {
	Initializer ed25519.PublicKey
	Review      ed25519.PublicKey

	// Program defaults to PROGRAM_ID when unset.
	Program ed25519.PublicKey
}

// MarshalInstructionData Borsh encodes an instruction payload:
//
//	u8 instruction type | u32 title len | title | u8 rating | u32 description len | description
//
// Ratings are not range checked; the program decides what it accepts.
func MarshalInstructionData(t InstructionType, args *MovieReviewInstructionArgs) []byte {
	var offset int
	data := make([]byte, 1+args.Size())

	binary.PutUint8(data[offset:], uint8(t), &offset)
	binary.PutString(data[offset:], args.Title, &offset)
	binary.PutUint8(data[offset:], args.Rating, &offset)
	binary.PutString(data[offset:], args.Description, &offset)

	return data
}

// UnmarshalInstructionData decodes a payload produced by MarshalInstructionData.
// Unknown instruction types, truncated data and trailing bytes are rejected.
func UnmarshalInstructionData(data []byte) (InstructionType, *MovieReviewInstructionArgs, error) {
	var offset int
	var rawType uint8
	var args MovieReviewInstructionArgs

	if err := binary.GetUint8(data[offset:], &rawType, &offset); err != nil {
		return 0, nil, errors.Wrap(ErrInvalidInstructionData, "missing instruction type")
	}
	t := InstructionType(rawType)
	if !t.valid() {
		return 0, nil, errors.Wrapf(ErrInvalidInstructionData, "unknown instruction type %d", rawType)
	}

	if err := binary.GetString(data[offset:], &args.Title, &offset); err != nil {
		return 0, nil, errors.Wrapf(ErrInvalidInstructionData, "title: %v", err)
	}
	if err := binary.GetUint8(data[offset:], &args.Rating, &offset); err != nil {
		return 0, nil, errors.Wrapf(ErrInvalidInstructionData, "rating: %v", err)
	}
	if err := binary.GetString(data[offset:], &args.Description, &offset); err != nil {
		return 0, nil, errors.Wrapf(ErrInvalidInstructionData, "description: %v", err)
	}

	if offset != len(data) {
		return 0, nil, errors.Wrapf(ErrInvalidInstructionData, "%d trailing bytes", len(data)-offset)
	}

	return t, &args, nil
}

func NewAddMovieReviewInstruction(
	accounts *MovieReviewInstructionAccounts,
	args *MovieReviewInstructionArgs,
) solana.Instruction {
	return newMovieReviewInstruction(InstructionTypeAddMovieReview, accounts, args)
}

func NewUpdateMovieReviewInstruction(
	accounts *MovieReviewInstructionAccounts,
	args *MovieReviewInstructionArgs,
) solana.Instruction {
	return newMovieReviewInstruction(InstructionTypeUpdateMovieReview, accounts, args)
}

func newMovieReviewInstruction(
	t InstructionType,
	accounts *MovieReviewInstructionAccounts,
	args *MovieReviewInstructionArgs,
) solana.Instruction {
	program := accounts.Program
	if len(program) == 0 {
		program = PROGRAM_ID
	}

	return solana.Instruction{
		Program: program,

		// Instruction args
		Data: MarshalInstructionData(t, args),

		// Instruction accounts
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Initializer,
				IsWritable: false,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.Review,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  system.ProgramKey,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

type DecompiledMovieReview struct {
	Type        InstructionType
	Args        *MovieReviewInstructionArgs
	Initializer ed25519.PublicKey
	Review      ed25519.PublicKey
}

// DecompileMovieReview recovers the movie review instruction at index from a
// compiled message. program is the expected program, defaulting to PROGRAM_ID.
func DecompileMovieReview(m solana.Message, index int, program ed25519.PublicKey) (*DecompiledMovieReview, error) {
	if len(program) == 0 {
		program = PROGRAM_ID
	}

	if index < 0 || index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]

	if int(i.ProgramIndex) >= len(m.Accounts) || !bytes.Equal(m.Accounts[i.ProgramIndex], program) {
		return nil, solana.ErrIncorrectProgram
	}
	if len(i.Accounts) != 3 {
		return nil, errors.Wrapf(solana.ErrIncorrectInstruction, "expected 3 accounts, got %d", len(i.Accounts))
	}
	for _, accountIndex := range i.Accounts {
		if int(accountIndex) >= len(m.Accounts) {
			return nil, errors.Wrapf(solana.ErrIncorrectInstruction, "account index %d out of range", accountIndex)
		}
	}
	if !bytes.Equal(m.Accounts[i.Accounts[2]], system.ProgramKey) {
		return nil, errors.Wrap(solana.ErrIncorrectInstruction, "missing system program")
	}

	t, args, err := UnmarshalInstructionData(i.Data)
	if err != nil {
		return nil, err
	}

	return &DecompiledMovieReview{
		Type:        t,
		Args:        args,
		Initializer: m.Accounts[i.Accounts[0]],
		Review:      m.Accounts[i.Accounts[1]],
	}, nil
}
