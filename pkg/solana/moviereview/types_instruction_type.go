package moviereview

import "fmt"

// InstructionType is the Borsh enum discriminant that prefixes every
// instruction payload.
type InstructionType uint8

const (
	InstructionTypeAddMovieReview InstructionType = iota
	InstructionTypeUpdateMovieReview
)

func (t InstructionType) String() string {
	switch t {
	case InstructionTypeAddMovieReview:
		return "AddMovieReview"
	case InstructionTypeUpdateMovieReview:
		return "UpdateMovieReview"
	default:
		return fmt.Sprintf("InstructionType(%d)", uint8(t))
	}
}

func (t InstructionType) valid() bool {
	return t <= InstructionTypeUpdateMovieReview
}
