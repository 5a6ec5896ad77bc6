package moviereview

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/movie-review/pkg/solana/binary"
)

// ReviewAccount is the state the program stores at a review address.
//
// The program allocates a fixed size account, so the Borsh encoded state is
// followed by zero padding.
type ReviewAccount struct {
	IsInitialized bool
	Rating        uint8
	Title         string
	Description   string
}

// MinReviewAccountSize is the size of an initialized account with empty
// strings.
const MinReviewAccountSize = (1 + // is_initialized
	1 + // rating
	4 + // title
	4) // description

func (obj *ReviewAccount) Marshal() []byte {
	var offset int
	data := make([]byte, 2+binary.StringSize(obj.Title)+binary.StringSize(obj.Description))

	binary.PutBool(data[offset:], obj.IsInitialized, &offset)
	binary.PutUint8(data[offset:], obj.Rating, &offset)
	binary.PutString(data[offset:], obj.Title, &offset)
	binary.PutString(data[offset:], obj.Description, &offset)

	return data
}

func (obj *ReviewAccount) Unmarshal(data []byte) error {
	if len(data) < MinReviewAccountSize {
		return ErrInvalidAccountData
	}

	var offset int
	if err := binary.GetBool(data[offset:], &obj.IsInitialized, &offset); err != nil {
		return errors.Wrapf(ErrInvalidAccountData, "is_initialized: %v", err)
	}
	if err := binary.GetUint8(data[offset:], &obj.Rating, &offset); err != nil {
		return errors.Wrapf(ErrInvalidAccountData, "rating: %v", err)
	}
	if err := binary.GetString(data[offset:], &obj.Title, &offset); err != nil {
		return errors.Wrapf(ErrInvalidAccountData, "title: %v", err)
	}
	if err := binary.GetString(data[offset:], &obj.Description, &offset); err != nil {
		return errors.Wrapf(ErrInvalidAccountData, "description: %v", err)
	}

	return nil
}

func (obj *ReviewAccount) String() string {
	return fmt.Sprintf(
		"ReviewAccount{is_initialized=%t,rating=%d,title=%q,description=%q}",
		obj.IsInitialized,
		obj.Rating,
		obj.Title,
		obj.Description,
	)
}
