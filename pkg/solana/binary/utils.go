// Package binary contains offset-tracking helpers for the little endian,
// length-prefixed layouts used by on-chain programs.
//
// Put* helpers write into dst, which is expected to already be sliced at the
// current offset, and advance offset by the number of bytes written. Get*
// helpers mirror them for decoding.
package binary

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrUnexpectedEnd = errors.New("unexpected end of data")

// StringSize returns the encoded size of a length prefixed string.
func StringSize(s string) int {
	return 4 + len(s)
}

func PutUint32(dst []byte, v uint32, offset *int) {
	binary.LittleEndian.PutUint32(dst, v)
	*offset += 4
}

func PutUint8(dst []byte, v uint8, offset *int) {
	dst[0] = v
	*offset += 1
}

func PutBool(dst []byte, v bool, offset *int) {
	var b uint8
	if v {
		b = 1
	}
	PutUint8(dst, b, offset)
}

// PutString writes s as a u32 little endian length followed by its UTF-8 bytes.
func PutString(dst []byte, s string, offset *int) {
	var n int
	PutUint32(dst, uint32(len(s)), &n)
	copy(dst[n:], s)
	*offset += StringSize(s)
}

func GetUint32(src []byte, dst *uint32, offset *int) error {
	if len(src) < 4 {
		return ErrUnexpectedEnd
	}
	*dst = binary.LittleEndian.Uint32(src)
	*offset += 4
	return nil
}

func GetUint8(src []byte, dst *uint8, offset *int) error {
	if len(src) < 1 {
		return ErrUnexpectedEnd
	}
	*dst = src[0]
	*offset += 1
	return nil
}

func GetBool(src []byte, dst *bool, offset *int) error {
	var b uint8
	if err := GetUint8(src, &b, offset); err != nil {
		return err
	}

	switch b {
	case 0:
		*dst = false
	case 1:
		*dst = true
	default:
		*offset -= 1
		return errors.Errorf("invalid bool value: %d", b)
	}
	return nil
}

func GetString(src []byte, dst *string, offset *int) error {
	var size uint32
	var n int
	if err := GetUint32(src, &size, &n); err != nil {
		return err
	}
	if uint64(len(src)-n) < uint64(size) {
		return ErrUnexpectedEnd
	}

	*dst = string(src[n : n+int(size)])
	*offset += n + int(size)
	return nil
}
