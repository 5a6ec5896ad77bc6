package binary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	buf := make([]byte, StringSize("hello")+StringSize(""))

	var offset int
	PutString(buf[offset:], "hello", &offset)
	PutString(buf[offset:], "", &offset)
	require.Equal(t, len(buf), offset)
	assert.Equal(t, []byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0}, buf)

	var first, second string
	offset = 0
	require.NoError(t, GetString(buf[offset:], &first, &offset))
	require.NoError(t, GetString(buf[offset:], &second, &offset))
	assert.Equal(t, "hello", first)
	assert.Empty(t, second)
	assert.Equal(t, len(buf), offset)
}

func TestString_Truncated(t *testing.T) {
	var s string
	var offset int

	assert.Equal(t, ErrUnexpectedEnd, GetString([]byte{5, 0, 0}, &s, &offset))
	assert.Equal(t, ErrUnexpectedEnd, GetString([]byte{5, 0, 0, 0, 'h'}, &s, &offset))
	assert.Equal(t, ErrUnexpectedEnd, GetString([]byte{0xff, 0xff, 0xff, 0xff}, &s, &offset))
	assert.Zero(t, offset)
}

func TestBool(t *testing.T) {
	buf := make([]byte, 2)

	var offset int
	PutBool(buf[offset:], true, &offset)
	PutBool(buf[offset:], false, &offset)
	assert.Equal(t, []byte{1, 0}, buf)

	var a, b bool
	offset = 0
	require.NoError(t, GetBool(buf[offset:], &a, &offset))
	require.NoError(t, GetBool(buf[offset:], &b, &offset))
	assert.True(t, a)
	assert.False(t, b)

	offset = 0
	assert.Error(t, GetBool([]byte{2}, &a, &offset))
	assert.Zero(t, offset)
	assert.Equal(t, ErrUnexpectedEnd, GetBool(nil, &a, &offset))
}

func TestIntegers(t *testing.T) {
	buf := make([]byte, 1+4)
	var offset int
	PutUint8(buf[offset:], 200, &offset)
	PutUint32(buf[offset:], 0x01020304, &offset)
	require.Equal(t, len(buf), offset)
	assert.Equal(t, []byte{200, 4, 3, 2, 1}, buf)

	var u8 uint8
	var u32 uint32
	offset = 0
	require.NoError(t, GetUint8(buf[offset:], &u8, &offset))
	require.NoError(t, GetUint32(buf[offset:], &u32, &offset))
	assert.EqualValues(t, 200, u8)
	assert.EqualValues(t, 0x01020304, u32)

	assert.Equal(t, ErrUnexpectedEnd, GetUint32([]byte{1, 2, 3}, &u32, &offset))
	assert.Equal(t, ErrUnexpectedEnd, GetUint8(nil, &u8, &offset))
}
