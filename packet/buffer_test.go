package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferResize(t *testing.T) {
	buf := NewBuffer(0)
	assert.Equal(t, 0, buf.Len())

	require.NoError(t, buf.Resize(4))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())

	copy(buf.Bytes(), []byte{1, 2, 3, 4})
	require.NoError(t, buf.Resize(2))
	require.NoError(t, buf.Resize(4))

	// Bytes regrown after a shrink come back zeroed.
	assert.Equal(t, []byte{1, 2, 0, 0}, buf.Bytes())

	require.Error(t, buf.Resize(-1))
}

func TestBufferShrink(t *testing.T) {
	buf := NewBuffer(0)
	require.NoError(t, buf.Resize(8))
	copy(buf.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	require.NoError(t, buf.Resize(3))
	assert.Equal(t, []byte{1, 2, 3}, buf.Bytes())

	require.NoError(t, buf.Resize(0))
	assert.Equal(t, 0, buf.Len())
}

func TestBufferCapacity(t *testing.T) {
	buf := NewBuffer(8)
	require.NoError(t, buf.Resize(8))

	err := buf.Resize(9)
	require.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 8, buf.Len())
}

func TestBufferSlice(t *testing.T) {
	buf := NewBuffer(0)
	require.NoError(t, buf.Resize(10))

	s, err := buf.Slice(2, 4)
	require.NoError(t, err)
	assert.Len(t, s, 4)

	// The slice aliases the buffer.
	s[0] = 0xaa
	assert.Equal(t, byte(0xaa), buf.Bytes()[2])

	_, err = buf.Slice(8, 4)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = buf.Slice(-1, 2)
	require.ErrorIs(t, err, ErrOutOfBounds)
}
