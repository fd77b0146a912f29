package bin

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, int32(-2)))
	require.NoError(t, Write(&buf, uint32(0xdeadbeef)))
	assert.Equal(t, 8, buf.Len())

	i, err := Read[int32](&buf)
	require.NoError(t, err)
	assert.Equal(t, int32(-2), i)

	u, err := Read[uint32](&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u)

	_, err = Read[uint32](&buf)
	assert.Error(t, err)
}

func TestAppendValue(t *testing.T) {
	buf := Append(nil, uint32(7))
	buf = Append(buf, int32(-1))
	require.Len(t, buf, 8)
	assert.Equal(t, uint32(7), Value[uint32](buf))
	assert.Equal(t, int32(-1), Value[int32](buf[4:]))

	Put(buf, uint32(9))
	assert.Equal(t, uint32(9), Value[uint32](buf))
}
