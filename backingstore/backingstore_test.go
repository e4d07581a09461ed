package backingstore_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thustorage/ramssd/backingstore"
)

func TestRead_UnmappedPageIsZero(t *testing.T) {
	s := backingstore.New(16)
	dst := bytes.Repeat([]byte{0xFF}, 16)
	s.Read(5, dst)
	assert.Equal(t, make([]byte, 16), dst)
}

func TestWriteThenRead_RoundTrips(t *testing.T) {
	s := backingstore.New(16)
	src := []byte("0123456789abcdef")
	s.Write(3, src)

	dst := make([]byte, 16)
	s.Read(3, dst)
	assert.Equal(t, src, dst)
}

func TestMapped_ReflectsWriteState(t *testing.T) {
	s := backingstore.New(16)
	assert.False(t, s.Mapped(1))
	s.Write(1, make([]byte, 16))
	assert.True(t, s.Mapped(1))
}

func TestMappedCount(t *testing.T) {
	s := backingstore.New(16)
	require.Equal(t, 0, s.MappedCount())
	s.Write(0, make([]byte, 16))
	s.Write(1, make([]byte, 16))
	assert.Equal(t, 2, s.MappedCount())
}

func TestDiscardAll_ClearsEverything(t *testing.T) {
	s := backingstore.New(16)
	s.Write(0, make([]byte, 16))
	s.DiscardAll()
	assert.Equal(t, 0, s.MappedCount())
	assert.False(t, s.Mapped(0))
}
