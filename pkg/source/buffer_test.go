package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_ConsumeAndCompact(t *testing.T) {
	var b Buffer
	b.Write([]byte("hello world"))
	assert.Equal(t, 11, b.Len())

	b.Consume(6)
	assert.Equal(t, "world", string(b.Bytes()))

	b.Write([]byte("!"))
	assert.Equal(t, "world!", string(b.Bytes()))

	b.Consume(b.Len())
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Bytes())
}

func TestBuffer_ConsumeBeyondLenPanics(t *testing.T) {
	var b Buffer
	b.Write([]byte("abc"))
	assert.Panics(t, func() { b.Consume(4) })
}

func TestBuffer_LargeWrites(t *testing.T) {
	var b Buffer
	chunk := make([]byte, 1000)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	for i := 0; i < 100; i++ {
		b.Write(chunk)
		b.Consume(999)
	}
	assert.Equal(t, 100, b.Len())
}

func TestBufferSource_Load(t *testing.T) {
	ctx := context.Background()
	s := NewBufferSource([]byte("abc"))

	info, err := s.Load(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 3, info.NewlyLoadedBytes)
	assert.Equal(t, 3, info.AvailableBytes)

	info, err = s.Load(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, info, "nothing pushed since the last load")

	s.Consume(1)
	s.SetTimestamp(77)
	s.Push([]byte("d"))
	info, err = s.Load(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, info.LastKnownTS)
	assert.Equal(t, uint64(77), *info.LastKnownTS)
	assert.Equal(t, "bcd", string(s.CurrentSlice()))
}
