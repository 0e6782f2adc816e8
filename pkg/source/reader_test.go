package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderSource_FileGrowth(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0644))

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	info, err := src.Load(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 6, info.NewlyLoadedBytes)

	info, err = src.Load(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, info, "EOF reports nothing new")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err = src.Load(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 7, info.NewlyLoadedBytes)
	assert.Equal(t, "first\nsecond\n", string(src.CurrentSlice()))
}

func TestReaderSource_ChunkSize(t *testing.T) {
	src := NewReaderSource(bytes.NewReader([]byte("abcdefgh")), WithChunkSize(3))

	var loaded []int
	for {
		info, err := src.Load(context.Background(), nil)
		require.NoError(t, err)
		if info == nil {
			break
		}
		loaded = append(loaded, info.NewlyLoadedBytes)
	}
	assert.Equal(t, []int{3, 3, 2}, loaded)
	assert.Equal(t, 8, src.Len())
}

func TestReaderSource_FilterSkips(t *testing.T) {
	src := NewReaderSource(bytes.NewReader([]byte("noise")))
	filter := &Filter{Keep: func([]byte) bool { return false }}

	info, err := src.Load(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 0, info.NewlyLoadedBytes)
	assert.Equal(t, 5, info.SkippedBytes)
	assert.True(t, src.IsEmpty())
}

type dataThenError struct{ done bool }

func (r *dataThenError) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("should not be read again")
	}
	r.done = true
	return copy(p, "partial"), errors.New("disk on fire")
}

func TestReaderSource_ErrorAfterDataIsDeferred(t *testing.T) {
	src := NewReaderSource(&dataThenError{})

	info, err := src.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, info.NewlyLoadedBytes)

	_, err = src.Load(context.Background(), nil)
	assert.ErrorContains(t, err, "disk on fire")
	assert.Equal(t, "partial", string(src.CurrentSlice()))
}

func TestReaderSource_EOFError(t *testing.T) {
	src := NewReaderSource(bytes.NewReader(nil), WithEOFError(ErrStreamClosed))

	_, err := src.Load(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestReaderSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewReaderSource(io.MultiReader())
	_, err := src.Load(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
