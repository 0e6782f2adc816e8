package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/source"
	"github.com/ccollicutt/logstream/pkg/store"
	"github.com/ccollicutt/logstream/pkg/store/sqlite"
)

func bufferSpec(name, data string) SourceSpec {
	return SourceSpec{
		Desc: store.SourceDesc{Name: name, Kind: "buffer"},
		Open: func(context.Context) (source.ByteSource, error) {
			return source.NewBufferSource([]byte(data)), nil
		},
		Parser: parser.NewTextParser(parser.TextOptions{}),
	}
}

func TestObserver_ConcurrentIntoSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "session.db")})
	require.NoError(t, err)
	state := NewState(db, nil)

	obs := NewObserver(state, []SourceSpec{
		bufferSpec("app", "started\nERROR disk full\n"),
		bufferSpec("db", "connected\n"),
	}, ObserverOptions{})
	require.NoError(t, obs.Run(ctx))

	summary := state.Summary()
	require.Len(t, summary, 2)
	for _, st := range summary {
		assert.Equal(t, EndDrained, st.EndReason, st.Desc.Name)
		assert.True(t, st.FileRead, st.Desc.Name)
	}

	recs, err := db.Records(ctx, sqlite.Query{SourceID: summary[0].ID})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "started", recs[0].Line)
	assert.Equal(t, "ERROR disk full", recs[1].Line)

	n, err := db.Count(ctx, sqlite.Query{Search: "connected"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, state.Close(ctx))
}

func TestObserver_SequentialKeepsOrder(t *testing.T) {
	st := &memStore{}
	state := NewState(st, nil)

	obs := NewObserver(state, []SourceSpec{
		bufferSpec("first", "1\n"),
		bufferSpec("second", "2\n"),
		bufferSpec("third", "3\n"),
	}, ObserverOptions{Sequential: true})
	require.NoError(t, obs.Run(context.Background()))

	assert.Equal(t, []string{"write:1:1\n", "write:2:2\n", "write:3:3\n"}, st.writes())
}

func TestObserver_SequentialCancelled(t *testing.T) {
	state := NewState(&memStore{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obs := NewObserver(state, []SourceSpec{bufferSpec("a", "x\n"), bufferSpec("b", "y\n")},
		ObserverOptions{Sequential: true})
	require.NoError(t, obs.Run(ctx))

	for _, st := range state.Summary() {
		assert.Equal(t, EndCancelled, st.EndReason)
		assert.Zero(t, st.Records)
	}
}

func TestObserver_OpenFailureDoesNotStopOthers(t *testing.T) {
	st := &memStore{}
	state := NewState(st, nil)

	broken := SourceSpec{
		Desc: store.SourceDesc{Name: "broken", Kind: "file"},
		Open: func(context.Context) (source.ByteSource, error) {
			return nil, errors.New("permission denied")
		},
		Parser: parser.NewTextParser(parser.TextOptions{}),
	}
	obs := NewObserver(state, []SourceSpec{broken, bufferSpec("ok", "fine\n")}, ObserverOptions{})
	require.NoError(t, obs.Run(context.Background()))

	summary := state.Summary()
	assert.Equal(t, EndSourceError, summary[0].EndReason)
	assert.Equal(t, "permission denied", summary[0].EndDetail)
	assert.Equal(t, EndDrained, summary[1].EndReason)
	assert.Equal(t, []string{"write:2:fine\n"}, st.writes())
}

func TestObserver_SinkErrorReturned(t *testing.T) {
	state := NewState(&memStore{writeErr: errors.New("no space left")}, nil)
	obs := NewObserver(state, []SourceSpec{bufferSpec("app", "x\n")}, ObserverOptions{})

	err := obs.Run(context.Background())
	assert.ErrorContains(t, err, "source app")
	assert.ErrorContains(t, err, "no space left")
}

func TestObserver_SDEUnknownSource(t *testing.T) {
	obs := NewObserver(NewState(&memStore{}, nil), []SourceSpec{bufferSpec("app", "")}, ObserverOptions{})
	assert.NotNil(t, obs.SDE("app"))
	assert.Nil(t, obs.SDE("missing"))
}

func TestObserver_TailFollowsGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("one\n"), 0644))

	st := &memStore{}
	state := NewState(st, nil)

	var mu sync.Mutex
	var read []SourceStats
	state.OnFileRead = func(s SourceStats) {
		mu.Lock()
		defer mu.Unlock()
		read = append(read, s)
	}

	spec := SourceSpec{
		Desc: store.SourceDesc{Name: "app", Kind: "file", Location: path},
		Open: func(context.Context) (source.ByteSource, error) {
			return source.OpenFile(path)
		},
		Parser:   parser.NewTextParser(parser.TextOptions{}),
		TailPath: path,
	}
	obs := NewObserver(state, []SourceSpec{spec}, ObserverOptions{
		FlushInterval: 10 * time.Millisecond,
		TailInterval:  5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	require.Eventually(t, func() bool { return len(st.writes()) == 1 }, waitTimeout, time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return len(st.writes()) == 2 }, waitTimeout, time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, []string{"write:1:one\n", "write:1:two\n"}, st.writes())
	assert.Equal(t, EndCancelled, state.Summary()[0].EndReason)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, read, 1)
	assert.True(t, read[0].FileRead)
}
