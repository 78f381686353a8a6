package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(Event{Kind: KindMatched, Path: "/home"}))
	first := j.RunID()
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err, "reopening must tolerate already-applied migrations")
	defer j.Close()

	assert.NotEqual(t, first, j.RunID())
	events, err := j.Events(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecord_Events(t *testing.T) {
	j := openTemp(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(Event{Kind: KindMatched, Task: "daily", Path: "/home", Pages: []string{"home"}, At: base}))
	require.NoError(t, j.Record(Event{Kind: KindConflict, Task: "daily", Path: "/a", Pages: []string{"a", "b"}, Detail: "/a: (a)\n/b: (b)", At: base.Add(time.Second)}))

	events, err := j.Events(10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, KindConflict, events[0].Kind)
	assert.Equal(t, []string{"a", "b"}, events[0].Pages)
	assert.Equal(t, "/a: (a)\n/b: (b)", events[0].Detail)
	assert.True(t, events[1].At.Equal(base))

	limited, err := j.Events(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecord_StampsTime(t *testing.T) {
	j := openTemp(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	require.NoError(t, j.Record(Event{Kind: KindUnknown}))
	events, err := j.Events(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].At.Equal(fixed))
	assert.Nil(t, events[0].Pages)
}

func TestRouteStats(t *testing.T) {
	j := openTemp(t)
	for _, p := range []string{"/home", "/menu", "/home", "/home", "/menu", "/battle"} {
		require.NoError(t, j.Record(Event{Kind: KindMatched, Path: p}))
	}
	require.NoError(t, j.Record(Event{Kind: KindConflict, Path: "/battle"}))
	require.NoError(t, j.Record(Event{Kind: KindUnknown}))

	stats, err := j.RouteStats()
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, "/home", stats[0].Path)
	assert.Equal(t, 3, stats[0].Hits)
	assert.Equal(t, "/menu", stats[1].Path)
	assert.Equal(t, "/battle", stats[2].Path)
	assert.Equal(t, 1, stats[2].Hits)

	counts, err := j.CountByKind()
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindMatched: 6, KindConflict: 1, KindUnknown: 1}, counts)
}
