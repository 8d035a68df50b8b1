// SPDX-License-Identifier: MIT

package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry()
	j, err := NewJob("a", "cam", time.Now(), time.Now())
	require.NoError(t, err)

	r.Create(j)

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, j, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	j, err := NewJob("b", "cam", time.Now(), time.Now())
	require.NoError(t, err)
	r.Create(j)

	snap, ok := r.Snapshot("b")
	require.True(t, ok)
	assert.Equal(t, "b", snap.ID)

	_, ok = r.Snapshot("nope")
	assert.False(t, ok)
}

func TestRegistry_OutputPath(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	j, err := NewJob("c", "cam", time.Now(), time.Now())
	require.NoError(t, err)
	r.Create(j)

	_, ok := r.OutputPath("c")
	assert.False(t, ok, "not yet succeeded")

	require.NoError(t, j.Start(ctx))
	require.NoError(t, j.Finish(ctx, "/exports/c.mp4", 10))

	path, ok := r.OutputPath("c")
	require.True(t, ok)
	assert.Equal(t, "/exports/c.mp4", path)
}

func TestRegistry_LastRun_EmptyWhenNoTerminalJobs(t *testing.T) {
	r := NewRegistry()
	j, err := NewJob("d", "cam", time.Now(), time.Now())
	require.NoError(t, err)
	r.Create(j)

	last, errMsg := r.LastRun()
	assert.True(t, last.IsZero())
	assert.Empty(t, errMsg)
}

func TestRegistry_LastRun_PicksMostRecentTerminalJob(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	older, err := NewJob("older", "cam", time.Now(), time.Now())
	require.NoError(t, err)
	require.NoError(t, older.Start(ctx))
	require.NoError(t, older.Finish(ctx, "/o.mp4", 1))
	older.FinishedAt = time.Now().Add(-time.Hour)
	r.Create(older)

	newer, err := NewJob("newer", "cam", time.Now(), time.Now())
	require.NoError(t, err)
	require.NoError(t, newer.Start(ctx))
	require.NoError(t, newer.Fail(ctx, "Proto::ConnectionBroken", errors.New("reset")))
	r.Create(newer)

	last, errMsg := r.LastRun()
	assert.WithinDuration(t, newer.FinishedAt, last, time.Second)
	assert.Equal(t, "reset", errMsg)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"x", "y", "z"} {
		j, err := NewJob(id, "cam", time.Now(), time.Now())
		require.NoError(t, err)
		r.Create(j)
	}

	list := r.List()
	assert.Len(t, list, 3)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j, err := NewJob(string(rune('a'+i%26))+string(rune(i)), "cam", time.Now(), time.Now())
			if err != nil {
				return
			}
			r.Create(j)
			r.List()
			r.LastRun()
		}(i)
	}
	wg.Wait()
}
