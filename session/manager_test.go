package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/campusgate/storage/memory"
)

func TestManager_ReturnsSameStorePerNamespace(t *testing.T) {
	m := NewManager(memory.NewRepository())

	a := m.Get("b1")
	b := m.Get("b1")
	c := m.Get("b2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, m.Len())
}

func TestManager_SweepDropsIdleStoresButKeepsSlots(t *testing.T) {
	repo := memory.NewRepository()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager(repo, WithIdleTimeout(time.Minute))
	m.now = func() time.Time { return now }

	m.Get("b1").SetAuth(student(), tenant(), "a", "r")
	now = now.Add(30 * time.Second)
	m.Get("b2")

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())

	// b1 comes back from storage.
	snap := m.Get("b1").Snapshot()
	require.True(t, snap.IsAuthenticated)
	assert.Equal(t, "a", snap.AccessToken)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(memory.NewRepository())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Get("shared")
			s.SetAuth(student(), tenant(), "a", "r")
			_ = s.Snapshot()
			s.ClearAuth()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.Len())
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := NewManager(memory.NewRepository())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
