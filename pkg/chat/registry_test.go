package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryFirstSeenNameWins(t *testing.T) {
	r := NewPeerRegistry()

	require.True(t, r.Upsert("10.0.0.2:6001", "alice"))
	require.False(t, r.Upsert("10.0.0.2:6001", "bob"))

	require.Equal(t, []Peer{{Address: "10.0.0.2:6001", Name: "alice"}}, r.Snapshot())
	require.Equal(t, 1, r.Len())
}

func TestRegistryRemove(t *testing.T) {
	r := NewPeerRegistry()
	r.Upsert("10.0.0.2:6001", "alice")

	require.True(t, r.Remove("10.0.0.2:6001"))
	require.False(t, r.Remove("10.0.0.2:6001"), "removing twice is a no-op")
	require.Empty(t, r.Snapshot())
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	r := NewPeerRegistry()
	r.Upsert("10.0.0.3:6002", "carol")
	r.Upsert("10.0.0.2:6001", "bob")

	snap := r.Snapshot()
	require.Equal(t, "10.0.0.2:6001", snap[0].Address, "snapshot is ordered by address")

	snap[0].Name = "mallory"
	r.Upsert("10.0.0.4:6003", "dave")

	require.Len(t, snap, 2)
	require.Equal(t, "bob", r.Snapshot()[0].Name)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewPeerRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.0.%d:6000", i%10)
			r.Upsert(addr, fmt.Sprintf("peer-%d", i))
			_ = r.Snapshot()
			if i%7 == 0 {
				r.Remove(addr)
			}
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, r.Len(), 10)
}
