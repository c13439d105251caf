package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/proto"
)

func TestLockExclusive(t *testing.T) {
	table := newDirLockTable()

	g := table.Lock(7, LockExclusive)
	require.False(t, table.get(7).TryLock())
	require.False(t, table.get(7).TryRLock())
	g.Unlock()

	require.True(t, table.get(7).TryLock())
	table.get(7).Unlock()
}

func TestLockShared(t *testing.T) {
	table := newDirLockTable()

	g := table.Lock(7, LockShared)
	require.True(t, table.get(7).TryRLock())
	table.get(7).RUnlock()
	require.False(t, table.get(7).TryLock())
	g.Unlock()
}

func TestUnlockIdempotent(t *testing.T) {
	table := newDirLockTable()

	g := table.Lock(1, LockExclusive)
	g.Unlock()
	g.Unlock()
	require.True(t, table.get(1).TryLock())
	table.get(1).Unlock()
}

func TestLockManyMergesAndOrders(t *testing.T) {
	table := newDirLockTable()

	g := table.LockMany([]LockRequest{
		{Ino: 5, Mode: LockShared},
		{Ino: proto.InvalidIno, Mode: LockExclusive},
		{Ino: 3, Mode: LockShared},
		{Ino: 5, Mode: LockExclusive},
	})
	require.Len(t, g.held, 2)
	require.Equal(t, uint64(3), g.held[0].Ino)
	require.Equal(t, LockShared, g.held[0].Mode)
	require.Equal(t, uint64(5), g.held[1].Ino)
	require.Equal(t, LockExclusive, g.held[1].Mode)

	require.True(t, table.get(3).TryRLock())
	table.get(3).RUnlock()
	require.False(t, table.get(5).TryRLock())

	g.Unlock()
	require.True(t, table.get(5).TryLock())
	table.get(5).Unlock()
}

func TestLockManySameInoTwiceNoDeadlock(t *testing.T) {
	table := newDirLockTable()

	g := table.LockMany([]LockRequest{
		{Ino: 9, Mode: LockExclusive},
		{Ino: 9, Mode: LockExclusive},
	})
	require.Len(t, g.held, 1)
	g.Unlock()
}
