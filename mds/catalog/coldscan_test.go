// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/proto"
)

// setAtime rewrites the inode slot with the given access time.
func setAtime(t *testing.T, cat Catalog, ino uint64, at time.Time) {
	ctx := context.Background()
	inode, err := cat.ReadInode(ctx, ino)
	require.NoError(t, err)
	inode.FATime = proto.NewTimestamp(at)
	blob, err := inode.Marshal()
	require.NoError(t, err)
	require.NoError(t, cat.WriteInode(ctx, ino, blob))
}

// coldScanFixture allocates the root (access time 20 days old) plus three
// files 30, 10 and 0 days old; the returned inos are ordered oldest access
// first.
func coldScanFixture(t *testing.T) (Catalog, []uint64) {
	cat := newTestCatalog(t, nil)
	ctx := context.Background()

	root, err := cat.CreateRoot(ctx)
	require.NoError(t, err)

	now := time.Now()
	inos := make([]uint64, 0, 4)
	for i, age := range []int{30, 10, 0} {
		ino, err := cat.CreateFile(ctx, fmt.Sprintf("/f%d", i), 0o644)
		require.NoError(t, err)
		setAtime(t, cat, ino, now.AddDate(0, 0, -age))
		inos = append(inos, ino)
	}
	setAtime(t, cat, root, now.AddDate(0, 0, -20))
	return cat, []uint64{inos[0], root, inos[1], inos[2]}
}

func TestCollectColdInodes(t *testing.T) {
	cat, inos := coldScanFixture(t)
	ctx := context.Background()

	// oldest access first over every allocated slot, the root included
	got, err := cat.CollectColdInodes(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, inos, got)

	got, err = cat.CollectColdInodes(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, inos[:1], got)

	// a five day age floor keeps only the stale inodes
	got, err = cat.CollectColdInodes(ctx, 0, 5)
	require.NoError(t, err)
	require.Equal(t, inos[:3], got)
}

func TestCollectColdInodesByAtimePercent(t *testing.T) {
	cat, inos := coldScanFixture(t)
	ctx := context.Background()

	got, err := cat.CollectColdInodesByAtimePercent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// any positive percent yields at least one candidate
	got, err = cat.CollectColdInodesByAtimePercent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, inos[:1], got)

	got, err = cat.CollectColdInodesByAtimePercent(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, inos[:2], got)

	got, err = cat.CollectColdInodesByAtimePercent(ctx, 101)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCollectColdInodesBitmap(t *testing.T) {
	cat, inos := coldScanFixture(t)
	ctx := context.Background()

	bitmap, count, err := cat.CollectColdInodesBitmap(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(4), count)
	for _, ino := range inos {
		require.NotZero(t, bitmap[ino/8]&(1<<(ino%8)))
	}

	// one window maps to the coldest fifth of the population
	bitmap, count, err = cat.CollectColdInodesBitmap(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
	require.NotZero(t, bitmap[inos[0]/8]&(1<<(inos[0]%8)))
}
