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

package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/mds/catalog"
	"github.com/cubefs/chunkfs/mds/store"
	"github.com/cubefs/chunkfs/proto"
	"github.com/cubefs/chunkfs/util"
)

func newTestCatalog(t *testing.T) catalog.Catalog {
	path, err := util.GenTmpPath()
	require.NoError(t, err)

	ctx := context.Background()
	cfg := &store.Config{Path: path, InodeSlots: 64}
	cfg.KVOption.ColumnFamily = catalog.StoreColumns()
	st, err := store.NewStore(ctx, cfg)
	require.NoError(t, err)

	cat, err := catalog.NewCatalog(ctx, &catalog.Config{NamespaceID: "ns1", Store: st})
	require.NoError(t, err)
	t.Cleanup(func() {
		cat.Close()
		st.Close()
		os.RemoveAll(path)
	})
	return cat
}

func addColdFile(t *testing.T, cat catalog.Catalog, name string, ageDays int) uint64 {
	ctx := context.Background()
	ino, err := cat.CreateFile(ctx, name, 0o644)
	require.NoError(t, err)

	inode, err := cat.ReadInode(ctx, ino)
	require.NoError(t, err)
	inode.FATime = proto.NewTimestamp(time.Now().AddDate(0, 0, -ageDays))
	blob, err := inode.Marshal()
	require.NoError(t, err)
	require.NoError(t, cat.WriteInode(ctx, ino, blob))
	return ino
}

func TestRunOnce(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.CreateRoot(ctx)
	require.NoError(t, err)
	cold1 := addColdFile(t, cat, "/c1", 30)
	cold2 := addColdFile(t, cat, "/c2", 20)
	_, err = cat.CreateFile(ctx, "/fresh", 0o644)
	require.NoError(t, err)

	col, err := NewCollector(Config{ColdThresholdDays: 5}, cat)
	require.NoError(t, err)
	defer col.Close()

	var batches [][][]byte
	col.SetSink(func(ctx context.Context, batch [][]byte) error {
		copied := make([][]byte, len(batch))
		for i := range batch {
			copied[i] = append([]byte(nil), batch[i]...)
		}
		batches = append(batches, copied)
		return nil
	})

	require.NoError(t, col.RunOnce(ctx))
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)

	// slots are zero padded and carry the cold inodes oldest first
	var inos []uint64
	for _, slot := range batches[0] {
		require.Len(t, slot, proto.SlotSize)
		inode := &proto.Inode{}
		require.NoError(t, inode.Unmarshal(slot))
		inos = append(inos, inode.Ino)
	}
	require.Equal(t, []uint64{cold1, cold2}, inos)
}

func TestRunOnceBatchSplit(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.CreateRoot(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		addColdFile(t, cat, fmt.Sprintf("/c%d", i), 30)
	}

	col, err := NewCollector(Config{ColdThresholdDays: 5, MaxBatchSize: 2}, cat)
	require.NoError(t, err)
	defer col.Close()

	var sizes []int
	col.SetSink(func(ctx context.Context, batch [][]byte) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, col.RunOnce(ctx))
	require.Equal(t, []int{2, 2, 1}, sizes)
}

func TestRunOnceNothingCold(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.CreateRoot(ctx)
	require.NoError(t, err)
	_, err = cat.CreateFile(ctx, "/fresh", 0o644)
	require.NoError(t, err)

	col, err := NewCollector(Config{ColdThresholdDays: 5}, cat)
	require.NoError(t, err)
	defer col.Close()

	called := false
	col.SetSink(func(ctx context.Context, batch [][]byte) error {
		called = true
		return nil
	})
	require.NoError(t, col.RunOnce(ctx))
	require.False(t, called)
}

func TestFileSink(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.CreateRoot(ctx)
	require.NoError(t, err)
	addColdFile(t, cat, "/c1", 30)
	addColdFile(t, cat, "/c2", 30)

	dir, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	col, err := NewCollector(Config{BatchDir: dir, ColdThresholdDays: 5}, cat)
	require.NoError(t, err)
	defer col.Close()

	require.NoError(t, col.RunOnce(ctx))

	files, err := filepath.Glob(filepath.Join(dir, "batch-*.bin"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	info, err := os.Stat(files[0])
	require.NoError(t, err)
	require.Equal(t, int64(2*proto.SlotSize), info.Size())
}
