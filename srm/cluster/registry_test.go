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

package cluster

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
	"github.com/cubefs/chunkfs/util"
)

func newTestKV(t *testing.T) kvstore.Store {
	path, err := util.GenTmpPath()
	require.NoError(t, err)

	opt := &kvstore.Option{CreateIfMissing: true, ColumnFamily: StoreColumns()}
	kv, err := kvstore.NewKVStore(context.Background(), path, kvstore.RocksdbLsmKVType, opt)
	require.NoError(t, err)
	t.Cleanup(func() {
		kv.Close()
		os.RemoveAll(path)
	})
	return kv
}

func TestRegistryUpsertGet(t *testing.T) {
	reg := NewRegistry(newTestKV(t))
	defer reg.Close()
	ctx := context.Background()

	require.ErrorIs(t, reg.Upsert(ctx, nil), errors.ErrInvalidArgument)
	require.ErrorIs(t, reg.Upsert(ctx, &proto.Node{}), errors.ErrInvalidArgument)

	n := &proto.Node{
		ID:    "node-1",
		IP:    "10.0.0.1",
		Port:  9100,
		Disks: []proto.DiskInfo{{MountPoint: "/data0", TotalBytes: 1 << 40}},
		State: proto.NodeStateOnline,
	}
	require.NoError(t, reg.Upsert(ctx, n))

	got, ok := reg.Get("node-1")
	require.True(t, ok)
	require.Equal(t, "10.0.0.1:9100", got.Addr())
	require.NotZero(t, got.LastHeartbeat)

	// callers get copies, not the registry record
	got.IP = "changed"
	got.Disks[0].MountPoint = "changed"
	again, ok := reg.Get("node-1")
	require.True(t, ok)
	require.Equal(t, "10.0.0.1", again.IP)
	require.Equal(t, "/data0", again.Disks[0].MountPoint)

	_, ok = reg.Get("nope")
	require.False(t, ok)
}

func TestRegistryHeartbeat(t *testing.T) {
	reg := NewRegistry(newTestKV(t))
	defer reg.Close()
	ctx := context.Background()

	require.ErrorIs(t, reg.UpdateHeartbeat(ctx, "nope", 0), errors.ErrNodeNotFound)
	require.ErrorIs(t, reg.MarkOffline(ctx, "nope"), errors.ErrNodeNotFound)

	require.NoError(t, reg.Upsert(ctx, &proto.Node{ID: "node-1"}))
	require.NoError(t, reg.MarkOffline(ctx, "node-1"))
	got, _ := reg.Get("node-1")
	require.Equal(t, proto.NodeStateOffline, got.State)

	// a heartbeat brings the node back online
	at := time.Now().UnixMilli()
	require.NoError(t, reg.UpdateHeartbeat(ctx, "node-1", at))
	got, _ = reg.Get("node-1")
	require.Equal(t, proto.NodeStateOnline, got.State)
	require.Equal(t, at, got.LastHeartbeat)
}

func TestRegistryReload(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	reg := NewRegistry(kv)
	require.NoError(t, reg.Upsert(ctx, &proto.Node{ID: "node-1", Type: proto.NodeTypeReal}))
	require.NoError(t, reg.Upsert(ctx, &proto.Node{ID: "node-2", Type: proto.NodeTypeVirtual}))
	reg.Close()

	reg = NewRegistry(kv)
	require.NoError(t, reg.Load(ctx))
	defer reg.Close()

	require.Len(t, reg.Snapshot(), 2)
	got, ok := reg.Get("node-2")
	require.True(t, ok)
	require.Equal(t, proto.NodeTypeVirtual, got.Type)
}

func TestGenerateNodeID(t *testing.T) {
	reg := NewRegistry(newTestKV(t))
	defer reg.Close()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := reg.GenerateNodeID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestHealthSweep(t *testing.T) {
	reg := NewRegistry(newTestKV(t))
	defer reg.Close()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, &proto.Node{ID: "stale"}))
	require.NoError(t, reg.Upsert(ctx, &proto.Node{ID: "fresh"}))
	require.NoError(t, reg.UpdateHeartbeat(ctx, "stale", time.Now().Add(-time.Minute).UnixMilli()))

	m := NewHealthMonitor(HealthConfig{HeartbeatTimeoutS: 30}, reg)
	m.Sweep(ctx)

	got, _ := reg.Get("stale")
	require.Equal(t, proto.NodeStateOffline, got.State)
	got, _ = reg.Get("fresh")
	require.Equal(t, proto.NodeStateOnline, got.State)

	// already offline nodes are left alone
	m.Sweep(ctx)
	got, _ = reg.Get("stale")
	require.Equal(t, proto.NodeStateOffline, got.State)
}
