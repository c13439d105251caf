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

package vnode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/proto"
)

func TestLedgerInitEmpty(t *testing.T) {
	l := NewLedger()
	l.InitEmpty(2, 1000)

	require.True(t, l.TakeDirty())
	require.False(t, l.TakeDirty())

	total, free, ok := l.GetNodeCapacity("node_ssd_0")
	require.True(t, ok)
	require.Equal(t, uint64(1000), total)
	require.Equal(t, uint64(1000), free)

	// mix nodes split capacity across both device types
	total, free, ok = l.GetNodeCapacity("node_mix_1")
	require.True(t, ok)
	require.Equal(t, uint64(1000), total)
	require.Equal(t, uint64(1000), free)

	_, _, ok = l.GetNodeCapacity("ghost")
	require.False(t, ok)
}

func TestResolveNodeID(t *testing.T) {
	l := NewLedger()
	require.Empty(t, l.ResolveNodeID(proto.NodeClassSSD, 0))

	l.InitEmpty(2, 1000)
	require.Equal(t, "node_ssd_0", l.ResolveNodeID(proto.NodeClassSSD, 0))
	require.Equal(t, "node_ssd_1", l.ResolveNodeID(proto.NodeClassSSD, 3))
	require.Equal(t, "node_hdd_0", l.ResolveNodeID(proto.NodeClassHDD, 2))
	require.Equal(t, "node_mix_1", l.ResolveNodeID(proto.NodeClassMix, 1))
}

func TestResolveNodeIDFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vnodes.json")
	blob := `{"nodes":[{"node_id":"node_hdd_0","type":1,"hdd_devices":[{"device_id":"d0","capacity":1000,"type":"HDD"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	l := NewLedger()
	require.NoError(t, l.LoadFromJSON(path))

	// no ssd nodes exist, the hdd list serves all classes
	require.Equal(t, "node_hdd_0", l.ResolveNodeID(proto.NodeClassSSD, 0))
	require.Equal(t, "node_hdd_0", l.ResolveNodeID(proto.NodeClassMix, 7))
}

func TestApplyInode(t *testing.T) {
	l := NewLedger()
	l.InitEmpty(1, 1000)
	l.TakeDirty()
	ctx := context.Background()

	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassSSD}
	inode.SetSizeBytes(100)
	nodeID, full := l.ApplyInode(ctx, inode)
	require.Equal(t, "node_ssd_0", nodeID)
	require.True(t, full)
	require.True(t, l.TakeDirty())

	_, free, _ := l.GetNodeCapacity("node_ssd_0")
	require.Equal(t, uint64(900), free)

	// zero size charges nothing
	empty := &proto.Inode{Ino: 2, Class: proto.NodeClassSSD}
	nodeID, full = l.ApplyInode(ctx, empty)
	require.Equal(t, "node_ssd_0", nodeID)
	require.True(t, full)
	_, free, _ = l.GetNodeCapacity("node_ssd_0")
	require.Equal(t, uint64(900), free)
}

func TestApplyInodeSpillsAcrossDevices(t *testing.T) {
	l := NewLedger()
	l.InitEmpty(1, 1000)
	ctx := context.Background()

	// mix node holds 500 ssd plus 500 hdd; 600 bytes drain ssd first
	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassMix}
	inode.SetSizeBytes(600)
	nodeID, full := l.ApplyInode(ctx, inode)
	require.Equal(t, "node_mix_0", nodeID)
	require.True(t, full)

	_, free, _ := l.GetNodeCapacity("node_mix_0")
	require.Equal(t, uint64(400), free)
}

func TestApplyInodePartial(t *testing.T) {
	l := NewLedger()
	l.InitEmpty(1, 1000)
	ctx := context.Background()

	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassHDD}
	inode.SetSizeBytes(2000)
	nodeID, full := l.ApplyInode(ctx, inode)
	require.Equal(t, "node_hdd_0", nodeID)
	require.False(t, full)

	// what fit stays consumed
	_, free, _ := l.GetNodeCapacity("node_hdd_0")
	require.Zero(t, free)
	require.True(t, l.TakeDirty())
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := NewLedger()
	l.InitEmpty(1, 1000)
	ctx := context.Background()

	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassSSD}
	inode.SetSizeBytes(250)
	l.ApplyInode(ctx, inode)

	path := filepath.Join(t.TempDir(), "vnodes.json")
	require.NoError(t, l.SnapshotToJSON(path))

	restored := NewLedger()
	require.NoError(t, restored.LoadFromJSON(path))
	require.False(t, restored.TakeDirty())

	total, free, ok := restored.GetNodeCapacity("node_ssd_0")
	require.True(t, ok)
	require.Equal(t, uint64(1000), total)
	require.Equal(t, uint64(750), free)
	require.Equal(t, "node_ssd_0", restored.ResolveNodeID(proto.NodeClassSSD, 0))
}

func TestLoadFromJSONLegacyKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vnodes.json")
	blob := `{"nodes":[{"node_id":"node_ssd_0","type":0,"ssd_devices":[{"device_id":"d0","capacity":1000,"used":400,"type":"SSD"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	l := NewLedger()
	require.NoError(t, l.LoadFromJSON(path))

	// free derives from capacity minus the short form used key
	total, free, ok := l.GetNodeCapacity("node_ssd_0")
	require.True(t, ok)
	require.Equal(t, uint64(1000), total)
	require.Equal(t, uint64(600), free)
}
