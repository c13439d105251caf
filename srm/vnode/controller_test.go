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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/proto"
)

// upsertRegistry keeps nodes in a map and remembers every upsert.
type upsertRegistry struct {
	nodes   map[string]*proto.Node
	upserts []*proto.Node
}

func newUpsertRegistry() *upsertRegistry {
	return &upsertRegistry{nodes: make(map[string]*proto.Node)}
}

func (r *upsertRegistry) Upsert(ctx context.Context, n *proto.Node) error {
	r.nodes[n.ID] = n
	r.upserts = append(r.upserts, n)
	return nil
}

func (r *upsertRegistry) UpdateHeartbeat(ctx context.Context, nodeID string, atMs int64) error {
	return nil
}
func (r *upsertRegistry) MarkOffline(ctx context.Context, nodeID string) error { return nil }
func (r *upsertRegistry) Get(nodeID string) (*proto.Node, bool) {
	n, ok := r.nodes[nodeID]
	return n, ok
}
func (r *upsertRegistry) Snapshot() []*proto.Node            { return nil }
func (r *upsertRegistry) GenerateNodeID() string             { return "node-gen" }
func (r *upsertRegistry) Load(ctx context.Context) error     { return nil }
func (r *upsertRegistry) Close()                             {}

func TestControllerInitEmpty(t *testing.T) {
	cfg := ControllerConfig{
		Monitor:            MonitorConfig{BatchDir: t.TempDir()},
		InitNodesPerClass:  1,
		InitDeviceCapacity: 1000,
	}
	c := NewController(context.Background(), cfg, nil)
	defer c.Close()

	total, free, ok := c.Ledger().GetNodeCapacity("node_ssd_0")
	require.True(t, ok)
	require.Equal(t, uint64(1000), total)
	require.Equal(t, uint64(1000), free)
}

func TestControllerSnapshotRestore(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "vnodes.json")

	seed := NewLedger()
	seed.InitEmpty(1, 1000)
	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassSSD}
	inode.SetSizeBytes(300)
	seed.ApplyInode(context.Background(), inode)
	require.NoError(t, seed.SnapshotToJSON(snapPath))

	cfg := ControllerConfig{
		Monitor:            MonitorConfig{BatchDir: dir},
		SnapshotPath:       snapPath,
		InitNodesPerClass:  1,
		InitDeviceCapacity: 1000,
	}
	c := NewController(context.Background(), cfg, nil)
	defer c.Close()

	// the snapshot wins over re-initialization
	_, free, ok := c.Ledger().GetNodeCapacity("node_ssd_0")
	require.True(t, ok)
	require.Equal(t, uint64(700), free)
}

func TestControllerOnTouched(t *testing.T) {
	reg := newUpsertRegistry()
	cfg := ControllerConfig{
		Monitor:            MonitorConfig{BatchDir: t.TempDir()},
		InitNodesPerClass:  1,
		InitDeviceCapacity: 1000,
	}
	c := NewController(context.Background(), cfg, reg)
	defer c.Close()

	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassSSD}
	inode.SetSizeBytes(200)
	c.Ledger().ApplyInode(context.Background(), inode)

	c.onTouched([]string{"node_ssd_0", "ghost"})

	require.Len(t, reg.upserts, 1)
	n := reg.upserts[0]
	require.Equal(t, "node_ssd_0", n.ID)
	require.Equal(t, proto.NodeTypeVirtual, n.Type)
	require.Equal(t, proto.NodeStateOnline, n.State)
	require.Len(t, n.Disks, 1)
	require.Equal(t, uint64(1000), n.Disks[0].TotalBytes)
	require.Equal(t, uint64(800), n.Disks[0].FreeBytes)

	// second refresh reuses the registered node instead of minting one
	c.onTouched([]string{"node_ssd_0"})
	require.Len(t, reg.upserts, 2)
	require.Same(t, reg.upserts[0], reg.upserts[1])
}
