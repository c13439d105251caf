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

package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/proto"
)

// fakeRegistry serves a fixed node set without any persistence.
type fakeRegistry struct {
	nodes map[string]*proto.Node
}

func (f *fakeRegistry) Upsert(ctx context.Context, n *proto.Node) error { return nil }
func (f *fakeRegistry) UpdateHeartbeat(ctx context.Context, nodeID string, atMs int64) error {
	return nil
}
func (f *fakeRegistry) MarkOffline(ctx context.Context, nodeID string) error { return nil }
func (f *fakeRegistry) Get(nodeID string) (*proto.Node, bool) {
	n, ok := f.nodes[nodeID]
	return n, ok
}
func (f *fakeRegistry) Snapshot() []*proto.Node { return nil }
func (f *fakeRegistry) GenerateNodeID() string  { return "node-gen" }
func (f *fakeRegistry) Load(ctx context.Context) error { return nil }
func (f *fakeRegistry) Close()                  {}

func newTestDispatcher(t *testing.T) *Dispatcher {
	reg := &fakeRegistry{nodes: map[string]*proto.Node{
		"virt-1": {
			ID:   "virt-1",
			Type: proto.NodeTypeVirtual,
			Sim:  proto.SimParams{MinLatencyMs: 1, MaxLatencyMs: 1},
		},
		"real-dead": {
			ID:   "real-dead",
			IP:   "127.0.0.1",
			Port: 1,
			Type: proto.NodeTypeReal,
		},
	}}
	d := NewDispatcher(Config{CallTimeoutMs: 300}, reg)
	t.Cleanup(d.Close)
	return d
}

func TestDispatchVirtualWriteRead(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	wresp := &proto.WriteChunkResponse{}
	done := make(chan struct{})
	d.Write(ctx, &proto.WriteChunkRequest{NodeID: "virt-1", ChunkID: 1, Data: []byte("abc")}, wresp, func() { close(done) })
	<-done
	require.True(t, wresp.Status.OK())
	require.Equal(t, uint64(3), wresp.BytesWritten)

	rresp := &proto.ReadChunkResponse{}
	done = make(chan struct{})
	d.Read(ctx, &proto.ReadChunkRequest{NodeID: "virt-1", ChunkID: 1, Length: 64}, rresp, func() { close(done) })
	<-done
	require.True(t, rresp.Status.OK())
	require.Equal(t, uint64(64), rresp.BytesRead)

	tresp := &proto.TruncateChunkResponse{}
	done = make(chan struct{})
	d.Truncate(ctx, &proto.TruncateChunkRequest{NodeID: "virt-1", ChunkID: 1}, tresp, func() { close(done) })
	<-done
	require.True(t, tresp.Status.OK())

	uresp := &proto.UnmountDiskResponse{}
	done = make(chan struct{})
	d.UnmountDisk(ctx, &proto.UnmountDiskRequest{NodeID: "virt-1", MountPoint: "/data0"}, uresp, func() { close(done) })
	<-done
	require.True(t, uresp.Status.OK())
}

func TestDispatchResolveErrors(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	resp := &proto.WriteChunkResponse{}
	done := make(chan struct{})
	d.Write(ctx, &proto.WriteChunkRequest{}, resp, func() { close(done) })
	<-done
	require.Equal(t, proto.StatusInvalidArgument, resp.Status.Code)
	require.Equal(t, "missing node_id", resp.Status.Message)

	resp = &proto.WriteChunkResponse{}
	done = make(chan struct{})
	d.Write(ctx, &proto.WriteChunkRequest{NodeID: "ghost"}, resp, func() { close(done) })
	<-done
	require.Equal(t, proto.StatusNodeNotFound, resp.Status.Code)
	require.Equal(t, "unknown node", resp.Status.Message)
}

func TestDispatchRealNodeUnreachable(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	resp := &proto.WriteChunkResponse{}
	done := make(chan struct{})
	d.Write(ctx, &proto.WriteChunkRequest{NodeID: "real-dead", ChunkID: 1, Data: []byte("x")}, resp, func() { close(done) })
	<-done
	require.Equal(t, proto.StatusNetworkError, resp.Status.Code)
	require.NotEmpty(t, resp.Status.Message)
}

func TestEngineReuse(t *testing.T) {
	d := newTestDispatcher(t)
	n, _ := d.registry.Get("virt-1")

	first := d.engineFor(n)
	second := d.engineFor(n)
	require.Same(t, first, second)
}
