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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
)

// Registry is the authoritative membership view of the cluster. Every
// mutation goes through the registry so node state, persistence and the
// in-memory map never diverge.
type Registry interface {
	Upsert(ctx context.Context, n *proto.Node) error
	UpdateHeartbeat(ctx context.Context, nodeID string, atMs int64) error
	MarkOffline(ctx context.Context, nodeID string) error
	Get(nodeID string) (*proto.Node, bool)
	Snapshot() []*proto.Node
	GenerateNodeID() string
	Load(ctx context.Context) error
	Close()
}

type registry struct {
	lock    sync.RWMutex
	nodes   map[string]*proto.Node
	storage *storage
	seq     uint64
}

func NewRegistry(kvStore kvstore.Store) Registry {
	return &registry{
		nodes:   make(map[string]*proto.Node),
		storage: &storage{kvStore: kvStore},
	}
}

func (r *registry) Load(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)
	nodes, err := r.storage.Load(ctx)
	if err != nil {
		return err
	}
	r.lock.Lock()
	for _, n := range nodes {
		r.nodes[n.ID] = n
	}
	r.lock.Unlock()
	span.Infof("registry loaded %d nodes", len(nodes))
	return nil
}

func (r *registry) GenerateNodeID() string {
	seq := atomic.AddUint64(&r.seq, 1)
	return fmt.Sprintf("node-%d-%d", time.Now().UnixMilli(), seq)
}

// Upsert installs or replaces the node record and stamps its heartbeat.
func (r *registry) Upsert(ctx context.Context, n *proto.Node) error {
	if n == nil || n.ID == "" {
		return errors.ErrInvalidArgument
	}
	cp := *n
	cp.Disks = append([]proto.DiskInfo(nil), n.Disks...)
	cp.LastHeartbeat = time.Now().UnixMilli()

	r.lock.Lock()
	r.nodes[cp.ID] = &cp
	r.lock.Unlock()

	if err := r.storage.Put(ctx, &cp); err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("persist node[%s] failed: %s", cp.ID, err)
	}
	return nil
}

func (r *registry) UpdateHeartbeat(ctx context.Context, nodeID string, atMs int64) error {
	r.lock.Lock()
	n, ok := r.nodes[nodeID]
	if !ok {
		r.lock.Unlock()
		return errors.ErrNodeNotFound
	}
	if atMs == 0 {
		atMs = time.Now().UnixMilli()
	}
	n.LastHeartbeat = atMs
	n.State = proto.NodeStateOnline
	cp := *n
	r.lock.Unlock()

	if err := r.storage.Put(ctx, &cp); err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("persist node[%s] failed: %s", nodeID, err)
	}
	return nil
}

func (r *registry) MarkOffline(ctx context.Context, nodeID string) error {
	r.lock.Lock()
	n, ok := r.nodes[nodeID]
	if !ok {
		r.lock.Unlock()
		return errors.ErrNodeNotFound
	}
	n.State = proto.NodeStateOffline
	cp := *n
	r.lock.Unlock()

	trace.SpanFromContextSafe(ctx).Warnf("node[%s] marked offline", nodeID)
	if err := r.storage.Put(ctx, &cp); err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("persist node[%s] failed: %s", nodeID, err)
	}
	return nil
}

func (r *registry) Get(nodeID string) (*proto.Node, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return nil, false
	}
	cp := *n
	cp.Disks = append([]proto.DiskInfo(nil), n.Disks...)
	return &cp, true
}

func (r *registry) Snapshot() []*proto.Node {
	r.lock.RLock()
	defer r.lock.RUnlock()
	res := make([]*proto.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		cp := *n
		cp.Disks = append([]proto.DiskInfo(nil), n.Disks...)
		res = append(res, &cp)
	}
	return res
}

func (r *registry) Close() {}
