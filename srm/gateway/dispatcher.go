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
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/taskpool"
	"google.golang.org/grpc"

	"github.com/cubefs/chunkfs/proto"
	"github.com/cubefs/chunkfs/srm/cluster"
	"github.com/cubefs/chunkfs/srm/simulation"
)

const (
	defaultCallTimeout  = 3 * time.Second
	defaultCallRetries  = 1
	defaultTaskPoolSize = 32
)

type Config struct {
	CallTimeoutMs int `json:"call_timeout_ms"`
	TaskPoolSize  int `json:"task_pool_size"`
}

// Dispatcher routes data-plane requests to the owning node. Virtual
// nodes are served in-process by the simulation engine; real nodes get a
// grpc call on the shared task pool so the caller never blocks on slow
// storage.
type Dispatcher struct {
	cfg      Config
	registry cluster.Registry
	stubs    *StubCache
	pool     taskpool.TaskPool

	engineLock sync.Mutex
	engines    map[string]*simulation.Engine
}

func NewDispatcher(cfg Config, reg cluster.Registry) *Dispatcher {
	if cfg.CallTimeoutMs <= 0 {
		cfg.CallTimeoutMs = int(defaultCallTimeout / time.Millisecond)
	}
	if cfg.TaskPoolSize <= 0 {
		cfg.TaskPoolSize = defaultTaskPoolSize
	}
	return &Dispatcher{
		cfg:      cfg,
		registry: reg,
		stubs:    NewStubCache(),
		pool:     taskpool.New(cfg.TaskPoolSize, cfg.TaskPoolSize),
		engines:  make(map[string]*simulation.Engine),
	}
}

func (d *Dispatcher) Close() {
	d.pool.Close()
	d.stubs.Close()
}

func (d *Dispatcher) engineFor(n *proto.Node) *simulation.Engine {
	d.engineLock.Lock()
	defer d.engineLock.Unlock()
	e, ok := d.engines[n.ID]
	if !ok {
		e = simulation.NewEngine(n.Sim)
		d.engines[n.ID] = e
	}
	return e
}

// resolve maps a node id onto its record, filling st on failure.
func (d *Dispatcher) resolve(nodeID string, st *proto.Status) *proto.Node {
	if nodeID == "" {
		st.Set(proto.StatusInvalidArgument, "missing node_id")
		return nil
	}
	n, ok := d.registry.Get(nodeID)
	if !ok {
		st.Set(proto.StatusNodeNotFound, "unknown node")
		return nil
	}
	return n
}

func (d *Dispatcher) Write(ctx context.Context, req *proto.WriteChunkRequest, resp *proto.WriteChunkResponse, done func()) {
	n := d.resolve(req.NodeID, &resp.Status)
	if n == nil {
		done()
		return
	}
	if n.Type == proto.NodeTypeVirtual {
		*resp = *d.engineFor(n).Write(ctx, req)
		done()
		return
	}
	d.invokeAsync(ctx, n, "/chunkfs.StorageNode/Write", req, resp, &resp.Status, done)
}

func (d *Dispatcher) Read(ctx context.Context, req *proto.ReadChunkRequest, resp *proto.ReadChunkResponse, done func()) {
	n := d.resolve(req.NodeID, &resp.Status)
	if n == nil {
		done()
		return
	}
	if n.Type == proto.NodeTypeVirtual {
		*resp = *d.engineFor(n).Read(ctx, req)
		done()
		return
	}
	d.invokeAsync(ctx, n, "/chunkfs.StorageNode/Read", req, resp, &resp.Status, done)
}

func (d *Dispatcher) Truncate(ctx context.Context, req *proto.TruncateChunkRequest, resp *proto.TruncateChunkResponse, done func()) {
	n := d.resolve(req.NodeID, &resp.Status)
	if n == nil {
		done()
		return
	}
	if n.Type == proto.NodeTypeVirtual {
		*resp = *d.engineFor(n).Truncate(ctx, req)
		done()
		return
	}
	d.invokeAsync(ctx, n, "/chunkfs.StorageNode/Truncate", req, resp, &resp.Status, done)
}

func (d *Dispatcher) UnmountDisk(ctx context.Context, req *proto.UnmountDiskRequest, resp *proto.UnmountDiskResponse, done func()) {
	n := d.resolve(req.NodeID, &resp.Status)
	if n == nil {
		done()
		return
	}
	if n.Type == proto.NodeTypeVirtual {
		resp.Status.Set(proto.StatusSuccess, "")
		done()
		return
	}
	d.invokeAsync(ctx, n, "/chunkfs.StorageNode/UnmountDisk", req, resp, &resp.Status, done)
}

// invokeAsync issues the call on the task pool, retrying once on
// transport failure with a fresh connection.
func (d *Dispatcher) invokeAsync(ctx context.Context, n *proto.Node, method string, req, resp interface{}, st *proto.Status, done func()) {
	span := trace.SpanFromContextSafe(ctx)
	timeout := time.Duration(d.cfg.CallTimeoutMs) * time.Millisecond

	d.pool.Run(func() {
		var lastErr error
		for attempt := 0; attempt <= defaultCallRetries; attempt++ {
			conn, err := d.stubs.Get(ctx, n.ID, n.Addr())
			if err != nil {
				lastErr = err
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			err = conn.Invoke(callCtx, method, req, resp, grpc.CallContentSubtype("json"))
			cancel()
			if err == nil {
				done()
				return
			}
			lastErr = err
			d.stubs.Evict(n.ID)
		}
		span.Warnf("call %s on node[%s] failed: %s", method, n.ID, lastErr)
		st.Set(proto.StatusNetworkError, lastErr.Error())
		done()
	})
}
