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

package simulation

import (
	"context"
	"hash/crc32"
	"math/rand"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/proto"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Engine answers data-plane requests for virtual nodes without touching
// any disk. Latency and failure behavior follow the node's SimParams.
type Engine struct {
	params proto.SimParams

	lock sync.Mutex
	rnd  *rand.Rand
}

func NewEngine(params proto.SimParams) *Engine {
	if params.MinLatencyMs == 0 && params.MaxLatencyMs == 0 {
		params.MinLatencyMs = 5
		params.MaxLatencyMs = 50
	}
	if params.MaxLatencyMs < params.MinLatencyMs {
		params.MaxLatencyMs = params.MinLatencyMs
	}
	if params.DefaultReadSize == 0 {
		params.DefaultReadSize = 4096
	}
	return &Engine{
		params: params,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *Engine) Write(ctx context.Context, req *proto.WriteChunkRequest) *proto.WriteChunkResponse {
	resp := &proto.WriteChunkResponse{}
	if err := e.simulate(ctx); err != nil {
		resp.Status.Set(proto.StatusVirtualNodeError, err.Error())
		return resp
	}
	crc32.Checksum(req.Data, castagnoli)
	resp.BytesWritten = uint64(len(req.Data))
	resp.Status.Set(proto.StatusSuccess, "")
	return resp
}

func (e *Engine) Read(ctx context.Context, req *proto.ReadChunkRequest) *proto.ReadChunkResponse {
	resp := &proto.ReadChunkResponse{}
	if err := e.simulate(ctx); err != nil {
		resp.Status.Set(proto.StatusVirtualNodeError, err.Error())
		return resp
	}
	length := req.Length
	if length == 0 {
		length = e.params.DefaultReadSize
	}
	buf := make([]byte, length)
	resp.Data = buf
	resp.BytesRead = uint64(length)
	resp.Checksum = crc32.Checksum(buf, castagnoli)
	resp.Status.Set(proto.StatusSuccess, "")
	return resp
}

func (e *Engine) Truncate(ctx context.Context, req *proto.TruncateChunkRequest) *proto.TruncateChunkResponse {
	resp := &proto.TruncateChunkResponse{}
	if err := e.simulate(ctx); err != nil {
		resp.Status.Set(proto.StatusVirtualNodeError, err.Error())
		return resp
	}
	resp.Status.Set(proto.StatusSuccess, "")
	return resp
}

type simulatedError string

func (e simulatedError) Error() string { return string(e) }

// simulate draws the failure dice first, then sleeps a uniform latency in
// the configured window unless the context expires.
func (e *Engine) simulate(ctx context.Context) error {
	e.lock.Lock()
	u := e.rnd.Float64()
	var jitter int64
	window := int64(e.params.MaxLatencyMs-e.params.MinLatencyMs) + 1
	if window > 0 {
		jitter = e.rnd.Int63n(window)
	}
	e.lock.Unlock()

	if u < e.params.FailureRate {
		trace.SpanFromContextSafe(ctx).Warnf("virtual node simulated failure, u=%.3f", u)
		return simulatedError("simulated failure")
	}

	delay := time.Duration(int64(e.params.MinLatencyMs)+jitter) * time.Millisecond
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
