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

package agent

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/proto"
	nodeio "github.com/cubefs/chunkfs/storagenode/io"
)

// ClusterClient is the slice of the SRM surface the agent needs.
type ClusterClient interface {
	RegisterNode(ctx context.Context, req *proto.RegisterNodeRequest) (*proto.RegisterNodeResponse, error)
	Heartbeat(ctx context.Context, req *proto.HeartbeatRequest) (*proto.HeartbeatResponse, error)
}

type Config struct {
	IP                 string `json:"ip"`
	Port               uint32 `json:"port"`
	Hostname           string `json:"hostname"`
	HeartbeatIntervalS int    `json:"heartbeat_interval_s"`
	RegisterBackoffS   int    `json:"register_backoff_s"`
}

// Agent keeps the node joined to the cluster: it registers once, then
// heartbeats until the SRM asks for re-registration or the agent stops.
type Agent struct {
	cfg    Config
	client ClusterClient
	disks  *nodeio.DiskManager

	nodeID  string
	running int32
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewAgent(cfg Config, client ClusterClient, disks *nodeio.DiskManager) *Agent {
	if cfg.IP == "" {
		cfg.IP = "127.0.0.1"
	}
	if cfg.Hostname == "" {
		if hn, err := os.Hostname(); err == nil {
			cfg.Hostname = hn
		} else {
			cfg.Hostname = cfg.IP
		}
	}
	if cfg.HeartbeatIntervalS <= 0 {
		cfg.HeartbeatIntervalS = 5
	}
	if cfg.RegisterBackoffS <= 0 {
		cfg.RegisterBackoffS = 2
	}
	return &Agent{
		cfg:    cfg,
		client: client,
		disks:  disks,
		done:   make(chan struct{}),
	}
}

func (a *Agent) NodeID() string {
	return a.nodeID
}

func (a *Agent) Start() {
	if !atomic.CompareAndSwapInt32(&a.running, 0, 1) {
		return
	}
	a.wg.Add(1)
	go a.loop()
}

func (a *Agent) Stop() {
	if !atomic.CompareAndSwapInt32(&a.running, 1, 0) {
		return
	}
	close(a.done)
	a.wg.Wait()
}

func (a *Agent) loop() {
	defer a.wg.Done()
	span, ctx := trace.StartSpanFromContext(context.Background(), "node-agent")

	interval := time.Duration(a.cfg.HeartbeatIntervalS) * time.Second
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-timer.C:
		}

		if a.nodeID == "" {
			if err := a.register(ctx); err != nil {
				span.Warnf("registration failed: %s", err)
				timer.Reset(time.Duration(a.cfg.RegisterBackoffS) * time.Second)
				continue
			}
			span.Infof("registered as node[%s]", a.nodeID)
			timer.Reset(interval)
			continue
		}

		if rereg := a.heartbeat(ctx); rereg {
			span.Warnf("node[%s] asked to re-register", a.nodeID)
			a.nodeID = ""
			timer.Reset(time.Duration(a.cfg.RegisterBackoffS) * time.Second)
			continue
		}
		timer.Reset(interval)
	}
}

func (a *Agent) register(ctx context.Context) error {
	return retry.Do(
		func() error {
			resp, err := a.client.RegisterNode(ctx, &proto.RegisterNodeRequest{
				IP:       a.cfg.IP,
				Port:     a.cfg.Port,
				Hostname: a.cfg.Hostname,
				Disks:    a.disks.Stats(),
			})
			if err != nil {
				return err
			}
			if !resp.Status.OK() {
				return statusError(resp.Status)
			}
			a.nodeID = resp.NodeID
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Duration(a.cfg.RegisterBackoffS)*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// heartbeat reports liveness; true means the id must be dropped.
func (a *Agent) heartbeat(ctx context.Context) bool {
	span := trace.SpanFromContextSafe(ctx)
	resp, err := a.client.Heartbeat(ctx, &proto.HeartbeatRequest{
		NodeID:      a.nodeID,
		TimestampMs: time.Now().UnixMilli(),
	})
	if err != nil {
		span.Warnf("heartbeat transport failed: %s", err)
		return true
	}
	if resp.RequireRereg || resp.Status.Code == proto.StatusNodeNotFound {
		return true
	}
	return false
}

type statusErr struct {
	st proto.Status
}

func (e statusErr) Error() string {
	return e.st.Code.String() + ": " + e.st.Message
}

func statusError(st proto.Status) error {
	return statusErr{st: st}
}
