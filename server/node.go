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

package server

import (
	"context"

	"github.com/cubefs/chunkfs/client"
	"github.com/cubefs/chunkfs/proto"
	"github.com/cubefs/chunkfs/srm/cluster"
	"github.com/cubefs/chunkfs/storagenode/agent"
	nodeio "github.com/cubefs/chunkfs/storagenode/io"
	"github.com/cubefs/chunkfs/storagenode/meta"
	"github.com/cubefs/chunkfs/storagenode/service"
	"github.com/cubefs/chunkfs/util/limiter"
)

type NodeConfig struct {
	Mounts          []string            `json:"mounts"`
	ManifestLogPath string              `json:"manifest_log_path"`
	IoConfig        nodeio.Config       `json:"io_config"`
	AgentConfig     agent.Config        `json:"agent_config"`
	Limits          limiter.LimitConfig `json:"limits"`

	// SrmAddr is ignored when the srm tier runs in the same process.
	SrmAddr string `json:"srm_addr"`
}

// nodeServer owns the storage tier: the chunk manifest, the fd-cached io
// engine, the disk set and the agent keeping the node registered.
type nodeServer struct {
	manifest *meta.ManifestLog
	engine   *nodeio.Engine
	disks    *nodeio.DiskManager
	chunks   *service.ChunkService
	agent    *agent.Agent
	srmConn  *client.SrmClient
}

func newNodeServer(ctx context.Context, cfg *NodeConfig, srm *srmServer) (*nodeServer, error) {
	if len(cfg.Mounts) == 0 {
		cfg.Mounts = []string{"./run/node/data0"}
	}
	disks, err := nodeio.NewDiskManager(cfg.Mounts)
	if err != nil {
		return nil, err
	}
	manifest, err := meta.NewManifestLog(ctx, cfg.Mounts, cfg.ManifestLogPath)
	if err != nil {
		return nil, err
	}
	engine, err := nodeio.NewEngine(cfg.IoConfig)
	if err != nil {
		manifest.Close()
		return nil, err
	}

	n := &nodeServer{
		manifest: manifest,
		engine:   engine,
		disks:    disks,
		chunks:   service.NewChunkService(manifest, engine, disks, cfg.Limits),
	}

	var clusterClient agent.ClusterClient
	switch {
	case srm != nil:
		clusterClient = localCluster{service: srm.service}
	case cfg.SrmAddr != "":
		srmConn, err := client.NewSrmClient(cfg.SrmAddr)
		if err != nil {
			engine.Close()
			manifest.Close()
			return nil, err
		}
		n.srmConn = srmConn
		clusterClient = srmConn
	}
	if clusterClient != nil {
		n.agent = agent.NewAgent(cfg.AgentConfig, clusterClient, disks)
	}
	return n, nil
}

func (n *nodeServer) start() {
	if n.agent != nil {
		n.agent.Start()
	}
}

func (n *nodeServer) close() {
	if n.agent != nil {
		n.agent.Stop()
	}
	if n.srmConn != nil {
		n.srmConn.Close()
	}
	n.engine.Close()
	n.manifest.Close()
}

// localCluster short-circuits agent traffic when the srm tier shares the
// process.
type localCluster struct {
	service *cluster.Service
}

func (l localCluster) RegisterNode(ctx context.Context, req *proto.RegisterNodeRequest) (*proto.RegisterNodeResponse, error) {
	return l.service.HandleRegister(ctx, req)
}

func (l localCluster) Heartbeat(ctx context.Context, req *proto.HeartbeatRequest) (*proto.HeartbeatResponse, error) {
	return l.service.HandleHeartbeat(ctx, req)
}

type nodeAPI struct {
	tier *nodeServer
}

func (a *nodeAPI) Write(ctx context.Context, req *proto.WriteChunkRequest) (*proto.WriteChunkResponse, error) {
	return a.tier.chunks.Write(ctx, req)
}

func (a *nodeAPI) Read(ctx context.Context, req *proto.ReadChunkRequest) (*proto.ReadChunkResponse, error) {
	return a.tier.chunks.Read(ctx, req)
}

func (a *nodeAPI) Truncate(ctx context.Context, req *proto.TruncateChunkRequest) (*proto.TruncateChunkResponse, error) {
	return a.tier.chunks.Truncate(ctx, req)
}

func (a *nodeAPI) UnmountDisk(ctx context.Context, req *proto.UnmountDiskRequest) (*proto.UnmountDiskResponse, error) {
	return a.tier.chunks.UnmountDisk(ctx, req)
}
