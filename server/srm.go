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
	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/proto"
	"github.com/cubefs/chunkfs/srm/cluster"
	"github.com/cubefs/chunkfs/srm/gateway"
	"github.com/cubefs/chunkfs/srm/vnode"
)

type SrmConfig struct {
	StorePath string         `json:"store_path"`
	KVOption  kvstore.Option `json:"kv_option"`

	// MdsAddr is ignored when the mds tier runs in the same process.
	MdsAddr string `json:"mds_addr"`

	HealthConfig  cluster.HealthConfig   `json:"health_config"`
	GatewayConfig gateway.Config         `json:"gateway_config"`
	VnodeConfig   vnode.ControllerConfig `json:"vnode_config"`
}

type SrmStats struct {
	Nodes        int `json:"nodes"`
	OnlineNodes  int `json:"online_nodes"`
	VirtualNodes int `json:"virtual_nodes"`
}

// srmServer owns the resource tier: the persistent node registry, the
// heartbeat sweeper, the data-plane dispatcher and the virtual node
// controller consuming collector batches.
type srmServer struct {
	kv         kvstore.Store
	registry   cluster.Registry
	service    *cluster.Service
	health     *cluster.HealthMonitor
	dispatcher *gateway.Dispatcher
	controller *vnode.Controller
	mdsClient  *client.MdsClient
}

func newSrmServer(ctx context.Context, cfg *SrmConfig, mds *mdsServer) (*srmServer, error) {
	if cfg.StorePath == "" {
		cfg.StorePath = "./run/srm"
	}
	cfg.KVOption.CreateIfMissing = true
	cfg.KVOption.ColumnFamily = append(cfg.KVOption.ColumnFamily, cluster.StoreColumns()...)
	kv, err := kvstore.NewKVStore(ctx, cfg.StorePath+"/kv", kvstore.RocksdbLsmKVType, &cfg.KVOption)
	if err != nil {
		return nil, err
	}
	registry := cluster.NewRegistry(kv)
	if err = registry.Load(ctx); err != nil {
		kv.Close()
		return nil, err
	}

	s := &srmServer{kv: kv, registry: registry}

	var registrar cluster.MdsRegistrar
	switch {
	case mds != nil:
		registrar = mds.catalog
	case cfg.MdsAddr != "":
		mdsClient, err := client.NewMdsClient(cfg.MdsAddr)
		if err != nil {
			kv.Close()
			return nil, err
		}
		s.mdsClient = mdsClient
		registrar = mdsClient
	}

	s.service = cluster.NewService(registry, registrar)
	s.health = cluster.NewHealthMonitor(cfg.HealthConfig, registry)
	s.dispatcher = gateway.NewDispatcher(cfg.GatewayConfig, registry)
	s.controller = vnode.NewController(ctx, cfg.VnodeConfig, registry)
	return s, nil
}

func (s *srmServer) start() {
	s.health.Start()
	s.controller.Start()
}

func (s *srmServer) close() {
	if s.controller != nil {
		s.controller.Close()
	}
	if s.health != nil {
		s.health.Close()
	}
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.mdsClient != nil {
		s.mdsClient.Close()
	}
	s.registry.Close()
	s.kv.Close()
}

func (s *srmServer) stats() *SrmStats {
	st := &SrmStats{}
	for _, n := range s.registry.Snapshot() {
		st.Nodes++
		if n.State == proto.NodeStateOnline {
			st.OnlineNodes++
		}
		if n.Type == proto.NodeTypeVirtual {
			st.VirtualNodes++
		}
	}
	return st
}

// clusterAPI exposes the srm tier over rpc. Data-plane handlers hand the
// request to the dispatcher and wait for its completion callback, so slow
// real nodes hold only a pool slot and the grpc goroutine.
type clusterAPI struct {
	tier *srmServer
}

func (a *clusterAPI) RegisterNode(ctx context.Context, req *proto.RegisterNodeRequest) (*proto.RegisterNodeResponse, error) {
	return a.tier.service.HandleRegister(ctx, req)
}

func (a *clusterAPI) Heartbeat(ctx context.Context, req *proto.HeartbeatRequest) (*proto.HeartbeatResponse, error) {
	return a.tier.service.HandleHeartbeat(ctx, req)
}

func (a *clusterAPI) Write(ctx context.Context, req *proto.WriteChunkRequest) (*proto.WriteChunkResponse, error) {
	resp := &proto.WriteChunkResponse{}
	done := make(chan struct{})
	a.tier.dispatcher.Write(ctx, req, resp, func() { close(done) })
	<-done
	return resp, nil
}

func (a *clusterAPI) Read(ctx context.Context, req *proto.ReadChunkRequest) (*proto.ReadChunkResponse, error) {
	resp := &proto.ReadChunkResponse{}
	done := make(chan struct{})
	a.tier.dispatcher.Read(ctx, req, resp, func() { close(done) })
	<-done
	return resp, nil
}

func (a *clusterAPI) Truncate(ctx context.Context, req *proto.TruncateChunkRequest) (*proto.TruncateChunkResponse, error) {
	resp := &proto.TruncateChunkResponse{}
	done := make(chan struct{})
	a.tier.dispatcher.Truncate(ctx, req, resp, func() { close(done) })
	<-done
	return resp, nil
}

func (a *clusterAPI) UnmountDisk(ctx context.Context, req *proto.UnmountDiskRequest) (*proto.UnmountDiskResponse, error) {
	resp := &proto.UnmountDiskResponse{}
	done := make(chan struct{})
	a.tier.dispatcher.UnmountDisk(ctx, req, resp, func() { close(done) })
	<-done
	return resp, nil
}
