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

package single

import (
	"context"

	"github.com/cubefs/chunkfs/server"
)

// Config wires all three tiers into one process rooted under Dir.
type Config struct {
	server.Config

	Dir      string `json:"dir"`
	GrpcAddr string `json:"grpc_addr"`
	HttpAddr string `json:"http_addr"`
}

// Server is the all-in-one deployment used by development setups and
// integration tooling. Tier boundaries stay intact; only the transport
// between them is short-circuited.
type Server struct {
	inner *server.Server
	rpc   *server.RPCServer
	http  *server.HttpServer

	cfg Config
}

func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Dir == "" {
		cfg.Dir = "./run"
	}
	if cfg.GrpcAddr == "" {
		cfg.GrpcAddr = ":9100"
	}
	cfg.Roles = []string{server.RoleSingle}

	if cfg.MdsConfig.StoreConfig.Path == "" {
		cfg.MdsConfig.StoreConfig.Path = cfg.Dir + "/mds"
	}
	if cfg.MdsConfig.CollectorConfig.BatchDir == "" {
		cfg.MdsConfig.CollectorConfig.BatchDir = cfg.Dir + "/batches"
	}
	if cfg.SrmConfig.StorePath == "" {
		cfg.SrmConfig.StorePath = cfg.Dir + "/srm"
	}
	if cfg.SrmConfig.VnodeConfig.Monitor.BatchDir == "" {
		cfg.SrmConfig.VnodeConfig.Monitor.BatchDir = cfg.MdsConfig.CollectorConfig.BatchDir
	}
	if cfg.SrmConfig.VnodeConfig.SnapshotPath == "" {
		cfg.SrmConfig.VnodeConfig.SnapshotPath = cfg.Dir + "/srm/vnodes.json"
	}
	if len(cfg.NodeConfig.Mounts) == 0 {
		cfg.NodeConfig.Mounts = []string{cfg.Dir + "/node/data0"}
	}

	inner, err := server.NewServer(ctx, &cfg.Config)
	if err != nil {
		return nil, err
	}
	return &Server{inner: inner, cfg: cfg}, nil
}

func (s *Server) Start() error {
	s.inner.Start()

	if s.cfg.HttpAddr != "" {
		s.http = server.NewHttpServer(s.inner)
		s.http.Serve(s.cfg.HttpAddr)
	}
	s.rpc = server.NewRPCServer(s.inner)
	s.rpc.Serve(s.cfg.GrpcAddr)
	return nil
}

func (s *Server) Stop() error {
	if s.rpc != nil {
		s.rpc.Stop()
	}
	if s.http != nil {
		s.http.Stop()
	}
	s.inner.Close()
	return nil
}

func (s *Server) Stats() server.Stats {
	return s.inner.Stats()
}
