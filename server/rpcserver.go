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
	"net"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/cubefs/chunkfs/metrics"
	"github.com/cubefs/chunkfs/proto"
)

type RPCServer struct {
	*Server

	grpcServer *grpc.Server
}

func NewRPCServer(server *Server) *RPCServer {
	rs := &RPCServer{Server: server}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		rs.unaryInterceptorWithTracer,
		metrics.GRPCMetrics.UnaryServerInterceptor(),
	))
	if rs.mds != nil {
		s.RegisterService(&proto.MDSServiceDesc, &mdsAPI{tier: rs.mds})
	}
	if rs.srm != nil {
		s.RegisterService(&proto.ClusterServiceDesc, &clusterAPI{tier: rs.srm})
	}
	if rs.node != nil {
		s.RegisterService(&proto.NodeServiceDesc, &nodeAPI{tier: rs.node})
	}
	metrics.GRPCMetrics.InitializeMetrics(s)

	rs.grpcServer = s
	return rs
}

func (r *RPCServer) Serve(addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("grpc listen on %s failed: %s", addr, err)
	}
	go func() {
		if err := r.grpcServer.Serve(lis); err != nil {
			log.Fatal("grpc server exits:", err)
		}
	}()
	log.Info("grpc server is running at:", addr)
}

func (r *RPCServer) Stop() {
	r.grpcServer.GracefulStop()
}

// unaryInterceptorWithTracer rebinds the caller's request id onto a fresh
// span so node-side logs line up with the caller's.
func (r *RPCServer) unaryInterceptorWithTracer(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if reqID, ok := md[proto.ReqIdKey]; ok && len(reqID) > 0 {
			_, ctx = trace.StartSpanFromContextWithTraceID(ctx, "", reqID[0])
		}
	}
	return handler(ctx, req)
}
