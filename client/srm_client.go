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

package client

import (
	"context"

	"google.golang.org/grpc"

	"github.com/cubefs/chunkfs/proto"
)

// SrmClient talks to the resource tier. Control-plane responses keep the
// wire status intact so agents can inspect re-registration hints.
type SrmClient struct {
	conn *grpc.ClientConn
}

func NewSrmClient(address string) (*SrmClient, error) {
	conn, err := dial(address)
	if err != nil {
		return nil, err
	}
	return &SrmClient{conn: conn}, nil
}

func (c *SrmClient) Address() string {
	return c.conn.Target()
}

func (c *SrmClient) Close() error {
	return c.conn.Close()
}

func (c *SrmClient) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.conn.Invoke(ctx, "/"+proto.ClusterServiceName+"/"+method, req, resp)
}

func (c *SrmClient) RegisterNode(ctx context.Context, req *proto.RegisterNodeRequest) (*proto.RegisterNodeResponse, error) {
	resp := &proto.RegisterNodeResponse{}
	if err := c.invoke(ctx, "RegisterNode", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *SrmClient) Heartbeat(ctx context.Context, req *proto.HeartbeatRequest) (*proto.HeartbeatResponse, error) {
	resp := &proto.HeartbeatResponse{}
	if err := c.invoke(ctx, "Heartbeat", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *SrmClient) Write(ctx context.Context, req *proto.WriteChunkRequest) (*proto.WriteChunkResponse, error) {
	resp := &proto.WriteChunkResponse{}
	if err := c.invoke(ctx, "Write", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *SrmClient) Read(ctx context.Context, req *proto.ReadChunkRequest) (*proto.ReadChunkResponse, error) {
	resp := &proto.ReadChunkResponse{}
	if err := c.invoke(ctx, "Read", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *SrmClient) Truncate(ctx context.Context, req *proto.TruncateChunkRequest) (*proto.TruncateChunkResponse, error) {
	resp := &proto.TruncateChunkResponse{}
	if err := c.invoke(ctx, "Truncate", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *SrmClient) UnmountDisk(ctx context.Context, req *proto.UnmountDiskRequest) (*proto.UnmountDiskResponse, error) {
	resp := &proto.UnmountDiskResponse{}
	if err := c.invoke(ctx, "UnmountDisk", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
