package client

import (
	"context"

	"google.golang.org/grpc"

	"github.com/cubefs/chunkfs/proto"
)

// NodeClient calls a storage node directly, bypassing the gateway. Used
// by tooling and repair jobs that already know the owner.
type NodeClient struct {
	conn *grpc.ClientConn
}

func NewNodeClient(address string) (*NodeClient, error) {
	conn, err := dial(address)
	if err != nil {
		return nil, err
	}
	return &NodeClient{conn: conn}, nil
}

func (c *NodeClient) Close() error {
	return c.conn.Close()
}

func (c *NodeClient) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.conn.Invoke(ctx, "/"+proto.NodeServiceName+"/"+method, req, resp)
}

func (c *NodeClient) Write(ctx context.Context, req *proto.WriteChunkRequest) (*proto.WriteChunkResponse, error) {
	resp := &proto.WriteChunkResponse{}
	if err := c.invoke(ctx, "Write", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *NodeClient) Read(ctx context.Context, req *proto.ReadChunkRequest) (*proto.ReadChunkResponse, error) {
	resp := &proto.ReadChunkResponse{}
	if err := c.invoke(ctx, "Read", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *NodeClient) Truncate(ctx context.Context, req *proto.TruncateChunkRequest) (*proto.TruncateChunkResponse, error) {
	resp := &proto.TruncateChunkResponse{}
	if err := c.invoke(ctx, "Truncate", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *NodeClient) UnmountDisk(ctx context.Context, req *proto.UnmountDiskRequest) (*proto.UnmountDiskResponse, error) {
	resp := &proto.UnmountDiskResponse{}
	if err := c.invoke(ctx, "UnmountDisk", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
