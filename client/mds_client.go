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

// MdsClient is the typed surface of the metadata tier.
type MdsClient struct {
	conn *grpc.ClientConn
}

func NewMdsClient(address string) (*MdsClient, error) {
	conn, err := dial(address)
	if err != nil {
		return nil, err
	}
	return &MdsClient{conn: conn}, nil
}

func (c *MdsClient) Address() string {
	return c.conn.Target()
}

func (c *MdsClient) Close() error {
	return c.conn.Close()
}

func (c *MdsClient) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.conn.Invoke(ctx, "/"+proto.MDSServiceName+"/"+method, req, resp)
}

func (c *MdsClient) CreateRoot(ctx context.Context) (uint64, error) {
	resp := &proto.CreateRootResponse{}
	if err := c.invoke(ctx, "CreateRoot", &proto.CreateRootRequest{}, resp); err != nil {
		return 0, err
	}
	return resp.Ino, errFromStatus(resp.Status)
}

func (c *MdsClient) Mkdir(ctx context.Context, path string, mode uint16) (uint64, error) {
	resp := &proto.MkdirResponse{}
	if err := c.invoke(ctx, "Mkdir", &proto.MkdirRequest{Path: path, Mode: mode}, resp); err != nil {
		return 0, err
	}
	return resp.Ino, errFromStatus(resp.Status)
}

func (c *MdsClient) Rmdir(ctx context.Context, path string) error {
	resp := &proto.RmdirResponse{}
	if err := c.invoke(ctx, "Rmdir", &proto.RmdirRequest{Path: path}, resp); err != nil {
		return err
	}
	return errFromStatus(resp.Status)
}

func (c *MdsClient) CreateFile(ctx context.Context, path string, mode uint16) (uint64, error) {
	resp := &proto.CreateFileResponse{}
	if err := c.invoke(ctx, "CreateFile", &proto.CreateFileRequest{Path: path, Mode: mode}, resp); err != nil {
		return 0, err
	}
	return resp.Ino, errFromStatus(resp.Status)
}

func (c *MdsClient) RemoveFile(ctx context.Context, path string) ([]uint64, error) {
	resp := &proto.RemoveFileResponse{}
	if err := c.invoke(ctx, "RemoveFile", &proto.RemoveFileRequest{Path: path}, resp); err != nil {
		return nil, err
	}
	return resp.DetachedInodes, errFromStatus(resp.Status)
}

func (c *MdsClient) TruncateFile(ctx context.Context, path string) (*proto.Inode, error) {
	resp := &proto.TruncateFileResponse{}
	if err := c.invoke(ctx, "TruncateFile", &proto.TruncateFileRequest{Path: path}, resp); err != nil {
		return nil, err
	}
	return resp.Inode, errFromStatus(resp.Status)
}

func (c *MdsClient) UpdateFileSize(ctx context.Context, ino uint64, sizeBytes uint64) error {
	resp := &proto.UpdateFileSizeResponse{}
	if err := c.invoke(ctx, "UpdateFileSize", &proto.UpdateFileSizeRequest{Ino: ino, SizeBytes: sizeBytes}, resp); err != nil {
		return err
	}
	return errFromStatus(resp.Status)
}

func (c *MdsClient) Ls(ctx context.Context, path string) ([]proto.Dirent, error) {
	resp := &proto.LsResponse{}
	if err := c.invoke(ctx, "Ls", &proto.LsRequest{Path: path}, resp); err != nil {
		return nil, err
	}
	return resp.Entries, errFromStatus(resp.Status)
}

func (c *MdsClient) LookupIno(ctx context.Context, path string) (uint64, error) {
	resp := &proto.LookupInoResponse{}
	if err := c.invoke(ctx, "LookupIno", &proto.LookupInoRequest{Path: path}, resp); err != nil {
		return proto.InvalidIno, err
	}
	return resp.Ino, errFromStatus(resp.Status)
}

func (c *MdsClient) FindInode(ctx context.Context, path string) (*proto.FindInodeResponse, error) {
	resp := &proto.FindInodeResponse{}
	if err := c.invoke(ctx, "FindInode", &proto.FindInodeRequest{Path: path}, resp); err != nil {
		return nil, err
	}
	return resp, errFromStatus(resp.Status)
}

// RegisterNode binds a storage node into the inode location space and
// returns the assigned 14-bit index.
func (c *MdsClient) RegisterNode(ctx context.Context, nodeID string, class proto.NodeClass, capacityBytes uint64) (uint16, error) {
	resp := &proto.MdsRegisterNodeResponse{}
	req := &proto.MdsRegisterNodeRequest{NodeID: nodeID, Class: class, CapacityBytes: capacityBytes}
	if err := c.invoke(ctx, "RegisterNode", req, resp); err != nil {
		return 0, err
	}
	return resp.NodeIndex, errFromStatus(resp.Status)
}

func (c *MdsClient) RegisterVolume(ctx context.Context, volumeID string, class proto.NodeClass, totalBlocks uint64, blockSize uint32) error {
	resp := &proto.RegisterVolumeResponse{}
	req := &proto.RegisterVolumeRequest{VolumeID: volumeID, Class: class, TotalBlocks: totalBlocks, BlockSize: blockSize}
	if err := c.invoke(ctx, "RegisterVolume", req, resp); err != nil {
		return err
	}
	return errFromStatus(resp.Status)
}

func (c *MdsClient) WriteInode(ctx context.Context, ino uint64, blob []byte) error {
	resp := &proto.WriteInodeResponse{}
	if err := c.invoke(ctx, "WriteInode", &proto.WriteInodeRequest{Ino: ino, InodeBlob: blob}, resp); err != nil {
		return err
	}
	return errFromStatus(resp.Status)
}

func (c *MdsClient) CollectColdInodes(ctx context.Context, maxCandidates, minAgeWindows uint32) ([]uint64, error) {
	resp := &proto.CollectColdInodesResponse{}
	req := &proto.CollectColdInodesRequest{MaxCandidates: maxCandidates, MinAgeWindows: minAgeWindows}
	if err := c.invoke(ctx, "CollectColdInodes", req, resp); err != nil {
		return nil, err
	}
	return resp.Inos, errFromStatus(resp.Status)
}

func (c *MdsClient) CollectColdInodesBitmap(ctx context.Context, ageWindows uint32) ([]byte, uint64, error) {
	resp := &proto.CollectColdInodesBitmapResponse{}
	if err := c.invoke(ctx, "CollectColdInodesBitmap", &proto.CollectColdInodesBitmapRequest{AgeWindows: ageWindows}, resp); err != nil {
		return nil, 0, err
	}
	return resp.Bitmap, resp.TotalInodes, errFromStatus(resp.Status)
}

func (c *MdsClient) CollectColdInodesByAtimePercent(ctx context.Context, percent float64) ([]uint64, error) {
	resp := &proto.CollectColdInodesResponse{}
	if err := c.invoke(ctx, "CollectColdInodesByAtimePercent", &proto.CollectColdInodesByAtimePercentRequest{Percent: percent}, resp); err != nil {
		return nil, err
	}
	return resp.Inos, errFromStatus(resp.Status)
}

func (c *MdsClient) RebuildInodeTable(ctx context.Context) (uint64, error) {
	resp := &proto.RebuildInodeTableResponse{}
	if err := c.invoke(ctx, "RebuildInodeTable", &proto.RebuildInodeTableRequest{}, resp); err != nil {
		return 0, err
	}
	return resp.Rebuilt, errFromStatus(resp.Status)
}
