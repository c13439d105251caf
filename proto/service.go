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

package proto

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName selects the json codec on every client call; servers pick it
// up from the content-subtype header. No generated stubs are involved.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)    { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                             { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const (
	MDSServiceName     = "chunkfs.MDS"
	ClusterServiceName = "chunkfs.Cluster"
	NodeServiceName    = "chunkfs.StorageNode"
)

type MDSServer interface {
	CreateRoot(ctx context.Context, req *CreateRootRequest) (*CreateRootResponse, error)
	Mkdir(ctx context.Context, req *MkdirRequest) (*MkdirResponse, error)
	Rmdir(ctx context.Context, req *RmdirRequest) (*RmdirResponse, error)
	CreateFile(ctx context.Context, req *CreateFileRequest) (*CreateFileResponse, error)
	RemoveFile(ctx context.Context, req *RemoveFileRequest) (*RemoveFileResponse, error)
	TruncateFile(ctx context.Context, req *TruncateFileRequest) (*TruncateFileResponse, error)
	UpdateFileSize(ctx context.Context, req *UpdateFileSizeRequest) (*UpdateFileSizeResponse, error)
	Ls(ctx context.Context, req *LsRequest) (*LsResponse, error)
	LookupIno(ctx context.Context, req *LookupInoRequest) (*LookupInoResponse, error)
	FindInode(ctx context.Context, req *FindInodeRequest) (*FindInodeResponse, error)
	RegisterNode(ctx context.Context, req *MdsRegisterNodeRequest) (*MdsRegisterNodeResponse, error)
	RegisterVolume(ctx context.Context, req *RegisterVolumeRequest) (*RegisterVolumeResponse, error)
	WriteInode(ctx context.Context, req *WriteInodeRequest) (*WriteInodeResponse, error)
	CollectColdInodes(ctx context.Context, req *CollectColdInodesRequest) (*CollectColdInodesResponse, error)
	CollectColdInodesBitmap(ctx context.Context, req *CollectColdInodesBitmapRequest) (*CollectColdInodesBitmapResponse, error)
	CollectColdInodesByAtimePercent(ctx context.Context, req *CollectColdInodesByAtimePercentRequest) (*CollectColdInodesResponse, error)
	RebuildInodeTable(ctx context.Context, req *RebuildInodeTableRequest) (*RebuildInodeTableResponse, error)
}

type ClusterServer interface {
	RegisterNode(ctx context.Context, req *RegisterNodeRequest) (*RegisterNodeResponse, error)
	Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error)
	Write(ctx context.Context, req *WriteChunkRequest) (*WriteChunkResponse, error)
	Read(ctx context.Context, req *ReadChunkRequest) (*ReadChunkResponse, error)
	Truncate(ctx context.Context, req *TruncateChunkRequest) (*TruncateChunkResponse, error)
	UnmountDisk(ctx context.Context, req *UnmountDiskRequest) (*UnmountDiskResponse, error)
}

type NodeServer interface {
	Write(ctx context.Context, req *WriteChunkRequest) (*WriteChunkResponse, error)
	Read(ctx context.Context, req *ReadChunkRequest) (*ReadChunkResponse, error)
	Truncate(ctx context.Context, req *TruncateChunkRequest) (*TruncateChunkResponse, error)
	UnmountDisk(ctx context.Context, req *UnmountDiskRequest) (*UnmountDiskResponse, error)
}

type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

func unary(service, method string, newReq func() interface{}, invoke func(srv interface{}, ctx context.Context, req interface{}) (interface{}, error)) methodHandler {
	fullMethod := "/" + service + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return invoke(srv, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, r interface{}) (interface{}, error) {
			return invoke(srv, ctx, r)
		})
	}
}

var MDSServiceDesc = grpc.ServiceDesc{
	ServiceName: MDSServiceName,
	HandlerType: (*MDSServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateRoot", Handler: unary(MDSServiceName, "CreateRoot",
			func() interface{} { return new(CreateRootRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).CreateRoot(ctx, r.(*CreateRootRequest))
			})},
		{MethodName: "Mkdir", Handler: unary(MDSServiceName, "Mkdir",
			func() interface{} { return new(MkdirRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).Mkdir(ctx, r.(*MkdirRequest))
			})},
		{MethodName: "Rmdir", Handler: unary(MDSServiceName, "Rmdir",
			func() interface{} { return new(RmdirRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).Rmdir(ctx, r.(*RmdirRequest))
			})},
		{MethodName: "CreateFile", Handler: unary(MDSServiceName, "CreateFile",
			func() interface{} { return new(CreateFileRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).CreateFile(ctx, r.(*CreateFileRequest))
			})},
		{MethodName: "RemoveFile", Handler: unary(MDSServiceName, "RemoveFile",
			func() interface{} { return new(RemoveFileRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).RemoveFile(ctx, r.(*RemoveFileRequest))
			})},
		{MethodName: "TruncateFile", Handler: unary(MDSServiceName, "TruncateFile",
			func() interface{} { return new(TruncateFileRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).TruncateFile(ctx, r.(*TruncateFileRequest))
			})},
		{MethodName: "UpdateFileSize", Handler: unary(MDSServiceName, "UpdateFileSize",
			func() interface{} { return new(UpdateFileSizeRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).UpdateFileSize(ctx, r.(*UpdateFileSizeRequest))
			})},
		{MethodName: "Ls", Handler: unary(MDSServiceName, "Ls",
			func() interface{} { return new(LsRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).Ls(ctx, r.(*LsRequest))
			})},
		{MethodName: "LookupIno", Handler: unary(MDSServiceName, "LookupIno",
			func() interface{} { return new(LookupInoRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).LookupIno(ctx, r.(*LookupInoRequest))
			})},
		{MethodName: "FindInode", Handler: unary(MDSServiceName, "FindInode",
			func() interface{} { return new(FindInodeRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).FindInode(ctx, r.(*FindInodeRequest))
			})},
		{MethodName: "RegisterNode", Handler: unary(MDSServiceName, "RegisterNode",
			func() interface{} { return new(MdsRegisterNodeRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).RegisterNode(ctx, r.(*MdsRegisterNodeRequest))
			})},
		{MethodName: "RegisterVolume", Handler: unary(MDSServiceName, "RegisterVolume",
			func() interface{} { return new(RegisterVolumeRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).RegisterVolume(ctx, r.(*RegisterVolumeRequest))
			})},
		{MethodName: "WriteInode", Handler: unary(MDSServiceName, "WriteInode",
			func() interface{} { return new(WriteInodeRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).WriteInode(ctx, r.(*WriteInodeRequest))
			})},
		{MethodName: "CollectColdInodes", Handler: unary(MDSServiceName, "CollectColdInodes",
			func() interface{} { return new(CollectColdInodesRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).CollectColdInodes(ctx, r.(*CollectColdInodesRequest))
			})},
		{MethodName: "CollectColdInodesBitmap", Handler: unary(MDSServiceName, "CollectColdInodesBitmap",
			func() interface{} { return new(CollectColdInodesBitmapRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).CollectColdInodesBitmap(ctx, r.(*CollectColdInodesBitmapRequest))
			})},
		{MethodName: "CollectColdInodesByAtimePercent", Handler: unary(MDSServiceName, "CollectColdInodesByAtimePercent",
			func() interface{} { return new(CollectColdInodesByAtimePercentRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).CollectColdInodesByAtimePercent(ctx, r.(*CollectColdInodesByAtimePercentRequest))
			})},
		{MethodName: "RebuildInodeTable", Handler: unary(MDSServiceName, "RebuildInodeTable",
			func() interface{} { return new(RebuildInodeTableRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(MDSServer).RebuildInodeTable(ctx, r.(*RebuildInodeTableRequest))
			})},
	},
	Streams: []grpc.StreamDesc{},
}

var ClusterServiceDesc = grpc.ServiceDesc{
	ServiceName: ClusterServiceName,
	HandlerType: (*ClusterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterNode", Handler: unary(ClusterServiceName, "RegisterNode",
			func() interface{} { return new(RegisterNodeRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(ClusterServer).RegisterNode(ctx, r.(*RegisterNodeRequest))
			})},
		{MethodName: "Heartbeat", Handler: unary(ClusterServiceName, "Heartbeat",
			func() interface{} { return new(HeartbeatRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(ClusterServer).Heartbeat(ctx, r.(*HeartbeatRequest))
			})},
		{MethodName: "Write", Handler: unary(ClusterServiceName, "Write",
			func() interface{} { return new(WriteChunkRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(ClusterServer).Write(ctx, r.(*WriteChunkRequest))
			})},
		{MethodName: "Read", Handler: unary(ClusterServiceName, "Read",
			func() interface{} { return new(ReadChunkRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(ClusterServer).Read(ctx, r.(*ReadChunkRequest))
			})},
		{MethodName: "Truncate", Handler: unary(ClusterServiceName, "Truncate",
			func() interface{} { return new(TruncateChunkRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(ClusterServer).Truncate(ctx, r.(*TruncateChunkRequest))
			})},
		{MethodName: "UnmountDisk", Handler: unary(ClusterServiceName, "UnmountDisk",
			func() interface{} { return new(UnmountDiskRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(ClusterServer).UnmountDisk(ctx, r.(*UnmountDiskRequest))
			})},
	},
	Streams: []grpc.StreamDesc{},
}

var NodeServiceDesc = grpc.ServiceDesc{
	ServiceName: NodeServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Write", Handler: unary(NodeServiceName, "Write",
			func() interface{} { return new(WriteChunkRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(NodeServer).Write(ctx, r.(*WriteChunkRequest))
			})},
		{MethodName: "Read", Handler: unary(NodeServiceName, "Read",
			func() interface{} { return new(ReadChunkRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(NodeServer).Read(ctx, r.(*ReadChunkRequest))
			})},
		{MethodName: "Truncate", Handler: unary(NodeServiceName, "Truncate",
			func() interface{} { return new(TruncateChunkRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(NodeServer).Truncate(ctx, r.(*TruncateChunkRequest))
			})},
		{MethodName: "UnmountDisk", Handler: unary(NodeServiceName, "UnmountDisk",
			func() interface{} { return new(UnmountDiskRequest) },
			func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
				return s.(NodeServer).UnmountDisk(ctx, r.(*UnmountDiskRequest))
			})},
	},
	Streams: []grpc.StreamDesc{},
}
