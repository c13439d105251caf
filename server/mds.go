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

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/mds/catalog"
	"github.com/cubefs/chunkfs/mds/collector"
	"github.com/cubefs/chunkfs/mds/store"
	"github.com/cubefs/chunkfs/mds/volume"
	"github.com/cubefs/chunkfs/proto"
)

type MdsConfig struct {
	NamespaceID     string           `json:"namespace_id"`
	StoreConfig     store.Config     `json:"store_config"`
	CollectorConfig collector.Config `json:"collector_config"`
}

type MdsStats struct {
	Store       store.Stats `json:"store"`
	TotalInodes uint64      `json:"total_inodes"`
	Chunks      int         `json:"chunks,omitempty"`
}

// mdsServer owns the metadata tier: the slotted inode store, the block
// allocator over registered volumes, the namespace catalog and the cold
// inode collector feeding the batch directory.
type mdsServer struct {
	store     *store.Store
	volumes   *volume.Manager
	catalog   catalog.Catalog
	collector *collector.Collector
}

func newMdsServer(ctx context.Context, cfg *MdsConfig) (*mdsServer, error) {
	if cfg.StoreConfig.Path == "" {
		cfg.StoreConfig.Path = "./run/mds"
	}
	cfg.StoreConfig.KVOption.ColumnFamily = append(cfg.StoreConfig.KVOption.ColumnFamily, catalog.StoreColumns()...)
	st, err := store.NewStore(ctx, &cfg.StoreConfig)
	if err != nil {
		return nil, err
	}
	volumes := volume.NewManager()
	cat, err := catalog.NewCatalog(ctx, &catalog.Config{
		NamespaceID: cfg.NamespaceID,
		Store:       st,
		Volumes:     volumes,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	col, err := collector.NewCollector(cfg.CollectorConfig, cat)
	if err != nil {
		cat.Close()
		st.Close()
		return nil, err
	}
	return &mdsServer{store: st, volumes: volumes, catalog: cat, collector: col}, nil
}

func (m *mdsServer) start() {
	m.collector.Start()
}

func (m *mdsServer) close() {
	m.collector.Close()
	m.catalog.Close()
	m.store.Close()
}

func (m *mdsServer) stats() *MdsStats {
	st, _ := m.store.Stats()
	return &MdsStats{
		Store:       st,
		TotalInodes: m.store.Allocator().TotalInodes(),
	}
}

// mdsAPI adapts the catalog onto the rpc surface; every handler maps the
// catalog error onto the wire status instead of a transport error.
type mdsAPI struct {
	tier *mdsServer
}

func (a *mdsAPI) CreateRoot(ctx context.Context, req *proto.CreateRootRequest) (*proto.CreateRootResponse, error) {
	resp := &proto.CreateRootResponse{}
	ino, err := a.tier.catalog.CreateRoot(ctx)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Ino = ino
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) Mkdir(ctx context.Context, req *proto.MkdirRequest) (*proto.MkdirResponse, error) {
	resp := &proto.MkdirResponse{}
	ino, err := a.tier.catalog.Mkdir(ctx, req.Path, req.Mode)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Ino = ino
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) Rmdir(ctx context.Context, req *proto.RmdirRequest) (*proto.RmdirResponse, error) {
	resp := &proto.RmdirResponse{}
	resp.Status = errors.StatusFromError(a.tier.catalog.Rmdir(ctx, req.Path))
	return resp, nil
}

func (a *mdsAPI) CreateFile(ctx context.Context, req *proto.CreateFileRequest) (*proto.CreateFileResponse, error) {
	resp := &proto.CreateFileResponse{}
	ino, err := a.tier.catalog.CreateFile(ctx, req.Path, req.Mode)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Ino = ino
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) RemoveFile(ctx context.Context, req *proto.RemoveFileRequest) (*proto.RemoveFileResponse, error) {
	resp := &proto.RemoveFileResponse{}
	detached, err := a.tier.catalog.RemoveFile(ctx, req.Path)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.DetachedInodes = detached
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) TruncateFile(ctx context.Context, req *proto.TruncateFileRequest) (*proto.TruncateFileResponse, error) {
	resp := &proto.TruncateFileResponse{}
	inode, err := a.tier.catalog.TruncateFile(ctx, req.Path)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Inode = inode
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) UpdateFileSize(ctx context.Context, req *proto.UpdateFileSizeRequest) (*proto.UpdateFileSizeResponse, error) {
	resp := &proto.UpdateFileSizeResponse{}
	resp.Status = errors.StatusFromError(a.tier.catalog.UpdateFileSize(ctx, req.Ino, req.SizeBytes))
	return resp, nil
}

func (a *mdsAPI) Ls(ctx context.Context, req *proto.LsRequest) (*proto.LsResponse, error) {
	resp := &proto.LsResponse{}
	entries, err := a.tier.catalog.Ls(ctx, req.Path)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Entries = entries
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) LookupIno(ctx context.Context, req *proto.LookupInoRequest) (*proto.LookupInoResponse, error) {
	resp := &proto.LookupInoResponse{}
	ino := a.tier.catalog.LookupIno(ctx, req.Path)
	if ino == proto.InvalidIno {
		resp.Status.Set(proto.StatusNodeNotFound, "path not found")
		resp.Ino = proto.InvalidIno
		return resp, nil
	}
	resp.Ino = ino
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) FindInode(ctx context.Context, req *proto.FindInodeRequest) (*proto.FindInodeResponse, error) {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.FindInodeResponse{}
	inode, err := a.tier.catalog.FindInodeByPath(ctx, req.Path)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	blob, err := inode.Marshal()
	if err != nil {
		span.Errorf("marshal ino %d failed: %s", inode.Ino, err)
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.InodeBlob = blob
	resp.VolumeID = inode.VolumeID
	resp.NodeID = a.tier.catalog.NodeIDByIndex(inode.NodeIndex)
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) RegisterNode(ctx context.Context, req *proto.MdsRegisterNodeRequest) (*proto.MdsRegisterNodeResponse, error) {
	resp := &proto.MdsRegisterNodeResponse{}
	index, err := a.tier.catalog.RegisterNode(ctx, req.NodeID, req.Class, req.CapacityBytes)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.NodeIndex = index
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) RegisterVolume(ctx context.Context, req *proto.RegisterVolumeRequest) (*proto.RegisterVolumeResponse, error) {
	resp := &proto.RegisterVolumeResponse{}
	resp.Status = errors.StatusFromError(a.tier.catalog.RegisterVolume(ctx, req.VolumeID, req.Class, req.TotalBlocks, req.BlockSize))
	return resp, nil
}

func (a *mdsAPI) WriteInode(ctx context.Context, req *proto.WriteInodeRequest) (*proto.WriteInodeResponse, error) {
	resp := &proto.WriteInodeResponse{}
	resp.Status = errors.StatusFromError(a.tier.catalog.WriteInode(ctx, req.Ino, req.InodeBlob))
	return resp, nil
}

func (a *mdsAPI) CollectColdInodes(ctx context.Context, req *proto.CollectColdInodesRequest) (*proto.CollectColdInodesResponse, error) {
	resp := &proto.CollectColdInodesResponse{}
	inos, err := a.tier.catalog.CollectColdInodes(ctx, req.MaxCandidates, req.MinAgeWindows)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Inos = inos
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) CollectColdInodesBitmap(ctx context.Context, req *proto.CollectColdInodesBitmapRequest) (*proto.CollectColdInodesBitmapResponse, error) {
	resp := &proto.CollectColdInodesBitmapResponse{}
	bitmap, _, err := a.tier.catalog.CollectColdInodesBitmap(ctx, req.AgeWindows)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Bitmap = bitmap
	resp.TotalInodes = a.tier.store.Allocator().TotalInodes()
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) CollectColdInodesByAtimePercent(ctx context.Context, req *proto.CollectColdInodesByAtimePercentRequest) (*proto.CollectColdInodesResponse, error) {
	resp := &proto.CollectColdInodesResponse{}
	inos, err := a.tier.catalog.CollectColdInodesByAtimePercent(ctx, req.Percent)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Inos = inos
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (a *mdsAPI) RebuildInodeTable(ctx context.Context, req *proto.RebuildInodeTableRequest) (*proto.RebuildInodeTableResponse, error) {
	resp := &proto.RebuildInodeTableResponse{}
	rebuilt, err := a.tier.catalog.RebuildInodeTable(ctx)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Rebuilt = rebuilt
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}
