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

package service

import (
	"context"
	"hash/crc32"
	"io"
	"os"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
	nodeio "github.com/cubefs/chunkfs/storagenode/io"
	"github.com/cubefs/chunkfs/storagenode/meta"
	"github.com/cubefs/chunkfs/util"
	"github.com/cubefs/chunkfs/util/limiter"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const (
	defaultWriteFlags = os.O_WRONLY | os.O_CREATE
	defaultFileMode   = os.FileMode(0o644)
)

// ChunkService serves chunk reads, writes and truncates against the
// local data roots. Concurrency and bandwidth are bounded by the
// configured limiter.
type ChunkService struct {
	manifest *meta.ManifestLog
	engine   *nodeio.Engine
	disks    *nodeio.DiskManager
	lim      limiter.Limiter
}

func NewChunkService(manifest *meta.ManifestLog, engine *nodeio.Engine, disks *nodeio.DiskManager, limits limiter.LimitConfig) *ChunkService {
	return &ChunkService{
		manifest: manifest,
		engine:   engine,
		disks:    disks,
		lim:      limiter.NewLimiter(limits),
	}
}

func (s *ChunkService) Limits() limiter.Status {
	return s.lim.Status()
}

func normalizeWriteFlags(flags uint32) int {
	if flags == 0 {
		return defaultWriteFlags
	}
	return int(flags)
}

func normalizeReadFlags(flags uint32) int {
	f := int(flags) &^ (os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_EXCL)
	return f | os.O_RDONLY
}

func (s *ChunkService) Write(ctx context.Context, req *proto.WriteChunkRequest) (*proto.WriteChunkResponse, error) {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.WriteChunkResponse{}

	if !s.disks.Ready() {
		resp.Status.Set(proto.StatusIoError, "disks not ready")
		return resp, nil
	}
	if err := s.lim.AcquireWrite(); err != nil {
		resp.Status.Set(proto.StatusIoError, "node busy")
		return resp, nil
	}
	defer s.lim.ReleaseWrite()
	if err := s.lim.Writer(ctx, io.Discard).WaitN(len(req.Data)); err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	if req.Checksum != 0 {
		if crc32.Checksum(req.Data, castagnoli) != req.Checksum {
			resp.Status.Set(proto.StatusInvalidArgument, "payload checksum mismatch")
			return resp, nil
		}
	}

	path, err := s.manifest.Alloc(ctx, req.ChunkID)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}

	mode := defaultFileMode
	if req.Mode != 0 {
		mode = os.FileMode(req.Mode)
	}
	n, err := s.engine.Write(ctx, path, normalizeWriteFlags(req.Flags), mode, req.Offset, req.Data)
	if err != nil {
		span.Errorf("write chunk %d at %d failed: %s", req.ChunkID, req.Offset, err)
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.BytesWritten = uint64(n)
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (s *ChunkService) Read(ctx context.Context, req *proto.ReadChunkRequest) (*proto.ReadChunkResponse, error) {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.ReadChunkResponse{}

	if !s.disks.Ready() {
		resp.Status.Set(proto.StatusIoError, "disks not ready")
		return resp, nil
	}
	path := s.manifest.Get(req.ChunkID)
	if path == "" {
		resp.Status.Set(proto.StatusNodeNotFound, "chunk not found")
		return resp, nil
	}
	if err := s.lim.AcquireRead(); err != nil {
		resp.Status.Set(proto.StatusIoError, "node busy")
		return resp, nil
	}
	defer s.lim.ReleaseRead()
	if err := s.lim.Reader(ctx, nil).WaitN(int(req.Length)); err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}

	buf := util.GetBuffer(int(req.Length))
	defer util.PutBuffer(buf)

	n, err := s.engine.Read(ctx, path, normalizeReadFlags(req.Flags), req.Offset, buf)
	if err != nil && err != io.EOF && !errors.Is(err, io.ErrUnexpectedEOF) {
		span.Errorf("read chunk %d at %d failed: %s", req.ChunkID, req.Offset, err)
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	payload := make([]byte, n)
	copy(payload, buf[:n])
	resp.Data = payload
	resp.BytesRead = uint64(n)
	resp.Checksum = crc32.Checksum(payload, castagnoli)
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (s *ChunkService) Truncate(ctx context.Context, req *proto.TruncateChunkRequest) (*proto.TruncateChunkResponse, error) {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.TruncateChunkResponse{}

	if !s.disks.Ready() {
		resp.Status.Set(proto.StatusIoError, "disks not ready")
		return resp, nil
	}
	path, err := s.manifest.Alloc(ctx, req.ChunkID)
	if err != nil {
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	if err = s.engine.Truncate(ctx, path, defaultWriteFlags, defaultFileMode, req.Size); err != nil {
		span.Errorf("truncate chunk %d to %d failed: %s", req.ChunkID, req.Size, err)
		resp.Status = errors.StatusFromError(err)
		return resp, nil
	}
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (s *ChunkService) UnmountDisk(ctx context.Context, req *proto.UnmountDiskRequest) (*proto.UnmountDiskResponse, error) {
	resp := &proto.UnmountDiskResponse{}
	if req.MountPoint == "" {
		resp.Status.Set(proto.StatusInvalidArgument, "missing mount_point")
		return resp, nil
	}
	if !s.disks.Unmount(req.MountPoint) {
		resp.Status.Set(proto.StatusNodeNotFound, "unknown mount point")
		return resp, nil
	}
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}
