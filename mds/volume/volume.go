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

package volume

import (
	"context"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
)

// Allocator binds a volume and block segments to a new file inode and
// releases them when the file is removed or truncated.
type Allocator interface {
	AllocateForInode(ctx context.Context, inode *proto.Inode) error
	FreeBlocksForInode(ctx context.Context, inode *proto.Inode) error
}

type volumeInfo struct {
	id          string
	class       proto.NodeClass
	totalBlocks uint64
	blockSize   uint32

	nextBlock uint64
	freeList  []proto.BlockSegment
	usedBlock uint64
}

func (v *volumeInfo) freeBlocks() uint64 {
	return v.totalBlocks - v.usedBlock
}

// Manager is a first-fit block-segment allocator over registered volumes.
type Manager struct {
	lock    sync.Mutex
	volumes map[string]*volumeInfo
	order   []string
}

func NewManager() *Manager {
	return &Manager{volumes: make(map[string]*volumeInfo)}
}

func (m *Manager) RegisterVolume(ctx context.Context, id string, class proto.NodeClass, totalBlocks uint64, blockSize uint32) error {
	span := trace.SpanFromContextSafe(ctx)
	if id == "" || totalBlocks == 0 || blockSize == 0 || !class.Valid() {
		return errors.ErrInvalidArgument
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.volumes[id]; ok {
		return errors.ErrAlreadyExists
	}
	m.volumes[id] = &volumeInfo{id: id, class: class, totalBlocks: totalBlocks, blockSize: blockSize}
	m.order = append(m.order, id)
	span.Infof("volume[%s] registered, class %d, blocks %d x %d", id, class, totalBlocks, blockSize)
	return nil
}

// AllocateForInode picks the first registered volume matching the inode
// class with enough free blocks, stamps the volume id and reserves a
// segment run covering the inode's size.
func (m *Manager) AllocateForInode(ctx context.Context, inode *proto.Inode) error {
	span := trace.SpanFromContextSafe(ctx)

	m.lock.Lock()
	defer m.lock.Unlock()

	size := inode.SizeBytes()
	for _, id := range m.order {
		v := m.volumes[id]
		if v.class != inode.Class {
			continue
		}
		need := (size + uint64(v.blockSize) - 1) / uint64(v.blockSize)
		if need > v.freeBlocks() {
			continue
		}
		inode.VolumeID = v.id
		if need == 0 {
			return nil
		}
		segs, err := v.reserve(need)
		if err != nil {
			span.Warnf("volume[%s] reserve %d blocks failed: %s", v.id, need, err)
			continue
		}
		logical := uint64(0)
		for i := range segs {
			segs[i].LogicalStart = logical
			logical += segs[i].BlockCount * uint64(v.blockSize)
		}
		inode.Segments = append(inode.Segments[:0], segs...)
		return nil
	}
	return errors.ErrNoVolumeAvailable
}

func (m *Manager) FreeBlocksForInode(ctx context.Context, inode *proto.Inode) error {
	if inode.VolumeID == "" || len(inode.Segments) == 0 {
		return nil
	}
	m.lock.Lock()
	defer m.lock.Unlock()

	v, ok := m.volumes[inode.VolumeID]
	if !ok {
		return errors.ErrNotFound
	}
	for _, seg := range inode.Segments {
		v.freeList = append(v.freeList, seg)
		v.usedBlock -= seg.BlockCount
	}
	return nil
}

func (v *volumeInfo) reserve(need uint64) ([]proto.BlockSegment, error) {
	var segs []proto.BlockSegment
	remaining := need

	// reuse freed runs first
	for remaining > 0 && len(v.freeList) > 0 {
		run := v.freeList[len(v.freeList)-1]
		v.freeList = v.freeList[:len(v.freeList)-1]
		take := run.BlockCount
		if take > remaining {
			v.freeList = append(v.freeList, proto.BlockSegment{
				StartBlock: run.StartBlock + remaining,
				BlockCount: run.BlockCount - remaining,
			})
			take = remaining
		}
		segs = append(segs, proto.BlockSegment{StartBlock: run.StartBlock, BlockCount: take})
		remaining -= take
	}
	if remaining > 0 {
		if v.nextBlock+remaining > v.totalBlocks {
			for _, seg := range segs {
				v.freeList = append(v.freeList, seg)
			}
			return nil, errors.ErrNoVolumeAvailable
		}
		segs = append(segs, proto.BlockSegment{StartBlock: v.nextBlock, BlockCount: remaining})
		v.nextBlock += remaining
		remaining = 0
	}
	v.usedBlock += need
	return segs, nil
}
