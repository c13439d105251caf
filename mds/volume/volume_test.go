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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
)

func TestRegisterVolume(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.RegisterVolume(ctx, "vol-1", proto.NodeClassSSD, 100, 4096))
	require.ErrorIs(t, m.RegisterVolume(ctx, "vol-1", proto.NodeClassSSD, 100, 4096), errors.ErrAlreadyExists)
	require.ErrorIs(t, m.RegisterVolume(ctx, "", proto.NodeClassSSD, 100, 4096), errors.ErrInvalidArgument)
	require.ErrorIs(t, m.RegisterVolume(ctx, "vol-2", proto.NodeClassSSD, 0, 4096), errors.ErrInvalidArgument)
	require.ErrorIs(t, m.RegisterVolume(ctx, "vol-3", proto.NodeClass(3), 100, 4096), errors.ErrInvalidArgument)
}

func TestAllocateClassMatch(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.RegisterVolume(ctx, "hdd-1", proto.NodeClassHDD, 100, 4096))
	require.NoError(t, m.RegisterVolume(ctx, "ssd-1", proto.NodeClassSSD, 100, 4096))

	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassSSD}
	inode.SetSizeBytes(8192)
	require.NoError(t, m.AllocateForInode(ctx, inode))
	require.Equal(t, "ssd-1", inode.VolumeID)
	require.Len(t, inode.Segments, 1)
	require.Equal(t, uint64(2), inode.Segments[0].BlockCount)
	require.Equal(t, uint64(0), inode.Segments[0].LogicalStart)
}

func TestAllocateZeroSize(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.RegisterVolume(ctx, "vol-1", proto.NodeClassSSD, 100, 4096))

	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassSSD}
	require.NoError(t, m.AllocateForInode(ctx, inode))
	require.Equal(t, "vol-1", inode.VolumeID)
	require.Empty(t, inode.Segments)
}

func TestAllocateNoVolume(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	inode := &proto.Inode{Ino: 1, Class: proto.NodeClassSSD}
	require.ErrorIs(t, m.AllocateForInode(ctx, inode), errors.ErrNoVolumeAvailable)

	// class mismatch counts as no volume
	require.NoError(t, m.RegisterVolume(ctx, "hdd-1", proto.NodeClassHDD, 100, 4096))
	inode.SetSizeBytes(4096)
	require.ErrorIs(t, m.AllocateForInode(ctx, inode), errors.ErrNoVolumeAvailable)
}

func TestFreeAndReuse(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.RegisterVolume(ctx, "vol-1", proto.NodeClassSSD, 4, 4096))

	first := &proto.Inode{Ino: 1, Class: proto.NodeClassSSD}
	first.SetSizeBytes(16384)
	require.NoError(t, m.AllocateForInode(ctx, first))
	require.Len(t, first.Segments, 1)

	// volume exhausted
	second := &proto.Inode{Ino: 2, Class: proto.NodeClassSSD}
	second.SetSizeBytes(4096)
	require.ErrorIs(t, m.AllocateForInode(ctx, second), errors.ErrNoVolumeAvailable)

	require.NoError(t, m.FreeBlocksForInode(ctx, first))

	// freed runs back the next allocation
	require.NoError(t, m.AllocateForInode(ctx, second))
	require.Equal(t, "vol-1", second.VolumeID)
	require.Len(t, second.Segments, 1)
	require.Equal(t, uint64(1), second.Segments[0].BlockCount)
}

func TestFreeUnknownVolume(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	inode := &proto.Inode{Ino: 1, VolumeID: "gone", Segments: []proto.BlockSegment{{StartBlock: 0, BlockCount: 1}}}
	require.ErrorIs(t, m.FreeBlocksForInode(ctx, inode), errors.ErrNotFound)

	// nothing reserved, nothing to do
	require.NoError(t, m.FreeBlocksForInode(ctx, &proto.Inode{Ino: 2}))
}
