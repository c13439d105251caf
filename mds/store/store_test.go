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

package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
	"github.com/cubefs/chunkfs/util"
)

func tempDir(t *testing.T) string {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(path) })
	return path
}

func TestInodeStoreReadWrite(t *testing.T) {
	dir := tempDir(t)
	s, err := NewInodeStore(dir+"/inode.dat", 8)
	require.NoError(t, err)
	defer s.Close()

	inode := &proto.Inode{Ino: 3, FileType: proto.FileTypeRegular, Name: "/f.dat"}
	require.NoError(t, s.Write(3, inode))

	got, err := s.Read(3)
	require.NoError(t, err)
	require.Equal(t, inode.Ino, got.Ino)
	require.Equal(t, inode.Name, got.Name)

	_, err = s.Read(8)
	require.ErrorIs(t, err, errors.ErrInoDoesNotExist)
	require.ErrorIs(t, s.Write(8, inode), errors.ErrInoDoesNotExist)
}

func TestInodeStoreExpand(t *testing.T) {
	dir := tempDir(t)
	s, err := NewInodeStore(dir+"/inode.dat", 4)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(4), s.Slots())
	require.NoError(t, s.Expand(16))
	require.Equal(t, uint64(16), s.Slots())

	// shrink requests are ignored
	require.NoError(t, s.Expand(2))
	require.Equal(t, uint64(16), s.Slots())

	require.NoError(t, s.Write(15, &proto.Inode{Ino: 15}))
}

func TestInodeStoreReopenKeepsSize(t *testing.T) {
	dir := tempDir(t)
	s, err := NewInodeStore(dir+"/inode.dat", 4)
	require.NoError(t, err)
	require.NoError(t, s.Expand(32))
	require.NoError(t, s.Close())

	s, err = NewInodeStore(dir+"/inode.dat", 4)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, uint64(32), s.Slots())
}

func TestAllocatorAllocateFree(t *testing.T) {
	dir := tempDir(t)
	s, err := NewInodeStore(dir+"/inode.dat", 4)
	require.NoError(t, err)
	defer s.Close()
	a, err := NewInodeAllocator(dir+"/inode.bmp", s, 4)
	require.NoError(t, err)
	defer a.Close()

	first, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint64(0), first)
	require.True(t, a.IsAllocated(first))

	second, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint64(1), second)

	require.NoError(t, a.Free(first))
	require.False(t, a.IsAllocated(first))

	// freed slot is reused before higher slots
	again, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, first, again)

	require.ErrorIs(t, a.Free(100), errors.ErrInoDoesNotExist)
}

func TestAllocatorGrowth(t *testing.T) {
	dir := tempDir(t)
	s, err := NewInodeStore(dir+"/inode.dat", 2)
	require.NoError(t, err)
	defer s.Close()
	a, err := NewInodeAllocator(dir+"/inode.bmp", s, 8)
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 2; i++ {
		_, err = a.Allocate()
		require.NoError(t, err)
	}
	require.Equal(t, uint64(2), a.TotalInodes())

	ino, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint64(2), ino)
	require.Equal(t, uint64(10), a.TotalInodes())
	require.Equal(t, uint64(10), s.Slots())
}

func TestAllocatorReload(t *testing.T) {
	dir := tempDir(t)
	s, err := NewInodeStore(dir+"/inode.dat", 8)
	require.NoError(t, err)
	a, err := NewInodeAllocator(dir+"/inode.bmp", s, 8)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = a.Allocate()
		require.NoError(t, err)
	}
	require.NoError(t, a.Free(1))
	require.NoError(t, a.Close())
	require.NoError(t, s.Close())

	s, err = NewInodeStore(dir+"/inode.dat", 8)
	require.NoError(t, err)
	defer s.Close()
	a, err = NewInodeAllocator(dir+"/inode.bmp", s, 8)
	require.NoError(t, err)
	defer a.Close()

	require.True(t, a.IsAllocated(0))
	require.False(t, a.IsAllocated(1))
	require.True(t, a.IsAllocated(2))

	ino, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint64(1), ino)
}

func TestAllocatorWalk(t *testing.T) {
	dir := tempDir(t)
	s, err := NewInodeStore(dir+"/inode.dat", 16)
	require.NoError(t, err)
	defer s.Close()
	a, err := NewInodeAllocator(dir+"/inode.bmp", s, 8)
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 5; i++ {
		_, err = a.Allocate()
		require.NoError(t, err)
	}
	require.NoError(t, a.Free(2))

	var visited []uint64
	a.Walk(func(ino uint64) bool {
		visited = append(visited, ino)
		return true
	})
	require.Equal(t, []uint64{0, 1, 3, 4}, visited)

	visited = visited[:0]
	a.Walk(func(ino uint64) bool {
		visited = append(visited, ino)
		return len(visited) < 2
	})
	require.Len(t, visited, 2)
}

func TestStoreLock(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()

	s, err := NewStore(ctx, &Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	_, err = NewStore(ctx, &Config{Path: dir})
	require.ErrorIs(t, err, errors.ErrStoreLocked)
}
