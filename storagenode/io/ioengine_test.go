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

package io

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	e, err := NewEngine(Config{MaxOpenFiles: 8})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestEngineWriteRead(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunk_1")

	n, err := e.Write(ctx, path, os.O_RDWR, 0o644, 0, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = e.Read(ctx, path, os.O_RDONLY, 0, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("hello"), buf)
}

func TestEngineWriteAtOffset(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunk_1")

	_, err := e.Write(ctx, path, os.O_RDWR, 0o644, 10, []byte("tail"))
	require.NoError(t, err)

	// the hole before the write reads back as zeroes
	buf := make([]byte, 14)
	n, err := e.Read(ctx, path, os.O_RDONLY, 0, buf)
	require.NoError(t, err)
	require.Equal(t, 14, n)
	require.Equal(t, make([]byte, 10), buf[:10])
	require.Equal(t, []byte("tail"), buf[10:])
}

func TestEngineReadPastEOF(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunk_1")

	_, err := e.Write(ctx, path, os.O_RDWR, 0o644, 0, []byte("abc"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := e.Read(ctx, path, os.O_RDONLY, 0, buf)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 3, n)
}

func TestEngineReadMissing(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Read(context.Background(), filepath.Join(t.TempDir(), "absent"), os.O_RDONLY, 0, make([]byte, 1))
	require.True(t, os.IsNotExist(err))
}

func TestEngineTruncate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunk_1")

	_, err := e.Write(ctx, path, os.O_RDWR, 0o644, 0, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, e.Truncate(ctx, path, os.O_RDWR, 0o644, 4))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(4), fi.Size())

	// truncate also creates missing files
	fresh := filepath.Join(t.TempDir(), "chunk_2")
	require.NoError(t, e.Truncate(ctx, fresh, os.O_RDWR, 0o644, 0))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}

func TestDiskManager(t *testing.T) {
	mountA := filepath.Join(t.TempDir(), "data0")
	mountB := filepath.Join(t.TempDir(), "data1")

	m, err := NewDiskManager([]string{mountA, mountB})
	require.NoError(t, err)
	require.True(t, m.Ready())

	stats := m.Stats()
	require.Len(t, stats, 2)
	require.Equal(t, mountA, stats[0].MountPoint)
	require.NotZero(t, stats[0].TotalBytes)

	require.False(t, m.Unmount("/ghost"))
	require.True(t, m.Unmount(mountA))
	require.True(t, m.Ready())
	require.Len(t, m.Stats(), 1)

	require.True(t, m.Unmount(mountB))
	require.False(t, m.Ready())
}
