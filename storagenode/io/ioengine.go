package io

import (
	"context"
	"os"
)

type Config struct {
	MaxOpenFiles int  `json:"max_open_files"`
	SyncOnWrite  bool `json:"sync_on_write"`
	FsyncOnWrite bool `json:"fsync_on_write"`
}

// Engine performs positional file I/O through the fd cache.
type Engine struct {
	cfg Config
	fds *FdCache
}

func NewEngine(cfg Config) (*Engine, error) {
	fds, err := NewFdCache(cfg.MaxOpenFiles, cfg.SyncOnWrite)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, fds: fds}, nil
}

func (e *Engine) Fds() *FdCache {
	return e.fds
}

func (e *Engine) Write(ctx context.Context, path string, flags int, mode os.FileMode, offset uint64, data []byte) (int, error) {
	f, err := e.fds.Acquire(ctx, path, flags, true, mode)
	if err != nil {
		return 0, err
	}
	defer e.fds.Release(ctx, path, flags)

	n, err := f.WriteAt(data, int64(offset))
	if err != nil {
		return n, err
	}
	if e.cfg.FsyncOnWrite {
		if err = f.Sync(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (e *Engine) Read(ctx context.Context, path string, flags int, offset uint64, buf []byte) (int, error) {
	f, err := e.fds.Acquire(ctx, path, flags, false, 0)
	if err != nil {
		return 0, err
	}
	defer e.fds.Release(ctx, path, flags)

	return f.ReadAt(buf, int64(offset))
}

func (e *Engine) Truncate(ctx context.Context, path string, flags int, mode os.FileMode, size uint64) error {
	f, err := e.fds.Acquire(ctx, path, flags, true, mode)
	if err != nil {
		return err
	}
	defer e.fds.Release(ctx, path, flags)

	return f.Truncate(int64(size))
}

func (e *Engine) Close() {
	e.fds.Close()
}
