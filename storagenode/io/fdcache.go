package io

import (
	"context"
	"os"
	"strconv"
	"sync"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxOpenFiles = 128

// hardCacheSlots bounds the lru list itself; the soft cap is enforced by
// evict and may be exceeded while every entry is referenced.
const hardCacheSlots = 4096

type fdEntry struct {
	file     *os.File
	refCount int
}

// FdCache hands out reference-counted file descriptors keyed by path and
// normalized open flags. Entries past the soft cap are closed on release
// once nobody references them.
type FdCache struct {
	lock        sync.Mutex
	entries     *lru.Cache[string, *fdEntry]
	maxOpen     int
	syncOnWrite bool
}

func NewFdCache(maxOpenFiles int, syncOnWrite bool) (*FdCache, error) {
	if maxOpenFiles <= 0 {
		maxOpenFiles = defaultMaxOpenFiles
	}
	entries, err := lru.New[string, *fdEntry](hardCacheSlots)
	if err != nil {
		return nil, err
	}
	return &FdCache{
		entries:     entries,
		maxOpen:     maxOpenFiles,
		syncOnWrite: syncOnWrite,
	}, nil
}

func cacheKey(path string, flags int) string {
	return path + "|" + strconv.Itoa(flags&^os.O_CREATE)
}

func writable(flags int) bool {
	return flags&(os.O_WRONLY|os.O_RDWR) != 0
}

// Acquire returns an open file for the path, opening it on first use.
// Callers must pair every Acquire with a Release.
func (c *FdCache) Acquire(ctx context.Context, path string, flags int, createIfMissing bool, mode os.FileMode) (*os.File, error) {
	key := cacheKey(path, flags)

	c.lock.Lock()
	if e, ok := c.entries.Get(key); ok {
		e.refCount++
		c.lock.Unlock()
		return e.file, nil
	}
	c.lock.Unlock()

	openFlags := flags
	if createIfMissing {
		openFlags |= os.O_CREATE
	}
	if c.syncOnWrite && writable(flags) {
		openFlags |= syscall.O_DSYNC
	}
	f, err := os.OpenFile(path, openFlags, mode)
	if err != nil {
		return nil, err
	}

	c.lock.Lock()
	if e, ok := c.entries.Get(key); ok {
		e.refCount++
		c.lock.Unlock()
		f.Close()
		return e.file, nil
	}
	c.entries.Add(key, &fdEntry{file: f, refCount: 1})
	c.lock.Unlock()
	return f, nil
}

func (c *FdCache) Release(ctx context.Context, path string, flags int) {
	key := cacheKey(path, flags)

	c.lock.Lock()
	if e, ok := c.entries.Peek(key); ok && e.refCount > 0 {
		e.refCount--
	}
	c.evict(ctx)
	c.lock.Unlock()
}

// evict walks oldest-first and closes unreferenced entries until the
// cache fits the soft cap. Caller holds the lock.
func (c *FdCache) evict(ctx context.Context) {
	if c.entries.Len() <= c.maxOpen {
		return
	}
	span := trace.SpanFromContextSafe(ctx)
	for _, key := range c.entries.Keys() {
		if c.entries.Len() <= c.maxOpen {
			return
		}
		e, ok := c.entries.Peek(key)
		if !ok || e.refCount > 0 {
			continue
		}
		c.entries.Remove(key)
		if err := e.file.Close(); err != nil {
			span.Warnf("close %s failed: %s", key, err)
		}
	}
}

func (c *FdCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.entries.Len()
}

func (c *FdCache) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok {
			e.file.Close()
		}
		c.entries.Remove(key)
	}
}
