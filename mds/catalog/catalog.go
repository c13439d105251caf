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

package catalog

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/mds/store"
	"github.com/cubefs/chunkfs/mds/volume"
	"github.com/cubefs/chunkfs/proto"
)

// HandleObserver is notified synchronously when an inode is detached by
// remove or truncate so open handles can be force-closed.
type HandleObserver interface {
	OnInodeDetached(ino uint64)
}

type Catalog interface {
	CreateRoot(ctx context.Context) (uint64, error)
	Mkdir(ctx context.Context, dirPath string, mode uint16) (uint64, error)
	Rmdir(ctx context.Context, dirPath string) error
	CreateFile(ctx context.Context, filePath string, mode uint16) (uint64, error)
	RemoveFile(ctx context.Context, filePath string) ([]uint64, error)
	TruncateFile(ctx context.Context, filePath string) (*proto.Inode, error)
	UpdateFileSize(ctx context.Context, ino uint64, sizeBytes uint64) error
	Ls(ctx context.Context, dirPath string) ([]proto.Dirent, error)
	LookupIno(ctx context.Context, p string) uint64
	FindInodeByPath(ctx context.Context, p string) (*proto.Inode, error)
	ReadInode(ctx context.Context, ino uint64) (*proto.Inode, error)
	WriteInode(ctx context.Context, ino uint64, blob []byte) error
	RebuildInodeTable(ctx context.Context) (uint64, error)

	RegisterNode(ctx context.Context, nodeID string, class proto.NodeClass, capacityBytes uint64) (uint16, error)
	NodeIDByIndex(index uint16) string
	RegisterVolume(ctx context.Context, volumeID string, class proto.NodeClass, totalBlocks uint64, blockSize uint32) error

	CollectColdInodes(ctx context.Context, maxCandidates uint32, minAgeWindows uint32) ([]uint64, error)
	CollectColdInodesByAtimePercent(ctx context.Context, percent float64) ([]uint64, error)
	CollectColdInodesBitmap(ctx context.Context, ageWindows uint32) ([]byte, uint64, error)

	SetHandleObserver(ob HandleObserver)
	Close()
}

type Config struct {
	NamespaceID string `json:"namespace_id"`

	Store   *store.Store   `json:"-"`
	Volumes *volume.Manager `json:"-"`
}

type catalog struct {
	nsID string

	store   *store.Store
	dirs    *dirStore
	paths   *pathKV
	locks   *dirLockTable
	volumes *volume.Manager
	nodes   *nodeTable

	tableLock sync.RWMutex
	table     map[string]uint64

	obLock   sync.RWMutex
	observer HandleObserver
}

func NewCatalog(ctx context.Context, cfg *Config) (Catalog, error) {
	nodes, err := newNodeTable(ctx, cfg.Store.KVStore())
	if err != nil {
		return nil, err
	}
	c := &catalog{
		nsID:    cfg.NamespaceID,
		store:   cfg.Store,
		dirs:    &dirStore{kvStore: cfg.Store.KVStore()},
		paths:   &pathKV{kvStore: cfg.Store.KVStore()},
		locks:   newDirLockTable(),
		volumes: cfg.Volumes,
		nodes:   nodes,
		table:   make(map[string]uint64),
	}
	return c, nil
}

func (c *catalog) SetHandleObserver(ob HandleObserver) {
	c.obLock.Lock()
	c.observer = ob
	c.obLock.Unlock()
}

func (c *catalog) notifyDetached(ino uint64) {
	c.obLock.RLock()
	ob := c.observer
	c.obLock.RUnlock()
	if ob != nil {
		ob.OnInodeDetached(ino)
	}
}

func (c *catalog) CreateRoot(ctx context.Context) (uint64, error) {
	span := trace.SpanFromContextSafe(ctx)

	if ino := c.LookupIno(ctx, "/"); ino != proto.InvalidIno {
		return ino, nil
	}

	ino, err := c.store.Allocator().Allocate()
	if err != nil {
		return 0, err
	}
	inode := c.newInode(ino, "/", proto.FileTypeDirectory, 0o755)
	if err = c.initDirPage(ctx, ino, ino); err != nil {
		c.store.Allocator().Free(ino)
		return 0, err
	}
	if err = c.store.Inodes().Write(ino, inode); err != nil {
		c.store.Allocator().Free(ino)
		return 0, err
	}
	c.bindPath(ctx, "/", ino)
	span.Infof("root created with ino %d", ino)
	return ino, nil
}

func (c *catalog) Mkdir(ctx context.Context, dirPath string, mode uint16) (uint64, error) {
	span := trace.SpanFromContextSafe(ctx)

	dirPath, parentPath, name, err := splitPath(dirPath)
	if err != nil {
		return 0, err
	}
	if c.LookupIno(ctx, dirPath) != proto.InvalidIno {
		return 0, errors.ErrAlreadyExists
	}
	parentIno, err := c.getIno(ctx, parentPath)
	if err != nil {
		span.Warnf("mkdir %s: parent missing", dirPath)
		return 0, errors.ErrNotFound
	}

	guard := c.locks.Lock(parentIno, LockExclusive)
	defer guard.Unlock()

	ino, err := c.store.Allocator().Allocate()
	if err != nil {
		return 0, err
	}
	rollback := func() { c.store.Allocator().Free(ino) }

	if err = c.initDirPage(ctx, ino, parentIno); err != nil {
		rollback()
		return 0, err
	}
	if err = c.dirs.Add(ctx, parentIno, proto.Dirent{Name: name, Ino: ino, Type: proto.FileTypeDirectory}); err != nil {
		rollback()
		if errors.Is(err, errors.ErrDuplicateEntry) {
			return 0, errors.ErrAlreadyExists
		}
		return 0, err
	}
	inode := c.newInode(ino, dirPath, proto.FileTypeDirectory, mode)
	if err = c.store.Inodes().Write(ino, inode); err != nil {
		c.dirs.Remove(ctx, parentIno, name)
		rollback()
		return 0, err
	}
	c.bindPath(ctx, dirPath, ino)
	return ino, nil
}

func (c *catalog) Rmdir(ctx context.Context, dirPath string) error {
	span := trace.SpanFromContextSafe(ctx)

	dirPath, parentPath, name, err := splitPath(dirPath)
	if err != nil {
		return err
	}
	ino, err := c.getIno(ctx, dirPath)
	if err != nil {
		return errors.ErrNotFound
	}
	parentIno, err := c.getIno(ctx, parentPath)
	if err != nil {
		return errors.ErrNotFound
	}

	guard := c.locks.LockMany([]LockRequest{
		{Ino: parentIno, Mode: LockExclusive},
		{Ino: ino, Mode: LockExclusive},
	})
	defer guard.Unlock()

	entries, err := c.dirs.Read(ctx, ino)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].Name != "." && entries[i].Name != ".." {
			span.Warnf("rmdir %s: directory not empty", dirPath)
			return errors.ErrDirectoryNotEmpty
		}
	}

	if err = c.dirs.Remove(ctx, parentIno, name); err != nil && !errors.Is(err, errors.ErrEntryNotFound) {
		return err
	}
	if err = c.dirs.Reset(ctx, ino); err != nil {
		return err
	}
	c.dirs.Delete(ctx, ino)
	c.unbindPath(ctx, dirPath)
	return c.store.Allocator().Free(ino)
}

func (c *catalog) CreateFile(ctx context.Context, filePath string, mode uint16) (uint64, error) {
	span := trace.SpanFromContextSafe(ctx)

	filePath, parentPath, name, err := splitPath(filePath)
	if err != nil {
		return 0, err
	}
	if c.LookupIno(ctx, filePath) != proto.InvalidIno {
		return 0, errors.ErrAlreadyExists
	}
	parentIno, err := c.getIno(ctx, parentPath)
	if err != nil {
		return 0, errors.ErrNotFound
	}

	guard := c.locks.Lock(parentIno, LockExclusive)
	defer guard.Unlock()

	ino, err := c.store.Allocator().Allocate()
	if err != nil {
		return 0, err
	}
	rollback := func() { c.store.Allocator().Free(ino) }

	inode := c.newInode(ino, filePath, proto.FileTypeRegular, mode)
	if c.volumes != nil {
		if err = c.volumes.AllocateForInode(ctx, inode); err != nil && !errors.Is(err, errors.ErrNoVolumeAvailable) {
			rollback()
			return 0, err
		}
		if err != nil {
			span.Warnf("create %s: no volume bound yet", filePath)
		}
	}
	if err = c.dirs.Add(ctx, parentIno, proto.Dirent{Name: name, Ino: ino, Type: proto.FileTypeRegular}); err != nil {
		rollback()
		if errors.Is(err, errors.ErrDuplicateEntry) {
			return 0, errors.ErrAlreadyExists
		}
		return 0, err
	}
	if err = c.store.Inodes().Write(ino, inode); err != nil {
		c.dirs.Remove(ctx, parentIno, name)
		rollback()
		return 0, err
	}
	c.bindPath(ctx, filePath, ino)
	return ino, nil
}

func (c *catalog) RemoveFile(ctx context.Context, filePath string) ([]uint64, error) {
	filePath, parentPath, name, err := splitPath(filePath)
	if err != nil {
		return nil, err
	}
	ino, err := c.getIno(ctx, filePath)
	if err != nil {
		return nil, errors.ErrNotFound
	}
	parentIno, err := c.getIno(ctx, parentPath)
	if err != nil {
		return nil, errors.ErrNotFound
	}

	guard := c.locks.Lock(parentIno, LockExclusive)
	defer guard.Unlock()

	inode, err := c.store.Inodes().Read(ino)
	if err != nil {
		return nil, err
	}
	if err = c.dirs.Remove(ctx, parentIno, name); err != nil && !errors.Is(err, errors.ErrEntryNotFound) {
		return nil, err
	}
	if c.volumes != nil {
		c.volumes.FreeBlocksForInode(ctx, inode)
	}
	c.notifyDetached(ino)
	c.unbindPath(ctx, filePath)
	if err = c.store.Allocator().Free(ino); err != nil {
		return nil, err
	}
	return []uint64{ino}, nil
}

func (c *catalog) TruncateFile(ctx context.Context, filePath string) (*proto.Inode, error) {
	filePath = path.Clean(filePath)
	ino, err := c.getIno(ctx, filePath)
	if err != nil {
		return nil, errors.ErrNotFound
	}
	inode, err := c.store.Inodes().Read(ino)
	if err != nil {
		return nil, err
	}
	if c.volumes != nil {
		c.volumes.FreeBlocksForInode(ctx, inode)
	}
	inode.ClearBlocks()
	c.notifyDetached(ino)
	if err = c.store.Inodes().Write(ino, inode); err != nil {
		return nil, err
	}
	return inode, nil
}

func (c *catalog) UpdateFileSize(ctx context.Context, ino uint64, sizeBytes uint64) error {
	if !c.store.Allocator().IsAllocated(ino) {
		return errors.ErrInoDoesNotExist
	}
	inode, err := c.store.Inodes().Read(ino)
	if err != nil {
		return err
	}
	inode.SetSizeBytes(sizeBytes)
	return c.store.Inodes().Write(ino, inode)
}

func (c *catalog) Ls(ctx context.Context, dirPath string) ([]proto.Dirent, error) {
	dirPath = path.Clean(dirPath)
	ino, err := c.getIno(ctx, dirPath)
	if err != nil {
		return nil, errors.ErrNotFound
	}

	guard := c.locks.Lock(ino, LockShared)
	defer guard.Unlock()

	inode, err := c.store.Inodes().Read(ino)
	if err != nil {
		return nil, err
	}
	if !inode.IsDirectory() {
		return nil, errors.ErrNotDirectory
	}
	entries, err := c.dirs.Read(ctx, ino)
	if err != nil {
		return nil, err
	}
	visible := entries[:0]
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		visible = append(visible, e)
	}
	return visible, nil
}

func (c *catalog) LookupIno(ctx context.Context, p string) uint64 {
	ino, err := c.getIno(ctx, path.Clean(p))
	if err != nil {
		return proto.InvalidIno
	}
	return ino
}

func (c *catalog) FindInodeByPath(ctx context.Context, p string) (*proto.Inode, error) {
	ino, err := c.getIno(ctx, path.Clean(p))
	if err != nil {
		return nil, errors.ErrNotFound
	}
	return c.store.Inodes().Read(ino)
}

func (c *catalog) ReadInode(ctx context.Context, ino uint64) (*proto.Inode, error) {
	if !c.store.Allocator().IsAllocated(ino) {
		return nil, errors.ErrInoDoesNotExist
	}
	return c.store.Inodes().Read(ino)
}

func (c *catalog) WriteInode(ctx context.Context, ino uint64, blob []byte) error {
	if !c.store.Allocator().IsAllocated(ino) {
		return errors.ErrInoDoesNotExist
	}
	inode := &proto.Inode{}
	if err := inode.Unmarshal(blob); err != nil {
		return err
	}
	if inode.Ino != ino {
		return errors.ErrInvalidArgument
	}
	return c.store.Inodes().Write(ino, inode)
}

// RebuildInodeTable re-derives the path index from the authoritative
// inode slots. Stored filenames carry the full absolute path, so one scan
// repairs both the in-memory table and the persistent index.
func (c *catalog) RebuildInodeTable(ctx context.Context) (uint64, error) {
	span := trace.SpanFromContextSafe(ctx)

	count := uint64(0)
	c.store.Allocator().Walk(func(ino uint64) bool {
		inode, err := c.store.Inodes().Read(ino)
		if err != nil {
			span.Warnf("rebuild: read ino %d failed: %s", ino, err)
			return true
		}
		if inode.Name == "" {
			return true
		}
		c.bindPath(ctx, inode.Name, ino)
		count++
		return true
	})
	span.Infof("inode table rebuilt with %d entries", count)
	return count, nil
}

func (c *catalog) RegisterVolume(ctx context.Context, volumeID string, class proto.NodeClass, totalBlocks uint64, blockSize uint32) error {
	if c.volumes == nil {
		return errors.ErrInvalidArgument
	}
	return c.volumes.RegisterVolume(ctx, volumeID, class, totalBlocks, blockSize)
}

func (c *catalog) Close() {}

func (c *catalog) newInode(ino uint64, fullPath string, ft proto.FileType, mode uint16) *proto.Inode {
	now := proto.NewTimestamp(time.Now())
	inode := &proto.Inode{
		Ino:      ino,
		FileType: ft,
		Perm:     mode & 0xfff,
		Name:     fullPath,
		FMTime:   now,
		FATime:   now,
		IMTime:   now,
		FCTime:   now,
	}
	inode.SetNamespaceID(c.nsID)
	return inode
}

func (c *catalog) initDirPage(ctx context.Context, ino, parentIno uint64) error {
	if err := c.dirs.Reset(ctx, ino); err != nil {
		return err
	}
	if err := c.dirs.Add(ctx, ino, proto.Dirent{Name: ".", Ino: ino, Type: proto.FileTypeDirectory}); err != nil {
		return err
	}
	return c.dirs.Add(ctx, ino, proto.Dirent{Name: "..", Ino: parentIno, Type: proto.FileTypeDirectory})
}

func (c *catalog) getIno(ctx context.Context, p string) (uint64, error) {
	c.tableLock.RLock()
	ino, ok := c.table[p]
	c.tableLock.RUnlock()
	if ok {
		return ino, nil
	}
	return c.paths.Get(ctx, p)
}

func (c *catalog) bindPath(ctx context.Context, p string, ino uint64) {
	c.tableLock.Lock()
	c.table[p] = ino
	c.tableLock.Unlock()
	if err := c.paths.Put(ctx, p, ino); err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("path index put %s failed: %s", p, err)
	}
}

func (c *catalog) unbindPath(ctx context.Context, p string) {
	c.tableLock.Lock()
	delete(c.table, p)
	c.tableLock.Unlock()
	if err := c.paths.Delete(ctx, p); err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("path index delete %s failed: %s", p, err)
	}
}

func splitPath(p string) (cleaned, parent, name string, err error) {
	if len(p) == 0 || p[0] != '/' {
		return "", "", "", errors.ErrInvalidArgument
	}
	cleaned = path.Clean(p)
	if cleaned == "/" {
		return "", "", "", errors.ErrInvalidArgument
	}
	parent, name = path.Split(cleaned)
	parent = path.Clean(parent)
	if len(name) > proto.MaxNameLen {
		return "", "", "", errors.ErrInvalidArgument
	}
	return cleaned, parent, name, nil
}
