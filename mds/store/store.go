package store

import (
	"context"
	"os"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/errors"
)

type Config struct {
	Path        string         `json:"path"`
	InodeSlots  uint64         `json:"inode_slots"`
	GrowthSlots uint64         `json:"growth_slots"`
	KVOption    kvstore.Option `json:"kv_option"`
}

// Store bundles the slotted inode file, its allocation bitmap and the
// rocksdb instance backing the path and directory indexes. The store
// directory is flocked so two daemons never share the same files.
type Store struct {
	kvStore   kvstore.Store
	inodes    *InodeStore
	allocator *InodeAllocator
	fileLock  *flock.Flock

	cfg *Config
}

func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.InodeSlots == 0 {
		cfg.InodeSlots = 1024
	}
	if err := os.MkdirAll(cfg.Path+"/inode", 0o755); err != nil {
		return nil, err
	}

	fileLock := flock.New(cfg.Path + "/LOCK")
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errors.ErrStoreLocked
	}

	kvStorePath := cfg.Path + "/kv"
	// disable kv wal to optimized latency
	cfg.KVOption.DisableWal = true
	cfg.KVOption.CreateIfMissing = true
	kvStore, err := kvstore.NewKVStore(ctx, kvStorePath, kvstore.RocksdbLsmKVType, &cfg.KVOption)
	if err != nil {
		fileLock.Unlock()
		return nil, err
	}

	inodes, err := NewInodeStore(cfg.Path+"/inode/inode.dat", cfg.InodeSlots)
	if err != nil {
		kvStore.Close()
		fileLock.Unlock()
		return nil, err
	}
	allocator, err := NewInodeAllocator(cfg.Path+"/inode/inode.bmp", inodes, cfg.GrowthSlots)
	if err != nil {
		inodes.Close()
		kvStore.Close()
		fileLock.Unlock()
		return nil, err
	}

	return &Store{
		kvStore:   kvStore,
		inodes:    inodes,
		allocator: allocator,
		fileLock:  fileLock,
		cfg:       cfg,
	}, nil
}

func (s *Store) KVStore() kvstore.Store {
	return s.kvStore
}

func (s *Store) Inodes() *InodeStore {
	return s.inodes
}

func (s *Store) Allocator() *InodeAllocator {
	return s.allocator
}

type Stats struct {
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
	Used  uint64 `json:"used"`
}

func (s *Store) Stats() (Stats, error) {
	return StatFS(s.cfg.Path)
}

func StatFS(path string) (Stats, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return Stats{}, err
	}
	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	return Stats{Total: total, Free: free, Used: total - free}, nil
}

func (s *Store) Close() {
	s.allocator.Close()
	s.inodes.Close()
	s.kvStore.Close()
	s.fileLock.Unlock()
}
