package io

import (
	"os"
	"sync"
	"syscall"

	"github.com/cubefs/chunkfs/proto"
)

// DiskManager tracks the mount points a node serves and their space.
type DiskManager struct {
	lock   sync.RWMutex
	mounts []string
	stats  []proto.DiskInfo
	ready  bool
}

func NewDiskManager(mounts []string) (*DiskManager, error) {
	m := &DiskManager{mounts: mounts}
	for _, mp := range mounts {
		if err := os.MkdirAll(mp, 0o755); err != nil {
			return nil, err
		}
	}
	if err := m.Refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DiskManager) Refresh() error {
	stats := make([]proto.DiskInfo, 0, len(m.mounts))
	for _, mp := range m.mounts {
		var st syscall.Statfs_t
		if err := syscall.Statfs(mp, &st); err != nil {
			m.lock.Lock()
			m.ready = false
			m.lock.Unlock()
			return err
		}
		stats = append(stats, proto.DiskInfo{
			MountPoint: mp,
			TotalBytes: st.Blocks * uint64(st.Bsize),
			FreeBytes:  st.Bavail * uint64(st.Bsize),
		})
	}
	m.lock.Lock()
	m.stats = stats
	m.ready = true
	m.lock.Unlock()
	return nil
}

func (m *DiskManager) Ready() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.ready
}

// Unmount drops a mount point from service. Remaining mounts stay ready.
func (m *DiskManager) Unmount(mountPoint string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	for i, mp := range m.mounts {
		if mp == mountPoint {
			m.mounts = append(m.mounts[:i], m.mounts[i+1:]...)
			if i < len(m.stats) {
				m.stats = append(m.stats[:i], m.stats[i+1:]...)
			}
			m.ready = len(m.mounts) > 0
			return true
		}
	}
	return false
}

func (m *DiskManager) Stats() []proto.DiskInfo {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]proto.DiskInfo(nil), m.stats...)
}
