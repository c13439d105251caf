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
	"fmt"
	"os"
	"sync"

	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
)

// InodeStore is a file of fixed 512-byte slots addressed by inode number.
// All slot access is serialized by one store-wide mutex.
type InodeStore struct {
	lock  sync.Mutex
	f     *os.File
	slots uint64
}

func NewInodeStore(path string, slots uint64) (*InodeStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	current := uint64(info.Size()) / proto.SlotSize
	if current > slots {
		slots = current
	}
	if err = f.Truncate(int64(slots) * proto.SlotSize); err != nil {
		f.Close()
		return nil, err
	}
	return &InodeStore{f: f, slots: slots}, nil
}

func (s *InodeStore) Read(ino uint64) (*proto.Inode, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if ino >= s.slots {
		return nil, fmt.Errorf("inode %d beyond store capacity %d: %w", ino, s.slots, errors.ErrInoDoesNotExist)
	}
	buf := make([]byte, proto.SlotSize)
	n, err := s.f.ReadAt(buf, int64(ino)*proto.SlotSize)
	if err != nil && n < proto.SlotSize {
		return nil, fmt.Errorf("read inode %d: %w", ino, errors.ErrShortRead)
	}
	inode := &proto.Inode{}
	if err = inode.Unmarshal(buf); err != nil {
		return nil, err
	}
	return inode, nil
}

func (s *InodeStore) Write(ino uint64, inode *proto.Inode) error {
	data, err := inode.Marshal()
	if err != nil {
		return err
	}
	if len(data) > proto.SlotSize {
		return errors.ErrSlotOverflow
	}
	buf := make([]byte, proto.SlotSize)
	copy(buf, data)

	s.lock.Lock()
	defer s.lock.Unlock()

	if ino >= s.slots {
		return fmt.Errorf("inode %d beyond store capacity %d: %w", ino, s.slots, errors.ErrInoDoesNotExist)
	}
	if _, err = s.f.WriteAt(buf, int64(ino)*proto.SlotSize); err != nil {
		return err
	}
	return s.f.Sync()
}

// Expand grows the slot file; shrinking is not supported.
func (s *InodeStore) Expand(slots uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if slots <= s.slots {
		return nil
	}
	if err := s.f.Truncate(int64(slots) * proto.SlotSize); err != nil {
		return err
	}
	s.slots = slots
	return nil
}

func (s *InodeStore) Slots() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.slots
}

func (s *InodeStore) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.f.Close()
}
