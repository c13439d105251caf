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

package meta

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/errors"
)

// ManifestLog maps chunk ids to their data files through an append-only
// text log. The in-memory map is the replay fold of ADD and DEL records.
type ManifestLog struct {
	lock   sync.Mutex
	roots  []string
	chunks map[uint64]string
	log    *os.File
	next   int
}

func NewManifestLog(ctx context.Context, roots []string, logPath string) (*ManifestLog, error) {
	if len(roots) == 0 {
		return nil, errors.ErrInvalidArgument
	}
	trimmed := make([]string, 0, len(roots))
	for _, r := range roots {
		r = strings.TrimRight(r, "/")
		if r == "" {
			return nil, errors.ErrInvalidArgument
		}
		if err := os.MkdirAll(r, 0o755); err != nil {
			return nil, err
		}
		trimmed = append(trimmed, r)
	}
	if logPath == "" {
		logPath = trimmed[0] + "/chunk_manifest.log"
	}

	m := &ManifestLog{
		roots:  trimmed,
		chunks: make(map[uint64]string),
	}
	if err := m.replay(ctx, logPath); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m.log = f
	return m, nil
}

// replay folds the existing log into the map. Only newline-terminated
// records count; a torn tail is cut off so the next append starts on a
// record boundary.
func (m *ManifestLog) replay(ctx context.Context, logPath string) error {
	span := trace.SpanFromContextSafe(ctx)

	data, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	validBytes := int64(0)
	rest := string(data)
	for {
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			break
		}
		line := rest[:nl]
		rest = rest[nl+1:]
		validBytes += int64(nl) + 1

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			span.Warnf("manifest: bad record %q", line)
			continue
		}
		switch fields[0] {
		case "ADD":
			if len(fields) >= 3 {
				m.chunks[id] = fields[2]
			}
		case "DEL":
			delete(m.chunks, id)
		}
	}
	if int64(len(data)) > validBytes {
		span.Warnf("manifest: truncating torn tail at %d (size %d)", validBytes, len(data))
		if err = os.Truncate(logPath, validBytes); err != nil {
			return err
		}
	}
	span.Infof("manifest replayed, %d chunks", len(m.chunks))
	return nil
}

func (m *ManifestLog) Get(chunkID uint64) string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.chunks[chunkID]
}

// Alloc returns the chunk's path, creating a sharded location on the
// next data root when the chunk is new.
func (m *ManifestLog) Alloc(ctx context.Context, chunkID uint64) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if p, ok := m.chunks[chunkID]; ok {
		return p, nil
	}

	root := m.roots[m.next%len(m.roots)]
	m.next++

	hex := fmt.Sprintf("%016x", chunkID)
	rel := filepath.Join(hex[0:2], hex[2:4], fmt.Sprintf("chunk_%d", chunkID))
	abs := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := m.append("ADD", chunkID, abs); err != nil {
		return "", err
	}
	m.chunks[chunkID] = abs
	return abs, nil
}

func (m *ManifestLog) Delete(ctx context.Context, chunkID uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.chunks[chunkID]; !ok {
		return nil
	}
	delete(m.chunks, chunkID)
	return m.append("DEL", chunkID, "")
}

func (m *ManifestLog) append(op string, chunkID uint64, path string) error {
	line := fmt.Sprintf("%s %d %s\n", op, chunkID, path)
	if _, err := m.log.WriteString(line); err != nil {
		return err
	}
	return m.log.Sync()
}

func (m *ManifestLog) Count() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.chunks)
}

func (m *ManifestLog) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.log.Close()
}
