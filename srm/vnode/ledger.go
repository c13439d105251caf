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

package vnode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/proto"
)

type Device struct {
	DeviceID            string `json:"device_id"`
	Capacity            uint64 `json:"capacity"`
	Used                uint64 `json:"used_bytes"`
	Free                uint64 `json:"free_bytes"`
	Type                string `json:"type"`
	ReadThroughputMBps  uint32 `json:"read_throughput_MBps"`
	WriteThroughputMBps uint32 `json:"write_throughput_MBps"`
}

type LedgerNode struct {
	NodeID     string          `json:"node_id"`
	Class      proto.NodeClass `json:"type"`
	SSDDevices []*Device       `json:"ssd_devices"`
	HDDDevices []*Device       `json:"hdd_devices"`
}

// Ledger accounts simulated capacity per virtual node. Inode batches
// consume device space; applying the same batch twice consumes twice,
// recovery after checkpoint loss is additive by design.
type Ledger struct {
	lock  sync.RWMutex
	nodes map[string]*LedgerNode

	ssdIDs []string
	hddIDs []string
	mixIDs []string

	dirty bool
}

func NewLedger() *Ledger {
	return &Ledger{nodes: make(map[string]*LedgerNode)}
}

// InitEmpty builds count nodes per class with a single device each.
func (l *Ledger) InitEmpty(countPerClass int, deviceCapacity uint64) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.nodes = make(map[string]*LedgerNode)
	for i := 0; i < countPerClass; i++ {
		ssdID := fmt.Sprintf("node_ssd_%d", i)
		l.nodes[ssdID] = &LedgerNode{
			NodeID: ssdID,
			Class:  proto.NodeClassSSD,
			SSDDevices: []*Device{{
				DeviceID: ssdID + "_SSD_0",
				Capacity: deviceCapacity,
				Free:     deviceCapacity,
				Type:     "SSD",
			}},
		}
		hddID := fmt.Sprintf("node_hdd_%d", i)
		l.nodes[hddID] = &LedgerNode{
			NodeID: hddID,
			Class:  proto.NodeClassHDD,
			HDDDevices: []*Device{{
				DeviceID: hddID + "_HDD_0",
				Capacity: deviceCapacity,
				Free:     deviceCapacity,
				Type:     "HDD",
			}},
		}
		mixID := fmt.Sprintf("node_mix_%d", i)
		half := deviceCapacity / 2
		l.nodes[mixID] = &LedgerNode{
			NodeID: mixID,
			Class:  proto.NodeClassMix,
			SSDDevices: []*Device{{
				DeviceID: mixID + "_SSD_0",
				Capacity: half,
				Free:     half,
				Type:     "SSD",
			}},
			HDDDevices: []*Device{{
				DeviceID: mixID + "_HDD_0",
				Capacity: deviceCapacity - half,
				Free:     deviceCapacity - half,
				Type:     "HDD",
			}},
		}
	}
	l.rebuildIndex()
	l.dirty = true
}

// rebuildIndex derives the per-class id lists from node names. Caller
// holds the write lock.
func (l *Ledger) rebuildIndex() {
	type indexed struct {
		id  string
		idx int
	}
	var ssd, hdd, mix []indexed
	for id := range l.nodes {
		switch {
		case strings.HasPrefix(id, "node_ssd_"):
			if n, err := strconv.Atoi(id[len("node_ssd_"):]); err == nil {
				ssd = append(ssd, indexed{id, n})
			}
		case strings.HasPrefix(id, "node_hdd_"):
			if n, err := strconv.Atoi(id[len("node_hdd_"):]); err == nil {
				hdd = append(hdd, indexed{id, n})
			}
		case strings.HasPrefix(id, "node_mix_"):
			if n, err := strconv.Atoi(id[len("node_mix_"):]); err == nil {
				mix = append(mix, indexed{id, n})
			}
		}
	}
	sortIndexed := func(list []indexed) []string {
		sort.Slice(list, func(i, j int) bool { return list[i].idx < list[j].idx })
		ids := make([]string, 0, len(list))
		for _, e := range list {
			ids = append(ids, e.id)
		}
		return ids
	}
	l.ssdIDs = sortIndexed(ssd)
	l.hddIDs = sortIndexed(hdd)
	l.mixIDs = sortIndexed(mix)
}

// ResolveNodeID maps an inode location onto a ledger node. The typed
// list is preferred; a missing class falls back to the first non-empty
// list, then to any node at all.
func (l *Ledger) ResolveNodeID(class proto.NodeClass, index uint16) string {
	l.lock.RLock()
	defer l.lock.RUnlock()

	var typed []string
	switch class {
	case proto.NodeClassSSD:
		typed = l.ssdIDs
	case proto.NodeClassHDD:
		typed = l.hddIDs
	default:
		typed = l.mixIDs
	}
	if len(typed) > 0 {
		return typed[int(index)%len(typed)]
	}
	for _, list := range [][]string{l.ssdIDs, l.hddIDs, l.mixIDs} {
		if len(list) > 0 {
			return list[int(index)%len(list)]
		}
	}
	if len(l.nodes) > 0 {
		ids := make([]string, 0, len(l.nodes))
		for id := range l.nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids[0]
	}
	return ""
}

// ApplyInode charges the inode's size against the resolved node. Partial
// consumption is kept; the second return reports whether the full size
// fit.
func (l *Ledger) ApplyInode(ctx context.Context, inode *proto.Inode) (string, bool) {
	nodeID := l.ResolveNodeID(inode.Class, inode.NodeIndex)
	if nodeID == "" {
		return "", false
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	n, ok := l.nodes[nodeID]
	if !ok {
		return "", false
	}
	remaining := inode.SizeBytes()
	if remaining == 0 {
		return nodeID, true
	}

	var order []*Device
	switch inode.Class {
	case proto.NodeClassHDD:
		order = append(append(order, n.HDDDevices...), n.SSDDevices...)
	default:
		order = append(append(order, n.SSDDevices...), n.HDDDevices...)
	}
	for _, d := range order {
		if remaining == 0 {
			break
		}
		take := d.Free
		if take > remaining {
			take = remaining
		}
		d.Free -= take
		d.Used += take
		remaining -= take
	}
	l.dirty = true
	if remaining > 0 {
		trace.SpanFromContextSafe(ctx).Warnf("node[%s] short by %d bytes applying ino %d", nodeID, remaining, inode.Ino)
	}
	return nodeID, remaining == 0
}

func (l *Ledger) GetNodeCapacity(nodeID string) (total, free uint64, ok bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	n, hit := l.nodes[nodeID]
	if !hit {
		return 0, 0, false
	}
	for _, list := range [][]*Device{n.SSDDevices, n.HDDDevices} {
		for _, d := range list {
			total += d.Capacity
			free += d.Free
		}
	}
	return total, free, true
}

// TakeDirty reports and clears the dirty flag.
func (l *Ledger) TakeDirty() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	d := l.dirty
	l.dirty = false
	return d
}

type ledgerSnapshot struct {
	Nodes []*LedgerNode `json:"nodes"`
}

func (l *Ledger) SnapshotToJSON(path string) error {
	l.lock.RLock()
	snap := ledgerSnapshot{Nodes: make([]*LedgerNode, 0, len(l.nodes))}
	for _, n := range l.nodes {
		cp := *n
		cp.SSDDevices = copyDevices(n.SSDDevices)
		cp.HDDDevices = copyDevices(n.HDDDevices)
		snap.Nodes = append(snap.Nodes, &cp)
	}
	l.lock.RUnlock()

	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].NodeID < snap.Nodes[j].NodeID })
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type deviceJSON struct {
	DeviceID            string  `json:"device_id"`
	Capacity            uint64  `json:"capacity"`
	UsedBytes           *uint64 `json:"used_bytes"`
	Used                *uint64 `json:"used"`
	FreeBytes           *uint64 `json:"free_bytes"`
	Free                *uint64 `json:"free"`
	Type                string  `json:"type"`
	ReadThroughputMBps  uint32  `json:"read_throughput_MBps"`
	WriteThroughputMBps uint32  `json:"write_throughput_MBps"`
}

type nodeJSON struct {
	NodeID     string          `json:"node_id"`
	Class      proto.NodeClass `json:"type"`
	SSDDevices []*deviceJSON   `json:"ssd_devices"`
	HDDDevices []*deviceJSON   `json:"hdd_devices"`
}

// LoadFromJSON replaces the ledger content. Snapshots written by older
// tooling may carry used/free under short names or omit free entirely.
func (l *Ledger) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap struct {
		Nodes []*nodeJSON `json:"nodes"`
	}
	if err = json.Unmarshal(data, &snap); err != nil {
		return err
	}

	nodes := make(map[string]*LedgerNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		ln := &LedgerNode{
			NodeID:     n.NodeID,
			Class:      n.Class,
			SSDDevices: normalizeDevices(n.SSDDevices),
			HDDDevices: normalizeDevices(n.HDDDevices),
		}
		nodes[ln.NodeID] = ln
	}

	l.lock.Lock()
	l.nodes = nodes
	l.rebuildIndex()
	l.dirty = false
	l.lock.Unlock()
	return nil
}

func normalizeDevices(in []*deviceJSON) []*Device {
	out := make([]*Device, 0, len(in))
	for _, d := range in {
		used := uint64(0)
		if d.UsedBytes != nil {
			used = *d.UsedBytes
		} else if d.Used != nil {
			used = *d.Used
		}
		if used > d.Capacity {
			used = d.Capacity
		}
		free := d.Capacity - used
		if d.FreeBytes != nil {
			free = *d.FreeBytes
		} else if d.Free != nil {
			free = *d.Free
		}
		if free > d.Capacity {
			free = d.Capacity
		}
		out = append(out, &Device{
			DeviceID:            d.DeviceID,
			Capacity:            d.Capacity,
			Used:                used,
			Free:                free,
			Type:                d.Type,
			ReadThroughputMBps:  d.ReadThroughputMBps,
			WriteThroughputMBps: d.WriteThroughputMBps,
		})
	}
	return out
}

func copyDevices(in []*Device) []*Device {
	out := make([]*Device, 0, len(in))
	for _, d := range in {
		cp := *d
		out = append(out, &cp)
	}
	return out
}
