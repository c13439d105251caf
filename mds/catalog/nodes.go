package catalog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
)

const nodeCF = kvstore.CF("node")

const maxNodeIndex = (1 << 14) - 1

var nodeKeyPrefix = []byte("n")

type nodeRecord struct {
	ID            string          `json:"id"`
	Index         uint16          `json:"index"`
	Class         proto.NodeClass `json:"class"`
	CapacityBytes uint64          `json:"capacity_bytes"`
}

// nodeTable assigns every registered storage node a dense 14-bit index
// that fits in the inode location field. Assignments are persisted so an
// index always resolves to the same node across restarts.
type nodeTable struct {
	kvStore kvstore.Store

	lock    sync.RWMutex
	byID    map[string]*nodeRecord
	byIndex map[uint16]string
	next    uint16
}

func newNodeTable(ctx context.Context, kvStore kvstore.Store) (*nodeTable, error) {
	span := trace.SpanFromContextSafe(ctx)
	t := &nodeTable{
		kvStore: kvStore,
		byID:    make(map[string]*nodeRecord),
		byIndex: make(map[uint16]string),
	}

	lr := kvStore.List(ctx, nodeCF, append(nodeKeyPrefix, keyInfix...), nil, nil)
	defer lr.Close()
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, err
		}
		if kg == nil || vg == nil {
			break
		}
		rec := &nodeRecord{}
		if err = json.Unmarshal(vg.Value(), rec); err != nil {
			kg.Close()
			vg.Close()
			return nil, err
		}
		kg.Close()
		vg.Close()
		t.byID[rec.ID] = rec
		t.byIndex[rec.Index] = rec.ID
		if rec.Index >= t.next {
			t.next = rec.Index + 1
		}
	}
	span.Infof("node table loaded, %d nodes, next index %d", len(t.byID), t.next)
	return t, nil
}

// Register assigns the node a stable index, or refreshes the class and
// capacity of an already known node keeping its index.
func (t *nodeTable) Register(ctx context.Context, nodeID string, class proto.NodeClass, capacityBytes uint64) (uint16, error) {
	if nodeID == "" || !class.Valid() {
		return 0, errors.ErrInvalidArgument
	}
	t.lock.Lock()
	defer t.lock.Unlock()

	if rec, ok := t.byID[nodeID]; ok {
		rec.Class = class
		rec.CapacityBytes = capacityBytes
		if err := t.persist(ctx, rec); err != nil {
			return 0, err
		}
		return rec.Index, nil
	}

	if t.next > maxNodeIndex {
		return 0, errors.ErrNoFreeInode
	}
	rec := &nodeRecord{ID: nodeID, Index: t.next, Class: class, CapacityBytes: capacityBytes}
	if err := t.persist(ctx, rec); err != nil {
		return 0, err
	}
	t.byID[nodeID] = rec
	t.byIndex[rec.Index] = nodeID
	t.next++
	return rec.Index, nil
}

func (t *nodeTable) IDByIndex(index uint16) string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.byIndex[index]
}

func (t *nodeTable) persist(ctx context.Context, rec *nodeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return t.kvStore.SetRaw(ctx, nodeCF, encodeNodeKey(rec.Index), data, nil)
}

func encodeNodeKey(index uint16) []byte {
	ret := make([]byte, 0, len(nodeKeyPrefix)+len(keyInfix)+2)
	ret = append(ret, nodeKeyPrefix...)
	ret = append(ret, keyInfix...)
	binary.BigEndian.PutUint16(ret[cap(ret)-2:], index)
	return ret[:cap(ret)]
}

func (c *catalog) RegisterNode(ctx context.Context, nodeID string, class proto.NodeClass, capacityBytes uint64) (uint16, error) {
	return c.nodes.Register(ctx, nodeID, class, capacityBytes)
}

func (c *catalog) NodeIDByIndex(index uint16) string {
	return c.nodes.IDByIndex(index)
}
