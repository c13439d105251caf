package vnode

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/proto"
)

type MonitorConfig struct {
	BatchDir       string `json:"batch_dir"`
	CheckpointPath string `json:"checkpoint_path"`
	PollIntervalS  int    `json:"poll_interval_s"`
}

type checkpoint struct {
	Files map[string]int64 `json:"files"`
}

// BatchMonitor tails .bin inode batch files and feeds every decoded slot
// into the ledger. Progress is checkpointed per file; losing the
// checkpoint replays slots and charges them again.
type BatchMonitor struct {
	cfg     MonitorConfig
	ledger  *Ledger
	touched func(nodeIDs []string)

	ckpt checkpoint

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	stop sync.Once
}

func NewBatchMonitor(cfg MonitorConfig, ledger *Ledger, touched func(nodeIDs []string)) *BatchMonitor {
	if cfg.PollIntervalS <= 0 {
		cfg.PollIntervalS = 5
	}
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = filepath.Join(cfg.BatchDir, "checkpoint.json")
	}
	m := &BatchMonitor{
		cfg:     cfg,
		ledger:  ledger,
		touched: touched,
		ckpt:    checkpoint{Files: make(map[string]int64)},
		done:    make(chan struct{}),
	}
	m.loadCheckpoint()
	return m
}

func (m *BatchMonitor) Start() {
	m.once.Do(func() {
		m.wg.Add(1)
		go m.loop()
	})
}

func (m *BatchMonitor) Close() {
	m.stop.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *BatchMonitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Duration(m.cfg.PollIntervalS) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, ctx := trace.StartSpanFromContext(context.Background(), "batch-poll")
			m.Poll(ctx)
		case <-m.done:
			return
		}
	}
}

// Poll runs one scan cycle over the batch directory.
func (m *BatchMonitor) Poll(ctx context.Context) {
	span := trace.SpanFromContextSafe(ctx)

	names, err := filepath.Glob(filepath.Join(m.cfg.BatchDir, "*.bin"))
	if err != nil {
		span.Errorf("list batch dir failed: %s", err)
		return
	}
	sort.Strings(names)

	touchedSet := make(map[string]struct{})
	for _, name := range names {
		if err := m.consumeFile(ctx, name, touchedSet); err != nil {
			span.Warnf("consume %s failed: %s", name, err)
		}
	}
	m.saveCheckpoint(ctx)

	if len(touchedSet) == 0 || m.touched == nil {
		return
	}
	ids := make([]string, 0, len(touchedSet))
	for id := range touchedSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	m.touched(ids)
}

func (m *BatchMonitor) consumeFile(ctx context.Context, name string, touched map[string]struct{}) error {
	span := trace.SpanFromContextSafe(ctx)

	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	key := filepath.Base(name)
	offset := m.ckpt.Files[key]
	offset -= offset % proto.SlotSize
	if offset > fi.Size() {
		span.Warnf("checkpoint for %s past eof, rescanning", key)
		offset = 0
	}

	slot := make([]byte, proto.SlotSize)
	for offset+proto.SlotSize <= fi.Size() {
		if _, err = f.ReadAt(slot, offset); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		offset += proto.SlotSize

		inode := &proto.Inode{}
		if err := inode.Unmarshal(slot); err != nil {
			span.Warnf("bad slot in %s at %d: %s", key, offset-proto.SlotSize, err)
			continue
		}
		nodeID, full := m.ledger.ApplyInode(ctx, inode)
		if nodeID != "" && full {
			touched[nodeID] = struct{}{}
		}
	}
	m.ckpt.Files[key] = offset
	return nil
}

func (m *BatchMonitor) loadCheckpoint() {
	data, err := os.ReadFile(m.cfg.CheckpointPath)
	if err != nil {
		return
	}
	ck := checkpoint{}
	if json.Unmarshal(data, &ck) == nil && ck.Files != nil {
		m.ckpt = ck
	}
}

// saveCheckpoint is best-effort; a miss replays slots next start.
func (m *BatchMonitor) saveCheckpoint(ctx context.Context) {
	data, err := json.Marshal(&m.ckpt)
	if err != nil {
		return
	}
	tmp := m.cfg.CheckpointPath + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("write checkpoint failed: %s", err)
		return
	}
	if err = os.Rename(tmp, m.cfg.CheckpointPath); err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("rename checkpoint failed: %s", err)
	}
}
