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

package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/mds/catalog"
	"github.com/cubefs/chunkfs/proto"
)

type Config struct {
	BatchDir            string `json:"batch_dir"`
	ScanIntervalS       int    `json:"scan_interval_s"`
	ColdThresholdDays   uint32 `json:"cold_threshold_days"`
	MaxInodesPerRound   uint32 `json:"max_inodes_per_round"`
	MaxBatchSize        int    `json:"max_batch_size"`
	FlushThresholdBytes uint64 `json:"flush_threshold_bytes"`
}

// Sink receives one batch of serialized inode slots per call. The default
// sink appends the slots to a numbered .bin file under BatchDir.
type Sink func(ctx context.Context, batch [][]byte) error

// Collector periodically scans the catalog for cold files and streams
// their inode slots to a sink in bounded batches.
type Collector struct {
	cfg     Config
	catalog catalog.Catalog
	sink    Sink

	seq    uint64
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	closed sync.Once
}

func NewCollector(cfg Config, cat catalog.Catalog) (*Collector, error) {
	if cfg.ScanIntervalS <= 0 {
		cfg.ScanIntervalS = int(24 * time.Hour / time.Second)
	}
	if cfg.ColdThresholdDays == 0 {
		cfg.ColdThresholdDays = 180
	}
	if cfg.MaxInodesPerRound == 0 {
		cfg.MaxInodesPerRound = 50000
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 10000
	}
	if cfg.FlushThresholdBytes == 0 {
		cfg.FlushThresholdBytes = 10 << 30
	}
	c := &Collector{
		cfg:     cfg,
		catalog: cat,
		done:    make(chan struct{}),
	}
	if cfg.BatchDir != "" {
		if err := os.MkdirAll(cfg.BatchDir, 0o755); err != nil {
			return nil, err
		}
	}
	c.sink = c.fileSink
	return c, nil
}

// SetSink replaces the default file sink. Call before Start.
func (c *Collector) SetSink(sink Sink) {
	c.sink = sink
}

func (c *Collector) Start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.loop()
	})
}

func (c *Collector) Close() {
	c.closed.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Collector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Duration(c.cfg.ScanIntervalS) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			span, ctx := trace.StartSpanFromContext(context.Background(), "cold-collect")
			if err := c.RunOnce(ctx); err != nil {
				span.Errorf("cold collect round failed: %s", err)
			}
		case <-c.done:
			return
		}
	}
}

// RunOnce performs a single collection round.
func (c *Collector) RunOnce(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)

	inos, err := c.catalog.CollectColdInodes(ctx, c.cfg.MaxInodesPerRound, c.cfg.ColdThresholdDays)
	if err != nil {
		return err
	}
	if len(inos) == 0 {
		span.Info("cold collect: nothing to do")
		return nil
	}

	var (
		batch      [][]byte
		batchBytes uint64
		flushed    int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.sink(ctx, batch); err != nil {
			return err
		}
		flushed += len(batch)
		batch = batch[:0]
		batchBytes = 0
		return nil
	}

	for _, ino := range inos {
		inode, err := c.catalog.ReadInode(ctx, ino)
		if err != nil {
			span.Warnf("cold collect: read ino %d failed: %s", ino, err)
			continue
		}
		blob, err := inode.Marshal()
		if err != nil {
			span.Warnf("cold collect: marshal ino %d failed: %s", ino, err)
			continue
		}
		slot := make([]byte, proto.SlotSize)
		copy(slot, blob)
		batch = append(batch, slot)
		batchBytes += uint64(len(slot))
		if len(batch) >= c.cfg.MaxBatchSize || batchBytes >= c.cfg.FlushThresholdBytes {
			if err = flush(); err != nil {
				return err
			}
		}
	}
	if err = flush(); err != nil {
		return err
	}
	span.Infof("cold collect: %d candidates, %d slots flushed", len(inos), flushed)
	return nil
}

func (c *Collector) fileSink(ctx context.Context, batch [][]byte) error {
	c.seq++
	name := filepath.Join(c.cfg.BatchDir, fmt.Sprintf("batch-%d-%d.bin", time.Now().Unix(), c.seq))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	for _, slot := range batch {
		if _, err = f.Write(slot); err != nil {
			f.Close()
			return err
		}
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
