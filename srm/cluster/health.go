package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/proto"
)

type HealthConfig struct {
	HeartbeatTimeoutS int `json:"heartbeat_timeout_s"`
	SweepIntervalS    int `json:"sweep_interval_s"`
}

// HealthMonitor sweeps the registry and flips silent nodes offline. The
// sweep works on a snapshot so the registry lock is never held across it.
type HealthMonitor struct {
	cfg      HealthConfig
	registry Registry

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	stop sync.Once
}

func NewHealthMonitor(cfg HealthConfig, reg Registry) *HealthMonitor {
	if cfg.HeartbeatTimeoutS <= 0 {
		cfg.HeartbeatTimeoutS = 30
	}
	if cfg.SweepIntervalS <= 0 {
		cfg.SweepIntervalS = 10
	}
	return &HealthMonitor{
		cfg:      cfg,
		registry: reg,
		done:     make(chan struct{}),
	}
}

func (m *HealthMonitor) Start() {
	m.once.Do(func() {
		m.wg.Add(1)
		go m.loop()
	})
}

func (m *HealthMonitor) Close() {
	m.stop.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *HealthMonitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Duration(m.cfg.SweepIntervalS) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, ctx := trace.StartSpanFromContext(context.Background(), "health-sweep")
			m.Sweep(ctx)
		case <-m.done:
			return
		}
	}
}

func (m *HealthMonitor) Sweep(ctx context.Context) {
	span := trace.SpanFromContextSafe(ctx)
	timeoutMs := int64(m.cfg.HeartbeatTimeoutS) * 1000
	now := time.Now().UnixMilli()

	for _, n := range m.registry.Snapshot() {
		if n.State == proto.NodeStateOffline {
			continue
		}
		if now-n.LastHeartbeat > timeoutMs {
			span.Warnf("node[%s] heartbeat stale for %dms", n.ID, now-n.LastHeartbeat)
			m.registry.MarkOffline(ctx, n.ID)
		}
	}
}
