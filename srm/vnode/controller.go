package vnode

import (
	"context"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/proto"
	"github.com/cubefs/chunkfs/srm/cluster"
)

type ControllerConfig struct {
	Monitor           MonitorConfig `json:"monitor"`
	SnapshotPath      string        `json:"snapshot_path"`
	SnapshotIntervalS int           `json:"snapshot_interval_s"`

	InitNodesPerClass  int    `json:"init_nodes_per_class"`
	InitDeviceCapacity uint64 `json:"init_device_capacity"`
}

// Controller owns the ledger, the batch monitor and the periodic
// snapshot. Capacity changes flow back into the registry so dispatch
// decisions see fresh virtual free space.
type Controller struct {
	cfg      ControllerConfig
	ledger   *Ledger
	monitor  *BatchMonitor
	registry cluster.Registry

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	stop sync.Once
}

func NewController(ctx context.Context, cfg ControllerConfig, reg cluster.Registry) *Controller {
	span := trace.SpanFromContextSafe(ctx)
	if cfg.SnapshotIntervalS <= 0 {
		cfg.SnapshotIntervalS = 60
	}

	ledger := NewLedger()
	if cfg.SnapshotPath != "" {
		if err := ledger.LoadFromJSON(cfg.SnapshotPath); err != nil {
			span.Warnf("ledger snapshot load failed, starting empty: %s", err)
		}
	}
	if cfg.InitNodesPerClass > 0 {
		if _, _, ok := ledger.GetNodeCapacity("node_ssd_0"); !ok {
			ledger.InitEmpty(cfg.InitNodesPerClass, cfg.InitDeviceCapacity)
		}
	}

	c := &Controller{
		cfg:      cfg,
		ledger:   ledger,
		registry: reg,
		done:     make(chan struct{}),
	}
	c.monitor = NewBatchMonitor(cfg.Monitor, ledger, c.onTouched)
	return c
}

func (c *Controller) Ledger() *Ledger {
	return c.ledger
}

func (c *Controller) Start() {
	c.once.Do(func() {
		c.monitor.Start()
		c.wg.Add(1)
		go c.snapshotLoop()
	})
}

func (c *Controller) Close() {
	c.stop.Do(func() { close(c.done) })
	c.monitor.Close()
	c.wg.Wait()
}

func (c *Controller) snapshotLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Duration(c.cfg.SnapshotIntervalS) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.cfg.SnapshotPath == "" || !c.ledger.TakeDirty() {
				continue
			}
			span, _ := trace.StartSpanFromContext(context.Background(), "ledger-snapshot")
			if err := c.ledger.SnapshotToJSON(c.cfg.SnapshotPath); err != nil {
				span.Errorf("ledger snapshot failed: %s", err)
			}
		case <-c.done:
			return
		}
	}
}

// onTouched refreshes the registry's view of the touched virtual nodes.
func (c *Controller) onTouched(nodeIDs []string) {
	if c.registry == nil {
		return
	}
	span, ctx := trace.StartSpanFromContext(context.Background(), "vnode-refresh")
	for _, id := range nodeIDs {
		total, free, ok := c.ledger.GetNodeCapacity(id)
		if !ok {
			continue
		}
		n, found := c.registry.Get(id)
		if !found {
			n = &proto.Node{
				ID:    id,
				Type:  proto.NodeTypeVirtual,
				State: proto.NodeStateOnline,
			}
		}
		n.Disks = []proto.DiskInfo{{MountPoint: "virtual", TotalBytes: total, FreeBytes: free}}
		if err := c.registry.Upsert(ctx, n); err != nil {
			span.Warnf("refresh virtual node[%s] failed: %s", id, err)
		}
	}
}
