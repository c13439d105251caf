package agent

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/proto"
	nodeio "github.com/cubefs/chunkfs/storagenode/io"
)

type fakeCluster struct {
	lock       sync.Mutex
	registers  []*proto.RegisterNodeRequest
	heartbeats []*proto.HeartbeatRequest

	failRegisters int
	rereg         bool
	hbErr         error

	registered chan string
}

func (f *fakeCluster) RegisterNode(ctx context.Context, req *proto.RegisterNodeRequest) (*proto.RegisterNodeResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.registers = append(f.registers, req)
	resp := &proto.RegisterNodeResponse{}
	if f.failRegisters > 0 {
		f.failRegisters--
		resp.Status.Set(proto.StatusIoError, "not ready")
		return resp, nil
	}
	resp.NodeID = "node-1"
	resp.Status.Set(proto.StatusSuccess, "")
	if f.registered != nil {
		select {
		case f.registered <- resp.NodeID:
		default:
		}
	}
	return resp, nil
}

func (f *fakeCluster) Heartbeat(ctx context.Context, req *proto.HeartbeatRequest) (*proto.HeartbeatResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.heartbeats = append(f.heartbeats, req)
	if f.hbErr != nil {
		return nil, f.hbErr
	}
	resp := &proto.HeartbeatResponse{RequireRereg: f.rereg}
	if f.rereg {
		resp.Status.Set(proto.StatusNodeNotFound, "unknown node")
	} else {
		resp.Status.Set(proto.StatusSuccess, "")
	}
	return resp, nil
}

func newTestDisks(t *testing.T) *nodeio.DiskManager {
	disks, err := nodeio.NewDiskManager([]string{filepath.Join(t.TempDir(), "data0")})
	require.NoError(t, err)
	return disks
}

func TestAgentRegister(t *testing.T) {
	cluster := &fakeCluster{}
	a := NewAgent(Config{IP: "10.0.0.2", Port: 9200, Hostname: "sn-1", RegisterBackoffS: 1}, cluster, newTestDisks(t))

	require.NoError(t, a.register(context.Background()))
	require.Equal(t, "node-1", a.NodeID())

	require.Len(t, cluster.registers, 1)
	req := cluster.registers[0]
	require.Equal(t, "10.0.0.2", req.IP)
	require.Equal(t, uint32(9200), req.Port)
	require.Equal(t, "sn-1", req.Hostname)
	require.Len(t, req.Disks, 1)
	require.NotZero(t, req.Disks[0].TotalBytes)
}

func TestAgentRegisterRetries(t *testing.T) {
	cluster := &fakeCluster{failRegisters: 1}
	a := NewAgent(Config{RegisterBackoffS: 1}, cluster, newTestDisks(t))

	require.NoError(t, a.register(context.Background()))
	require.Equal(t, "node-1", a.NodeID())
	require.Len(t, cluster.registers, 2)
}

func TestAgentHeartbeat(t *testing.T) {
	cluster := &fakeCluster{}
	a := NewAgent(Config{}, cluster, newTestDisks(t))
	a.nodeID = "node-1"
	ctx := context.Background()

	require.False(t, a.heartbeat(ctx))
	require.Len(t, cluster.heartbeats, 1)
	require.Equal(t, "node-1", cluster.heartbeats[0].NodeID)
	require.NotZero(t, cluster.heartbeats[0].TimestampMs)

	cluster.rereg = true
	require.True(t, a.heartbeat(ctx))

	cluster.rereg = false
	cluster.hbErr = context.DeadlineExceeded
	require.True(t, a.heartbeat(ctx))
}

func TestAgentStartStop(t *testing.T) {
	cluster := &fakeCluster{registered: make(chan string, 1)}
	a := NewAgent(Config{HeartbeatIntervalS: 1, RegisterBackoffS: 1}, cluster, newTestDisks(t))

	a.Start()
	// starting twice is safe
	a.Start()

	select {
	case id := <-cluster.registered:
		require.Equal(t, "node-1", id)
	case <-time.After(3 * time.Second):
		t.Fatal("agent never registered")
	}

	a.Stop()
	a.Stop()
	require.Equal(t, "node-1", a.NodeID())
}

func TestAgentDefaults(t *testing.T) {
	a := NewAgent(Config{}, &fakeCluster{}, newTestDisks(t))
	require.Equal(t, "127.0.0.1", a.cfg.IP)
	require.NotEmpty(t, a.cfg.Hostname)
	require.Equal(t, 5, a.cfg.HeartbeatIntervalS)
	require.Equal(t, 2, a.cfg.RegisterBackoffS)
}
