package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/proto"
)

type registration struct {
	nodeID   string
	class    proto.NodeClass
	capacity uint64
}

type fakeRegistrar struct {
	ch chan registration
}

func (f *fakeRegistrar) RegisterNode(ctx context.Context, nodeID string, class proto.NodeClass, capacityBytes uint64) (uint16, error) {
	f.ch <- registration{nodeID: nodeID, class: class, capacity: capacityBytes}
	return 1, nil
}

func TestHandleRegister(t *testing.T) {
	reg := NewRegistry(newTestKV(t))
	defer reg.Close()
	registrar := &fakeRegistrar{ch: make(chan registration, 1)}
	svc := NewService(reg, registrar)
	ctx := context.Background()

	resp, err := svc.HandleRegister(ctx, &proto.RegisterNodeRequest{Port: 9100})
	require.NoError(t, err)
	require.Equal(t, proto.StatusInvalidArgument, resp.Status.Code)
	require.Equal(t, "missing ip or port", resp.Status.Message)

	resp, err = svc.HandleRegister(ctx, &proto.RegisterNodeRequest{
		IP:   "10.0.0.1",
		Port: 9100,
		Disks: []proto.DiskInfo{
			{MountPoint: "/data0", TotalBytes: 100},
			{MountPoint: "/data1", TotalBytes: 200},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Status.OK())
	require.NotEmpty(t, resp.NodeID)

	n, ok := reg.Get(resp.NodeID)
	require.True(t, ok)
	require.Equal(t, "10.0.0.1", n.Hostname)
	require.Equal(t, proto.NodeTypeReal, n.Type)
	require.Equal(t, proto.NodeStateOnline, n.State)

	select {
	case r := <-registrar.ch:
		require.Equal(t, resp.NodeID, r.nodeID)
		require.Equal(t, uint64(300), r.capacity)
	case <-time.After(3 * time.Second):
		t.Fatal("mds registration never happened")
	}
}

func TestHandleHeartbeat(t *testing.T) {
	reg := NewRegistry(newTestKV(t))
	defer reg.Close()
	svc := NewService(reg, nil)
	ctx := context.Background()

	resp, err := svc.HandleHeartbeat(ctx, &proto.HeartbeatRequest{})
	require.NoError(t, err)
	require.Equal(t, proto.StatusInvalidArgument, resp.Status.Code)
	require.True(t, resp.RequireRereg)

	resp, err = svc.HandleHeartbeat(ctx, &proto.HeartbeatRequest{NodeID: "ghost"})
	require.NoError(t, err)
	require.Equal(t, proto.StatusNodeNotFound, resp.Status.Code)
	require.True(t, resp.RequireRereg)

	reged, err := svc.HandleRegister(ctx, &proto.RegisterNodeRequest{IP: "10.0.0.1", Port: 9100})
	require.NoError(t, err)

	resp, err = svc.HandleHeartbeat(ctx, &proto.HeartbeatRequest{NodeID: reged.NodeID})
	require.NoError(t, err)
	require.True(t, resp.Status.OK())
	require.False(t, resp.RequireRereg)
}
