package cluster

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/proto"
)

// MdsRegistrar lets the cluster service publish accepted storage nodes to
// the metadata tier without depending on a concrete client.
type MdsRegistrar interface {
	RegisterNode(ctx context.Context, nodeID string, class proto.NodeClass, capacityBytes uint64) (uint16, error)
}

type Service struct {
	registry  Registry
	registrar MdsRegistrar
}

func NewService(reg Registry, registrar MdsRegistrar) *Service {
	return &Service{registry: reg, registrar: registrar}
}

func (s *Service) HandleRegister(ctx context.Context, req *proto.RegisterNodeRequest) (*proto.RegisterNodeResponse, error) {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.RegisterNodeResponse{}

	if req.IP == "" || req.Port == 0 {
		resp.Status.Set(proto.StatusInvalidArgument, "missing ip or port")
		return resp, nil
	}
	hostname := req.Hostname
	if hostname == "" {
		hostname = req.IP
	}

	n := &proto.Node{
		ID:       s.registry.GenerateNodeID(),
		IP:       req.IP,
		Port:     req.Port,
		Hostname: hostname,
		Disks:    req.Disks,
		Type:     proto.NodeTypeReal,
		State:    proto.NodeStateOnline,
	}
	if err := s.registry.Upsert(ctx, n); err != nil {
		resp.Status.Set(proto.StatusUnknownError, err.Error())
		return resp, nil
	}
	span.Infof("node[%s] registered from %s", n.ID, n.Addr())

	if s.registrar != nil {
		capacity := uint64(0)
		for _, d := range req.Disks {
			capacity += d.TotalBytes
		}
		go func(nodeID string, capacity uint64) {
			span, ctx := trace.StartSpanFromContext(context.Background(), "mds-register")
			if _, err := s.registrar.RegisterNode(ctx, nodeID, proto.NodeClassMix, capacity); err != nil {
				span.Warnf("mds registration for node[%s] failed: %s", nodeID, err)
			}
		}(n.ID, capacity)
	}

	resp.NodeID = n.ID
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}

func (s *Service) HandleHeartbeat(ctx context.Context, req *proto.HeartbeatRequest) (*proto.HeartbeatResponse, error) {
	resp := &proto.HeartbeatResponse{}
	if req.NodeID == "" {
		resp.Status.Set(proto.StatusInvalidArgument, "missing node_id")
		resp.RequireRereg = true
		return resp, nil
	}
	if err := s.registry.UpdateHeartbeat(ctx, req.NodeID, req.TimestampMs); err != nil {
		resp.Status.Set(proto.StatusNodeNotFound, "unknown node")
		resp.RequireRereg = true
		return resp, nil
	}
	resp.Status.Set(proto.StatusSuccess, "")
	return resp, nil
}
