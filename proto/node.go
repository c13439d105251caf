package proto

import (
	"encoding/json"
	"strconv"
)

type NodeType int

const (
	NodeTypeReal NodeType = iota
	NodeTypeVirtual
)

type NodeState int

const (
	NodeStateOnline NodeState = iota
	NodeStateOffline
	NodeStateSuspected
)

func (s NodeState) String() string {
	switch s {
	case NodeStateOnline:
		return "online"
	case NodeStateOffline:
		return "offline"
	default:
		return "suspected"
	}
}

type DiskInfo struct {
	MountPoint string `json:"mount_point"`
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

// SimParams configures the simulated data plane of a virtual node.
type SimParams struct {
	MinLatencyMs    uint32  `json:"min_latency_ms"`
	MaxLatencyMs    uint32  `json:"max_latency_ms"`
	FailureRate     float64 `json:"failure_rate"`
	DefaultReadSize uint32  `json:"default_read_size"`
}

type Node struct {
	ID            string     `json:"id"`
	IP            string     `json:"ip"`
	Port          uint32     `json:"port"`
	Hostname      string     `json:"hostname"`
	Disks         []DiskInfo `json:"disks"`
	Type          NodeType   `json:"type"`
	State         NodeState  `json:"state"`
	Sim           SimParams  `json:"sim,omitempty"`
	LastHeartbeat int64      `json:"last_heartbeat"`
}

func (n *Node) Marshal() ([]byte, error) {
	return json.Marshal(n)
}

func (n *Node) Unmarshal(data []byte) error {
	return json.Unmarshal(data, n)
}

func (n *Node) Addr() string {
	return n.IP + ":" + strconv.Itoa(int(n.Port))
}
