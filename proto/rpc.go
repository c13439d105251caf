package proto

// Request/response envelopes. The wire form is whatever codec the
// connection negotiates; fields here are the contract.

type Dirent struct {
	Name string   `json:"name"`
	Ino  uint64   `json:"ino"`
	Type FileType `json:"type"`
}

type CreateRootRequest struct{}

type CreateRootResponse struct {
	Status Status `json:"status"`
	Ino    uint64 `json:"ino"`
}

type MkdirRequest struct {
	Path string `json:"path"`
	Mode uint16 `json:"mode"`
}

type MkdirResponse struct {
	Status Status `json:"status"`
	Ino    uint64 `json:"ino"`
}

type RmdirRequest struct {
	Path string `json:"path"`
}

type RmdirResponse struct {
	Status Status `json:"status"`
}

type CreateFileRequest struct {
	Path string `json:"path"`
	Mode uint16 `json:"mode"`
}

type CreateFileResponse struct {
	Status Status `json:"status"`
	Ino    uint64 `json:"ino"`
}

type RemoveFileRequest struct {
	Path string `json:"path"`
}

type RemoveFileResponse struct {
	Status         Status   `json:"status"`
	DetachedInodes []uint64 `json:"detached_inodes,omitempty"`
}

type TruncateFileRequest struct {
	Path string `json:"path"`
}

type TruncateFileResponse struct {
	Status Status `json:"status"`
	Inode  *Inode `json:"inode,omitempty"`
}

type UpdateFileSizeRequest struct {
	Ino       uint64 `json:"ino"`
	SizeBytes uint64 `json:"size_bytes"`
}

type UpdateFileSizeResponse struct {
	Status Status `json:"status"`
}

type LsRequest struct {
	Path string `json:"path"`
}

type LsResponse struct {
	Status  Status   `json:"status"`
	Entries []Dirent `json:"entries,omitempty"`
}

type LookupInoRequest struct {
	Path string `json:"path"`
}

type LookupInoResponse struct {
	Status Status `json:"status"`
	Ino    uint64 `json:"ino"`
}

type FindInodeRequest struct {
	Path string `json:"path"`
}

type FindInodeResponse struct {
	Status    Status `json:"status"`
	InodeBlob []byte `json:"inode_blob,omitempty"`
	VolumeID  string `json:"volume_id,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
}

// MdsRegisterNodeRequest binds a storage node into the inode location
// space; the response carries the 14-bit index new inodes will reference.
type MdsRegisterNodeRequest struct {
	NodeID        string    `json:"node_id"`
	Class         NodeClass `json:"class"`
	CapacityBytes uint64    `json:"capacity_bytes"`
}

type MdsRegisterNodeResponse struct {
	Status    Status `json:"status"`
	NodeIndex uint16 `json:"node_index"`
}

type RegisterVolumeRequest struct {
	VolumeID    string    `json:"volume_id"`
	Class       NodeClass `json:"class"`
	TotalBlocks uint64    `json:"total_blocks"`
	BlockSize   uint32    `json:"block_size"`
}

type RegisterVolumeResponse struct {
	Status Status `json:"status"`
}

type WriteInodeRequest struct {
	Ino       uint64 `json:"ino"`
	InodeBlob []byte `json:"inode_blob"`
}

type WriteInodeResponse struct {
	Status Status `json:"status"`
}

type CollectColdInodesRequest struct {
	MaxCandidates uint32 `json:"max_candidates"`
	MinAgeWindows uint32 `json:"min_age_windows"`
}

type CollectColdInodesResponse struct {
	Status Status   `json:"status"`
	Inos   []uint64 `json:"inos,omitempty"`
}

type CollectColdInodesBitmapRequest struct {
	AgeWindows uint32 `json:"age_windows"`
}

type CollectColdInodesBitmapResponse struct {
	Status      Status `json:"status"`
	Bitmap      []byte `json:"bitmap,omitempty"`
	TotalInodes uint64 `json:"total_inodes"`
}

type CollectColdInodesByAtimePercentRequest struct {
	Percent float64 `json:"percent"`
}

type RebuildInodeTableRequest struct{}

type RebuildInodeTableResponse struct {
	Status  Status `json:"status"`
	Rebuilt uint64 `json:"rebuilt"`
}

// Cluster surface.

type RegisterNodeRequest struct {
	IP       string     `json:"ip"`
	Port     uint32     `json:"port"`
	Hostname string     `json:"hostname"`
	Disks    []DiskInfo `json:"disks,omitempty"`
}

type RegisterNodeResponse struct {
	Status Status `json:"status"`
	NodeID string `json:"node_id,omitempty"`
}

type HeartbeatRequest struct {
	NodeID      string  `json:"node_id"`
	TimestampMs int64   `json:"timestamp_ms"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	InFlight    uint32  `json:"in_flight"`
}

type HeartbeatResponse struct {
	Status       Status `json:"status"`
	RequireRereg bool   `json:"require_rereg"`
}

// Data plane. NodeID routes through the gateway and is ignored by the
// storage node itself.

type WriteChunkRequest struct {
	NodeID   string `json:"node_id,omitempty"`
	ChunkID  uint64 `json:"chunk_id"`
	Offset   uint64 `json:"offset"`
	Data     []byte `json:"data"`
	Checksum uint32 `json:"checksum"`
	Flags    uint32 `json:"flags"`
	Mode     uint32 `json:"mode"`
}

type WriteChunkResponse struct {
	Status       Status `json:"status"`
	BytesWritten uint64 `json:"bytes_written"`
}

type ReadChunkRequest struct {
	NodeID  string `json:"node_id,omitempty"`
	ChunkID uint64 `json:"chunk_id"`
	Offset  uint64 `json:"offset"`
	Length  uint32 `json:"length"`
	Flags   uint32 `json:"flags"`
}

type ReadChunkResponse struct {
	Status    Status `json:"status"`
	BytesRead uint64 `json:"bytes_read"`
	Data      []byte `json:"data,omitempty"`
	Checksum  uint32 `json:"checksum"`
}

type TruncateChunkRequest struct {
	NodeID  string `json:"node_id,omitempty"`
	ChunkID uint64 `json:"chunk_id"`
	Size    uint64 `json:"size"`
}

type TruncateChunkResponse struct {
	Status Status `json:"status"`
}

type UnmountDiskRequest struct {
	NodeID     string `json:"node_id,omitempty"`
	MountPoint string `json:"mount_point"`
}

type UnmountDiskResponse struct {
	Status Status `json:"status"`
}
