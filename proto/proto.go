package proto

import "math"

const (
	// SlotSize is the fixed on-disk footprint of one serialized inode.
	SlotSize = 512

	// InvalidIno is the sentinel returned by lookups that miss.
	InvalidIno = uint64(math.MaxUint64)

	RootIno = uint64(2)

	ReqIdKey = "req-id"
)

type (
	Ino     = uint64
	ChunkID = uint64
)
