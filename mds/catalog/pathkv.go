package catalog

import (
	"context"
	"encoding/binary"

	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/util"
)

const pathCF = kvstore.CF("path")

// pathKV is the persistent path to inode index. It is a secondary index:
// the inode slot content is authoritative and the index is repaired by
// RebuildInodeTable when they disagree.
type pathKV struct {
	kvStore kvstore.Store
}

func (p *pathKV) Put(ctx context.Context, path string, ino uint64) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, ino)
	return p.kvStore.SetRaw(ctx, pathCF, util.StringsToBytes(path), val, nil)
}

func (p *pathKV) Get(ctx context.Context, path string) (uint64, error) {
	data, err := p.kvStore.GetRaw(ctx, pathCF, util.StringsToBytes(path), nil)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return 0, errors.ErrNotFound
		}
		return 0, err
	}
	if len(data) != 8 {
		return 0, errors.ErrInvalidArgument
	}
	return binary.BigEndian.Uint64(data), nil
}

func (p *pathKV) Delete(ctx context.Context, path string) error {
	return p.kvStore.Delete(ctx, pathCF, util.StringsToBytes(path), nil)
}
