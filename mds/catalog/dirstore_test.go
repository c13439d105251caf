package catalog

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
	"github.com/cubefs/chunkfs/util"
)

func newTestDirStore(t *testing.T) *dirStore {
	path, err := util.GenTmpPath()
	require.NoError(t, err)

	ctx := context.Background()
	opt := &kvstore.Option{CreateIfMissing: true, ColumnFamily: StoreColumns()}
	kv, err := kvstore.NewKVStore(ctx, path, kvstore.RocksdbLsmKVType, opt)
	require.NoError(t, err)
	t.Cleanup(func() {
		kv.Close()
		os.RemoveAll(path)
	})
	return &dirStore{kvStore: kv}
}

func TestDirStoreAddRead(t *testing.T) {
	s := newTestDirStore(t)
	ctx := context.Background()

	entries, err := s.Read(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, entries)

	require.NoError(t, s.Add(ctx, 1, proto.Dirent{Name: "a", Ino: 10, Type: proto.FileTypeRegular}))
	require.NoError(t, s.Add(ctx, 1, proto.Dirent{Name: "b", Ino: 11, Type: proto.FileTypeDirectory}))

	// entries keep insertion order
	entries, err = s.Read(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].Name)
	require.Equal(t, "b", entries[1].Name)

	require.ErrorIs(t, s.Add(ctx, 1, proto.Dirent{Name: "a", Ino: 12}), errors.ErrDuplicateEntry)
	require.ErrorIs(t, s.Add(ctx, 1, proto.Dirent{Name: ""}), errors.ErrInvalidArgument)
	require.ErrorIs(t, s.Add(ctx, 1, proto.Dirent{Name: strings.Repeat("x", proto.MaxNameLen+1)}), errors.ErrInvalidArgument)
}

func TestDirStoreRemove(t *testing.T) {
	s := newTestDirStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, 1, proto.Dirent{Name: "a", Ino: 10}))
	require.NoError(t, s.Add(ctx, 1, proto.Dirent{Name: "b", Ino: 11}))

	require.NoError(t, s.Remove(ctx, 1, "a"))
	entries, err := s.Read(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Name)

	require.ErrorIs(t, s.Remove(ctx, 1, "a"), errors.ErrEntryNotFound)
}

func TestDirStoreResetDelete(t *testing.T) {
	s := newTestDirStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, 2, proto.Dirent{Name: "a", Ino: 10}))
	require.NoError(t, s.Reset(ctx, 2))

	entries, err := s.Read(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NotNil(t, entries)

	require.NoError(t, s.Delete(ctx, 2))
	entries, err = s.Read(ctx, 2)
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestDirKeyEncoding(t *testing.T) {
	a := encodeDirKey(1)
	b := encodeDirKey(2)
	require.Len(t, a, 10)
	require.NotEqual(t, a, b)
	require.Equal(t, byte('d'), a[0])
}
