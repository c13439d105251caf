package catalog

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
)

const dirCF = kvstore.CF("dir")

// StoreColumns lists the kv column families the catalog owns. Callers
// append them to the store kv option before opening it.
func StoreColumns() []kvstore.CF {
	return []kvstore.CF{dirCF, pathCF, nodeCF}
}

var (
	dirKeyPrefix = []byte("d")
	keyInfix     = []byte("/")
)

// dirStore keeps one entry page per directory inode in the kv store.
// Entries preserve insertion order; names compare byte-wise.
type dirStore struct {
	kvStore kvstore.Store
}

func (s *dirStore) Add(ctx context.Context, dirIno uint64, entry proto.Dirent) error {
	if len(entry.Name) == 0 || len(entry.Name) > proto.MaxNameLen {
		return errors.ErrInvalidArgument
	}
	entries, err := s.Read(ctx, dirIno)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].Name == entry.Name {
			return errors.ErrDuplicateEntry
		}
	}
	entries = append(entries, entry)
	return s.put(ctx, dirIno, entries)
}

func (s *dirStore) Remove(ctx context.Context, dirIno uint64, name string) error {
	entries, err := s.Read(ctx, dirIno)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].Name == name {
			entries = append(entries[:i], entries[i+1:]...)
			return s.put(ctx, dirIno, entries)
		}
	}
	return errors.ErrEntryNotFound
}

func (s *dirStore) Read(ctx context.Context, dirIno uint64) ([]proto.Dirent, error) {
	data, err := s.kvStore.GetRaw(ctx, dirCF, encodeDirKey(dirIno), nil)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var entries []proto.Dirent
	if err = json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *dirStore) Reset(ctx context.Context, dirIno uint64) error {
	return s.put(ctx, dirIno, []proto.Dirent{})
}

func (s *dirStore) Delete(ctx context.Context, dirIno uint64) error {
	return s.kvStore.Delete(ctx, dirCF, encodeDirKey(dirIno), nil)
}

func (s *dirStore) put(ctx context.Context, dirIno uint64, entries []proto.Dirent) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.kvStore.SetRaw(ctx, dirCF, encodeDirKey(dirIno), data, nil)
}

func encodeDirKey(dirIno uint64) []byte {
	ret := make([]byte, 0, len(dirKeyPrefix)+len(keyInfix)+8)
	ret = append(ret, dirKeyPrefix...)
	ret = append(ret, keyInfix...)
	binary.BigEndian.PutUint64(ret[cap(ret)-8:], dirIno)
	return ret[:cap(ret)]
}
