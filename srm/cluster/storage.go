package cluster

import (
	"context"

	"github.com/cubefs/chunkfs/common/kvstore"
	"github.com/cubefs/chunkfs/proto"
)

const clusterCF = kvstore.CF("node")

// StoreColumns lists the kv column families the registry owns. Callers
// append them to the kv option before opening the store.
func StoreColumns() []kvstore.CF {
	return []kvstore.CF{clusterCF}
}

var (
	nodeKeyPrefix = []byte("n")
	keyInfix      = []byte("/")
)

type storage struct {
	kvStore kvstore.Store
}

func (s *storage) Load(ctx context.Context) ([]*proto.Node, error) {
	lr := s.kvStore.List(ctx, clusterCF, nil, nil, nil)
	defer lr.Close()

	var res []*proto.Node
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, err
		}
		if kg == nil || vg == nil {
			break
		}
		newNode := &proto.Node{}
		err = newNode.Unmarshal(vg.Value())
		if err != nil {
			kg.Close()
			vg.Close()
			return nil, err
		}
		res = append(res, newNode)
		kg.Close()
		vg.Close()
	}

	return res, nil
}

func (s *storage) Put(ctx context.Context, n *proto.Node) error {
	data, err := n.Marshal()
	if err != nil {
		return err
	}
	return s.kvStore.SetRaw(ctx, clusterCF, encodeNodeKey(n.ID), data, nil)
}

func (s *storage) Delete(ctx context.Context, nodeID string) error {
	return s.kvStore.Delete(ctx, clusterCF, encodeNodeKey(nodeID), nil)
}

func encodeNodeKey(nodeID string) []byte {
	ret := make([]byte, 0, len(nodeKeyPrefix)+len(keyInfix)+len(nodeID))
	ret = append(ret, nodeKeyPrefix...)
	ret = append(ret, keyInfix...)
	ret = append(ret, nodeID...)
	return ret
}
