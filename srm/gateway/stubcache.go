package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/cubefs/chunkfs/metrics"
)

// StubCache keeps one client connection per storage node. Concurrent
// first dials for the same node are collapsed through singleflight so the
// node never sees a thundering herd of connects.
type StubCache struct {
	lock      sync.RWMutex
	conns     map[string]*grpc.ClientConn
	singleRun singleflight.Group
}

func NewStubCache() *StubCache {
	return &StubCache{conns: make(map[string]*grpc.ClientConn)}
}

func (c *StubCache) Get(ctx context.Context, nodeID, target string) (*grpc.ClientConn, error) {
	c.lock.RLock()
	conn, ok := c.conns[nodeID]
	c.lock.RUnlock()
	if ok {
		return conn, nil
	}

	v, err, _ := c.singleRun.Do(nodeID, func() (interface{}, error) {
		c.lock.RLock()
		conn, ok := c.conns[nodeID]
		c.lock.RUnlock()
		if ok {
			return conn, nil
		}
		conn, err := dial(ctx, target)
		if err != nil {
			return nil, err
		}
		c.lock.Lock()
		c.conns[nodeID] = conn
		c.lock.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*grpc.ClientConn), nil
}

// Evict drops and closes the cached connection, typically after a
// transport failure so the next request re-dials.
func (c *StubCache) Evict(nodeID string) {
	c.lock.Lock()
	conn, ok := c.conns[nodeID]
	delete(c.conns, nodeID)
	c.lock.Unlock()
	if ok {
		conn.Close()
	}
}

func (c *StubCache) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for id, conn := range c.conns {
		conn.Close()
		delete(c.conns, id)
	}
}

func dial(ctx context.Context, target string) (*grpc.ClientConn, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
		grpc.WithUnaryInterceptor(metrics.GRPCClientMetrics.UnaryClientInterceptor()),
	}
	return grpc.DialContext(ctx, target, dialOpts...)
}
