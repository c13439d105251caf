package catalog

import (
	"sort"
	"sync"

	"github.com/cubefs/chunkfs/proto"
)

type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

type LockRequest struct {
	Ino  uint64
	Mode LockMode
}

// dirLockTable hands out per-directory reader/writer locks. Lock entries
// are never removed; the table grows with the set of directories touched.
type dirLockTable struct {
	lock  sync.Mutex
	locks map[uint64]*sync.RWMutex
}

func newDirLockTable() *dirLockTable {
	return &dirLockTable{locks: make(map[uint64]*sync.RWMutex)}
}

func (t *dirLockTable) get(ino uint64) *sync.RWMutex {
	t.lock.Lock()
	defer t.lock.Unlock()
	l, ok := t.locks[ino]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[ino] = l
	}
	return l
}

type lockGuard struct {
	held []LockRequest
	t    *dirLockTable
	once sync.Once
}

func (g *lockGuard) Unlock() {
	g.once.Do(func() {
		for i := len(g.held) - 1; i >= 0; i-- {
			l := g.t.get(g.held[i].Ino)
			if g.held[i].Mode == LockExclusive {
				l.Unlock()
			} else {
				l.RUnlock()
			}
		}
	})
}

func (t *dirLockTable) Lock(ino uint64, mode LockMode) *lockGuard {
	return t.LockMany([]LockRequest{{Ino: ino, Mode: mode}})
}

// LockMany acquires a set of directory locks without deadlocking: invalid
// requests are dropped, the rest are sorted by inode ascending, duplicates
// merged with escalation to exclusive, then acquired in order.
func (t *dirLockTable) LockMany(reqs []LockRequest) *lockGuard {
	valid := make([]LockRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.Ino == proto.InvalidIno {
			continue
		}
		valid = append(valid, r)
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Ino != valid[j].Ino {
			return valid[i].Ino < valid[j].Ino
		}
		return valid[i].Mode < valid[j].Mode
	})

	merged := valid[:0]
	for _, r := range valid {
		if n := len(merged); n > 0 && merged[n-1].Ino == r.Ino {
			if r.Mode == LockExclusive {
				merged[n-1].Mode = LockExclusive
			}
			continue
		}
		merged = append(merged, r)
	}

	g := &lockGuard{t: t, held: make([]LockRequest, 0, len(merged))}
	for _, r := range merged {
		l := t.get(r.Ino)
		if r.Mode == LockExclusive {
			l.Lock()
		} else {
			l.RLock()
		}
		g.held = append(g.held, r)
	}
	return g
}
