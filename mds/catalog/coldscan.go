// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package catalog

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/chunkfs/proto"
)

// ageWindow is the granularity of cold-scan age filters.
const ageWindow = 24 * time.Hour

type coldCandidate struct {
	ino uint64
	key uint32
}

// scanByAtime walks every allocated slot and returns candidates ordered
// oldest access first, ino ascending on ties. A non-zero cutoff drops
// inodes accessed at or after it.
func (c *catalog) scanByAtime(ctx context.Context, cutoff uint32) []coldCandidate {
	span := trace.SpanFromContextSafe(ctx)

	var candidates []coldCandidate
	c.store.Allocator().Walk(func(ino uint64) bool {
		inode, err := c.store.Inodes().Read(ino)
		if err != nil {
			span.Warnf("cold scan: read ino %d failed: %s", ino, err)
			return true
		}
		key := inode.FATime.SortKey()
		if cutoff != 0 && key >= cutoff {
			return true
		}
		candidates = append(candidates, coldCandidate{ino: ino, key: key})
		return true
	})
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].key != candidates[j].key {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].ino < candidates[j].ino
	})
	return candidates
}

func (c *catalog) CollectColdInodes(ctx context.Context, maxCandidates uint32, minAgeWindows uint32) ([]uint64, error) {
	span := trace.SpanFromContextSafe(ctx)

	cutoff := uint32(0)
	if minAgeWindows > 0 {
		cutoff = ageCutoff(minAgeWindows)
	}
	candidates := c.scanByAtime(ctx, cutoff)
	if maxCandidates > 0 && uint32(len(candidates)) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	inos := make([]uint64, 0, len(candidates))
	for _, cand := range candidates {
		inos = append(inos, cand.ino)
	}
	span.Infof("cold scan picked %d inodes, min age %d windows", len(inos), minAgeWindows)
	return inos, nil
}

// CollectColdInodesByAtimePercent returns the coldest percent of all
// allocated inodes. Any positive percent yields at least one candidate
// when inodes exist.
func (c *catalog) CollectColdInodesByAtimePercent(ctx context.Context, percent float64) ([]uint64, error) {
	if percent < 0 || percent > 100 {
		return nil, nil
	}
	candidates := c.scanByAtime(ctx, 0)
	take := int(math.Ceil(percent / 100 * float64(len(candidates))))
	if take == 0 && percent > 0 && len(candidates) > 0 {
		take = 1
	}
	if take > len(candidates) {
		take = len(candidates)
	}
	inos := make([]uint64, 0, take)
	for _, cand := range candidates[:take] {
		inos = append(inos, cand.ino)
	}
	return inos, nil
}

// CollectColdInodesBitmap maps the age window count onto a percentage,
// twenty points per window capped at the full population, and returns the
// picked inodes as a bitmap over the slot space.
func (c *catalog) CollectColdInodesBitmap(ctx context.Context, ageWindows uint32) ([]byte, uint64, error) {
	percent := float64(ageWindows) * 20
	if percent > 100 {
		percent = 100
	}
	inos, err := c.CollectColdInodesByAtimePercent(ctx, percent)
	if err != nil {
		return nil, 0, err
	}
	total := c.store.Allocator().TotalInodes()
	bitmap := make([]byte, (total+7)/8)
	for _, ino := range inos {
		if ino >= total {
			continue
		}
		bitmap[ino/8] |= 1 << (ino % 8)
	}
	return bitmap, uint64(len(inos)), nil
}

func ageCutoff(windows uint32) uint32 {
	at := time.Now().Add(-time.Duration(windows) * ageWindow)
	return proto.NewTimestamp(at).SortKey()
}
