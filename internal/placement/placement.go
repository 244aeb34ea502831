package placement

import (
	"fmt"
	"sync"

	"github.com/gridstore/core/internal/errs"
	"github.com/gridstore/core/internal/topology"
)

// Result is the placement outcome for one (bucket,key): the owning
// (pool,set) plus that set's disks ordered so that Disks[i] is the disk
// holding chunk index i+1 under the identity distribution — the order a
// fresh write uses by default.
type Result struct {
	PoolIdx int
	SetIdx int
	Disks []topology.DiskRef
}

// IdentityDistribution returns the default sequential distribution 1..n
// that a writer records unless it has a reason to choose otherwise.
func IdentityDistribution(n int) []uint32 {
	d := make([]uint32, n)
	for i := range d {
		d[i] = uint32(i + 1)
	}
	return d
}

// Locate runs the ring lookup for (bucket,key) and resolves the owning set
// under topo, returning its disks truncated/ordered to numChunks entries
// under the identity distribution.
func Locate(ring *Ring, topo *topology.ClusterTopology, bucket, key string, numChunks int) (*Result, error) {
	const op = "placement.Locate"
	nodeID, ok := ring.Lookup(bucket, key)
	if !ok {
		return nil, errs.New(errs.InvalidState, op, fmt.Errorf("ring has no nodes"))
	}
	poolIdx, setIdx := topology.DecodeNodeID(nodeID)
	set, err := topo.SetAt(poolIdx, setIdx)
	if err != nil {
		return nil, errs.New(errs.InvalidState, op, err)
	}
	if len(set.Disks) < numChunks {
		return nil, errs.New(errs.InvalidState, op, fmt.Errorf("set %d/%d has %d disks, need %d", poolIdx, setIdx, len(set.Disks), numChunks))
	}
	disks := append([]topology.DiskRef(nil), set.Disks[:numChunks]...)
	return &Result{PoolIdx: poolIdx, SetIdx: setIdx, Disks: disks}, nil
}

// Reorder maps a previously-written object's distribution back onto a
// set's disk list to recover the chunk-index -> disk ordering used when it
// was written. distribution[slot] holds the 1-based chunk index stored
// at setDisks[slot].
func Reorder(setDisks []topology.DiskRef, distribution []uint32) ([]topology.DiskRef, error) {
	const op = "placement.Reorder"
	n := len(distribution)
	if len(setDisks) < n {
		return nil, errs.New(errs.InvalidMeta, op, fmt.Errorf("set has %d disks, distribution needs %d", len(setDisks), n))
	}
	out := make([]topology.DiskRef, n)
	for slot, chunkIdx := range distribution {
		if chunkIdx < 1 || int(chunkIdx) > n {
			return nil, errs.New(errs.InvalidMeta, op, fmt.Errorf("distribution entry %d out of range", chunkIdx))
		}
		out[chunkIdx-1] = setDisks[slot]
	}
	return out, nil
}

// RingCache builds and caches one Ring per topology generation, so repeated
// placement() calls under an unchanged topology don't rebuild the ring
// ("identical (bucket,key) under identical topology yields an
// identical ordered disk list").
type RingCache struct {
	mu sync.Mutex
	rings map[int]*Ring // generation -> ring
	vnodes int
}

func NewRingCache(vnodes int) *RingCache {
	return &RingCache{rings: make(map[int]*Ring), vnodes: vnodes}
}

// For returns the ring for topo's generation, building it on first use.
func (c *RingCache) For(topo *topology.ClusterTopology) *Ring {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rings[topo.Generation]; ok {
		return r
	}
	r := NewRing(c.vnodes)
	for _, id := range topo.AllNodeIDs() {
		r.AddNode(id)
	}
	c.rings[topo.Generation] = r
	// Bound growth: keep at most the four most recent generations; callers
	// in practice use two (current + the one being migrated from).
	if len(c.rings) > 4 {
		oldest := topo.Generation
		for gen := range c.rings {
			if gen < oldest {
				oldest = gen
			}
		}
		delete(c.rings, oldest)
	}
	return r
}
