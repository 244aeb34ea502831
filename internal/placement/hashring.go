// Package placement implements the consistent-hash ring and the
// placement() function that maps a (bucket,key) under a topology snapshot
// to an ordered list of K+M disks.
package placement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultVnodes = 128

// Ring is a consistent-hash ring whose virtual nodes are labelled by an
// encoded node_id = pool*1000 + set. It is safe for concurrent use.
type Ring struct {
	mu sync.RWMutex
	vnodes int
	hashes []uint64 // sorted virtual-node hashes
	owner map[uint64]int // virtual-node hash -> node_id
	present map[int]bool
}

// NewRing creates a ring with vnodes virtual nodes per physical node_id.
func NewRing(vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = defaultVnodes
	}
	return &Ring{
		vnodes: vnodes,
		owner: make(map[uint64]int),
		present: make(map[int]bool),
	}
}

// AddNode inserts a node_id's virtual nodes into the ring.
func (r *Ring) AddNode(nodeID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.present[nodeID] {
		return
	}
	r.present[nodeID] = true
	for i := 0; i < r.vnodes; i++ {
		h := xxhash.Sum64String(fmt.Sprintf("%d-%d", nodeID, i))
		r.hashes = append(r.hashes, h)
		r.owner[h] = nodeID
	}
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })
}

// RemoveNode removes a node_id's virtual nodes from the ring.
func (r *Ring) RemoveNode(nodeID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.present[nodeID] {
		return
	}
	delete(r.present, nodeID)
	kept := r.hashes[:0:0]
	for _, h := range r.hashes {
		if r.owner[h] == nodeID {
			delete(r.owner, h)
			continue
		}
		kept = append(kept, h)
	}
	r.hashes = kept
}

// Lookup returns the owning node_id for bucket+"/"+key. Ties on the ring
// (two virtual nodes landing on the same hash) go to the node inserted
// last, since AddNode overwrites an existing hash-to-owner mapping — in
// practice xxhash collisions at 64 bits are not observed, so this is a
// formality.
func (r *Ring) Lookup(bucket, key string) (int, bool) {
	nodes := r.LookupN(bucket, key, 1)
	if len(nodes) == 0 {
		return 0, false
	}
	return nodes[0], true
}

// LookupN returns up to n distinct node_ids walking clockwise from the
// key's position. Its only caller is Lookup, with n=1, since a set is the
// whole durability unit.
func (r *Ring) LookupN(bucket, key string, n int) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.hashes) == 0 {
		return nil
	}
	h := xxhash.Sum64String(bucket + "/" + key)
	idx := sort.Search(len(r.hashes), func(i int) bool { return r.hashes[i] >= h })
	if idx >= len(r.hashes) {
		idx = 0
	}
	if n > len(r.present) {
		n = len(r.present)
	}
	seen := make(map[int]bool, n)
	out := make([]int, 0, n)
	for i := 0; i < len(r.hashes) && len(out) < n; i++ {
		pos := (idx + i) % len(r.hashes)
		node := r.owner[r.hashes[pos]]
		if !seen[node] {
			seen[node] = true
			out = append(out, node)
		}
	}
	return out
}

// NodeCount returns the number of distinct physical nodes in the ring.
func (r *Ring) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.present)
}

// HasNode reports whether node_id is present.
func (r *Ring) HasNode(nodeID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.present[nodeID]
}
