// Package topology holds the externally-owned cluster shape: pools of sets
// of disks, and the generation counter that versions it. The core never
// mutates a topology; it keeps non-owning references to snapshots supplied
// by the caller.
package topology

import (
	"encoding/json"
	"fmt"
	"os"
)

// DiskRef identifies one disk within a set.
type DiskRef struct {
	Endpoint string `json:"endpoint"` // scheme+host+port carrying the node address and disk path
	UUID     string `json:"uuid"`
	Capacity int64  `json:"capacity"`
}

// Set is a fixed-size durability unit: all K+M shards of an object placed in
// this set live on its disks.
type Set struct {
	DiskCount int       `json:"disk_count"`
	Disks     []DiskRef `json:"disks"`
}

// Pool groups sets.
type Pool struct {
	Sets []Set `json:"sets"`
}

// ClusterTopology is a single immutable snapshot of cluster shape.
type ClusterTopology struct {
	Generation   int    `json:"generation"`
	DeploymentID string `json:"deployment_id"`
	Pools        []Pool `json:"pools"`
}

// NodeID encodes (poolIdx, setIdx) into the consistent-hash ring's virtual
// node label: node_id = pool*1000 + set.
func NodeID(poolIdx, setIdx int) int {
	return poolIdx*1000 + setIdx
}

// DecodeNodeID reverses NodeID.
func DecodeNodeID(nodeID int) (poolIdx, setIdx int) {
	return nodeID / 1000, nodeID % 1000
}

// SetAt returns the identified set, or an error if the coordinates are out
// of range for this topology snapshot.
func (t *ClusterTopology) SetAt(poolIdx, setIdx int) (*Set, error) {
	if poolIdx < 0 || poolIdx >= len(t.Pools) {
		return nil, fmt.Errorf("topology: pool index %d out of range (generation %d)", poolIdx, t.Generation)
	}
	p := &t.Pools[poolIdx]
	if setIdx < 0 || setIdx >= len(p.Sets) {
		return nil, fmt.Errorf("topology: set index %d out of range in pool %d (generation %d)", setIdx, poolIdx, t.Generation)
	}
	return &p.Sets[setIdx], nil
}

// AllNodeIDs enumerates every (pool,set) coordinate as a ring node_id, in a
// stable pool-major, set-minor order.
func (t *ClusterTopology) AllNodeIDs() []int {
	ids := make([]int, 0)
	for pi, p := range t.Pools {
		for si := range p.Sets {
			ids = append(ids, NodeID(pi, si))
		}
	}
	return ids
}

// Load reads a ClusterTopology snapshot from a JSON file. The core treats
// the result as caller-owned: it reads from it but never mutates or
// persists it back.
func Load(path string) (*ClusterTopology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: read %q: %w", path, err)
	}
	var t ClusterTopology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("topology: parse %q: %w", path, err)
	}
	return &t, nil
}
