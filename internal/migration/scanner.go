// Package migration implements the topology-change migration engine:
// scanner, throttle, worker pool, and orchestrator state machine.
package migration

import (
	"sort"
	"sync"
	"time"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/objectpath"
	"github.com/gridstore/core/internal/placement"
	"github.com/gridstore/core/internal/topology"
	"github.com/gridstore/core/internal/xlmeta"
)

// Task is one object that needs to move from its old (pool,set) to its
// new one under a topology change.
type Task struct {
	Bucket string
	Key string
	ObjectPath string
	Size int64
	ModTime time.Time
	OldPoolIdx int
	OldSetIdx int
	NewPoolIdx int
	NewSetIdx int
}

// ScanCounters tallies scan activity; each disk root's counts are merged
// under the scanner's lock when its walker finishes.
type ScanCounters struct {
	ObjectsScanned int64
	TasksEmitted int64
}

// Scanner compares two topology snapshots and emits the set of objects
// whose placement changes between them.
type Scanner struct {
	oldTopo *topology.ClusterTopology
	newTopo *topology.ClusterTopology
	oldRings *placement.RingCache
	newRings *placement.RingCache
	numChunks int

	mu sync.Mutex
	counters ScanCounters
}

// NewScanner creates a scanner comparing oldTopo against newTopo.
// numChunks (K+M) is stored on the scanner; the ring lookups that decide
// whether an object moved do not depend on it.
func NewScanner(oldTopo, newTopo *topology.ClusterTopology, numChunks int) *Scanner {
	return &Scanner{
		oldTopo: oldTopo,
		newTopo: newTopo,
		oldRings: placement.NewRingCache(0),
		newRings: placement.NewRingCache(0),
		numChunks: numChunks,
	}
}

// Scan walks every disk root concurrently (one goroutine per root) and
// returns the merged task vector sorted by size ascending so small
// objects migrate first.
func (s *Scanner) Scan(roots []*disk.Local) []Task {
	var (
		mu sync.Mutex
		tasks []Task
		wg sync.WaitGroup
	)
	for _, root := range roots {
		wg.Add(1)
		go func(root *disk.Local) {
			defer wg.Done()
			local := s.scanRoot(root)
			mu.Lock()
			tasks = append(tasks, local...)
			mu.Unlock()
		}(root)
	}
	wg.Wait()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Size < tasks[j].Size })
	return tasks
}

func (s *Scanner) scanRoot(root *disk.Local) []Task {
	var tasks []Task
	var local ScanCounters
	root.Walk(func(_, _ string, meta *xlmeta.XLMeta) error {
		local.ObjectsScanned++

		// The on-disk directory is sharded purely by (bucket,key) hash and
		// carries no identity of its own; the record itself is the only
		// place that survives, so the real bucket/key come from there, not
		// from the walked path.
		bucket, key := meta.Bucket, meta.Key
		if bucket == "" && key == "" {
			return nil
		}
		oldRing := s.oldRings.For(s.oldTopo)
		newRing := s.newRings.For(s.newTopo)
		oldNode, ok1 := oldRing.Lookup(bucket, key)
		newNode, ok2 := newRing.Lookup(bucket, key)
		if !ok1 || !ok2 {
			return nil
		}
		if oldNode == newNode {
			return nil
		}
		oldPool, oldSet := topology.DecodeNodeID(oldNode)
		newPool, newSet := topology.DecodeNodeID(newNode)
		tasks = append(tasks, Task{
			Bucket: bucket,
			Key: key,
			ObjectPath: objectpath.Path(bucket, key),
			Size: int64(meta.Stat.Size),
			ModTime: meta.Stat.ModTime,
			OldPoolIdx: oldPool, OldSetIdx: oldSet,
			NewPoolIdx: newPool, NewSetIdx: newSet,
		})
		local.TasksEmitted++
		return nil
	})
	s.mu.Lock()
	s.counters.ObjectsScanned += local.ObjectsScanned
	s.counters.TasksEmitted += local.TasksEmitted
	s.mu.Unlock()
	return tasks
}

// Counters returns a snapshot of scan activity.
func (s *Scanner) Counters() ScanCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}
