package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridstore/core/internal/config"
	"github.com/gridstore/core/internal/migration"
	"github.com/gridstore/core/internal/topology"
	"github.com/gridstore/core/internal/xlmeta"
)

func baseConfig(roots []string) *config.Config {
	return &config.Config{
		Storage:   config.StorageConfig{DiskRoots: roots},
		Erasure:   config.ErasureConfig{DataShards: 2, ParityShards: 1},
		Placement: config.PlacementConfig{VirtualNodes: 64},
		Detector:  config.DetectorConfig{ProbeIntervalSecs: 60, SuspectAfter: 3, DownAfter: 6, ProbeTimeoutSecs: 1},
		Cache:     config.CacheConfig{MaxEntries: 1000, TTLSecs: 60},
		Migration: config.MigrationConfig{PoolSize: 4, QueueCapacity: 64},
	}
}

func diskRefsFor(roots []string) []topology.DiskRef {
	var refs []topology.DiskRef
	for _, r := range roots {
		refs = append(refs, topology.DiskRef{Endpoint: "local://" + filepath.Clean(r)})
	}
	return refs
}

func singleSetTopology(roots []string, gen int) *topology.ClusterTopology {
	refs := diskRefsFor(roots)
	return &topology.ClusterTopology{
		Generation: gen,
		Pools:      []topology.Pool{{Sets: []topology.Set{{DiskCount: len(refs), Disks: refs}}}},
	}
}

// twoSetTopology builds a topology whose set 0 is unchanged (same disks as
// sharedRoots) and whose set 1 is brand new, modeling added capacity rather
// than a wholesale reshuffle.
func twoSetTopology(sharedRoots, newRoots []string, gen int) *topology.ClusterTopology {
	shared := diskRefsFor(sharedRoots)
	fresh := diskRefsFor(newRoots)
	return &topology.ClusterTopology{
		Generation: gen,
		Pools: []topology.Pool{{Sets: []topology.Set{
			{DiskCount: len(shared), Disks: shared},
			{DiskCount: len(fresh), Disks: fresh},
		}}},
	}
}

func TestNew_WiresLocalDisksAndObjectStore(t *testing.T) {
	roots := []string{t.TempDir(), t.TempDir(), t.TempDir()}
	cfg := baseConfig(roots)
	topo := singleSetTopology(roots, 1)

	rt, err := New(cfg, topo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	if len(rt.LocalDiskRoots()) != 3 {
		t.Errorf("LocalDiskRoots() has %d entries, want 3", len(rt.LocalDiskRoots()))
	}
	if rt.HealthMonitor() == nil {
		t.Error("expected a non-nil HealthMonitor")
	}
	if rt.Store == nil {
		t.Fatal("expected a non-nil object Store")
	}

	if _, err := rt.Store.Put("b1", "k1", []byte("hello runtime"), xlmeta.ObjectMeta{ContentType: "text/plain"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, _, err := rt.Store.Get("b1", "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello runtime" {
		t.Errorf("Get returned %q, want %q", data, "hello runtime")
	}
}

func TestClose_IsSafeWithoutRegistryOrEvents(t *testing.T) {
	roots := []string{t.TempDir()}
	cfg := baseConfig(roots)
	topo := singleSetTopology(roots, 1)

	rt, err := New(cfg, topo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	roots := []string{"/data/disk1", "/data/disk2"}
	if !isLocalEndpoint("local://"+filepath.Clean("/data/disk1"), roots) {
		t.Error("expected /data/disk1 to be recognized as local")
	}
	if isLocalEndpoint("http://10.0.0.5:9000/disk1", roots) {
		t.Error("did not expect a remote endpoint to be recognized as local")
	}
}

func TestDiskPathOf(t *testing.T) {
	got := diskPathOf("http://10.0.1.5:9000/data1")
	if got != "data1" {
		t.Errorf("diskPathOf = %q, want %q", got, "data1")
	}
	if got := diskPathOf("://not a url"); got != "" {
		t.Errorf("diskPathOf on malformed url = %q, want empty", got)
	}
}

// TestMigration_MovesOnlyRelocatedObjectsAndLeavesUntouchedOnesInPlace builds
// an old topology (one set, sharedRoots) and a new topology that keeps that
// set unchanged but adds a second set (newRoots). Objects whose ring lookup
// doesn't change stay on sharedRoots untouched; objects that move to the
// new set get read off sharedRoots, written under the new topology, and
// deleted from their old location.
func TestMigration_MovesOnlyRelocatedObjectsAndLeavesUntouchedOnesInPlace(t *testing.T) {
	sharedRoots := []string{t.TempDir(), t.TempDir(), t.TempDir()}
	newRoots := []string{t.TempDir(), t.TempDir(), t.TempDir()}

	oldTopo := singleSetTopology(sharedRoots, 1)
	newTopo := twoSetTopology(sharedRoots, newRoots, 2)

	// Seed data using the old topology shape.
	seedCfg := baseConfig(sharedRoots)
	seedRT, err := New(seedCfg, oldTopo)
	if err != nil {
		t.Fatalf("New (seed): %v", err)
	}
	const bucket = "migbucket"
	const numObjects = 24
	wantByKey := make(map[string][]byte, numObjects)
	for i := 0; i < numObjects; i++ {
		key := fmt.Sprintf("object-%02d", i)
		var data []byte
		if i%6 == 0 {
			// A handful of objects large enough to require erasure coding,
			// so the migration runner's shard-decode path runs too.
			data = []byte(fmt.Sprintf("%0*d", xlmeta.InlineThreshold+1024, i))
		} else {
			data = []byte(fmt.Sprintf("payload-for-%s", key))
		}
		if _, err := seedRT.Store.Put(bucket, key, data, xlmeta.ObjectMeta{ContentType: "application/octet-stream"}); err != nil {
			t.Fatalf("seed Put(%s): %v", key, err)
		}
		wantByKey[key] = data
	}
	seedRT.Close()

	// Determine, using a standalone scan against the same (unmutated) disk
	// state, which of these objects the migration is expected to move.
	scanCfg := baseConfig(sharedRoots)
	scanRT, err := New(scanCfg, oldTopo)
	if err != nil {
		t.Fatalf("New (scan): %v", err)
	}
	probe := migration.NewScanner(oldTopo, newTopo, 3)
	expectedMoves := probe.Scan(scanRT.LocalDiskRoots())
	scanRT.Close()
	if len(expectedMoves) == 0 {
		t.Fatal("expected at least one object to require migration between a 1-set and 2-set topology")
	}
	// The scanner emits one task per xl.meta copy, so count distinct keys.
	movedKeys := make(map[string]bool, len(expectedMoves))
	for _, task := range expectedMoves {
		movedKeys[task.Key] = true
	}
	if len(movedKeys) >= numObjects {
		t.Fatal("expected at least one object to stay in place")
	}

	// Build the runtime under test spanning both old and new disk roots,
	// with the new topology as its live shape.
	cfg := baseConfig(append(append([]string{}, sharedRoots...), newRoots...))
	rt, err := New(cfg, newTopo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	orch := rt.NewMigrationOrchestrator(oldTopo, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := orch.Start(ctx, rt.LocalDiskRoots(), 4, 64); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := orch.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := orch.State(); got != migration.Completed {
		t.Errorf("final state = %v, want Completed", got)
	}

	// Every moved task's key is now reachable through the live (new)
	// topology, carrying the original payload.
	for _, task := range expectedMoves {
		want, ok := wantByKey[task.Key]
		if !ok {
			t.Errorf("task for unknown key %q", task.Key)
			continue
		}
		data, _, err := rt.Store.Get(task.Bucket, task.Key)
		if err != nil {
			t.Errorf("Get(%s) after migration: %v", task.Key, err)
			continue
		}
		if string(data) != string(want) {
			t.Errorf("Get(%s) = %q, want %q", task.Key, data, want)
		}
	}
}
