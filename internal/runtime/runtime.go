// Package runtime composes the core's subsystems into one process handle:
// disks, placement, the object store, the optional registry, the
// migration engine, and the optional event backends. It owns nothing the
// caller already owns (disk roots, topology) and tears subsystems down in
// reverse construction order on Close.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gridstore/core/internal/config"
	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/diskhealth"
	"github.com/gridstore/core/internal/events"
	"github.com/gridstore/core/internal/metacache"
	"github.com/gridstore/core/internal/migration"
	"github.com/gridstore/core/internal/object"
	"github.com/gridstore/core/internal/placement"
	"github.com/gridstore/core/internal/registry"
	"github.com/gridstore/core/internal/rpctransport"
	"github.com/gridstore/core/internal/topology"
)

// Runtime is the composition root built from a loaded Config and the
// caller-supplied topology. Fields are non-owning references for
// subsystems that make sense to reach directly (the object Store,
// the migration Orchestrator); Close tears down what Runtime itself
// opened (event backends, the registry's raft node and bbolt DB); the
// local disk handles are left as they are.
type Runtime struct {
	cfg *config.Config
	topo *topology.ClusterTopology

	localDisks []*disk.Local
	diskByEnd map[string]disk.Capability
	health *diskhealth.Monitor

	Store *object.Store

	registryStore *registry.Store
	registryNode *registry.Node

	eventBackends []events.Backend

	Orchestrator *migration.Orchestrator
	throttle *migration.Throttle
}

// New builds a Runtime from cfg over topo. topo is the cluster shape the
// caller owns and refreshes; Runtime only ever reads it.
func New(cfg *config.Config, topo *topology.ClusterTopology) (*Runtime, error) {
	rt := &Runtime{cfg: cfg, topo: topo, diskByEnd: make(map[string]disk.Capability)}

	endpoints := make([]string, 0, len(cfg.Storage.DiskRoots))
	for _, root := range cfg.Storage.DiskRoots {
		endpoint := "local://" + filepath.Clean(root)
		ld, err := disk.New(root, endpoint)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("runtime: open disk root %q: %w", root, err)
		}
		rt.localDisks = append(rt.localDisks, ld)
		rt.diskByEnd[endpoint] = ld
		endpoints = append(endpoints, endpoint)
	}

	for _, pool := range topo.Pools {
		for _, set := range pool.Sets {
			for _, d := range set.Disks {
				if _, ok := rt.diskByEnd[d.Endpoint]; ok {
					continue
				}
				if isLocalEndpoint(d.Endpoint, cfg.Storage.DiskRoots) {
					continue
				}
				rt.diskByEnd[d.Endpoint] = rpctransport.New(d.Endpoint, diskPathOf(d.Endpoint))
				endpoints = append(endpoints, d.Endpoint)
			}
		}
	}

	rt.health = diskhealth.NewMonitor(endpoints, diskhealth.Config{
		ProbeInterval: time.Duration(cfg.Detector.ProbeIntervalSecs) * time.Second,
		ProbeTimeout: time.Duration(cfg.Detector.ProbeTimeoutSecs) * time.Second,
		SuspectAfter: cfg.Detector.SuspectAfter,
		OfflineAfter: cfg.Detector.DownAfter,
	})

	cache := metacache.New(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSecs)*time.Second)
	rings := placement.NewRingCache(cfg.Placement.VirtualNodes)

	rt.Store = &object.Store{
		Topo: topo,
		Rings: rings,
		Cache: cache,
		DataShards: cfg.Erasure.DataShards,
		ParityShards: cfg.Erasure.ParityShards,
		Disks: rt.resolveDisk,
	}

	if cfg.Registry.Enabled {
		rstore, err := registry.Open(filepath.Join(cfg.Registry.DataDir, "placements.db"))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("runtime: open registry store: %w", err)
		}
		rt.registryStore = rstore

		node, err := registry.NewNode(registry.Config{
			NodeID: cfg.Registry.NodeID,
			BindAddr: cfg.Registry.BindAddr,
			RaftPort: cfg.Registry.RaftPort,
			DataDir: cfg.Registry.DataDir,
			Bootstrap: cfg.Registry.Bootstrap,
			Peers: cfg.Registry.Peers,
			SnapshotCount: cfg.Registry.SnapshotCount,
		}, rstore)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("runtime: start registry node: %w", err)
		}
		rt.registryNode = node
	}

	if cfg.Events.Kafka.Enabled {
		rt.eventBackends = append(rt.eventBackends, events.NewKafkaBackend(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic))
	}
	if cfg.Events.Redis.Enabled {
		rt.eventBackends = append(rt.eventBackends, events.NewRedisBackend(cfg.Events.Redis.Addr, cfg.Events.Redis.ProgressChan, cfg.Events.Redis.RateControlKey))
	}
	rt.throttle = migration.NewThrottle(cfg.Migration.RateBytesPerSec, cfg.Migration.BurstBytes)

	if cfg.Events.NATS.Enabled {
		nb, err := events.NewNATSBackend(cfg.Events.NATS.URL, cfg.Events.NATS.Subject, cfg.Events.NATS.RateControlSubject)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("runtime: connect nats backend: %w", err)
		}
		rt.eventBackends = append(rt.eventBackends, nb)
		if cfg.Events.NATS.RateControlSubject != "" {
			go rt.watchRateControl(nb.RateControlUpdates())
		}
	}

	return rt, nil
}

// watchRateControl applies every rate-control message received over ch to
// the migration throttle, serialized by the throttle's own lock the same
// way a local SetRate call would be.
func (rt *Runtime) watchRateControl(ch <-chan events.RateControl) {
	for rc := range ch {
		rt.throttle.SetRate(rc.RateBytesPerSec)
		slog.Info("runtime: throttle rate updated", "rate_bytes_per_sec", rc.RateBytesPerSec)
	}
}

// resolveDisk satisfies object.Store's Disks field: map a topology disk
// reference to the live Capability handle Runtime opened for it.
func (rt *Runtime) resolveDisk(ref topology.DiskRef) disk.Capability {
	if c, ok := rt.diskByEnd[ref.Endpoint]; ok {
		return c
	}
	remote := rpctransport.New(ref.Endpoint, diskPathOf(ref.Endpoint))
	rt.diskByEnd[ref.Endpoint] = remote
	return remote
}

// LocalDiskRoots returns the opened local disk handles, the set a
// migration scan walks.
func (rt *Runtime) LocalDiskRoots() []*disk.Local { return rt.localDisks }

// HealthMonitor returns the disk health prober for this runtime.
func (rt *Runtime) HealthMonitor() *diskhealth.Monitor { return rt.health }

// PublishEvent fans an event out to every configured backend, logging
// (not failing) on a backend that errors.
func (rt *Runtime) PublishEvent(evt events.Event) {
	for _, b := range rt.eventBackends {
		go func(b events.Backend) {
			if err := b.Publish(context.Background(), evt); err != nil {
				slog.Warn("runtime: event publish failed", "backend", b.Name(), "error", err)
			}
		}(b)
	}
}

// NewMigrationOrchestrator builds an orchestrator for a topology change
// from oldTopo (the shape the on-disk objects were placed under) to
// rt.topo (the shape they should end up under), wired to this runtime's
// throttle, registry and event backends.
func (rt *Runtime) NewMigrationOrchestrator(oldTopo *topology.ClusterTopology, onProgress migration.ProgressFunc) *migration.Orchestrator {
	numChunks := rt.cfg.Erasure.DataShards + rt.cfg.Erasure.ParityShards
	scanner := migration.NewScanner(oldTopo, rt.topo, numChunks)
	runner := rt.migrationRunner(oldTopo)
	orch := migration.NewOrchestrator(scanner, runner, rt.throttle, migration.Config{
		PoolSize: rt.cfg.Migration.PoolSize,
		QueueCapacity: rt.cfg.Migration.QueueCapacity,
		CheckpointPath: rt.cfg.Migration.CheckpointPath,
		OnProgress: onProgress,
	})
	rt.Orchestrator = orch
	return orch
}

// Close tears down every subsystem Runtime opened, in reverse order.
func (rt *Runtime) Close() error {
	for _, b := range rt.eventBackends {
		if err := b.Close(); err != nil {
			slog.Warn("runtime: closing event backend", "backend", b.Name(), "error", err)
		}
	}
	if rt.registryNode != nil {
		if err := rt.registryNode.Shutdown(); err != nil {
			slog.Warn("runtime: registry shutdown", "error", err)
		}
	}
	if rt.registryStore != nil {
		if err := rt.registryStore.Close(); err != nil {
			slog.Warn("runtime: registry store close", "error", err)
		}
	}
	return nil
}

func isLocalEndpoint(endpoint string, roots []string) bool {
	for _, root := range roots {
		if endpoint == "local://"+filepath.Clean(root) {
			return true
		}
	}
	return false
}

// diskPathOf recovers the remote disk's filesystem path from its endpoint
// URL, carried as the path component (e.g. "http://10.0.1.5:9000/data1").
func diskPathOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
