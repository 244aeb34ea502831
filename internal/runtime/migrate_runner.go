package runtime

import (
	"context"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/erasure"
	"github.com/gridstore/core/internal/errs"
	"github.com/gridstore/core/internal/fanout"
	"github.com/gridstore/core/internal/migration"
	"github.com/gridstore/core/internal/placement"
	"github.com/gridstore/core/internal/quorum"
	"github.com/gridstore/core/internal/registry"
	"github.com/gridstore/core/internal/topology"
)

// migrationRunner builds the four-step migration.TaskRunner: read the
// object off its old set, write it to wherever the current topology now
// places it, record the new placement in the registry, then best-effort
// delete the old copy. oldTopo is the snapshot the scan was run
// against, used to resolve each task's old-set disks directly — by the
// time a task runs, the live ring already routes (bucket,key) lookups to
// the new set, so the old copy is unreachable through normal placement.
func (rt *Runtime) migrationRunner(oldTopo *topology.ClusterTopology) migration.TaskRunner {
	return func(ctx context.Context, t migration.Task, throttle *migration.Throttle) error {
		const op = "runtime.migrationRunner"

		oldSet, err := oldTopo.SetAt(t.OldPoolIdx, t.OldSetIdx)
		if err != nil {
			return errs.New(errs.InvalidState, op, err)
		}

		numChunks := rt.cfg.Erasure.DataShards + rt.cfg.Erasure.ParityShards
		if len(oldSet.Disks) < numChunks {
			numChunks = len(oldSet.Disks)
		}
		disks := make([]disk.Capability, numChunks)
		for i, ref := range oldSet.Disks[:numChunks] {
			disks[i] = rt.resolveDisk(ref)
		}

		metaResults := fanout.ReadMetas(disks, t.ObjectPath)
		rec, err := quorum.ReadMeta(metaResults, len(disks))
		if err != nil {
			return errs.New(errs.QuorumFailed, op, err)
		}

		var data []byte
		if rec.IsInline() {
			data = append([]byte(nil), rec.InlineData...)
		} else {
			chunkDisks, err := placement.Reorder(disks, rec.Erasure.Distribution)
			if err != nil {
				return errs.New(errs.InvalidMeta, op, err)
			}
			chunkResults := fanout.ReadChunks(chunkDisks, t.ObjectPath)
			shards := make([][]byte, len(disks))
			for _, r := range chunkResults {
				if r.Err != nil || r.Data == nil {
					continue
				}
				if r.Index < len(rec.Erasure.Checksums) && !erasure.VerifyShard(r.Data, rec.Erasure.Checksums[r.Index].Hash) {
					continue
				}
				shards[r.Index] = r.Data
			}
			codec, err := erasure.New(rec.Erasure.Data, rec.Erasure.Parity)
			if err != nil {
				return errs.New(errs.InvalidMeta, op, err)
			}
			data, err = codec.Decode(shards, int64(rec.Stat.Size))
			if err != nil {
				return errs.New(errs.InsufficientShards, op, err)
			}
		}

		throttle.Wait(int64(len(data)))

		if _, err := rt.Store.Put(t.Bucket, t.Key, data, rec.Meta); err != nil {
			return errs.New(errs.IO, op, err)
		}

		if rt.registryNode != nil && rt.registryNode.IsLeader() {
			if err := rt.registryNode.PutPlacement(registry.Placement{
				Bucket: t.Bucket,
				Key: t.Key,
				PoolIdx: t.NewPoolIdx,
				SetIdx: t.NewSetIdx,
			}); err != nil {
				return errs.New(errs.RPC, op, err)
			}
		}

		for _, d := range disks {
			d.DeleteMeta(t.ObjectPath)
			for idx := 1; idx <= numChunks; idx++ {
				d.DeleteChunk(t.ObjectPath, idx)
			}
		}
		return nil
	}
}
