package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gridstore/core/internal/migration"
	"github.com/gridstore/core/internal/topology"
)

func runMigrate(args []string) {
	if len(args) == 0 {
		fatal("usage: gridctl migrate <start|status>")
	}
	switch args[0] {
	case "start":
		migrateStart()
	case "status":
		migrateStatus()
	default:
		fatal("unknown migrate subcommand: " + args[0])
	}
}

func migrateStart() {
	if topoPath == "" {
		fatal("--old-topology is required for migrate start")
	}
	oldTopo, err := topology.Load(topoPath)
	if err != nil {
		fatal(fmt.Sprintf("load old topology: %v", err))
	}

	cfg, _, rt := openRuntime()
	defer rt.Close()

	orch := rt.NewMigrationOrchestrator(oldTopo, func(p migration.Progress) {
		fmt.Printf("\r%s: %d/%d tasks, %d bytes, %.1f MB/s    ",
			p.State, p.TasksCompleted, p.TasksTotal, p.BytesMigrated, p.Throughput/1024/1024)
	})

	ctx := context.Background()
	if err := orch.Start(ctx, rt.LocalDiskRoots(), cfg.Migration.PoolSize, cfg.Migration.QueueCapacity); err != nil {
		fmt.Fprintln(os.Stderr)
		fatal(fmt.Sprintf("start migration: %v", err))
	}
	if err := orch.Wait(ctx); err != nil {
		fmt.Fprintln(os.Stderr)
		fatal(fmt.Sprintf("migration wait: %v", err))
	}
	fmt.Printf("\nmigration finished: %s\n", orch.State())
}

func migrateStatus() {
	cfg, _, rt := openRuntime()
	defer rt.Close()

	cp, err := migration.LoadCheckpoint(cfg.Migration.CheckpointPath)
	if err != nil {
		fatal(fmt.Sprintf("load checkpoint: %v", err))
	}
	fmt.Printf("state: %s\n", cp.State)
	fmt.Printf("tasks: %d/%d completed, %d failed\n", cp.TasksCompleted, cp.TasksTotal, cp.TasksFailed)
	fmt.Printf("bytes: %d/%d\n", cp.BytesMigrated, cp.BytesTotal)
	fmt.Printf("saved_at: %s\n", cp.SavedAt)
}
