package main

import (
	"fmt"

	"github.com/gridstore/core/internal/config"
	"github.com/gridstore/core/internal/runtime"
	"github.com/gridstore/core/internal/topology"
)

// openRuntime loads the node config and its current topology, then builds
// a Runtime over them. gridctl runs in-process against the same disk
// roots a gridstored instance would use, rather than over a network API —
// this tool is meant to be run on (or against a shared mount from) the
// node being operated on.
func openRuntime() (*config.Config, *topology.ClusterTopology, *runtime.Runtime) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(fmt.Sprintf("load config: %v", err))
	}
	topo, err := topology.Load(cfg.Topology.FilePath)
	if err != nil {
		fatal(fmt.Sprintf("load topology: %v", err))
	}
	rt, err := runtime.New(cfg, topo)
	if err != nil {
		fatal(fmt.Sprintf("start runtime: %v", err))
	}
	return cfg, topo, rt
}
