package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"github.com/gridstore/core/internal/errs"
)

const (
	raftTimeout = 10 * time.Second
	leaderWaitTimeout = 30 * time.Second
)

var ErrNotLeader = errors.New("registry: not the raft leader")

// Config configures a Node's Raft transport and storage.
type Config struct {
	NodeID string
	BindAddr string
	RaftPort int
	DataDir string
	Bootstrap bool
	Peers []string // "nodeID@host:port"
	SnapshotCount int
}

func (c *Config) applyDefaults() {
	if c.SnapshotCount <= 0 {
		c.SnapshotCount = 8192
	}
	if c.BindAddr == "" {
		c.BindAddr = "0.0.0.0"
	}
}

// Node is one Raft-replicated registry participant.
type Node struct {
	cfg Config
	raft *raft.Raft
	fsm *FSM
	store *Store
}

// NewNode starts a Raft node over store, bootstrapping or joining per cfg.
func NewNode(cfg Config, store *Store) (*Node, error) {
	const op = "registry.NewNode"
	cfg.applyDefaults()
	if cfg.NodeID == "" {
		return nil, errs.New(errs.InvalidArg, op, fmt.Errorf("node_id is required"))
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errs.New(errs.IO, op, err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.SnapshotThreshold = uint64(cfg.SnapshotCount)

	bindAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.RaftPort)
	tcpAddr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, errs.New(errs.InvalidArg, op, err)
	}
	transport, err := raft.NewTCPTransport(bindAddr, tcpAddr, 3, raftTimeout, os.Stderr)
	if err != nil {
		return nil, errs.New(errs.IO, op, err)
	}

	logStore, err := raftboltdb.New(raftboltdb.Options{Path: filepath.Join(cfg.DataDir, "raft-log.db")})
	if err != nil {
		return nil, errs.New(errs.IO, op, err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 3, os.Stderr)
	if err != nil {
		return nil, errs.New(errs.IO, op, err)
	}

	fsm := NewFSM(store)
	r, err := raft.NewRaft(raftCfg, fsm, logStore, logStore, snapshotStore, transport)
	if err != nil {
		return nil, errs.New(errs.IO, op, err)
	}

	node := &Node{cfg: cfg, raft: r, fsm: fsm, store: store}

	if cfg.Bootstrap {
		servers := []raft.Server{{ID: raft.ServerID(cfg.NodeID), Address: transport.LocalAddr()}}
		future := r.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, errs.New(errs.IO, op, err)
		}
		slog.Info("registry: bootstrapped", "node_id", cfg.NodeID, "addr", bindAddr)
	}

	for _, peer := range cfg.Peers {
		nodeID, addr, ok := ParsePeer(peer)
		if !ok {
			slog.Warn("registry: invalid peer format, expected nodeID@host:port", "peer", peer)
			continue
		}
		if r.State() == raft.Leader {
			if err := r.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, raftTimeout).Error(); err != nil {
				slog.Warn("registry: failed to add peer", "peer", peer, "error", err)
			}
		}
	}

	slog.Info("registry: node started", "node_id", cfg.NodeID, "bind", bindAddr, "peers", len(cfg.Peers))
	return node, nil
}

// PutPlacement replicates a placement record through Raft. Must be called
// on the leader.
func (n *Node) PutPlacement(p Placement) error {
	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}
	data, err := marshalPutPlacement(p)
	if err != nil {
		return err
	}
	return n.apply(data)
}

// DeletePlacement replicates a placement removal through Raft.
func (n *Node) DeletePlacement(bucket, key, versionID string) error {
	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}
	data, err := marshalDeletePlacement(bucket, key, versionID)
	if err != nil {
		return err
	}
	return n.apply(data)
}

func (n *Node) apply(data []byte) error {
	future := n.raft.Apply(data, raftTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("raft apply: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok {
			return err
		}
	}
	return nil
}

// Lookup reads directly from the local store; reads do not need to go
// through Raft since every voter applies the same committed log.
func (n *Node) Lookup(bucket, key, versionID string) (*Placement, bool, error) {
	return n.store.Lookup(bucket, key, versionID)
}

func (n *Node) IsLeader() bool { return n.raft.State() == raft.Leader }

func (n *Node) LeaderAddr() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

func (n *Node) WaitForLeader() error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(leaderWaitTimeout)
	for {
		select {
		case <-ticker.C:
			if n.LeaderAddr() != "" {
				return nil
			}
		case <-timeout:
			return fmt.Errorf("registry: timed out waiting for leader election")
		}
	}
}

func (n *Node) Join(nodeID, addr string) error {
	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}
	return n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, raftTimeout).Error()
}

func (n *Node) Leave(nodeID string) error {
	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}
	return n.raft.RemoveServer(raft.ServerID(nodeID), 0, raftTimeout).Error()
}

func (n *Node) Shutdown() error { return n.raft.Shutdown().Error() }

func (n *Node) NodeID() string { return n.cfg.NodeID }

// ParsePeer splits "nodeID@host:port" into nodeID and host:port.
func ParsePeer(peer string) (nodeID, addr string, ok bool) {
	parts := strings.SplitN(peer, "@", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
