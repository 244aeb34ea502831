package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/raft"
)

// CommandType identifies a registry Raft log entry's shape.
type CommandType int

const (
	CmdPutPlacement CommandType = iota
	CmdDeletePlacement
)

// Command is the Raft log payload applied by FSM.Apply.
type Command struct {
	Type CommandType `json:"type"`
	Data json.RawMessage `json:"data"`
}

// FSM implements raft.FSM over a Store.
type FSM struct {
	store *Store
}

func NewFSM(store *Store) *FSM { return &FSM{store: store} }

func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		slog.Error("registry: failed to unmarshal command", "error", err)
		return fmt.Errorf("unmarshal command: %w", err)
	}
	switch cmd.Type {
	case CmdPutPlacement:
		var p Placement
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.put(p)
	case CmdDeletePlacement:
		var p struct {
			Bucket, Key, VersionID string
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.delete(p.Bucket, p.Key, p.VersionID)
	default:
		return fmt.Errorf("registry: unknown command type %d", cmd.Type)
	}
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{store: f.store}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	return f.store.RestoreSnapshot(rc)
}

type fsmSnapshot struct {
	store *Store
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := s.store.WriteSnapshot(sink); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

func marshalPutPlacement(p Placement) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Command{Type: CmdPutPlacement, Data: data})
}

func marshalDeletePlacement(bucket, key, versionID string) ([]byte, error) {
	data, err := json.Marshal(struct{ Bucket, Key, VersionID string }{bucket, key, versionID})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Command{Type: CmdDeletePlacement, Data: data})
}
