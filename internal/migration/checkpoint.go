package migration

import (
	"encoding/json"
	"os"
	"time"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/errs"
)

// Checkpoint is the on-disk progress record saved every 1000 completed
// tasks or every 5 minutes, whichever comes first.
type Checkpoint struct {
	State string `json:"state"`
	TasksTotal int `json:"tasks_total"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed int64 `json:"tasks_failed"`
	BytesMigrated int64 `json:"bytes_migrated"`
	BytesTotal int64 `json:"bytes_total"`
	SavedAt time.Time `json:"saved_at"`
}

// SaveCheckpoint atomically writes cp to path (write-tmp-then-rename, same
// pattern as xl.meta writes).
func SaveCheckpoint(path string, cp Checkpoint) error {
	const op = "migration.SaveCheckpoint"
	buf, err := json.MarshalIndent(cp, "", " ")
	if err != nil {
		return errs.New(errs.InvalidArg, op, err)
	}
	if err := disk.AtomicWrite(path, buf); err != nil {
		return errs.New(errs.IO, op, err)
	}
	return nil
}

// LoadCheckpoint reads a previously saved checkpoint and returns the
// record; nothing in this package rebuilds or resumes an Orchestrator
// from it.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	const op = "migration.LoadCheckpoint"
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, op, err)
		}
		return nil, errs.New(errs.IO, op, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errs.New(errs.InvalidMeta, op, err)
	}
	return &cp, nil
}
