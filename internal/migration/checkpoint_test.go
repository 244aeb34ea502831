package migration

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gridstore/core/internal/errs"
)

func TestSaveLoadCheckpoint_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	cp := Checkpoint{
		State: "Migrating", TasksTotal: 10, TasksCompleted: 4, TasksFailed: 1,
		BytesMigrated: 4096, BytesTotal: 10240, SavedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := SaveCheckpoint(path, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got.State != cp.State || got.TasksTotal != cp.TasksTotal || got.TasksCompleted != cp.TasksCompleted {
		t.Errorf("LoadCheckpoint = %+v, want %+v", got, cp)
	}
}

func TestLoadCheckpoint_MissingFile(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing.json"))
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound for a missing checkpoint file, got %v", err)
	}
}
