package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/errs"
)

// State is one node of the orchestrator's state machine.
type State int

const (
	Idle State = iota
	Scanning
	Migrating
	Paused
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Scanning:
		return "Scanning"
	case Migrating:
		return "Migrating"
	case Paused:
		return "Paused"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

var transitions = map[State]map[State]bool{
	Idle: {Scanning: true},
	Scanning: {Migrating: true, Completed: true, Failed: true},
	Migrating: {Paused: true, Completed: true, Failed: true},
	Paused: {Migrating: true, Failed: true},
}

func (s State) canTransitionTo(next State) bool {
	return transitions[s][next]
}

func (s State) terminal() bool { return s == Completed || s == Failed }

// Progress is a point-in-time view of migration status.
type Progress struct {
	State State
	TasksTotal int
	TasksCompleted int64
	TasksFailed int64
	BytesMigrated int64
	BytesTotal int64
	Throughput float64
	ETA time.Duration
}

// ProgressFunc is invoked on every Wait tick while the run is Migrating.
type ProgressFunc func(Progress)

// Orchestrator drives one migration run: scan, spin up a worker pool,
// submit tasks, and track the run to completion or failure.
type Orchestrator struct {
	mu sync.Mutex
	state State

	scanner *Scanner
	pool *Pool
	runner TaskRunner
	throttle *Throttle

	checkpointPath string
	onProgress ProgressFunc

	tasksTotal int
	bytesTotal int64
	cancel context.CancelFunc
}

// Config configures an orchestrator run.
type Config struct {
	PoolSize int
	QueueCapacity int
	CheckpointPath string
	OnProgress ProgressFunc
}

// NewOrchestrator builds an orchestrator in the Idle state.
func NewOrchestrator(scanner *Scanner, runner TaskRunner, throttle *Throttle, cfg Config) *Orchestrator {
	return &Orchestrator{
		state: Idle,
		scanner: scanner,
		runner: runner,
		throttle: throttle,
		checkpointPath: cfg.CheckpointPath,
		onProgress: cfg.OnProgress,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(next State) error {
	const op = "migration.Orchestrator.transition"
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.canTransitionTo(next) {
		return errs.New(errs.InvalidState, op, fmt.Errorf("%s -> %s not allowed", o.state, next))
	}
	o.state = next
	return nil
}

// Start runs the scanner; if it finds no work the run completes
// immediately, otherwise a worker pool is spun up and every task
// submitted.
func (o *Orchestrator) Start(ctx context.Context, roots []*disk.Local, poolSize, queueCap int) error {
	if err := o.transition(Scanning); err != nil {
		return err
	}
	tasks := o.scanner.Scan(roots)

	o.mu.Lock()
	o.tasksTotal = len(tasks)
	var bytesTotal int64
	for _, t := range tasks {
		bytesTotal += t.Size
	}
	o.bytesTotal = bytesTotal
	o.mu.Unlock()

	if len(tasks) == 0 {
		return o.transition(Completed)
	}
	if err := o.transition(Migrating); err != nil {
		return err
	}

	o.mu.Lock()
	o.pool = NewPool(poolSize, queueCap, o.runner, o.throttle)
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	o.pool.Start(runCtx)
	for _, t := range tasks {
		o.pool.Submit(t)
	}
	return nil
}

// Pause stops the worker pool: its context is cancelled and the workers
// drain whatever is still queued before exiting. The orchestrator keeps no
// list of unfinished tasks, so Resume takes the tasks to resubmit from its
// caller.
func (o *Orchestrator) Pause() error {
	if err := o.transition(Paused); err != nil {
		return err
	}
	o.mu.Lock()
	pool := o.pool
	o.mu.Unlock()
	if pool != nil {
		pool.Stop()
	}
	return nil
}

// Resume restarts the worker pool after a pause.
func (o *Orchestrator) Resume(ctx context.Context, poolSize, queueCap int, remaining []Task) error {
	if err := o.transition(Migrating); err != nil {
		return err
	}
	o.mu.Lock()
	o.pool = NewPool(poolSize, queueCap, o.runner, o.throttle)
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()
	o.pool.Start(runCtx)
	for _, t := range remaining {
		o.pool.Submit(t)
	}
	return nil
}

// Stop forces the run to Failed unless it is already terminal.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state.terminal() {
		o.mu.Unlock()
		return
	}
	o.state = Failed
	pool := o.pool
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if pool != nil {
		pool.Stop()
	}
}

// Wait polls the pool every 100ms, reporting progress and checkpointing
// until the run reaches Completed or Failed.
func (o *Orchestrator) Wait(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var lastCheckpoint time.Time
	var sinceCheckpoint int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		o.mu.Lock()
		state := o.state
		pool := o.pool
		tasksTotal := o.tasksTotal
		bytesTotal := o.bytesTotal
		o.mu.Unlock()

		if state != Migrating {
			if state.terminal() {
				o.saveCheckpoint(Progress{State: state, TasksTotal: tasksTotal, BytesTotal: bytesTotal})
				return nil
			}
			continue
		}

		stats := pool.StatsSnapshot()
		progress := Progress{
			State: state, TasksTotal: tasksTotal,
			TasksCompleted: stats.TasksCompleted, TasksFailed: stats.TasksFailed,
			BytesMigrated: stats.BytesMigrated, BytesTotal: bytesTotal,
			Throughput: stats.Throughput(),
		}
		if stats.Throughput() > 0 {
			remaining := bytesTotal - stats.BytesMigrated
			progress.ETA = time.Duration(float64(remaining)/stats.Throughput()) * time.Second
		}
		if o.onProgress != nil {
			o.onProgress(progress)
		}

		if o.shouldCheckpoint(&lastCheckpoint, &sinceCheckpoint, stats.TasksCompleted) {
			o.saveCheckpoint(progress)
		}

		if pool.QueueLen() == 0 && stats.ActiveWorkers == 0 {
			o.mu.Lock()
			o.state = Completed
			o.mu.Unlock()
			progress.State = Completed
			o.saveCheckpoint(progress)
			return nil
		}
	}
}

func (o *Orchestrator) shouldCheckpoint(last *time.Time, sinceCount *int64, completed int64) bool {
	if completed-*sinceCount >= 1000 || time.Since(*last) >= 5*time.Minute {
		*last = time.Now()
		*sinceCount = completed
		return true
	}
	return false
}

func (o *Orchestrator) saveCheckpoint(p Progress) {
	if o.checkpointPath == "" {
		return
	}
	cp := Checkpoint{
		State: p.State.String(), TasksTotal: p.TasksTotal,
		TasksCompleted: p.TasksCompleted, TasksFailed: p.TasksFailed,
		BytesMigrated: p.BytesMigrated, BytesTotal: p.BytesTotal,
		SavedAt: time.Now().UTC(),
	}
	SaveCheckpoint(o.checkpointPath, cp)
}
