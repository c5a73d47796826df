// Package task defines the unit of mining work dispatched between the
// scheduler and its workers.
package task

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/alephium/alphaminer/internal/protocol"
	"github.com/alephium/alphaminer/internal/stats"
)

// Task is a Job paired with mining state. Owned by at most one worker
// at a time; every transition produces a new value rather than
// mutating in place.
type Task struct {
	ID         uint64
	Generation uint64
	Job        protocol.Job

	WorkerID  int
	HashCount uint64
	Status    stats.Status
	Nonce     [protocol.NonceSize]byte
	StartTime time.Time
	EndTime   time.Time
}

// IsTerminal reports whether t has completed (FOUND, PREEMPTED, or
// ABANDONED) versus still being assigned to a worker.
func (t Task) IsTerminal() bool {
	return !t.EndTime.IsZero()
}

// randomID draws a random, process-unique u64 task id.
func randomID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the system entropy source is
		// broken; fall back to a time-derived id rather than panic.
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(b[:])
}

// New builds a fresh Task for job, stamped with the given generation
// (the scheduler's batch counter, used to discard stale queued work —
// see SPEC_FULL.md §4.5/§9).
func New(job protocol.Job, generation uint64) Task {
	return Task{
		ID:         randomID(),
		Generation: generation,
		Job:        job,
	}
}

// Assign returns a copy of t claimed by workerID and marked started.
func (t Task) Assign(workerID int) Task {
	t.WorkerID = workerID
	t.StartTime = time.Now()
	return t
}

// Complete returns a copy of t transitioned to a terminal status.
func (t Task) Complete(status stats.Status, hashCount uint64, nonce [protocol.NonceSize]byte) Task {
	t.Status = status
	t.HashCount = hashCount
	t.Nonce = nonce
	t.EndTime = time.Now()
	return t
}

// UnitKind discriminates a WorkUnit's variant.
type UnitKind int

const (
	// UnitTaskReq carries a Task a worker should start mining.
	UnitTaskReq UnitKind = iota
	// UnitTaskRes carries a cancellation/ack keyed by task id,
	// reserved for future fan-in use; the current scheduler models
	// preemption via each worker's atomic flag instead (see
	// SPEC_FULL.md §9) and never emits this variant.
	UnitTaskRes
)

// WorkUnit is the value dispatched over the work queue.
type WorkUnit struct {
	Kind   UnitKind
	Task   Task
	TaskID uint64
	Result stats.Status
}

// TaskReq wraps t as a start-mining work unit.
func TaskReq(t Task) WorkUnit {
	return WorkUnit{Kind: UnitTaskReq, Task: t}
}
