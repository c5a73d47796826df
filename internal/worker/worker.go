// Package worker implements a single mining goroutine: it owns a
// nonce counter, pulls Tasks off the work queue, searches for a
// qualifying nonce via double-BLAKE3, and pushes completed Tasks back
// to the scheduler.
package worker

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"

	"github.com/decred/slog"

	"github.com/alephium/alphaminer/internal/config"
	"github.com/alephium/alphaminer/internal/hashing"
	"github.com/alephium/alphaminer/internal/protocol"
	"github.com/alephium/alphaminer/internal/stats"
	"github.com/alephium/alphaminer/internal/task"
)

// Worker mines one goroutine's worth of nonce space. Never suspends
// except to pull work and push results; the hash loop itself never
// touches a channel.
type Worker struct {
	id int

	nonce [protocol.NonceSize]byte
	hi    uint64
	lo    uint64

	preempt uint32 // atomic bool

	pipeline *hashing.Pipeline
	counter  *stats.Counter
	log      slog.Logger

	workCh   <-chan task.WorkUnit
	resultCh chan<- task.Task
	stopCh   <-chan struct{}

	// currentGen, when non-nil, points at the scheduler's generation
	// counter. A queued Task whose Generation is behind the current
	// value predates the newest Jobs batch and is discarded instead of
	// mined (SPEC_FULL.md §4.5/§9 generation-tracking resolution).
	currentGen *uint64

	// miningSteps and abandonAfter mirror config.MiningSteps and
	// config.MiningSteps*config.AbandonMultiplier; kept as fields
	// (rather than reading the package constants directly) so tests
	// can shrink them instead of running a real multi-billion-attempt
	// search.
	miningSteps  int
	abandonAfter uint64
}

// New builds a Worker identified by id, reading from workCh and
// writing completed tasks to resultCh. stopCh, when closed, unblocks
// any in-flight send to resultCh so shutdown cannot deadlock on a
// scheduler that has already gone away.
func New(id int, workCh <-chan task.WorkUnit, resultCh chan<- task.Task, stopCh <-chan struct{}, counter *stats.Counter, log slog.Logger) *Worker {
	w := &Worker{
		id:           id,
		pipeline:     hashing.NewPipeline(),
		counter:      counter,
		log:          log,
		workCh:       workCh,
		resultCh:     resultCh,
		stopCh:       stopCh,
		miningSteps:  config.MiningSteps,
		abandonAfter: uint64(config.MiningSteps) * uint64(config.AbandonMultiplier),
	}
	binary.BigEndian.PutUint32(w.nonce[16:20], uint32(id))
	return w
}

// SetGenerationCounter wires w to the scheduler's shared generation
// counter so stale queued tasks are discarded rather than mined.
func (w *Worker) SetGenerationCounter(gen *uint64) {
	w.currentGen = gen
}

// Preempt requests that the worker abandon its current task at the
// next MINING_STEPS check. Safe to call concurrently from the
// scheduler goroutine; relaxed visibility is sufficient per
// SPEC_FULL.md §5.
func (w *Worker) Preempt() {
	atomic.StoreUint32(&w.preempt, 1)
}

// Run pulls Tasks from the work queue until it is closed, mining each
// to completion. Must be run as a goroutine, one per OS thread.
func (w *Worker) Run() {
	for unit := range w.workCh {
		if unit.Kind != task.UnitTaskReq {
			continue
		}
		if w.currentGen != nil && unit.Task.Generation < atomic.LoadUint64(w.currentGen) {
			w.log.Debugf("worker %d: discarding stale task %d (generation %d)",
				w.id, unit.Task.ID, unit.Task.Generation)
			continue
		}
		t := unit.Task.Assign(w.id)
		result := w.mine(t)

		select {
		case w.resultCh <- result:
		case <-w.stopCh:
			w.log.Debugf("worker %d: stopping, dropping result for task %d", w.id, result.ID)
			return
		}
	}
	w.log.Debugf("worker %d: work queue closed, exiting", w.id)
}

// startTask resets the worker's nonce counter to zero and rotates its
// random suffix, giving every task a fresh, worker-disjoint nonce
// space (see SPEC_FULL.md §4.1/§9: worker id occupies bytes 16-19,
// a per-task random suffix occupies bytes 20-23, and the monotonic
// 128-bit counter occupies bytes 0-15).
func (w *Worker) startTask() {
	w.hi, w.lo = 0, 0
	binary.BigEndian.PutUint64(w.nonce[0:8], 0)
	binary.BigEndian.PutUint64(w.nonce[8:16], 0)

	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		w.log.Warnf("worker %d: rand.Read failed, reusing prior suffix: %v", w.id, err)
	} else {
		copy(w.nonce[20:24], suffix[:])
	}
	atomic.StoreUint32(&w.preempt, 0)
}

// advanceNonce increments the 128-bit counter occupying nonce[0:16].
func (w *Worker) advanceNonce() {
	w.lo++
	if w.lo == 0 {
		w.hi++
		binary.BigEndian.PutUint64(w.nonce[0:8], w.hi)
	}
	binary.BigEndian.PutUint64(w.nonce[8:16], w.lo)
}

// mine runs t's nonce search to a terminal status.
func (w *Worker) mine(t task.Task) task.Task {
	w.startTask()

	var hash [hashing.DigestSize]byte
	var attempts uint64

	for {
		found := false
		batchStart := attempts
		for step := 0; step < w.miningSteps; step++ {
			w.advanceNonce()
			w.pipeline.Double(w.nonce[:], t.Job.Header, &hash)
			attempts++

			if hashing.CheckTarget(hash, t.Job.Target) && hashing.CheckIndex(hash, t.Job.From, t.Job.To) {
				found = true
				break
			}
		}
		// One shared-counter update per MINING_STEPS batch keeps the
		// atomic add off the hash path.
		w.counter.NoteHashes(attempts - batchStart)
		if found {
			return t.Complete(stats.StatusFound, attempts, w.nonce)
		}
		if atomic.LoadUint32(&w.preempt) != 0 {
			return t.Complete(stats.StatusPreempted, attempts, w.nonce)
		}
		if attempts >= w.abandonAfter && len(w.workCh) > 0 {
			return t.Complete(stats.StatusAbandoned, attempts, w.nonce)
		}
	}
}
