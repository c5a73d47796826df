// Package stats implements the scheduler's single-owner accounting of
// hash throughput and task outcomes.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"golang.org/x/time/rate"
)

// Status is the terminal state a completed Task reported to the
// scheduler.
type Status int

const (
	// StatusFound means the task's worker located a qualifying nonce.
	StatusFound Status = iota
	// StatusPreempted means a fresher job batch cut the task short.
	StatusPreempted
	// StatusAbandoned means the task hit its MINING_STEPS*N escape
	// hatch with pending work queued behind it.
	StatusAbandoned
	numStatuses
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusPreempted:
		return "preempted"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// DefaultInterval is the spec's default periodic-log interval.
const DefaultInterval = 120 * time.Second

// Counter is pure accounting, single-owner (the scheduler, or a
// per-worker instance), no concurrency contract.
type Counter struct {
	log         slog.Logger
	start       time.Time
	totalHashes uint64 // atomic: NoteHashes is called from every worker goroutine

	tasksByStatus [numStatuses]uint64
	totalTasks    uint64
	gate          *rate.Limiter
}

// New returns a Counter whose periodic log line is gated to at most
// once per interval.
func New(log slog.Logger, interval time.Duration) *Counter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Counter{
		log:   log,
		start: time.Now(),
		gate:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// NoteHashes adds n attempts to the running hash total. Call this as
// hashes are performed even when the task hasn't completed yet, so the
// rate stays live across long-running tasks. Safe to call concurrently
// from every worker goroutine sharing this Counter.
func (c *Counter) NoteHashes(n uint64) {
	atomic.AddUint64(&c.totalHashes, n)
}

// Record tallies a completed task's final status. The hash total is
// accounted separately via NoteHashes as attempts happen. Unlike
// NoteHashes, Record is only ever called from the scheduler goroutine
// (see internal/scheduler.handleResult), so tasksByStatus/totalTasks
// need no atomic access.
func (c *Counter) Record(status Status) {
	c.tasksByStatus[status]++
	c.totalTasks++
}

// HashRate returns total hashes performed per elapsed second.
func (c *Counter) HashRate() float64 {
	elapsed := time.Since(c.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&c.totalHashes)) / elapsed
}

// TaskRate returns completed tasks per elapsed second.
func (c *Counter) TaskRate() float64 {
	elapsed := time.Since(c.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.totalTasks) / elapsed
}

// MaybeLog emits an aggregate-rate log line if the interval has
// elapsed since the last emission; otherwise it is a no-op. Safe to
// call on every scheduler tick.
func (c *Counter) MaybeLog() {
	if !c.gate.Allow() {
		return
	}
	c.log.Infof("hashrate=%.2f H/s taskrate=%.4f tasks/s total=%d found=%d preempted=%d abandoned=%d",
		c.HashRate(), c.TaskRate(), c.totalTasks,
		c.tasksByStatus[StatusFound], c.tasksByStatus[StatusPreempted], c.tasksByStatus[StatusAbandoned])
}
