// Package scheduler implements the single coordinator goroutine that
// ingests server messages and worker results, fans jobs out to
// workers, preempts stale work when a fresher batch arrives, and
// emits submissions.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/decred/slog"

	"github.com/alephium/alphaminer/internal/protocol"
	"github.com/alephium/alphaminer/internal/stats"
	"github.com/alephium/alphaminer/internal/task"
	"github.com/alephium/alphaminer/internal/worker"
)

// Journal is the optional crash-forensics sink a completed FOUND task
// is appended to. Satisfied by internal/journal.Journal; kept as an
// interface here so the scheduler doesn't depend on bbolt directly.
type Journal interface {
	Append(t task.Task) error
}

// Scheduler is the single coordinator described in SPEC_FULL.md §4.5.
// It must run on the cooperative event-loop side; it never mines.
type Scheduler struct {
	netIn    <-chan protocol.Message
	netOut   chan<- protocol.Message
	resultCh <-chan task.Task
	workCh   chan<- task.WorkUnit
	workers  []*worker.Worker

	generation uint64 // atomic; shared with every worker via SetGenerationCounter

	counter *stats.Counter
	journal Journal
	log     slog.Logger
}

// Config bundles the channel endpoints and collaborators a Scheduler
// needs. All channels are owned by the orchestrator, which also wires
// SetGenerationCounter on each worker before calling New.
type Config struct {
	NetIn    <-chan protocol.Message
	NetOut   chan<- protocol.Message
	ResultCh <-chan task.Task
	WorkCh   chan<- task.WorkUnit
	Workers  []*worker.Worker
	Counter  *stats.Counter
	Journal  Journal // nil disables journaling
	Log      slog.Logger
}

// New builds a Scheduler from cfg.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		netIn:    cfg.NetIn,
		netOut:   cfg.NetOut,
		resultCh: cfg.ResultCh,
		workCh:   cfg.WorkCh,
		workers:  cfg.Workers,
		counter:  cfg.Counter,
		journal:  cfg.Journal,
		log:      cfg.Log,
	}
	for _, w := range s.workers {
		w.SetGenerationCounter(&s.generation)
	}
	return s
}

// Run drives the coordinator loop until ctx is cancelled or a fatal
// error surfaces from either stream.
func (s *Scheduler) Run(ctx context.Context) error {
	statsTick := time.NewTicker(time.Second)
	defer statsTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-s.netIn:
			if !ok {
				return protocol.MakeError(protocol.ErrConnectionReset, "network input closed", nil)
			}
			if err := s.handleMessage(msg); err != nil {
				return err
			}

		case t, ok := <-s.resultCh:
			if !ok {
				return protocol.MakeError(protocol.ErrWorkerRecv, "all workers have exited", nil)
			}
			if err := s.handleResult(t); err != nil {
				return err
			}

		case <-statsTick.C:
			s.counter.MaybeLog()
		}
	}
}

func (s *Scheduler) handleMessage(msg protocol.Message) error {
	switch msg.Kind {
	case protocol.KindJobs:
		s.fanOut(msg.Jobs)
		return nil

	case protocol.KindSubmitResult:
		r := msg.SubmitResult
		if r.Status {
			s.log.Infof("submission for chain (%d,%d) accepted", r.From, r.To)
		} else {
			s.log.Errorf("submission for chain (%d,%d) rejected", r.From, r.To)
		}
		return nil

	default:
		return protocol.MakeError(protocol.ErrMalformedFrame,
			fmt.Sprintf("unexpected message kind %d from server", msg.Kind), nil)
	}
}

// fanOut constructs one Task per Job in batch, stamps them with a
// fresh generation, and pushes them onto the work queue. Workers are
// preempted before the push: the queue is bounded, and a worker deep
// in an old task would otherwise hold the scheduler blocked on a full
// queue until its abandon escape hatch fired. Preempted workers stop
// within one MINING_STEPS window, then drain the queue, discarding
// tasks from the previous generation on pickup (see worker.Worker.Run).
func (s *Scheduler) fanOut(batch protocol.Jobs) {
	gen := atomic.AddUint64(&s.generation, 1)
	for _, w := range s.workers {
		w.Preempt()
	}
	for _, job := range batch {
		s.workCh <- task.TaskReq(task.New(job, gen))
	}
	s.log.Debugf("fanned out %d jobs at generation %d", len(batch), gen)
}

// handleResult records a completed task's outcome and, for FOUND
// tasks, emits exactly one SubmitReq.
func (s *Scheduler) handleResult(t task.Task) error {
	s.counter.Record(t.Status)

	if t.Status != stats.StatusFound {
		return nil
	}

	if s.journal != nil {
		if err := s.journal.Append(t); err != nil {
			s.log.Errorf("journal append failed for task %d: %v", t.ID, err)
		}
	}

	submit := &protocol.SubmitReq{
		Nonce:  t.Nonce,
		Header: t.Job.Header,
		Txs:    t.Job.Txs,
	}
	s.netOut <- protocol.Message{Kind: protocol.KindSubmitReq, SubmitReq: submit}
	s.log.Infof("submitted nonce for chain (%d,%d), task %d, %d attempts",
		t.Job.From, t.Job.To, t.ID, t.HashCount)
	return nil
}
