// Package miner wires the TCP socket, channels, and worker pool
// together and owns the process's run-to-completion lifecycle.
package miner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/alephium/alphaminer/internal/config"
	"github.com/alephium/alphaminer/internal/journal"
	"github.com/alephium/alphaminer/internal/logging"
	"github.com/alephium/alphaminer/internal/protocol"
	"github.com/alephium/alphaminer/internal/scheduler"
	"github.com/alephium/alphaminer/internal/stats"
	"github.com/alephium/alphaminer/internal/task"
	"github.com/alephium/alphaminer/internal/worker"
)

var log = logging.SubLogger("MINR")

// dial opens the connection to the mining node. A package variable so
// tests can substitute an in-memory net.Conn for a real TCP dial.
var dial = func(addr string) (net.Conn, error) {
	return net.Dial("tcp", addr)
}

// Run dials the mining node, spins up the read/write loops, the
// worker pool, and the scheduler, then blocks until a fatal error
// surfaces from any of them or ctx is cancelled (e.g. by a signal
// handler in cmd/alphaminer). Graceful shutdown beyond that point is
// out of scope: the process exits and the OS reclaims everything.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.IP, cfg.Port)
	log.Infof("connecting to %s with %d cpu workers", addr, cfg.Workers)
	conn, err := dial(addr)
	if err != nil {
		return protocol.MakeError(protocol.ErrConnectionReset, "failed to connect to "+addr, err)
	}
	defer conn.Close()

	var jr scheduler.Journal
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		jr = j
		log.Infof("submission journal enabled at %s", cfg.JournalPath)
	}

	netIn := make(chan protocol.Message, 32)
	netOut := make(chan protocol.Message, 32)
	workCh := make(chan task.WorkUnit, cfg.Workers*2)
	resultCh := make(chan task.Task, cfg.Workers)
	stopCh := make(chan struct{})

	counter := stats.New(logging.SubLogger("CNTR"), config.DefaultInterval)

	workers := make([]*worker.Worker, cfg.Workers)
	for i := range workers {
		workers[i] = worker.New(i, workCh, resultCh, stopCh, counter, logging.SubLogger("WORK"))
	}

	sched := scheduler.New(scheduler.Config{
		NetIn:    netIn,
		NetOut:   netOut,
		ResultCh: resultCh,
		WorkCh:   workCh,
		Workers:  workers,
		Counter:  counter,
		Journal:  jr,
		Log:      logging.SubLogger("SCHD"),
	})

	// Workers start only after the scheduler has wired its generation
	// counter into each of them.
	for _, w := range workers {
		go w.Run()
	}

	readErrCh := make(chan error, 1)
	writeErrCh := make(chan error, 1)
	schedErrCh := make(chan error, 1)

	go func() { readErrCh <- readLoop(ctx, conn, netIn) }()
	go func() { writeErrCh <- writeLoop(ctx, conn, netOut) }()
	go func() { schedErrCh <- sched.Run(ctx) }()

	select {
	case <-ctx.Done():
		close(stopCh)
		return nil
	case err := <-readErrCh:
		close(stopCh)
		return err
	case err := <-writeErrCh:
		close(stopCh)
		return err
	case err := <-schedErrCh:
		close(stopCh)
		return err
	}
}

// readLoop decodes frames off conn and forwards them to out until the
// connection closes, ctx is cancelled, or a protocol error surfaces.
func readLoop(ctx context.Context, conn net.Conn, out chan<- protocol.Message) error {
	r := protocol.NewReader(conn)
	for {
		payload, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		msg, n, err := protocol.DecodeMessage(payload)
		if err != nil {
			return err
		}
		if n != len(payload) {
			return protocol.MakeError(protocol.ErrMalformedFrame,
				fmt.Sprintf("frame has %d trailing bytes after message", len(payload)-n), nil)
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// writeLoop encodes messages the scheduler tags for submission and
// flushes them to conn until in closes or ctx is cancelled.
func writeLoop(ctx context.Context, conn net.Conn, in <-chan protocol.Message) error {
	w := protocol.NewWriter(conn)
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			payload, err := protocol.EncodeMessage(msg)
			if err != nil {
				return err
			}
			if err := w.WriteFrame(payload); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
