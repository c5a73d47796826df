package miner

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alephium/alphaminer/internal/config"
	"github.com/alephium/alphaminer/internal/protocol"
)

// sixteenJobBatch builds the spec's end-to-end scenario: one Job per
// (from,to) pair across a 4x4 chain-index grid, each with a trivially
// satisfiable target so a FOUND result arrives within a handful of
// attempts.
func sixteenJobBatch() protocol.Jobs {
	// A full-width all-0xff target is the largest possible target, so
	// CheckTarget is satisfied by every hash; only the chain-index
	// check (1-in-16 odds per attempt) gates completion.
	var maxTarget [protocol.MaxTargetSize]byte
	for i := range maxTarget {
		maxTarget[i] = 0xff
	}

	jobs := make(protocol.Jobs, 0, 16)
	for from := uint32(0); from < protocol.GroupNums; from++ {
		for to := uint32(0); to < protocol.GroupNums; to++ {
			jobs = append(jobs, protocol.Job{
				From:   from,
				To:     to,
				Header: []byte("end-to-end-header"),
				Txs:    []byte("end-to-end-txs"),
				Target: append([]byte(nil), maxTarget[:]...),
			})
		}
	}
	return jobs
}

// TestEndToEndJobsBatchToSubmission drives the orchestrator against an
// in-memory socket pair: it writes a 16-job batch frame to the "server"
// side, then asserts a SubmitReq frame comes back for one of the 16
// chain pairs with a nonce the client actually computed.
func TestEndToEndJobsBatchToSubmission(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	ln := newPipeListener(clientConn)
	defer ln.Close()

	oldDial := dial
	dial = func(addr string) (net.Conn, error) { return ln.take() }
	defer func() { dial = oldDial }()

	cfg := config.Default()
	cfg.Workers = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- Run(ctx, cfg) }()

	w := protocol.NewWriter(serverConn)
	payload, err := protocol.EncodeMessage(protocol.Message{Kind: protocol.KindJobs, Jobs: sixteenJobBatch()})
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(payload))

	r := protocol.NewReader(serverConn)
	serverConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	frame, err := r.ReadFrame()
	require.NoError(t, err)

	msg, _, err := protocol.DecodeMessage(frame)
	require.NoError(t, err)
	require.Equal(t, protocol.KindSubmitReq, msg.Kind)
	require.NotNil(t, msg.SubmitReq)
	require.Equal(t, []byte("end-to-end-header"), msg.SubmitReq.Header)

	cancel()
	select {
	case <-runErrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not exit after ctx cancellation")
	}
}

// pipeListener adapts a single pre-established net.Pipe half into the
// one-shot dial hook the test installs in place of net.Dial, since
// net.Pipe has no listener of its own.
type pipeListener struct {
	conn net.Conn
	ch   chan net.Conn
}

func newPipeListener(conn net.Conn) *pipeListener {
	l := &pipeListener{conn: conn, ch: make(chan net.Conn, 1)}
	l.ch <- conn
	return l
}

func (l *pipeListener) take() (net.Conn, error) {
	return <-l.ch, nil
}

func (l *pipeListener) Close() error {
	return l.conn.Close()
}
