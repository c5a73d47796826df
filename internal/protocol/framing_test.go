package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	payloads := [][]byte{
		[]byte("a"),
		{},
		bytes.Repeat([]byte{0x42}, 9000), // forces a buffer grow on read
	}
	for _, p := range payloads {
		require.NoError(t, w.WriteFrame(p))
	}

	r := NewReader(&buf)
	for _, want := range payloads {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := r.ReadFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderByteAtATime(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFrame([]byte("hello world")))
	require.NoError(t, w.WriteFrame([]byte("second frame")))

	// A reader that trickles one byte per Read call exercises the
	// "at least 4+size buffered" completion rule explicitly.
	r := NewReader(&trickleReader{data: buf.Bytes()})

	got, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)

	got, err = r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("second frame"), got)
}

func TestFrameReaderPartialFrameIsConnectionReset(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFrame([]byte("complete frame body")))
	full := buf.Bytes()
	truncated := full[:len(full)-3]

	r := NewReader(bytes.NewReader(truncated))
	_, err := r.ReadFrame()
	require.Error(t, err)
	require.True(t, IsError(err, ErrConnectionReset))
}

func TestFrameReaderRejectsOversizedLength(t *testing.T) {
	// A length prefix past maxFrameSize must fail fast instead of
	// committing the reader to a multi-gigabyte buffer.
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], maxFrameSize+1)

	r := NewReader(bytes.NewReader(hdr[:]))
	_, err := r.ReadFrame()
	require.Error(t, err)
	require.True(t, IsError(err, ErrMalformedFrame))
}

func TestFrameReaderCleanEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.ReadFrame()
	require.True(t, errors.Is(err, io.EOF))
}

type trickleReader struct {
	data []byte
	pos  int
}

func (t *trickleReader) Read(p []byte) (int, error) {
	if t.pos >= len(t.data) {
		return 0, io.EOF
	}
	p[0] = t.data[t.pos]
	t.pos++
	return 1, nil
}
