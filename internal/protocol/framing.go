package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// initialBufCap is the frame reader's starting buffer capacity.
const initialBufCap = 4 * 1024

// maxFrameSize bounds a single frame's payload. A length prefix past
// this is a desynchronised or hostile stream, not a real Jobs batch,
// and is rejected before the reader commits the memory for it.
const maxFrameSize = 16 * 1024 * 1024

// Reader parses a TCP byte stream into length-prefixed frames:
// Frame = len(u32) || payload[len]. A frame is complete once the
// buffer holds at least 4+len bytes; the reader then yields payload
// and advances past it (the resolution of the two incompatible
// framing variants named in SPEC_FULL.md §4.2).
type Reader struct {
	r   io.Reader
	buf []byte
	// start and end delimit the unconsumed region of buf: buf[start:end].
	start, end int
}

// NewReader wraps r in a frame Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   r,
		buf: make([]byte, initialBufCap),
	}
}

// pending returns the unconsumed byte count currently buffered.
func (r *Reader) pending() int {
	return r.end - r.start
}

// compact slides the unconsumed region to the start of buf, reclaiming
// space consumed by already-emitted frames.
func (r *Reader) compact() {
	if r.start == 0 {
		return
	}
	n := copy(r.buf, r.buf[r.start:r.end])
	r.start = 0
	r.end = n
}

// grow doubles buf's capacity, preserving the unconsumed region.
func (r *Reader) grow() {
	r.compact()
	bigger := make([]byte, len(r.buf)*2)
	copy(bigger, r.buf[:r.end])
	r.buf = bigger
}

// tryParse attempts to extract one complete frame payload from the
// buffered bytes without reading from the underlying connection.
func (r *Reader) tryParse() ([]byte, bool, error) {
	pending := r.pending()
	if pending < 4 {
		return nil, false, nil
	}
	size := binary.BigEndian.Uint32(r.buf[r.start : r.start+4])
	if size > maxFrameSize {
		return nil, false, MakeError(ErrMalformedFrame,
			fmt.Sprintf("frame length %d exceeds limit %d", size, maxFrameSize), nil)
	}
	if uint64(pending) < 4+uint64(size) {
		// Not enough buffered yet. Make room so the eventual read can
		// land the rest of the frame: compact first, then grow until
		// the frame would fit even if nothing else arrives.
		r.compact()
		for 4+int(size) > len(r.buf) {
			r.grow()
		}
		return nil, false, nil
	}
	payload := make([]byte, size)
	copy(payload, r.buf[r.start+4:r.start+4+int(size)])
	r.start += 4 + int(size)
	return payload, true, nil
}

// ReadFrame blocks until one complete frame payload is available,
// returns io.EOF cleanly at a frame boundary, or ErrConnectionReset
// when EOF lands mid-frame.
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		payload, ok, err := r.tryParse()
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}

		if r.end == len(r.buf) {
			r.grow()
		}
		n, err := r.r.Read(r.buf[r.end:])
		if n > 0 {
			r.end += n
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if r.pending() == 0 {
					return nil, io.EOF
				}
				return nil, MakeError(ErrConnectionReset,
					"EOF with partial frame buffered", err)
			}
			return nil, MakeError(ErrConnectionReset, "read failed", err)
		}
	}
}

// Writer buffers and flushes length-prefixed frames to an underlying
// write half.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w in a frame Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFrame writes the 4-byte big-endian length of payload, inclusive
// of nothing but payload itself (the length field does not count
// itself), then payload, then flushes so the frame hits the wire as
// one unit.
func (w *Writer) WriteFrame(payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return MakeError(ErrConnectionReset, "failed to write frame length", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return MakeError(ErrConnectionReset, "failed to write frame payload", err)
	}
	if err := w.w.Flush(); err != nil {
		return MakeError(ErrConnectionReset, "failed to flush frame", err)
	}
	return nil
}
