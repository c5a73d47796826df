// Package protocol implements the length-prefixed, big-endian wire
// protocol exchanged with the mining node: job broadcast decoding and
// submission encoding, byte-exact with the server.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

const (
	// NonceSize is the fixed width, in bytes, of a submitted nonce.
	NonceSize = 24

	// GroupNums is the Alephium default group count.
	GroupNums = 4
	// ChainNums is the Alephium default chain-pair count (GroupNums^2).
	ChainNums = 16

	// MaxTargetSize bounds a Job's target field per the data model
	// invariant len(target) <= 32.
	MaxTargetSize = 32
)

// MessageKind is the wire discriminator byte for a Message body.
type MessageKind uint8

const (
	// KindJobs identifies a server->client Jobs batch.
	KindJobs MessageKind = 0
	// KindSubmitResult identifies a server->client submission
	// acknowledgement.
	KindSubmitResult MessageKind = 1
	// KindSubmitReq identifies a client->server winning-nonce
	// submission. Distinct from KindJobs/KindSubmitResult so a
	// desynchronised stream can never misread a submission as a job
	// batch or vice versa (see SPEC_FULL.md §4.1 open-question
	// resolution).
	KindSubmitReq MessageKind = 2
)

// Job is one mining task descriptor for a single chain pair.
type Job struct {
	From   uint32
	To     uint32
	Header []byte
	Txs    []byte
	Target []byte
}

// Jobs is a batch of Job, the unit the server broadcasts on every
// chain-pair refresh.
type Jobs []Job

// SubmitResult is the server's acknowledgement of a submitted nonce.
type SubmitResult struct {
	From   uint32
	To     uint32
	Status bool
}

// SubmitReq is a client-originated winning-nonce submission.
type SubmitReq struct {
	Nonce  [NonceSize]byte
	Header []byte
	Txs    []byte
}

// Message is the decoded form of one wire frame's payload (kind byte
// plus body), excluding the frame's own 4-byte length prefix.
type Message struct {
	Kind         MessageKind
	Jobs         Jobs
	SubmitResult *SubmitResult
	SubmitReq    *SubmitReq
}

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 0x01)
	}
	return append(buf, 0x00)
}

func putVarBytes(buf []byte, b []byte) []byte {
	buf = putU32(buf, uint32(len(b)))
	return append(buf, b...)
}

func readU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, MakeError(ErrIncomplete, "need 4 bytes for u32", nil)
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}

func readBool(b []byte) (bool, []byte, error) {
	if len(b) < 1 {
		return false, nil, MakeError(ErrIncomplete, "need 1 byte for bool", nil)
	}
	return b[0] != 0, b[1:], nil
}

func readVarBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := readU32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < uint64(n) {
		return nil, nil, MakeError(ErrIncomplete,
			fmt.Sprintf("need %d bytes, have %d", n, len(rest)), nil)
	}
	out := make([]byte, n)
	copy(out, rest[:n])
	return out, rest[n:], nil
}

// encodeJob appends the wire encoding of j to buf.
func encodeJob(buf []byte, j Job) []byte {
	buf = putU32(buf, j.From)
	buf = putU32(buf, j.To)
	buf = putVarBytes(buf, j.Header)
	buf = putVarBytes(buf, j.Txs)
	buf = putVarBytes(buf, j.Target)
	return buf
}

func decodeJob(b []byte) (Job, []byte, error) {
	var j Job
	var err error
	j.From, b, err = readU32(b)
	if err != nil {
		return j, nil, err
	}
	j.To, b, err = readU32(b)
	if err != nil {
		return j, nil, err
	}
	j.Header, b, err = readVarBytes(b)
	if err != nil {
		return j, nil, err
	}
	j.Txs, b, err = readVarBytes(b)
	if err != nil {
		return j, nil, err
	}
	j.Target, b, err = readVarBytes(b)
	if err != nil {
		return j, nil, err
	}
	if len(j.Target) > MaxTargetSize {
		return j, nil, MakeError(ErrMalformedFrame,
			fmt.Sprintf("target too long: %d bytes", len(j.Target)), nil)
	}
	return j, b, nil
}

// EncodeJobs returns the wire encoding of a Jobs batch: a u32 count
// followed by the concatenation of each Job's encoding.
func EncodeJobs(jobs Jobs) []byte {
	buf := putU32(nil, uint32(len(jobs)))
	for _, j := range jobs {
		buf = encodeJob(buf, j)
	}
	return buf
}

// DecodeJobs decodes a Jobs batch, returning the number of bytes
// consumed from b.
func DecodeJobs(b []byte) (Jobs, int, error) {
	orig := len(b)
	n, rest, err := readU32(b)
	if err != nil {
		return nil, 0, err
	}
	jobs := make(Jobs, 0, n)
	for i := uint32(0); i < n; i++ {
		var j Job
		j, rest, err = decodeJob(rest)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	return jobs, orig - len(rest), nil
}

// EncodeMessage returns the wire payload for m: the kind byte followed
// by the body, excluding the frame's own length prefix (the frame
// writer is responsible for that — see framing.go).
func EncodeMessage(m Message) ([]byte, error) {
	switch m.Kind {
	case KindJobs:
		body := EncodeJobs(m.Jobs)
		return append([]byte{byte(KindJobs)}, body...), nil

	case KindSubmitResult:
		if m.SubmitResult == nil {
			return nil, MakeError(ErrMalformedFrame, "nil SubmitResult body", nil)
		}
		buf := []byte{byte(KindSubmitResult)}
		buf = putU32(buf, m.SubmitResult.From)
		buf = putU32(buf, m.SubmitResult.To)
		buf = putBool(buf, m.SubmitResult.Status)
		return buf, nil

	case KindSubmitReq:
		if m.SubmitReq == nil {
			return nil, MakeError(ErrMalformedFrame, "nil SubmitReq body", nil)
		}
		buf := []byte{byte(KindSubmitReq)}
		buf = append(buf, m.SubmitReq.Nonce[:]...)
		buf = putVarBytes(buf, m.SubmitReq.Header)
		buf = putVarBytes(buf, m.SubmitReq.Txs)
		return buf, nil

	default:
		return nil, MakeError(ErrMalformedFrame,
			fmt.Sprintf("unknown message kind %d", m.Kind), nil)
	}
}

// truncated reclassifies the field readers' ErrIncomplete as
// ErrMalformedFrame: DecodeMessage operates on a complete frame, so
// running short mid-body means the length field and body disagree.
func truncated(err error) error {
	if IsError(err, ErrIncomplete) {
		return MakeError(ErrMalformedFrame, "body shorter than frame claims", err)
	}
	return err
}

// DecodeMessage decodes a Message from payload (the frame's kind byte
// plus body, with no outer length prefix), returning the number of
// bytes consumed. decode(encode(m)) == (m, len(encode(m))) for every
// Message value.
func DecodeMessage(payload []byte) (Message, int, error) {
	if len(payload) < 1 {
		return Message{}, 0, MakeError(ErrMalformedFrame, "empty frame, need kind byte", nil)
	}
	kind := MessageKind(payload[0])
	body := payload[1:]

	switch kind {
	case KindJobs:
		jobs, n, err := DecodeJobs(body)
		if err != nil {
			return Message{}, 0, truncated(err)
		}
		return Message{Kind: KindJobs, Jobs: jobs}, 1 + n, nil

	case KindSubmitResult:
		from, rest, err := readU32(body)
		if err != nil {
			return Message{}, 0, truncated(err)
		}
		to, rest, err := readU32(rest)
		if err != nil {
			return Message{}, 0, truncated(err)
		}
		status, rest, err := readBool(rest)
		if err != nil {
			return Message{}, 0, truncated(err)
		}
		consumed := len(body) - len(rest)
		return Message{
			Kind:         KindSubmitResult,
			SubmitResult: &SubmitResult{From: from, To: to, Status: status},
		}, 1 + consumed, nil

	case KindSubmitReq:
		if len(body) < NonceSize {
			return Message{}, 0, MakeError(ErrMalformedFrame, "need nonce bytes", nil)
		}
		var nonce [NonceSize]byte
		copy(nonce[:], body[:NonceSize])
		rest := body[NonceSize:]
		header, rest, err := readVarBytes(rest)
		if err != nil {
			return Message{}, 0, truncated(err)
		}
		txs, rest, err := readVarBytes(rest)
		if err != nil {
			return Message{}, 0, truncated(err)
		}
		consumed := len(body) - len(rest)
		return Message{
			Kind: KindSubmitReq,
			SubmitReq: &SubmitReq{
				Nonce:  nonce,
				Header: header,
				Txs:    txs,
			},
		}, 1 + consumed, nil

	default:
		return Message{}, 0, MakeError(ErrMalformedFrame,
			fmt.Sprintf("unknown message kind %d in %s", kind, spew.Sdump(payload)), nil)
	}
}

// BodySize returns sizeof(body) for m, without the kind byte, matching
// the Message.len = 1 + sizeof(body) wire field.
func BodySize(m Message) (int, error) {
	wire, err := EncodeMessage(m)
	if err != nil {
		return 0, err
	}
	return len(wire) - 1, nil
}
