package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleJobs() Jobs {
	return Jobs{
		{From: 0, To: 1, Header: []byte("header0"), Txs: []byte("txs0"), Target: []byte{0x01, 0x00, 0x00}},
		{From: 3, To: 2, Header: []byte{}, Txs: []byte{}, Target: []byte{0xff}},
	}
}

func TestMessageRoundTrip(t *testing.T) {
	cases := []Message{
		{Kind: KindJobs, Jobs: sampleJobs()},
		{Kind: KindJobs, Jobs: Jobs{}},
		{Kind: KindSubmitResult, SubmitResult: &SubmitResult{From: 1, To: 2, Status: true}},
		{Kind: KindSubmitResult, SubmitResult: &SubmitResult{From: 0, To: 0, Status: false}},
		{
			Kind: KindSubmitReq,
			SubmitReq: &SubmitReq{
				Nonce:  [NonceSize]byte{1, 2, 3},
				Header: []byte("header"),
				Txs:    []byte("txs"),
			},
		},
	}

	for _, m := range cases {
		wire, err := EncodeMessage(m)
		require.NoError(t, err)

		got, n, err := DecodeMessage(wire)
		require.NoError(t, err)
		require.Equal(t, len(wire), n)
		require.Equal(t, m.Kind, got.Kind)

		switch m.Kind {
		case KindJobs:
			require.Equal(t, m.Jobs, got.Jobs)
		case KindSubmitResult:
			require.Equal(t, m.SubmitResult, got.SubmitResult)
		case KindSubmitReq:
			require.Equal(t, m.SubmitReq, got.SubmitReq)
		}
	}
}

func TestMessageLenField(t *testing.T) {
	m := Message{Kind: KindSubmitResult, SubmitResult: &SubmitResult{From: 7, To: 8, Status: true}}
	size, err := BodySize(m)
	require.NoError(t, err)
	// kind(1) excluded, from(4)+to(4)+status(1) = 9.
	require.Equal(t, 9, size)
}

func TestDecodeJobsTruncated(t *testing.T) {
	full := EncodeJobs(sampleJobs())
	_, _, err := DecodeJobs(full[:len(full)-1])
	require.Error(t, err)
	require.True(t, IsError(err, ErrIncomplete))
}

func TestDecodeMessageTruncatedBodyIsMalformed(t *testing.T) {
	wire, err := EncodeMessage(Message{Kind: KindJobs, Jobs: sampleJobs()})
	require.NoError(t, err)

	// The frame is complete as far as the reader is concerned, so a
	// body running short means the stream is desynchronised, not that
	// more bytes are coming.
	_, _, err = DecodeMessage(wire[:len(wire)-1])
	require.Error(t, err)
	require.True(t, IsError(err, ErrMalformedFrame))

	_, _, err = DecodeMessage(nil)
	require.Error(t, err)
	require.True(t, IsError(err, ErrMalformedFrame))
}

func TestDecodeUnknownKind(t *testing.T) {
	_, _, err := DecodeMessage([]byte{0xff, 0x00})
	require.Error(t, err)
	require.True(t, IsError(err, ErrMalformedFrame))
}

func TestTargetTooLong(t *testing.T) {
	buf := putU32(nil, 0) // from
	buf = putU32(buf, 0)  // to
	buf = putVarBytes(buf, nil)
	buf = putVarBytes(buf, nil)
	bigTarget := make([]byte, MaxTargetSize+1)
	buf = putVarBytes(buf, bigTarget)

	_, _, err := decodeJob(buf)
	require.Error(t, err)
	require.True(t, IsError(err, ErrMalformedFrame))
}
