// Package hashing implements the double-BLAKE3 proof-of-work pipeline:
// hashing nonce‖header, and the target/chain-index admissibility
// predicates evaluated against the result.
package hashing

import "github.com/zeebo/blake3"

// DigestSize is the BLAKE3 digest width in bytes.
const DigestSize = 32

const (
	// GroupNums is the Alephium default group count.
	GroupNums = 4
	// ChainNums is the Alephium default chain-pair count (GroupNums^2).
	ChainNums = 16
)

// Pipeline holds the reusable BLAKE3 hasher state for one worker's
// inner loop, so repeated attempts allocate nothing on the hash path.
type Pipeline struct {
	inner *blake3.Hasher
	outer *blake3.Hasher
	mid   [DigestSize]byte
}

// NewPipeline returns a Pipeline ready for repeated Double calls.
func NewPipeline() *Pipeline {
	return &Pipeline{
		inner: blake3.New(),
		outer: blake3.New(),
	}
}

// Double computes BLAKE3(BLAKE3(nonce‖header)) into out, reusing the
// pipeline's hasher state across calls.
func (p *Pipeline) Double(nonce, header []byte, out *[DigestSize]byte) {
	p.inner.Reset()
	p.inner.Write(nonce)
	p.inner.Write(header)
	p.mid = [DigestSize]byte{}
	p.inner.Sum(p.mid[:0])

	p.outer.Reset()
	p.outer.Write(p.mid[:])
	*out = [DigestSize]byte{}
	p.outer.Sum(out[:0])
}

// Double is the stateless, allocating equivalent of Pipeline.Double,
// used by tests and by call sites outside the worker's hot loop.
func Double(data ...[]byte) [DigestSize]byte {
	inner := blake3.New()
	for _, d := range data {
		inner.Write(d)
	}
	var mid [DigestSize]byte
	inner.Sum(mid[:0])

	outer := blake3.New()
	outer.Write(mid[:])
	var out [DigestSize]byte
	outer.Sum(out[:0])
	return out
}

// CheckTarget reports whether hash, viewed as a 32-byte big-endian
// integer, is <= the left-zero-padded target (1..32 bytes). k leading
// bytes of hash (k = 32-len(target)) must be zero; the remaining bytes
// are compared to target as an unsigned big-endian integer of the same
// width.
func CheckTarget(hash [DigestSize]byte, target []byte) bool {
	k := DigestSize - len(target)
	for i := 0; i < k; i++ {
		if hash[i] != 0 {
			return false
		}
	}
	for i := 0; i < len(target); i++ {
		h, t := hash[k+i], target[i]
		if h < t {
			return true
		}
		if h > t {
			return false
		}
	}
	return true // equal all the way through
}

// CheckIndex reports whether hash names the (from, to) chain pair:
// big_index = hash[31] mod ChainNums, success iff
// big_index/GroupNums == from and big_index%GroupNums == to.
func CheckIndex(hash [DigestSize]byte, from, to uint32) bool {
	bigIndex := uint32(hash[DigestSize-1]) % ChainNums
	return bigIndex/GroupNums == from && bigIndex%GroupNums == to
}
