package fuzz

import (
	"math/rand"
	"sync"

	"github.com/xcan-translate/xcan/internal/can"
)

// RandomByte flips each bit of an unknown frame's payload one at a time and
// additionally emits a configurable number of frames with a fully random
// payload. It deduplicates against every payload it has already emitted for
// the lifetime of the strategy, matching the behavior of not re-trying a
// payload already sent to the target bus.
//
// Only use this against a bench or an isolated target; it makes no attempt
// to rate-limit itself.
type RandomByte struct {
	NumRandom int
	FlipBits  bool

	mu   sync.Mutex
	seen map[string]struct{}
	rng  *rand.Rand
}

// NewRandomByte returns a RandomByte strategy with numRandom random-payload
// frames per unknown message and bit-flip fuzzing enabled if flipBits is
// true.
func NewRandomByte(numRandom int, flipBits bool) *RandomByte {
	return &RandomByte{
		NumRandom: numRandom,
		FlipBits:  flipBits,
		seen:      make(map[string]struct{}),
		rng:       rand.New(rand.NewSource(1)),
	}
}

func (f *RandomByte) markSeen(payload []byte) bool {
	key := string(payload)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}
	return true
}

// HandleUnknown produces bit-flip and/or random-payload variants of src,
// each carrying src's arbitration ID, timestamp and addressing mode.
func (f *RandomByte) HandleUnknown(src can.Frame) []can.Frame {
	payload := src.Payload()
	var out []can.Frame

	if f.FlipBits {
		for i := 0; i < len(payload)*8; i++ {
			byteIndex := i / 8
			bitIndex := uint(i % 8)
			mutated := make([]byte, len(payload))
			copy(mutated, payload)
			mutated[byteIndex] ^= 1 << bitIndex
			if !f.markSeen(mutated) {
				continue
			}
			out = append(out, can.New(src.ArbitrationID, mutated, src.Timestamp, src.IsExtendedID))
		}
	}

	for i := 0; i < f.NumRandom; i++ {
		rnd := make([]byte, len(payload))
		f.mu.Lock()
		f.rng.Read(rnd)
		f.mu.Unlock()
		if !f.markSeen(rnd) {
			continue
		}
		out = append(out, can.New(src.ArbitrationID, rnd, src.Timestamp, src.IsExtendedID))
	}
	return out
}
