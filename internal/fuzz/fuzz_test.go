package fuzz

import (
	"testing"

	"github.com/xcan-translate/xcan/internal/can"
)

func TestNullReturnsNothing(t *testing.T) {
	f := Null{}
	src := can.New(0x123, []byte{1, 2, 3}, 0, false)
	if got := f.HandleUnknown(src); len(got) != 0 {
		t.Errorf("Null.HandleUnknown returned %d frames, want 0", len(got))
	}
}

func TestRandomByteFlipsEveryBitOnce(t *testing.T) {
	f := NewRandomByte(0, true)
	src := can.New(0x123, []byte{0x00, 0x00}, 0, false)
	out := f.HandleUnknown(src)
	if len(out) != 16 {
		t.Fatalf("len(out) = %d, want 16 (2 bytes * 8 bits)", len(out))
	}
	for _, frame := range out {
		if frame.ArbitrationID != 0x123 {
			t.Errorf("ArbitrationID = %#x, want 0x123", frame.ArbitrationID)
		}
		ones := 0
		for _, b := range frame.Payload() {
			for b != 0 {
				ones += int(b & 1)
				b >>= 1
			}
		}
		if ones != 1 {
			t.Errorf("expected exactly 1 bit set across payload, got %d", ones)
		}
	}
}

func TestRandomByteDedupesAcrossCalls(t *testing.T) {
	f := NewRandomByte(0, true)
	src := can.New(1, []byte{0x00}, 0, false)
	first := f.HandleUnknown(src)
	second := f.HandleUnknown(src)
	if len(first) != 8 {
		t.Fatalf("first call len = %d, want 8", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second call on same frame should dedupe to 0 new payloads, got %d", len(second))
	}
}

func TestRandomByteGeneratesAtMostRequestedRandomCount(t *testing.T) {
	f := NewRandomByte(5, false)
	src := can.New(1, []byte{0x00, 0x00, 0x00, 0x00}, 0, false)
	out := f.HandleUnknown(src)
	if len(out) > 5 {
		t.Errorf("len(out) = %d, want at most 5", len(out))
	}
}

func TestRandomByteNoFlipNoRandomIsEmpty(t *testing.T) {
	f := NewRandomByte(0, false)
	src := can.New(1, []byte{0x00}, 0, false)
	if got := f.HandleUnknown(src); len(got) != 0 {
		t.Errorf("len(got) = %d, want 0", len(got))
	}
}
