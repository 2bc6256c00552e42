package can

import "testing"

func TestNewTruncatesOverlongData(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	f := New(0x100, data, 1.5, false)
	if f.Len != MaxDataLen {
		t.Fatalf("expected Len=%d, got %d", MaxDataLen, f.Len)
	}
	if got := f.Payload(); len(got) != MaxDataLen {
		t.Fatalf("expected payload len %d, got %d", MaxDataLen, len(got))
	}
}

func TestFitsAddressing(t *testing.T) {
	cases := []struct {
		id       uint32
		ext      bool
		expected bool
	}{
		{0x7FF, false, true},
		{0x800, false, false},
		{0x1FFFFFFF, true, true},
		{0x20000000, true, false},
	}
	for _, c := range cases {
		f := Frame{ArbitrationID: c.id, IsExtendedID: c.ext}
		if got := f.FitsAddressing(); got != c.expected {
			t.Fatalf("id=0x%X ext=%v: expected %v, got %v", c.id, c.ext, c.expected, got)
		}
	}
}

func TestPayloadReflectsLen(t *testing.T) {
	f := New(1, []byte{0xAA, 0xBB}, 0, false)
	if len(f.Payload()) != 2 {
		t.Fatalf("expected payload len 2, got %d", len(f.Payload()))
	}
}
