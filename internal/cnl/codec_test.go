package cnl

import (
	"bytes"
	"io"
	"testing"

	"github.com/xcan-translate/xcan/internal/can"
)

func TestCodecEncodeDecodeRoundTrip(t *testing.T) {
	c := &Codec{}
	frames := []can.Frame{
		can.New(0x123, []byte{1, 2, 3}, 0, false),
		can.New(0x1ABCDEF, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0, true),
		can.New(0, nil, 0, false),
	}
	wire := c.Encode(frames)

	var got []can.Frame
	r := bytes.NewReader(wire)
	for {
		fr, err := c.Decode(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		got = append(got, fr)
	}
	if len(got) != len(frames) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(frames))
	}
	for i := range frames {
		if got[i].ArbitrationID != frames[i].ArbitrationID {
			t.Errorf("frame %d: ArbitrationID = %#x, want %#x", i, got[i].ArbitrationID, frames[i].ArbitrationID)
		}
		if got[i].IsExtendedID != frames[i].IsExtendedID {
			t.Errorf("frame %d: IsExtendedID = %v, want %v", i, got[i].IsExtendedID, frames[i].IsExtendedID)
		}
		if string(got[i].Payload()) != string(frames[i].Payload()) {
			t.Errorf("frame %d: payload = % X, want % X", i, got[i].Payload(), frames[i].Payload())
		}
	}
}

func TestCodecDecodeEOFOnEmpty(t *testing.T) {
	c := &Codec{}
	_, err := c.Decode(bytes.NewReader(nil))
	if err != io.EOF {
		t.Errorf("Decode on empty reader: err = %v, want io.EOF", err)
	}
}

func TestCodecDecodeInvalidLength(t *testing.T) {
	c := &Codec{}
	buf := []byte{0, 0, 1, 0x23, 0x7F} // length byte 0x7F = 127, masked to 127 > 8
	_, err := c.Decode(bytes.NewReader(buf))
	if err == nil {
		t.Fatal("expected error for invalid length")
	}
}

func TestCodecDecodeTruncatedPayload(t *testing.T) {
	c := &Codec{}
	buf := []byte{0, 0, 1, 0x23, 4, 0xAA, 0xBB} // claims 4 bytes, only 2 present
	_, err := c.Decode(bytes.NewReader(buf))
	if err == nil {
		t.Fatal("expected truncated-frame error")
	}
}

func TestCodecDecodeNStopsAtMax(t *testing.T) {
	c := &Codec{}
	frames := []can.Frame{
		can.New(1, []byte{1}, 0, false),
		can.New(2, []byte{2}, 0, false),
		can.New(3, []byte{3}, 0, false),
	}
	wire := c.Encode(frames)
	var got []can.Frame
	n, err := c.DecodeN(bytes.NewReader(wire), 2, func(f can.Frame) { got = append(got, f) })
	if err != nil {
		t.Fatalf("DecodeN error: %v", err)
	}
	if n != 2 || len(got) != 2 {
		t.Fatalf("DecodeN decoded %d, want 2", n)
	}
}

func TestCodecExtendedIDFlagSurvivesWire(t *testing.T) {
	c := &Codec{}
	f := can.New(can.EFFMask, []byte{0x01}, 0, true)
	wire := c.Encode([]can.Frame{f})
	got, err := c.Decode(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !got.IsExtendedID {
		t.Error("expected IsExtendedID true to survive the wire round trip")
	}
	if got.ArbitrationID != can.EFFMask {
		t.Errorf("ArbitrationID = %#x, want %#x", got.ArbitrationID, can.EFFMask)
	}
}
