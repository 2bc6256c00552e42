// Package cnl implements the monitor tap's wire codec: a cannelloni-style
// packed encoding of CAN frames used to stream translated/sent traffic to
// connected observability clients.
package cnl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/xcan-translate/xcan/internal/can"
	"github.com/xcan-translate/xcan/internal/metrics"
)

// Codec encodes/decodes frames on the monitor wire. Stateless and safe for
// concurrent use.
type Codec struct{}

// ErrInvalidLength is returned when a frame length (DLC) is outside 0..8.
var ErrInvalidLength = errors.New("cnl: invalid length")

// ErrTruncatedFrame is returned when the underlying reader ends mid-frame.
var ErrTruncatedFrame = errors.New("cnl: truncated frame")

// Encode packs frames into a single wire packet.
func (c *Codec) Encode(frames []can.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.Grow(len(frames) * (4 + 1 + 8))
	_, _ = c.EncodeTo(&buf, frames)
	return buf.Bytes()
}

// EncodeTo writes the wire representation of frames to w and returns bytes
// written. Each frame is: 4-byte BE ID word (arbitration ID with the
// standard SocketCAN EFF flag set in bit 31 for extended frames), 1-byte
// length, payload.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	var total int
	for _, f := range frames {
		idWord := f.ArbitrationID & can.SFFMask
		if f.IsExtendedID {
			idWord = (f.ArbitrationID & can.EFFMask) | can.EFFFlag
		}
		var id [4]byte
		binary.BigEndian.PutUint32(id[:], idWord)
		n, err := w.Write(id[:])
		total += n
		if err != nil {
			return total, fmt.Errorf("cnl encode id: %w", err)
		}
		n, err = w.Write([]byte{f.Len})
		total += n
		if err != nil {
			return total, fmt.Errorf("cnl encode len: %w", err)
		}
		ln := int(f.Len & 0x7F)
		if ln > 0 {
			n, err = w.Write(f.Data[:ln])
			total += n
			if err != nil {
				return total, fmt.Errorf("cnl encode data: %w", err)
			}
		}
	}
	return total, nil
}

// Decode reads exactly one frame from r. It returns io.EOF if called at a
// clean frame boundary with no more data available.
func (c *Codec) Decode(r io.Reader) (can.Frame, error) {
	var idb [4]byte
	if _, err := io.ReadFull(r, idb[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return can.Frame{}, fmt.Errorf("cnl decode id: %w", ErrTruncatedFrame)
		}
		return can.Frame{}, err
	}
	idWord := binary.BigEndian.Uint32(idb[:])
	extended := idWord&can.EFFFlag != 0
	id := idWord & can.EFFMask
	if !extended {
		id = idWord & can.SFFMask
	}

	var lb [1]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return can.Frame{}, fmt.Errorf("cnl decode len: %w", ErrTruncatedFrame)
		}
		return can.Frame{}, err
	}
	ln := int(lb[0] & 0x7F)
	if ln > can.MaxDataLen {
		metrics.IncMalformed()
		return can.Frame{}, fmt.Errorf("cnl decode: %w (%d)", ErrInvalidLength, ln)
	}

	var payload [can.MaxDataLen]byte
	if ln > 0 {
		if _, err := io.ReadFull(r, payload[:ln]); err != nil {
			metrics.IncMalformed()
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return can.Frame{}, fmt.Errorf("cnl decode payload: %w", ErrTruncatedFrame)
			}
			return can.Frame{}, fmt.Errorf("cnl decode payload: %w", err)
		}
	}
	return can.New(id, payload[:ln], 0, extended), nil
}

// DecodeN decodes up to max frames (if max>0) or until EOF (if max<=0),
// invoking onFrame for each. Returns the number decoded and the terminal
// error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}

// DecodeStream decodes a single frame from r, for callers that prefer a
// streaming-style signature.
func (c *Codec) DecodeStream(r io.Reader, onFrame func(can.Frame)) error {
	fr, err := c.Decode(r)
	if err != nil {
		return err
	}
	onFrame(fr)
	return nil
}
