package xlate

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xcan-translate/xcan/internal/can"
	"github.com/xcan-translate/xcan/internal/signal"
)

// Entry is the rewrite rule for one source arbitration ID: a target ID, an
// ordered list of signal mappings (later entries win on overlap), a default
// template payload and the addressing mode of each side.
type Entry struct {
	SourceID          uint32
	TargetID          uint32
	Signals           []signal.Mapping
	DefaultPayload    []byte // 0..8 bytes; right-padded with 0x00 to 8 during Apply
	SourceIsExtended  bool
	TargetIsExtended  bool
}

// Apply translates an incoming frame that matched this entry's SourceID and
// addressing mode into a new outgoing frame. It returns (nil, nil) on a DLC
// mismatch (source payload too short for some mapping) per the "silently
// dropped" policy, and (nil, err) wrapping ErrBadMapping when a mapping's
// decode/encode precondition is violated or a splice would run past bit 63.
func (e Entry) Apply(src can.Frame) (*can.Frame, error) {
	var dest [8]byte
	copy(dest[:], e.DefaultPayload)

	payload := src.Payload()
	for _, m := range e.Signals {
		raw, err := m.Decode(payload)
		if err != nil {
			if errIsDlc(err, payload, m) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: decode signal src_start_bit=%d length=%d: %w", ErrBadMapping, m.SrcStartBit, m.Length, err)
		}
		var enc int64
		if m.Scale == 1.0 && m.Offset == 0.0 {
			// Exact integer passthrough: skip the float64 round trip, which
			// would lose precision for signals wider than 53 bits (e.g. a
			// full 64-bit identity mapping, see the identity-passthrough
			// end-to-end scenario).
			enc = int64(raw)
		} else {
			phys := float64(raw)*m.Scale + m.Offset
			enc = roundHalfToEven(phys)
		}
		rawBits, err := m.EncodeBits(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: encode signal dest_start_bit=%d length=%d: %v", ErrBadMapping, m.DestStartBit, m.Length, err)
		}
		if err := spliceBits(&dest, m.DestStartBit, rawBits, m.Length, m.Endian); err != nil {
			return nil, err
		}
	}

	out := can.Frame{
		ArbitrationID: e.TargetID,
		Data:          dest,
		Len:           can.MaxDataLen,
		Timestamp:     src.Timestamp,
		IsExtendedID:  e.TargetIsExtended,
	}
	return &out, nil
}

// errIsDlc reports whether a Decode failure is the "window exceeds a short
// payload" case (DlcMismatch) as opposed to a genuinely invalid mapping
// (BadMapping) — distinguished by whether the window would have fit an 8
// byte payload.
func errIsDlc(err error, payload []byte, m signal.Mapping) bool {
	if m.Length < 1 || m.Length > 64 {
		return false // invalid mapping regardless of payload length
	}
	endBit := m.SrcStartBit + m.Length - 1
	return m.SrcStartBit >= 0 && endBit < 64 && endBit >= 8*len(payload)
}

// spliceBits writes the low `length` bits of raw into dest starting at
// destStartBit, using the same bit-numbering convention as Mapping.Decode so
// that decode(splice(encode(v))) == v. Fails with ErrBadMapping if the
// window would extend past bit 63 of dest (the destination is always
// exactly 8 bytes / 64 bits wide).
func spliceBits(dest *[8]byte, destStartBit int, raw uint64, length int, endian signal.Endian) error {
	if destStartBit < 0 || destStartBit+length > 64 {
		return fmt.Errorf("%w: splice window [%d,%d) exceeds 64-bit payload", ErrBadMapping, destStartBit, destStartBit+length)
	}
	mask := signal.Mask64(length)
	raw &= mask

	if endian == signal.Little {
		d := binary.LittleEndian.Uint64(dest[:])
		d &^= mask << uint(destStartBit)
		d |= raw << uint(destStartBit)
		binary.LittleEndian.PutUint64(dest[:], d)
		return nil
	}
	shift := 64 - length - destStartBit
	d := binary.BigEndian.Uint64(dest[:])
	d &^= mask << uint(shift)
	d |= raw << uint(shift)
	binary.BigEndian.PutUint64(dest[:], d)
	return nil
}

// roundHalfToEven implements banker's rounding, matching Python's round()
// rather than Go's round-half-away-from-zero math.Round.
func roundHalfToEven(v float64) int64 {
	return int64(math.RoundToEven(v))
}
