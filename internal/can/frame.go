// Package can defines the classical CAN frame value type shared by every
// endpoint, codec and the translation engine.
package can

// SocketCAN flag bits for can_id (same values as <linux/can.h>). Kept even
// where only one endpoint variant touches a raw socket, since the EFF mask
// also governs how an arbitration ID is validated against its addressing
// mode everywhere else in this module.
const (
	EFFFlag = 0x80000000
	RTRFlag = 0x40000000
	ErrFlag = 0x20000000
	SFFMask = 0x7FF
	EFFMask = 0x1FFFFFFF
)

// MaxDataLen is the largest payload classical CAN (not CAN-FD) carries.
const MaxDataLen = 8

// Frame is one classical CAN frame: an arbitration ID, up to 8 payload
// bytes, a monotonic receive/construction timestamp and an addressing mode.
// Frame is a value type and is never mutated after construction; producing
// a translated frame always means constructing a new one.
type Frame struct {
	ArbitrationID uint32
	Data          [MaxDataLen]byte
	Len           uint8 // 0..8, number of valid leading bytes in Data
	Timestamp     float64
	IsExtendedID  bool
}

// Payload returns the valid leading slice of Data.
func (f Frame) Payload() []byte { return f.Data[:f.Len] }

// New constructs a Frame from a byte slice, copying it into the fixed 8-byte
// array. Data longer than MaxDataLen is truncated to its first 8 bytes.
func New(id uint32, data []byte, ts float64, extended bool) Frame {
	var f Frame
	f.ArbitrationID = id
	f.Timestamp = ts
	f.IsExtendedID = extended
	n := len(data)
	if n > MaxDataLen {
		n = MaxDataLen
	}
	copy(f.Data[:n], data[:n])
	f.Len = uint8(n)
	return f
}

// FitsAddressing reports whether the arbitration ID fits the addressing
// mode's bit width (11-bit standard, 29-bit extended).
func (f Frame) FitsAddressing() bool {
	if f.IsExtendedID {
		return f.ArbitrationID <= EFFMask
	}
	return f.ArbitrationID <= SFFMask
}
