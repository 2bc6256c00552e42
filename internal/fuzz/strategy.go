// Package fuzz implements optional fuzzing strategies invoked when a frame
// arrives on the source bus with no matching translation entry. A strategy
// turns one unknown frame into zero or more candidate frames to transmit on
// the target bus.
package fuzz

import "github.com/xcan-translate/xcan/internal/can"

// Strategy generates candidate target frames for an unknown source frame.
// Implementations may keep internal state across calls (e.g. to avoid
// re-emitting a payload already tried).
type Strategy interface {
	HandleUnknown(src can.Frame) []can.Frame
}

// Null never generates anything; it is the default when no fuzzer is
// configured.
type Null struct{}

// HandleUnknown always returns an empty slice.
func (Null) HandleUnknown(can.Frame) []can.Frame { return nil }
