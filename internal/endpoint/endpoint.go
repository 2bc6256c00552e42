// Package endpoint unifies the backends a translator reads frames from and
// writes frames to: a raw SocketCAN socket, a serial/UART adapter, or an
// in-memory loopback used by tests. All backends satisfy Endpoint so the
// runtime package never has to know which one it is driving.
package endpoint

import (
	"errors"
	"time"

	"github.com/xcan-translate/xcan/internal/can"
)

// ErrNotOpen is returned by Receive/Send when called before Open or after
// Close.
var ErrNotOpen = errors.New("endpoint: not open")

// ErrTxOverflow is returned by Send when the backend's asynchronous write
// queue is full; the frame is dropped rather than blocking the caller.
var ErrTxOverflow = errors.New("endpoint: tx overflow")

// txQueueSize bounds the number of frames buffered between Send and the
// goroutine that performs the actual device write, for backends (RawSocket,
// Serial) built on transport.AsyncTx.
const txQueueSize = 256

// Endpoint is a classical-CAN transport: something frames can be received
// from and sent to. Implementations must be safe for one concurrent Receive
// and one concurrent Send (the runtime never calls either method from more
// than one goroutine at a time, but Send may run concurrently with Receive).
type Endpoint interface {
	// Open acquires the underlying resource (socket, serial port, ...).
	Open() error
	// Close releases the underlying resource. It does not interrupt an
	// in-flight Receive, which still returns no later than its timeout.
	Close() error
	// IsOpen reports whether Open has succeeded and Close has not since
	// been called.
	IsOpen() bool
	// Receive blocks for up to timeout waiting for a frame. ok is false
	// with a nil error when timeout elapses with nothing received.
	Receive(timeout time.Duration) (frame can.Frame, ok bool, err error)
	// Send transmits one frame.
	Send(frame can.Frame) error
}

// Config names which backend to construct and its address (an interface
// name for "socketcan", a device path for "serial", or a label for
// "loopback"). It mirrors the role of name/backend in Open.
type Config struct {
	Backend string // "socketcan", "serial", "loopback"
	Name    string // can0, /dev/ttyUSB0, or a loopback label
	Baud    int    // serial only; ignored otherwise
}

// Open constructs and opens the Endpoint named by cfg.
func Open(cfg Config) (Endpoint, error) {
	ep, err := newEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	if err := ep.Open(); err != nil {
		return nil, err
	}
	return ep, nil
}

func newEndpoint(cfg Config) (Endpoint, error) {
	switch cfg.Backend {
	case "socketcan":
		return newRawSocket(cfg.Name), nil
	case "serial":
		baud := cfg.Baud
		if baud == 0 {
			baud = 115200
		}
		return NewSerial(cfg.Name, baud), nil
	case "loopback", "mock", "virtual", "test":
		return NewLoopback(cfg.Name), nil
	default:
		return nil, errors.New("endpoint: unsupported backend " + cfg.Backend)
	}
}
