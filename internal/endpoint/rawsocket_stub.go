//go:build !linux

package endpoint

import (
	"errors"
	"time"

	"github.com/xcan-translate/xcan/internal/can"
)

// errRawSocketUnsupported is returned on every call on non-Linux builds;
// SocketCAN is a Linux-only transport.
var errRawSocketUnsupported = errors.New("endpoint: socketcan backend is unsupported on this platform")

type rawSocketStub struct{}

func newRawSocket(string) Endpoint { return rawSocketStub{} }

func (rawSocketStub) Open() error  { return errRawSocketUnsupported }
func (rawSocketStub) Close() error { return nil }
func (rawSocketStub) IsOpen() bool { return false }
func (rawSocketStub) Receive(time.Duration) (can.Frame, bool, error) {
	return can.Frame{}, false, errRawSocketUnsupported
}
func (rawSocketStub) Send(can.Frame) error { return errRawSocketUnsupported }
