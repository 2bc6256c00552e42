package endpoint

import (
	"sync"
	"time"

	"github.com/xcan-translate/xcan/internal/can"
)

// Loopback is an in-memory Endpoint for tests and demos: frames written via
// Send go straight to an internal queue and come back out of Receive,
// unless a Peer is attached, in which case Send delivers to the peer's
// queue instead (simulating a wire between a source and a target bus).
type Loopback struct {
	name string

	mu     sync.Mutex
	open   bool
	peer   *Loopback
	queue  chan can.Frame
}

// NewLoopback returns an unopened, unpeered Loopback endpoint.
func NewLoopback(name string) *Loopback {
	return &Loopback{name: name, queue: make(chan can.Frame, 256)}
}

// Pair connects two Loopback endpoints so that Send on one delivers to the
// other's Receive queue.
func Pair(a, b *Loopback) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (l *Loopback) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = true
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	return nil
}

func (l *Loopback) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *Loopback) Receive(timeout time.Duration) (can.Frame, bool, error) {
	l.mu.Lock()
	open := l.open
	l.mu.Unlock()
	if !open {
		return can.Frame{}, false, ErrNotOpen
	}
	select {
	case f := <-l.queue:
		return f, true, nil
	case <-time.After(timeout):
		return can.Frame{}, false, nil
	}
}

// Send delivers f to the peer's queue if one is attached, otherwise back to
// this endpoint's own queue.
func (l *Loopback) Send(f can.Frame) error {
	l.mu.Lock()
	open := l.open
	peer := l.peer
	l.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	target := l
	if peer != nil {
		target = peer
	}
	select {
	case target.queue <- f:
	default:
		// Queue full: drop, mirroring a saturated wire rather than blocking
		// the sender indefinitely.
	}
	return nil
}

// Inject pushes a frame directly into this endpoint's receive queue,
// bypassing Send/peer delivery. Useful in tests that want to simulate an
// inbound frame without round-tripping through a peer.
func (l *Loopback) Inject(f can.Frame) {
	select {
	case l.queue <- f:
	default:
	}
}
