// Package runtime implements the translator's worker pipeline: pull a frame
// from a source endpoint, look it up in the translation table, rewrite and
// forward it (or hand it to the fuzzing strategy when unknown), and fan out
// lifecycle events to registered observers.
package runtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/xcan-translate/xcan/internal/can"
	"github.com/xcan-translate/xcan/internal/endpoint"
	"github.com/xcan-translate/xcan/internal/fuzz"
	"github.com/xcan-translate/xcan/internal/logging"
	"github.com/xcan-translate/xcan/internal/metrics"
	"github.com/xcan-translate/xcan/internal/xlate"
)

// EventKind enumerates the runtime's lifecycle events. A fixed enum (rather
// than a map keyed by event-name string) so bad event names are caught at
// compile time by every caller except AddListener's own validation.
type EventKind int

const (
	EventReceived EventKind = iota
	EventTranslated
	EventSent
	EventUnknown
	numEventKinds
)

// ErrBadEvent is returned by AddListener for an EventKind outside the
// enumerated set.
var ErrBadEvent = errors.New("runtime: bad event kind")

// Event is the payload delivered to an observer. Dst is nil for
// received/sent/unknown events (only EventTranslated carries both sides).
type Event struct {
	Kind EventKind
	Src  can.Frame
	Dst  *can.Frame
}

// Listener observes runtime events. Invoked synchronously on the worker
// goroutine, in registration order; a listener must not block for long.
type Listener func(Event)

// State is the runtime's lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Runtime owns one source endpoint, one target endpoint, one translation
// table and one fuzzing strategy, and drives the worker loop between them.
type Runtime struct {
	ID uuid.UUID

	Source endpoint.Endpoint
	Target endpoint.Endpoint
	Table  *xlate.Table
	Fuzzer fuzz.Strategy

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	listeners [numEventKinds][]Listener
	mu        sync.RWMutex // guards listeners only

	backoffInitial time.Duration // EndpointIO retry floor; defaults to 500ms
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithBackoff overrides the default 500ms EndpointIO backoff delay.
func WithBackoff(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.backoffInitial = d
		}
	}
}

// New constructs a Runtime in the Idle state, tagged with a fresh v4 UUID so
// multi-translator deployments can tell instances apart in logs/metrics.
func New(src, dst endpoint.Endpoint, table *xlate.Table, fuzzer fuzz.Strategy, opts ...Option) *Runtime {
	if table == nil {
		table = xlate.NewTable()
	}
	if fuzzer == nil {
		fuzzer = fuzz.Null{}
	}
	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.Nil
	}
	r := &Runtime{
		ID:             id,
		Source:         src,
		Target:         dst,
		Table:          table,
		Fuzzer:         fuzzer,
		backoffInitial: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// AddListener registers an observer for the given event kind. Returns
// ErrBadEvent for a kind outside the enumerated set.
func (r *Runtime) AddListener(kind EventKind, l Listener) error {
	if kind < 0 || kind >= numEventKinds {
		return ErrBadEvent
	}
	if l == nil {
		return nil
	}
	r.mu.Lock()
	r.listeners[kind] = append(r.listeners[kind], l)
	r.mu.Unlock()
	return nil
}

// AddEntry inserts or overwrites a translation entry while the runtime is
// running; visible to the next table lookup.
func (r *Runtime) AddEntry(e xlate.Entry) {
	r.Table.Add(e)
	metrics.SetTableEntries(r.Table.Len())
}

// snapshotListeners returns a copy of the listener slice for kind so the
// worker never holds r.mu while invoking callbacks (new listeners added
// mid-iteration are not required to fire for the in-flight event).
func (r *Runtime) snapshotListeners(kind EventKind) []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.listeners[kind]) == 0 {
		return nil
	}
	out := make([]Listener, len(r.listeners[kind]))
	copy(out, r.listeners[kind])
	return out
}

// emit invokes every registered listener for kind, in registration order.
// A panicking listener is recovered, logged and counted; the loop continues.
func (r *Runtime) emit(kind EventKind, ev Event) {
	for _, l := range r.snapshotListeners(kind) {
		r.invokeListener(l, ev)
	}
}

func (r *Runtime) invokeListener(l Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncListenerFailure()
			logging.L().Error("observer_failure", "instance", r.ID.String(), "panic", rec)
		}
	}()
	l(ev)
}

// State returns the current lifecycle state.
func (r *Runtime) State() State { return State(r.state.Load()) }

// Start opens both endpoints if not already open and spawns the worker.
// Idempotent: a no-op if already Running.
func (r *Runtime) Start() error {
	if !r.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return nil // already running or mid-stop; no-op
	}
	if !r.Source.IsOpen() {
		if err := r.Source.Open(); err != nil {
			r.state.Store(int32(Idle))
			return err
		}
	}
	if !r.Target.IsOpen() {
		if err := r.Target.Open(); err != nil {
			r.state.Store(int32(Idle))
			return err
		}
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.run(r.stopCh, r.doneCh)
	return nil
}

// Stop signals the worker to exit and waits up to 5 seconds for it to join.
// Safe to call repeatedly and safe to call before Start.
func (r *Runtime) Stop() {
	if !r.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		return // already Idle or Stopping
	}
	close(r.stopCh)
	select {
	case <-r.doneCh:
	case <-time.After(5 * time.Second):
		logging.L().Warn("worker_stop_timeout", "instance", r.ID.String())
	}
	r.state.Store(int32(Idle))
}
