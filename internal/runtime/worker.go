package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xcan-translate/xcan/internal/can"
	"github.com/xcan-translate/xcan/internal/logging"
	"github.com/xcan-translate/xcan/internal/metrics"
	"github.com/xcan-translate/xcan/internal/xlate"
)

const receiveTimeout = 100 * time.Millisecond

// run is the worker loop: receive from source, look up a translation entry,
// apply or fuzz, send to target, and fan out lifecycle events. Exits when
// stopCh is closed.
func (r *Runtime) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	log := logging.ForInstance(r.ID.String())
	ioErr := newIOBackoff(r.backoffInitial)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		msg, ok, err := r.Source.Receive(receiveTimeout)
		if err != nil {
			metrics.IncError(metrics.ErrEndpointIO)
			log.Error("endpoint_io_error", "error", err)
			select {
			case <-stopCh:
				return
			case <-time.After(ioErr.Next()):
			}
			continue
		}
		ioErr.Reset()
		if !ok {
			continue
		}
		metrics.IncReceived()
		r.emit(EventReceived, Event{Kind: EventReceived, Src: msg})

		entry, found := r.Table.Get(msg.ArbitrationID, msg.IsExtendedID)
		if !found {
			r.handleUnknown(msg, log)
			continue
		}
		r.handleMatch(msg, entry, log)
	}
}

func (r *Runtime) handleUnknown(msg can.Frame, log *slog.Logger) {
	metrics.IncUnknown()
	r.emit(EventUnknown, Event{Kind: EventUnknown, Src: msg})
	candidates := r.Fuzzer.HandleUnknown(msg)
	if len(candidates) == 0 {
		return
	}
	metrics.IncFuzzed(len(candidates))
	for _, fr := range candidates {
		if err := r.Target.Send(fr); err != nil {
			metrics.IncError(metrics.ErrFuzzer)
			log.Error("fuzz_send_error", "arbitration_id", fmt.Sprintf("0x%X", fr.ArbitrationID), "error", err)
			continue
		}
		metrics.IncSent()
		r.emit(EventSent, Event{Kind: EventSent, Src: fr})
	}
}

func (r *Runtime) handleMatch(msg can.Frame, entry xlate.Entry, log *slog.Logger) {
	dst, err := entry.Apply(msg)
	if err != nil {
		metrics.IncDropped(metrics.ReasonBadMapping)
		log.Error("bad_mapping", "arbitration_id", fmt.Sprintf("0x%X", msg.ArbitrationID), "error", err)
		return
	}
	if dst == nil {
		metrics.IncDropped(metrics.ReasonDlcMismatch)
		return
	}
	metrics.IncTranslated()
	r.emit(EventTranslated, Event{Kind: EventTranslated, Src: msg, Dst: dst})
	if err := r.Target.Send(*dst); err != nil {
		metrics.IncError(metrics.ErrEndpointIO)
		log.Error("target_send_error", "arbitration_id", fmt.Sprintf("0x%X", dst.ArbitrationID), "error", err)
		return
	}
	metrics.IncSent()
	r.emit(EventSent, Event{Kind: EventSent, Src: *dst})
}
