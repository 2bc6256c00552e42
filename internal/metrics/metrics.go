// Package metrics exposes the translator's Prometheus counters/gauges and a
// cheap in-process snapshot used by periodic log lines.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xcan-translate/xcan/internal/logging"
)

// Prometheus counters/gauges for the translation runtime.
var (
	ReceivedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_received_frames_total",
		Help: "Total CAN frames read from the source endpoint.",
	})
	TranslatedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_translated_frames_total",
		Help: "Total frames that matched a translation entry and were rewritten.",
	})
	SentFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_sent_frames_total",
		Help: "Total frames written to the target endpoint or to monitor tap clients.",
	})
	UnknownFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_unknown_frames_total",
		Help: "Total frames with no matching translation entry.",
	})
	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xcan_dropped_frames_total",
		Help: "Total frames dropped during translation, by reason.",
	}, []string{"reason"})
	FuzzedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_fuzzed_frames_total",
		Help: "Total candidate frames emitted by the fuzzing strategy.",
	})
	TableEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xcan_table_entries",
		Help: "Current number of entries loaded in the translation table.",
	})
	ListenerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_listener_failures_total",
		Help: "Total listener callback panics/errors caught by the runtime.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_malformed_wire_frames_total",
		Help: "Total rejected malformed frames on the monitor wire protocol.",
	})
	MonitorActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xcan_monitor_active_clients",
		Help: "Current number of connected monitor tap clients.",
	})
	MonitorBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xcan_monitor_broadcast_fanout",
		Help: "Number of monitor clients targeted in the most recent broadcast.",
	})
	MonitorDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_monitor_dropped_frames_total",
		Help: "Total frames dropped by the monitor tap due to a slow client.",
	})
	MonitorKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xcan_monitor_kicked_clients_total",
		Help: "Total monitor clients disconnected by the backpressure kick policy.",
	})
	MonitorQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xcan_monitor_queue_depth_max",
		Help: "Observed max queued frames among monitor clients in the last broadcast.",
	})
	MonitorQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xcan_monitor_queue_depth_avg",
		Help: "Approximate average queued frames per monitor client in the last broadcast.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xcan_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xcan_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Drop reason label constants (stable values to bound cardinality).
const (
	ReasonDlcMismatch = "dlc_mismatch"
	ReasonBadMapping  = "bad_mapping"
	ReasonTxOverflow  = "tx_overflow"
)

// Error label constants.
const (
	ErrEndpointIO       = "endpoint_io"
	ErrEndpointNotOpen  = "endpoint_not_open"
	ErrFuzzer           = "fuzzer"
	ErrListener         = "listener"
	ErrMonitorAccept    = "monitor_accept"
	ErrMonitorWrite     = "monitor_write"
	ErrMonitorHandshake = "monitor_handshake"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, cheap to read for periodic log lines without
// touching the Prometheus registry.
var (
	localReceived   uint64
	localTranslated uint64
	localSent       uint64
	localUnknown    uint64
	localDropped    uint64
	localFuzzed     uint64
	localErrors     uint64
	localMalformed  uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	Received   uint64
	Translated uint64
	Sent       uint64
	Unknown    uint64
	Dropped    uint64
	Fuzzed     uint64
	Errors     uint64
}

func Snap() Snapshot {
	return Snapshot{
		Received:   atomic.LoadUint64(&localReceived),
		Translated: atomic.LoadUint64(&localTranslated),
		Sent:       atomic.LoadUint64(&localSent),
		Unknown:    atomic.LoadUint64(&localUnknown),
		Dropped:    atomic.LoadUint64(&localDropped),
		Fuzzed:     atomic.LoadUint64(&localFuzzed),
		Errors:     atomic.LoadUint64(&localErrors),
	}
}

func IncReceived() {
	ReceivedFrames.Inc()
	atomic.AddUint64(&localReceived, 1)
}

func IncTranslated() {
	TranslatedFrames.Inc()
	atomic.AddUint64(&localTranslated, 1)
}

func IncSent() {
	SentFrames.Inc()
	atomic.AddUint64(&localSent, 1)
}

func IncUnknown() {
	UnknownFrames.Inc()
	atomic.AddUint64(&localUnknown, 1)
}

func IncDropped(reason string) {
	DroppedFrames.WithLabelValues(reason).Inc()
	atomic.AddUint64(&localDropped, 1)
}

func IncFuzzed(n int) {
	FuzzedFrames.Add(float64(n))
	atomic.AddUint64(&localFuzzed, uint64(n))
}

func SetTableEntries(n int) {
	TableEntries.Set(float64(n))
}

func IncListenerFailure() {
	ListenerFailures.Inc()
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// SetMonitorClients records the current monitor tap client count.
func SetMonitorClients(n int) { MonitorActiveClients.Set(float64(n)) }

// SetMonitorFanout records how many clients the most recent broadcast
// targeted.
func SetMonitorFanout(n int) { MonitorBroadcastFanout.Set(float64(n)) }

// IncMonitorDrop counts one frame dropped for a slow monitor client.
func IncMonitorDrop() { MonitorDroppedFrames.Inc() }

// IncMonitorKick counts one monitor client disconnected for falling behind.
func IncMonitorKick() { MonitorKickedClients.Inc() }

// SetMonitorQueueDepth records a snapshot of max/avg queue depth among
// monitor clients.
func SetMonitorQueueDepth(max, avg int) {
	MonitorQueueDepthMax.Set(float64(max))
	MonitorQueueDepthAvg.Set(float64(avg))
}

// IncMonitorReject counts one monitor connection rejected for exceeding the
// configured max-clients limit.
func IncMonitorReject() { Errors.WithLabelValues(ErrMonitorAccept).Inc() }

// AddMonitorTx counts n frames written to monitor clients into the sent
// frames counter (Prometheus and the local snapshot).
func AddMonitorTx(n int) {
	SentFrames.Add(float64(n))
	atomic.AddUint64(&localSent, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers error/drop
// label series so the first real event doesn't pay first-touch
// registration cost.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrEndpointIO, ErrEndpointNotOpen, ErrFuzzer, ErrListener} {
		Errors.WithLabelValues(lbl).Add(0)
	}
	for _, reason := range []string{ReasonDlcMismatch, ReasonBadMapping, ReasonTxOverflow} {
		DroppedFrames.WithLabelValues(reason).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
