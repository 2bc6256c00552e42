package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	source     string
	target     string
	backend    string
	tablePath  string
	fuzz       string
	fuzzNum    int
	fuzzFlip   bool
	bitrate    int
	sourceBaud int
	targetBaud int

	monitorAddr  string
	monitorBuf   int
	monitorPol   string
	maxClients   int
	handshakeTO  time.Duration
	clientReadTO time.Duration

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration

	mdnsEnable bool
	mdnsName   string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	source := flag.String("source", "", "Source bus endpoint name (required)")
	target := flag.String("target", "", "Target bus endpoint name (required)")
	backend := flag.String("backend", "raw", "Bus backend: raw|library|mock")
	table := flag.String("table", "", "Translation table JSON path (empty table if omitted)")
	fz := flag.String("fuzz", "none", "Unknown-frame fuzzing strategy: none|random")
	fuzzNum := flag.Int("fuzz-num-random", 3, "RandomByte: number of random payloads per unknown frame")
	fuzzFlip := flag.Bool("fuzz-flip-bits", true, "RandomByte: also emit one frame per flipped bit")
	bitrate := flag.Int("bitrate", 0, "Bus bitrate, recorded for operational visibility (0 = unspecified)")
	sourceBaud := flag.Int("source-baud", 115200, "Serial baud rate for the source endpoint (backend=library)")
	targetBaud := flag.Int("target-baud", 115200, "Serial baud rate for the target endpoint (backend=library)")

	monitorAddr := flag.String("monitor-listen", "", "Monitor tap TCP listen address (e.g. :20000); empty disables")
	monitorBuf := flag.Int("monitor-buffer", 512, "Per-client monitor tap buffer (frames)")
	monitorPol := flag.String("monitor-policy", "drop", "Monitor tap backpressure policy: drop|kick")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous monitor tap clients (0 = unlimited)")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "Monitor tap client handshake timeout")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Monitor tap read deadline setting (passed to the server; not applied to client connections)")

	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")

	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement of the monitor tap")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default xcan-translate-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.source = *source
	cfg.target = *target
	cfg.backend = *backend
	cfg.tablePath = *table
	cfg.fuzz = *fz
	cfg.fuzzNum = *fuzzNum
	cfg.fuzzFlip = *fuzzFlip
	cfg.bitrate = *bitrate
	cfg.sourceBaud = *sourceBaud
	cfg.targetBaud = *targetBaud
	cfg.monitorAddr = *monitorAddr
	cfg.monitorBuf = *monitorBuf
	cfg.monitorPol = *monitorPol
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.clientReadTO = *clientReadTO
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if *showVersion {
		return cfg, true
	}

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, false
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, false
	}
	return cfg, false
}

// validate performs semantic validation only — it never touches a device or
// listener.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.source == "" || c.target == "" {
		return errors.New("both --source and --target are required")
	}
	switch c.backend {
	case "raw", "library", "mock":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	switch c.fuzz {
	case "none", "random":
	default:
		return fmt.Errorf("invalid fuzz strategy: %s", c.fuzz)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.monitorPol {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid monitor-policy: %s", c.monitorPol)
	}
	if c.monitorBuf <= 0 {
		return fmt.Errorf("monitor-buffer must be > 0 (got %d)", c.monitorBuf)
	}
	if c.sourceBaud <= 0 || c.targetBaud <= 0 {
		return errors.New("source-baud/target-baud must be > 0")
	}
	if c.handshakeTO <= 0 {
		return errors.New("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return errors.New("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return errors.New("max-clients must be >= 0")
	}
	if c.bitrate < 0 {
		return errors.New("bitrate must be >= 0")
	}
	return nil
}

// endpointBackend maps the CLI's {raw|library|mock} vocabulary onto the
// internal/endpoint backend names {socketcan|serial|loopback}.
func (c *appConfig) endpointBackend() string {
	switch c.backend {
	case "raw":
		return "socketcan"
	case "library":
		return "serial"
	default:
		return "loopback"
	}
}

// applyEnvOverrides maps XCAN_* environment variables to config fields
// unless a corresponding flag was explicitly set (flag wins over env).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	errf := func(name string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if _, ok := set["source"]; !ok {
		if v, ok := get("XCAN_SOURCE"); ok && v != "" {
			c.source = v
		}
	}
	if _, ok := set["target"]; !ok {
		if v, ok := get("XCAN_TARGET"); ok && v != "" {
			c.target = v
		}
	}
	if _, ok := set["backend"]; !ok {
		if v, ok := get("XCAN_BACKEND"); ok && v != "" {
			c.backend = v
		}
	}
	if _, ok := set["table"]; !ok {
		if v, ok := get("XCAN_TABLE"); ok {
			c.tablePath = v
		}
	}
	if _, ok := set["fuzz"]; !ok {
		if v, ok := get("XCAN_FUZZ"); ok && v != "" {
			c.fuzz = v
		}
	}
	if _, ok := set["bitrate"]; !ok {
		if v, ok := get("XCAN_BITRATE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.bitrate = n
			} else {
				errf("XCAN_BITRATE", err)
			}
		}
	}
	if _, ok := set["monitor-listen"]; !ok {
		if v, ok := get("XCAN_MONITOR_LISTEN"); ok {
			c.monitorAddr = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("XCAN_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("XCAN_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("XCAN_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("XCAN_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("XCAN_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("XCAN_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil {
				errf("XCAN_LOG_METRICS_INTERVAL", err)
			}
		}
	}
	return firstErr
}
