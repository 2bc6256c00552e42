// Command xcan-translate bridges two classical-CAN buses, rewriting frames
// between them according to a translation table and forwarding unmatched
// frames to a fuzzing strategy, with an optional read-only TCP monitor tap
// for observability.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/xcan-translate/xcan/internal/endpoint"
	"github.com/xcan-translate/xcan/internal/fuzz"
	"github.com/xcan-translate/xcan/internal/metrics"
	"github.com/xcan-translate/xcan/internal/runtime"
	"github.com/xcan-translate/xcan/internal/xlate"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("xcan-translate %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	if cfg == nil {
		return 1
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)
	backend := cfg.endpointBackend()

	src, err := endpoint.Open(endpoint.Config{Backend: backend, Name: cfg.source, Baud: cfg.sourceBaud})
	if err != nil {
		l.Error("source_endpoint_open_failed", "name", cfg.source, "error", err)
		return 1
	}
	tgt, err := endpoint.Open(endpoint.Config{Backend: backend, Name: cfg.target, Baud: cfg.targetBaud})
	if err != nil {
		l.Error("target_endpoint_open_failed", "name", cfg.target, "error", err)
		_ = src.Close()
		return 1
	}

	table := xlate.NewTable()
	if cfg.tablePath != "" {
		data, err := os.ReadFile(cfg.tablePath)
		if err != nil {
			l.Error("table_read_failed", "path", cfg.tablePath, "error", err)
			return 1
		}
		loaded, err := xlate.LoadTable(data)
		if err != nil {
			l.Error("table_load_failed", "path", cfg.tablePath, "error", err)
			return 1
		}
		table = loaded
	}
	metrics.SetTableEntries(table.Len())

	var fuzzer fuzz.Strategy = fuzz.Null{}
	if cfg.fuzz == "random" {
		fuzzer = fuzz.NewRandomByte(cfg.fuzzNum, cfg.fuzzFlip)
	}

	rt := runtime.New(src, tgt, table, fuzzer)
	l.Info("runtime_constructed", "instance", rt.ID.String(), "source", cfg.source, "target", cfg.target, "backend", backend, "bitrate", cfg.bitrate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorSrv, monitorHub, err := newMonitorServer(cfg, l)
	if err != nil {
		l.Error("monitor_init_failed", "error", err)
		return 1
	}
	if monitorSrv != nil {
		_ = rt.AddListener(runtime.EventSent, func(ev runtime.Event) {
			monitorHub.Broadcast(ev.Src)
		})
		go func() {
			if err := monitorSrv.Serve(ctx); err != nil {
				l.Error("monitor_serve_failed", "error", err)
				cancel()
			}
		}()

		go func() {
			if !cfg.mdnsEnable {
				return
			}
			select {
			case <-monitorSrv.Ready():
			case <-ctx.Done():
				return
			}
			var portNum int
			if _, p, err := net.SplitHostPort(monitorSrv.Addr()); err == nil {
				portNum, _ = strconv.Atoi(p)
			}
			cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
				return
			}
			l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
			go func() { <-ctx.Done(); cleanupMDNS() }()
		}()
	}

	metrics.SetReadinessFunc(func() bool { return rt.State() == runtime.Running })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsHTTP.Shutdown(shutdownCtx)
		}()
	}

	startMetricsLogger(ctx, l, cfg.logMetricsEvery)

	if err := rt.Start(); err != nil {
		l.Error("runtime_start_failed", "error", err)
		return 1
	}
	l.Info("runtime_started", "instance", rt.ID.String())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())

	rt.Stop()
	cancel()
	if monitorSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = monitorSrv.Shutdown(shutdownCtx)
		cancel()
	}
	_ = src.Close()
	_ = tgt.Close()
	l.Info("shutdown_complete")
	return 0
}
