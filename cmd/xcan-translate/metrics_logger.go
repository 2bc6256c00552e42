package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/xcan-translate/xcan/internal/metrics"
)

// startMetricsLogger periodically logs the counter snapshot at info level.
// A zero interval disables it.
func startMetricsLogger(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s := metrics.Snap()
				logger.Info("metrics_snapshot",
					"received", s.Received,
					"translated", s.Translated,
					"sent", s.Sent,
					"unknown", s.Unknown,
					"dropped", s.Dropped,
					"fuzzed", s.Fuzzed,
					"errors", s.Errors,
				)
			}
		}
	}()
}
