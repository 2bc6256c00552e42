package main

import (
	"log/slog"

	"github.com/xcan-translate/xcan/internal/cnl"
	"github.com/xcan-translate/xcan/internal/hub"
	"github.com/xcan-translate/xcan/internal/server"
)

// newMonitorServer wires a hub and a monitor tap Server from cfg. Returns
// nil, nil when the monitor tap is disabled (no --monitor-listen).
func newMonitorServer(cfg *appConfig, logger *slog.Logger) (*server.Server, *hub.Hub, error) {
	if cfg.monitorAddr == "" {
		return nil, nil, nil
	}
	h := hub.New()
	h.OutBufSize = cfg.monitorBuf
	switch cfg.monitorPol {
	case "kick":
		h.Policy = hub.PolicyKick
	default:
		h.Policy = hub.PolicyDrop
	}

	srv := server.NewServer(
		server.WithListenAddr(cfg.monitorAddr),
		server.WithHub(h),
		server.WithCodec(&cnl.Codec{}),
		server.WithHandshakeTimeout(cfg.handshakeTO),
		server.WithReadDeadline(cfg.clientReadTO),
		server.WithMaxClients(cfg.maxClients),
		server.WithLogger(logger),
	)
	return srv, h, nil
}
