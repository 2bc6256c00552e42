package server

import (
	"context"
	"net"

	"github.com/xcan-translate/xcan/internal/cnl"
)

// CannelloniHandshake runs the required hello exchange before a monitor
// client is registered with the hub.
func (s *Server) CannelloniHandshake(ctx context.Context, c net.Conn) error {
	return cnl.Handshake(ctx, c, s.handshakeTimeout)
}
