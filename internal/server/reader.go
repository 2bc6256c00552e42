package server

import (
	"log/slog"
	"net"

	"github.com/xcan-translate/xcan/internal/hub"
)

// startReader drains (and discards) anything a monitor client sends, purely
// to detect disconnects promptly: a read returning an error means the
// client went away, so the writer goroutine is signalled to stop via
// cl.Close(). The monitor tap is observation-only and never forwards
// client-sent bytes anywhere.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		buf := make([]byte, 256)
		for {
			_, err := conn.Read(buf)
			if err != nil {
				cl.Close()
				return
			}
			select {
			case <-ctxDone:
				cl.Close()
				return
			default:
			}
		}
	}()
}
