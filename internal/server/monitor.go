package server

import (
	"context"
	"time"

	"github.com/telnet2/ragdocs-gateway/internal/logging"
)

// KeepAlive logs memory use and the active session count every interval
// until ctx is done.
func (s *Server) KeepAlive(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mem := memoryUsage()
			logging.Info().
				Uint64("rssMB", mem.RSS>>20).
				Uint64("heapUsedMB", mem.HeapUsed>>20).
				Int("activeSessions", s.registry.Count()).
				Msg("Server alive")
		}
	}
}
