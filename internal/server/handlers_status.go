package server

import (
	"net/http"
	"runtime"

	"github.com/telnet2/ragdocs-gateway/pkg/types"
)

// getStatus handles GET /status.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.StatusResponse{
		Status:         "ok",
		ActiveSessions: s.registry.Count(),
		Uptime:         s.Uptime().Seconds(),
		Memory:         memoryUsage(),
	})
}

// getHealth handles GET /health.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}

// listSessions handles GET /sessions. Listing does not count as activity.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.List()
	out := types.SessionList{
		Count:    len(infos),
		Sessions: make([]types.SessionInfo, 0, len(infos)),
	}
	for _, info := range infos {
		out.Sessions = append(out.Sessions, types.SessionInfo{
			ID:           info.ID,
			Kind:         string(info.Kind),
			CreatedAt:    info.CreatedAt.UnixMilli(),
			LastActivity: info.LastActivity.UnixMilli(),
			IdleSeconds:  info.Idle.Seconds(),
			Pending:      info.Pending,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// memoryUsage reports Go runtime memory in the shape clients expect.
func memoryUsage() types.MemoryUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var external uint64
	if m.Sys > m.HeapSys {
		external = m.Sys - m.HeapSys
	}
	return types.MemoryUsage{
		RSS:       m.Sys,
		HeapTotal: m.HeapSys,
		HeapUsed:  m.HeapAlloc,
		External:  external,
	}
}
