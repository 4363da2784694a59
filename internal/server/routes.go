package server

import (
	"net/http"
)

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Stream open
	r.Get("/sse", s.openSSE)
	r.Get("/ws", s.openWebSocket)

	// Message submit: header/query addressing and path addressing
	r.Post(MessagesPath, s.postMessage)
	r.Post(MessagesPath+"/{sessionId}", s.postSessionMessage)

	// Monitoring
	r.Get("/status", s.getStatus)
	r.Get("/health", s.getHealth)
	r.Get("/sessions", s.listSessions)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}
