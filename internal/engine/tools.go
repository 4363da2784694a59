package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/telnet2/ragdocs-gateway/internal/session"
)

// Tool names.
const (
	ToolGatewayStatus = "gateway_status"
	ToolSessionInfo   = "session_info"
)

// GatewayStatus is the result of the gateway_status tool.
type GatewayStatus struct {
	Server              string  `json:"server"`
	ActiveSessions      int     `json:"activeSessions"`
	Uptime              float64 `json:"uptime"`
	InactivityThreshold string  `json:"inactivityThreshold"`
}

func registerTools(e *Engine) {
	statusTool := mcp.NewTool(ToolGatewayStatus,
		mcp.WithDescription("Reports the number of active sessions, uptime and the idle eviction threshold of the gateway"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	e.srv.AddTool(statusTool, e.handleGatewayStatus)

	infoTool := mcp.NewTool(ToolSessionInfo,
		mcp.WithDescription("Describes a gateway session. Defaults to the calling session"),
		mcp.WithString("sessionId",
			mcp.Description("Session to describe; omit for the current session"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	e.srv.AddTool(infoTool, e.handleSessionInfo)
}

func (e *Engine) handleGatewayStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := GatewayStatus{
		Server: "ragdocs-gateway",
		Uptime: e.Uptime().Seconds(),
	}
	if insp := e.getInspector(); insp != nil {
		status.ActiveSessions = insp.Count()
		status.InactivityThreshold = insp.Threshold().String()
	}
	return mcp.NewToolResultJSON(status)
}

func (e *Engine) handleSessionInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("sessionId", "")
	if id == "" {
		if s := server.ClientSessionFromContext(ctx); s != nil {
			id = s.SessionID()
		}
	}
	if id == "" {
		return mcp.NewToolResultError("sessionId is required outside a gateway session"), nil
	}

	insp := e.getInspector()
	if insp == nil {
		return mcp.NewToolResultError("session registry unavailable"), nil
	}

	for _, info := range insp.List() {
		if info.ID == id {
			return mcp.NewToolResultJSON(sessionInfoResult(info))
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("session %s not found", id)), nil
}

// SessionInfoResult is the result of the session_info tool.
type SessionInfoResult struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	CreatedAt    string  `json:"createdAt"`
	LastActivity string  `json:"lastActivity"`
	IdleSeconds  float64 `json:"idleSeconds"`
	Pending      int     `json:"pending"`
}

func sessionInfoResult(info session.Info) SessionInfoResult {
	return SessionInfoResult{
		ID:           info.ID,
		Kind:         string(info.Kind),
		CreatedAt:    info.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastActivity: info.LastActivity.UTC().Format(time.RFC3339Nano),
		IdleSeconds:  info.Idle.Seconds(),
		Pending:      info.Pending,
	}
}
