// Package command implements the local control plane over a unix socket.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"icc.tech/pktbridge/internal/engine"
	"icc.tech/pktbridge/internal/log"
)

// StatsSource exposes the running engine's counters.
type StatsSource interface {
	Snapshot() engine.Snapshot
}

// Reloader re-reads the rule configuration and swaps it into the engine.
type Reloader interface {
	Reload() error
}

// Handler dispatches control commands against the running daemon.
type Handler struct {
	stats        StatsSource
	reloader     Reloader
	shutdownFunc func() // Called by the shutdown command to trigger graceful stop
	startTime    time.Time
}

// NewHandler creates a command handler.
func NewHandler(stats StatsSource, reloader Reloader) *Handler {
	return &Handler{
		stats:     stats,
		reloader:  reloader,
		startTime: time.Now(),
	}
}

// SetShutdownFunc sets the callback invoked by the shutdown command.
func (h *Handler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g. "stats", "reload"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInternalError  = -32603 // Internal error
)

// Handle processes a command and returns a response.
func (h *Handler) Handle(ctx context.Context, cmd Command) Response {
	log.WithFields(map[string]interface{}{"method": cmd.Method, "id": cmd.ID}).Debug("handling command")

	switch cmd.Method {
	case "ping":
		return Response{ID: cmd.ID, Result: "pong"}
	case "stats":
		return h.handleStats(cmd)
	case "reload":
		return h.handleReload(cmd)
	case "status":
		return h.handleStatus(cmd)
	case "shutdown":
		return h.handleShutdown(cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

func (h *Handler) handleStats(cmd Command) Response {
	return Response{ID: cmd.ID, Result: h.stats.Snapshot()}
}

func (h *Handler) handleReload(cmd Command) Response {
	if err := h.reloader.Reload(); err != nil {
		return Response{
			ID:    cmd.ID,
			Error: &ErrorInfo{Code: ErrCodeInternalError, Message: err.Error()},
		}
	}
	return Response{ID: cmd.ID, Result: "reloaded"}
}

// StatusResult is the status command's payload.
type StatusResult struct {
	Running       bool   `json:"running"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Generation    uint64 `json:"ruleset_generation"`
	Rules         int    `json:"rules_loaded"`
}

func (h *Handler) handleStatus(cmd Command) Response {
	snap := h.stats.Snapshot()
	return Response{ID: cmd.ID, Result: StatusResult{
		Running:       true,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Generation:    snap.Generation,
		Rules:         snap.Rules,
	}}
}

func (h *Handler) handleShutdown(cmd Command) Response {
	if h.shutdownFunc == nil {
		return Response{
			ID:    cmd.ID,
			Error: &ErrorInfo{Code: ErrCodeInternalError, Message: "shutdown not wired"},
		}
	}
	// Respond first, then stop: the caller gets an acknowledgement before
	// the socket goes away.
	go h.shutdownFunc()
	return Response{ID: cmd.ID, Result: "shutting down"}
}
