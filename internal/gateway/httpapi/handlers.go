package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/sanduku/internal/storage"
	"github.com/jkaninda/sanduku/internal/toolloader"
)

// --- Tool catalog ---

// ToolSummary is one entry in the tool list.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolListResponse is the JSON response for GET /v1/tools.
type ToolListResponse struct {
	Tools []ToolSummary `json:"tools"`
	Count int           `json:"count"`
}

// ToolResponse is the JSON response for GET /v1/tools/{name}.
type ToolResponse struct {
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	Parameters   []toolloader.ToolParameter `json:"parameters"`
	Sandbox      toolloader.SandboxPolicy   `json:"sandbox"`
	Instructions string                     `json:"instructions,omitempty"`
}

func (g *Gateway) handleToolList(c *okapi.Context) error {
	defs := g.loader.List()
	tools := make([]ToolSummary, len(defs))
	for i, d := range defs {
		tools[i] = ToolSummary{Name: d.Name, Description: d.Description}
	}
	return c.OK(ToolListResponse{Tools: tools, Count: len(tools)})
}

func (g *Gateway) handleToolGet(c *okapi.Context) error {
	def, err := g.loader.Get(c.Param("name"))
	if err != nil {
		if errors.Is(err, toolloader.ErrToolNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "tool not found"})
		}
		return c.AbortInternalServerError("catalog lookup failed")
	}
	return c.OK(ToolResponse{
		Name:         def.Name,
		Description:  def.Description,
		Parameters:   def.Parameters,
		Sandbox:      def.Sandbox,
		Instructions: def.Instructions,
	})
}

func (g *Gateway) handleToolSchema(c *okapi.Context) error {
	def, err := g.loader.Get(c.Param("name"))
	if err != nil {
		if errors.Is(err, toolloader.ErrToolNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "tool not found"})
		}
		return c.AbortInternalServerError("catalog lookup failed")
	}
	return c.OK(def.FunctionDescriptor())
}

// --- Execution ---

// ExecuteRequest is the JSON body for POST /v1/execute.
type ExecuteRequest struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	SessionID string         `json:"session_id,omitempty"` // Empty = no workspace mount.
}

// ExecuteResponse is the JSON response for POST /v1/execute.
type ExecuteResponse struct {
	Tool          string  `json:"tool"`
	Success       bool    `json:"success"`
	Output        string  `json:"output"`
	Error         string  `json:"error,omitempty"`
	ErrorKind     string  `json:"error_kind,omitempty"`
	ExecutionTime float64 `json:"execution_time"` // seconds
	ExecID        string  `json:"exec_id"`
	CorrelationID string  `json:"correlation_id"`
}

func (g *Gateway) handleExecute(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Tool == "" {
		return c.AbortBadRequest("tool is required")
	}

	def, err := g.loader.Get(req.Tool)
	if err != nil {
		if errors.Is(err, toolloader.ErrToolNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "tool not found: " + req.Tool})
		}
		return c.AbortInternalServerError("catalog lookup failed")
	}

	// Storage invocations dispatch to the session manager directly; they
	// never launch a container.
	if def.Name == "data_storage" {
		if req.SessionID == "" {
			return c.AbortBadRequest("session_id is required for data_storage")
		}
		op := storage.OpRequest{
			Operation: argString(req.Args, "operation"),
			Namespace: argString(req.Args, "namespace"),
			Key:       argString(req.Args, "key"),
			Value:     argStringPtr(req.Args, "value"),
			SQL:       argString(req.Args, "sql"),
			Path:      argString(req.Args, "path"),
			Content:   argStringPtr(req.Args, "content"),
		}
		result := g.store.ExecuteOperation(req.SessionID, op)
		success, _ := result["success"].(bool)
		g.config.Metrics.RecordStorageOperation(op.Operation, success)
		g.config.Metrics.SetActiveSessions(g.store.Count())
		return c.OK(result)
	}

	// Sessions are created on first use so workspace mounts resolve.
	if req.SessionID != "" {
		if _, err := g.store.GetOrCreate(req.SessionID); err != nil {
			return c.AbortBadRequest("invalid session id")
		}
		g.config.Metrics.SetActiveSessions(g.store.Count())
	}

	correlationID := newCorrelationID()

	g.logger.Info("http execute",
		slog.String("user_id", userID),
		slog.String("tool", req.Tool),
		slog.String("session_id", req.SessionID),
		slog.String("correlation_id", correlationID),
	)

	result := g.exec.Execute(c.Context(), def, req.Args, req.SessionID)
	g.config.Metrics.RecordToolExecution(req.Tool, result.Success, result.Duration)

	return c.OK(ExecuteResponse{
		Tool:          req.Tool,
		Success:       result.Success,
		Output:        result.Output,
		Error:         result.Error,
		ErrorKind:     result.Kind,
		ExecutionTime: result.Duration.Seconds(),
		ExecID:        result.ExecID,
		CorrelationID: correlationID,
	})
}

// --- Session storage ---

func (g *Gateway) handleStorage(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	sessionID := c.Param("id")
	if sessionID == "" {
		return c.AbortBadRequest("session id is required")
	}

	var req storage.OpRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Operation == "" {
		return c.AbortBadRequest("operation is required")
	}

	g.logger.Info("http storage operation",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.String("operation", req.Operation),
	)

	// Faults come back inside the result, never as an HTTP error.
	result := g.store.ExecuteOperation(sessionID, req)
	success, _ := result["success"].(bool)
	g.config.Metrics.RecordStorageOperation(req.Operation, success)
	g.config.Metrics.SetActiveSessions(g.store.Count())

	return c.OK(result)
}

func (g *Gateway) handleSessionInfo(c *okapi.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return c.AbortBadRequest("session id is required")
	}

	info, err := g.store.Info(sessionID)
	if err != nil {
		return c.AbortInternalServerError("session lookup failed")
	}
	g.config.Metrics.SetActiveSessions(g.store.Count())
	return c.OK(info)
}

func (g *Gateway) handleSessionDelete(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	sessionID := c.Param("id")
	if sessionID == "" {
		return c.AbortBadRequest("session id is required")
	}

	if err := g.store.Delete(sessionID); err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "session not found"})
	}
	g.config.Metrics.SetActiveSessions(g.store.Count())

	g.logger.Info("http session deleted",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)
	return c.OK(okapi.M{"status": "deleted"})
}

// --- Admin ---

// ReloadError is one per-file failure from a catalog reload.
type ReloadError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ReloadResponse is the JSON response for POST /v1/admin/reload.
type ReloadResponse struct {
	Loaded int           `json:"loaded"`
	Errors []ReloadError `json:"errors,omitempty"`
}

func (g *Gateway) handleReload(c *okapi.Context) error {
	userID := c.GetString("userID")

	correlationID := newCorrelationID()
	g.logger.Info("http catalog reload",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
	)

	result, err := g.loader.Reload()
	if err != nil {
		g.logger.Error("catalog reload failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("reload failed")
	}

	resp := ReloadResponse{Loaded: result.Loaded}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, ReloadError{File: e.File, Message: e.Message})
	}
	return c.OK(resp)
}

// SweepResponse is the JSON response for POST /v1/admin/sweep.
type SweepResponse struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

func (g *Gateway) handleSweep(c *okapi.Context) error {
	userID := c.GetString("userID")

	removed := g.store.SweepExpired()
	remaining := g.store.Count()
	g.config.Metrics.SetActiveSessions(remaining)

	g.logger.Info("http session sweep",
		slog.String("user_id", userID),
		slog.Int("removed", removed),
	)
	return c.OK(SweepResponse{Removed: removed, Remaining: remaining})
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// argStringPtr keeps absent and empty-string arguments distinguishable.
func argStringPtr(args map[string]any, key string) *string {
	if s, ok := args[key].(string); ok {
		return &s
	}
	return nil
}
