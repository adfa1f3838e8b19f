// Package executor runs tool invocations inside hardened, ephemeral
// containers. Each invocation walks a fixed state machine: build the
// command, launch an isolated environment, wait with a deadline, collect
// the streams, and unconditionally tear the environment down.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/sanduku/internal/security"
	"github.com/jkaninda/sanduku/internal/toolloader"
	"github.com/jkaninda/sanduku/internal/workspace"
)

// Config holds runtime-wide execution defaults. Per-tool sandbox
// policies override image, timeout, memory, CPU, and network per call.
type Config struct {
	DefaultImage string // container image when the tool does not name one
	PIDsLimit    int    // process-count ceiling per container
	SeccompPath  string // syscall allow-list profile, applied only when the file exists
}

// Metrics receives execution telemetry: one sandbox launch per container
// attempt and one screen verdict per screened invocation.
// *observability.MetricsCollector satisfies it.
type Metrics interface {
	RecordSandboxLaunch(kind string, success bool, duration time.Duration)
	RecordSecurityScreen(allowed bool)
}

// Executor runs tools through a ContainerRuntime.
type Executor struct {
	cfg     Config
	runtime ContainerRuntime
	ws      *workspace.Workspace
	logger  *slog.Logger
	metrics Metrics
}

// New creates an Executor.
func New(cfg Config, runtime ContainerRuntime, ws *workspace.Workspace, logger *slog.Logger) *Executor {
	if cfg.DefaultImage == "" {
		cfg.DefaultImage = "sanduku-runtime:latest"
	}
	if cfg.PIDsLimit <= 0 {
		cfg.PIDsLimit = 100
	}
	return &Executor{
		cfg:     cfg,
		runtime: runtime,
		ws:      ws,
		logger:  logger,
	}
}

// WithMetrics attaches a telemetry sink. Execution works without one.
func (e *Executor) WithMetrics(m Metrics) *Executor {
	e.metrics = m
	return e
}

// Execute runs one tool invocation and returns exactly one Result.
// Argument validation and the security screen both reject before any
// container resource is allocated; a rejected call costs nothing.
func (e *Executor) Execute(ctx context.Context, def *toolloader.ToolDefinition, args map[string]any, sessionID string) (result Result) {
	execID := uuid.NewString()[:8]
	start := time.Now()

	args, missing := resolveArgs(def, args)
	if missing != "" {
		return failure(execID, KindInternalError,
			fmt.Sprintf("missing required parameter %q", missing), 0)
	}

	// Screen interpretable code before anything is allocated. A block is
	// fatal and zero-cost.
	if screened, verdict := e.screen(def, args); screened {
		if e.metrics != nil {
			e.metrics.RecordSecurityScreen(verdict.Allowed)
		}
		if !verdict.Allowed {
			e.logger.Warn("execution blocked by security screen",
				slog.String("tool", def.Name),
				slog.String("reason", verdict.Reason),
				slog.String("exec_id", execID),
			)
			return failure(execID, KindSecurityViolation,
				"security violation: "+verdict.Reason, 0)
		}
	}

	// BUILD: kind-keyed command construction.
	kind, ok := kindForTool(def.Name)
	if !ok {
		return failure(execID, KindUnsupportedOperation,
			fmt.Sprintf("unknown tool: %s", def.Name), time.Since(start))
	}
	command, err := builders[kind](args)
	if err != nil {
		return failure(execID, KindUnsupportedOperation, err.Error(), time.Since(start))
	}

	spec, err := e.containerSpec(def, command, sessionID)
	if err != nil {
		return failure(execID, KindInternalError, err.Error(), time.Since(start))
	}

	e.logger.Info("executing tool",
		slog.String("tool", def.Name),
		slog.String("kind", kind.String()),
		slog.String("container", spec.Name),
		slog.String("image", spec.Image),
		slog.Duration("timeout", def.Sandbox.Timeout()),
		slog.String("exec_id", execID),
	)

	// Every launch attempt from here on is counted, whatever its outcome.
	launched := false
	defer func() {
		if launched && e.metrics != nil {
			e.metrics.RecordSandboxLaunch(kind.String(), result.Success, result.Duration)
		}
	}()

	// LAUNCH: non-blocking, so the wait step applies its own deadline.
	launched = true
	id, err := e.runtime.Launch(ctx, spec)
	if err != nil {
		return failure(execID, KindLaunchFailure,
			"launch failed: "+err.Error(), time.Since(start))
	}
	// CLEANUP: runs on every exit path below.
	defer e.runtime.Remove(ctx, id)

	// RUN: bounded wait; timeout force-kills and is reported distinctly
	// from a non-zero exit.
	exitCode, err := e.runtime.Wait(ctx, id, def.Sandbox.Timeout())
	if err != nil {
		duration := time.Since(start)
		if errors.Is(err, context.DeadlineExceeded) {
			e.runtime.Kill(ctx, id)
			e.logger.Warn("execution timed out",
				slog.String("tool", def.Name),
				slog.Duration("timeout", def.Sandbox.Timeout()),
				slog.String("exec_id", execID),
			)
			return failure(execID, KindTimeout,
				fmt.Sprintf("timeout after %s", def.Sandbox.Timeout()), duration)
		}
		return failure(execID, KindInternalError,
			"waiting for container: "+err.Error(), duration)
	}

	// COLLECT: stdout and stderr stay separate, never merged.
	stdout, stderr, err := e.runtime.Logs(ctx, id)
	if err != nil {
		return failure(execID, KindInternalError,
			"collecting output: "+err.Error(), time.Since(start))
	}

	duration := time.Since(start)

	e.logger.Info("execution complete",
		slog.String("tool", def.Name),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", len(stdout)),
		slog.Int("stderr_bytes", len(stderr)),
		slog.String("exec_id", execID),
	)

	if exitCode != 0 {
		detail := stderr
		if detail == "" {
			detail = fmt.Sprintf("exit code: %d", exitCode)
		}
		r := failure(execID, KindNonZeroExit, detail, duration)
		r.Output = stdout
		return r
	}

	return Result{
		Success:  true,
		Output:   stdout,
		Error:    stderr,
		Duration: duration,
		ExecID:   execID,
	}
}

// screen applies the security check to interpretable-code invocations.
// Returns screened=false for kinds that rely on isolation alone.
func (e *Executor) screen(def *toolloader.ToolDefinition, args map[string]any) (bool, security.Verdict) {
	kind, ok := kindForTool(def.Name)
	if !ok || kind != OpCode {
		return false, security.Verdict{}
	}
	language := stringArgDefault(args, "language", "python")
	return true, security.Check(stringArg(args, "code"), language)
}

// containerSpec materializes the isolation settings for one invocation.
func (e *Executor) containerSpec(def *toolloader.ToolDefinition, command []string, sessionID string) (ContainerSpec, error) {
	name, err := generateContainerName()
	if err != nil {
		return ContainerSpec{}, fmt.Errorf("generating container name: %w", err)
	}

	image := def.Sandbox.Image
	if image == "" {
		image = e.cfg.DefaultImage
	}

	spec := ContainerSpec{
		Name:        name,
		Image:       image,
		Command:     command,
		MemoryMB:    def.Sandbox.Memory(),
		CPUPercent:  def.Sandbox.CPU(),
		PIDsLimit:   e.cfg.PIDsLimit,
		Network:     def.Sandbox.Network,
		ReadOnly:    def.Sandbox.ReadOnly(),
		SeccompPath: seccompProfileIfPresent(e.cfg.SeccompPath),
	}

	// The session workspace is mounted rw only when the tool asks for it.
	if def.Sandbox.MountWorkspace && sessionID != "" {
		spec.WorkspaceDir = e.ws.SessionDir(sessionID)
	}

	return spec, nil
}

// resolveArgs copies args, applies definition defaults to absent optional
// parameters, and reports the first missing required parameter.
func resolveArgs(def *toolloader.ToolDefinition, args map[string]any) (map[string]any, string) {
	resolved := make(map[string]any, len(args))
	for k, v := range args {
		resolved[k] = v
	}
	for _, p := range def.Parameters {
		if _, present := resolved[p.Name]; present {
			continue
		}
		if p.Required {
			return nil, p.Name
		}
		if p.Default != nil {
			resolved[p.Name] = p.Default
		}
	}
	return resolved, ""
}
