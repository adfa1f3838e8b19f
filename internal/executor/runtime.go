package executor

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from chatty code.
	maxOutputBytes = 1 << 20 // 1 MB

	// sandboxUser pins every container to a fixed non-root identity.
	sandboxUser = "1000:1000"

	// workspaceMount is where the session workspace appears inside the
	// container when a tool requests it.
	workspaceMount = "/home/sandbox/workspace"
)

// ContainerSpec describes one isolated execution environment.
type ContainerSpec struct {
	Name       string
	Image      string
	Command    []string
	MemoryMB   int
	CPUPercent int  // percentage of one core
	PIDsLimit  int
	Network    bool // false = no network stack at all
	ReadOnly   bool // read-only root with a tmpfs scratch at /tmp

	// SeccompPath applies a syscall allow-list profile when non-empty.
	SeccompPath string

	// WorkspaceDir bind-mounts a host directory at workspaceMount rw
	// when non-empty.
	WorkspaceDir string
}

// ContainerRuntime is the execution environment port. Launch is split
// from wait so the executor can apply its own deadline, and logs are
// read as two independent streams.
type ContainerRuntime interface {
	// Launch creates and starts a detached container, returning its handle.
	Launch(ctx context.Context, spec ContainerSpec) (string, error)

	// Wait blocks until the container exits or the timeout elapses.
	// A timeout is reported via context.DeadlineExceeded.
	Wait(ctx context.Context, id string, timeout time.Duration) (exitCode int, err error)

	// Logs returns captured stdout and stderr as separate streams.
	Logs(ctx context.Context, id string) (stdout, stderr string, err error)

	// Kill force-terminates the container. Best-effort.
	Kill(ctx context.Context, id string)

	// Remove deletes the container. Best-effort, runs on every exit path.
	Remove(ctx context.Context, id string)
}

// DockerRuntime drives containers through the docker CLI.
//
// Security posture per container:
//   - ALL Linux capabilities dropped (--cap-drop=ALL)
//   - Privilege escalation blocked (--security-opt=no-new-privileges)
//   - Non-root user (--user=1000:1000)
//   - Optional seccomp syscall allow-list
//   - Memory hard limit with no swap (OOM kill on exceed)
//   - CPU quota as a fraction of one core
//   - PIDs limit prevents fork bombs
//   - Network disabled unless the policy allows it (--network=none)
//   - Read-only root filesystem with a 64 MB tmpfs scratch
//   - stdout/stderr capped to prevent OOM on the host
type DockerRuntime struct {
	logger *slog.Logger
}

// NewDockerRuntime creates the docker CLI adapter.
func NewDockerRuntime(logger *slog.Logger) *DockerRuntime {
	return &DockerRuntime{logger: logger}
}

// Launch creates and starts a detached container.
func (r *DockerRuntime) Launch(ctx context.Context, spec ContainerSpec) (string, error) {
	args := buildDockerArgs(spec)

	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker create: %w: %s", err, strings.TrimSpace(string(out)))
	}
	id := strings.TrimSpace(string(out))

	if out, err := exec.CommandContext(ctx, "docker", "start", id).CombinedOutput(); err != nil {
		r.Remove(ctx, id)
		return "", fmt.Errorf("docker start: %w: %s", err, strings.TrimSpace(string(out)))
	}

	r.logger.Debug("container launched",
		slog.String("container", spec.Name),
		slog.String("image", spec.Image),
		slog.Bool("network", spec.Network),
		slog.Int("memory_mb", spec.MemoryMB),
	)

	return id, nil
}

// Wait blocks until exit or timeout. Timeout surfaces as the wait
// context's deadline error; the caller force-kills on that path.
func (r *DockerRuntime) Wait(ctx context.Context, id string, timeout time.Duration) (int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(waitCtx, "docker", "wait", id).Output()
	if err != nil {
		if waitCtx.Err() != nil {
			return 0, waitCtx.Err()
		}
		return 0, fmt.Errorf("docker wait: %w", err)
	}

	code, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parsing exit code %q: %w", strings.TrimSpace(string(out)), err)
	}
	return code, nil
}

// Logs reads stdout and stderr as two independent capped streams.
func (r *DockerRuntime) Logs(ctx context.Context, id string) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	cmd := exec.CommandContext(ctx, "docker", "logs", id)
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	if err := cmd.Run(); err != nil {
		return "", "", fmt.Errorf("docker logs: %w", err)
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Kill force-terminates the container. Errors are logged, not returned.
func (r *DockerRuntime) Kill(ctx context.Context, id string) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if out, err := exec.CommandContext(killCtx, "docker", "kill", id).CombinedOutput(); err != nil {
		if !bytes.Contains(out, []byte("is not running")) && !bytes.Contains(out, []byte("No such container")) {
			r.logger.Warn("docker kill failed",
				slog.String("container", id),
				slog.String("error", err.Error()),
				slog.String("output", string(out)),
			)
		}
	}
}

// Remove deletes the container. This is the unconditional cleanup safety
// net; errors are logged, not returned.
func (r *DockerRuntime) Remove(ctx context.Context, id string) {
	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if out, err := exec.CommandContext(rmCtx, "docker", "rm", "-f", id).CombinedOutput(); err != nil {
		if !bytes.Contains(out, []byte("No such container")) {
			r.logger.Warn("docker rm -f failed",
				slog.String("container", id),
				slog.String("error", err.Error()),
				slog.String("output", string(out)),
			)
		}
	}
}

// buildDockerArgs constructs the docker create argument list with all
// hardening flags. The command comes last, after the image.
func buildDockerArgs(spec ContainerSpec) []string {
	memoryFlag := strconv.Itoa(spec.MemoryMB) + "m"
	cpuFlag := strconv.FormatFloat(float64(spec.CPUPercent)/100, 'f', 2, 64)

	args := []string{
		"create",
		"--name", spec.Name,

		// --- Security hardening ---
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--user=" + sandboxUser,

		// --- Resource limits ---
		"--memory=" + memoryFlag,
		"--memory-swap=" + memoryFlag, // same as memory = no swap, OOM kill
		"--cpus=" + cpuFlag,
		"--pids-limit=" + strconv.Itoa(spec.PIDsLimit),

		// --- Sanitized environment ---
		"--env", "HOME=/tmp",
		"--env", "MPLCONFIGDIR=/tmp",
	}

	if spec.SeccompPath != "" {
		args = append(args, "--security-opt", "seccomp="+spec.SeccompPath)
	}

	if spec.Network {
		args = append(args, "--network=bridge")
	} else {
		args = append(args, "--network=none")
	}

	if spec.ReadOnly {
		args = append(args, "--read-only", "--tmpfs", "/tmp:rw,nosuid,size=64m,mode=1777")
	}

	if spec.WorkspaceDir != "" {
		args = append(args, "--volume", spec.WorkspaceDir+":"+workspaceMount+":rw")
	}

	args = append(args, spec.Image)
	args = append(args, spec.Command...)
	return args
}

// limitedWriter writes up to remaining bytes, silently discarding the rest.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil // discard but report success
	}
	if len(p) > lw.remaining {
		n, err := lw.w.Write(p[:lw.remaining])
		lw.remaining -= n
		if err != nil {
			return n, err
		}
		return len(p), nil
	}
	n, err := lw.w.Write(p)
	lw.remaining -= n
	return n, err
}

// generateContainerName returns a unique name: sanduku-sbx-<16 hex chars>.
func generateContainerName() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "sanduku-sbx-" + hex.EncodeToString(b), nil
}

// DockerAvailable reports whether a docker daemon is reachable. Used by
// health checks and integration tests.
func DockerAvailable(ctx context.Context) bool {
	infoCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(infoCtx, "docker", "info").Run() == nil
}

// seccompProfileIfPresent returns path when the file exists, else "".
func seccompProfileIfPresent(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
