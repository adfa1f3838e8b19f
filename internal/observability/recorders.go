package observability

import (
	"time"
)

// Recorders are nil-safe: a nil *MetricsCollector skips every call, so
// callers never branch on whether metrics are enabled.

// RecordToolExecution records one tool invocation outcome.
func (m *MetricsCollector) RecordToolExecution(tool string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordSandboxLaunch records one container launch by operation kind.
func (m *MetricsCollector) RecordSandboxLaunch(kind string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.SandboxLaunchesTotal.WithLabelValues(kind, statusLabel(success)).Inc()
	m.SandboxExecutionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSecurityScreen records one screen verdict.
func (m *MetricsCollector) RecordSecurityScreen(allowed bool) {
	if m == nil {
		return
	}
	verdict := "allowed"
	if !allowed {
		verdict = "blocked"
	}
	m.SecurityScreensTotal.WithLabelValues(verdict).Inc()
}

// RecordStorageOperation records one storage dispatch outcome.
func (m *MetricsCollector) RecordStorageOperation(operation string, success bool) {
	if m == nil {
		return
	}
	m.StorageOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

// SetActiveSessions updates the live session gauge.
func (m *MetricsCollector) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
