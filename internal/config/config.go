// Package config handles loading and validating sanduku configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for sanduku.
type Config struct {
	Workspace     string               `json:"workspace,omitempty" yaml:"workspace,omitempty"` // Workspace root. Default: ~/.sanduku/workspace. Override: SANDUKU_WORKSPACE env var.
	ToolsDir      string               `json:"tools_dir,omitempty" yaml:"tools_dir,omitempty"` // Tool descriptor root. Default: <workspace>/tools. Override: SANDUKU_TOOLS_DIR env var.
	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Sessions      SessionsConfig       `json:"sessions" yaml:"sessions"`
	Gateway       *GatewayConfig       `json:"gateway,omitempty" yaml:"gateway,omitempty"`             // nil = HTTP gateway disabled (CLI only).
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled.
}

// SandboxConfig holds Docker runtime defaults. Per-tool sandbox policies in
// the descriptors override timeout/memory/CPU/network per execution.
type SandboxConfig struct {
	DefaultImage string `json:"default_image" yaml:"default_image"` // Default: "sanduku-runtime:latest".
	PIDsLimit    int    `json:"pids_limit" yaml:"pids_limit"`       // Docker --pids-limit. Default: 100.
	SeccompPath  string `json:"seccomp_path" yaml:"seccomp_path"`   // Seccomp profile file. Empty = <workspace>/seccomp-profile.json if present.
}

// Image returns the default container image.
func (s *SandboxConfig) Image() string {
	if s != nil && s.DefaultImage != "" {
		return s.DefaultImage
	}
	return "sanduku-runtime:latest"
}

// PIDs returns the process-count ceiling with a default of 100.
func (s *SandboxConfig) PIDs() int {
	if s != nil && s.PIDsLimit > 0 {
		return s.PIDsLimit
	}
	return 100
}

// SessionsConfig configures the session storage manager.
type SessionsConfig struct {
	TTLHours      int    `json:"ttl_hours" yaml:"ttl_hours"`           // Session lifetime. Default: 24.
	SweepSchedule string `json:"sweep_schedule" yaml:"sweep_schedule"` // Cron spec for the TTL sweep. Default: "@hourly". "off" disables.
}

// TTL returns the session lifetime with a default of 24h.
func (s *SessionsConfig) TTL() time.Duration {
	if s != nil && s.TTLHours > 0 {
		return time.Duration(s.TTLHours) * time.Hour
	}
	return 24 * time.Hour
}

// Schedule returns the sweep cron spec with a default of "@hourly".
func (s *SessionsConfig) Schedule() string {
	if s != nil && s.SweepSchedule != "" {
		return s.SweepSchedule
	}
	return "@hourly"
}

// SweepEnabled reports whether the scheduled sweep should run.
func (s *SessionsConfig) SweepEnabled() bool {
	return s == nil || s.SweepSchedule != "off"
}

// GatewayConfig configures the HTTP API gateway.
type GatewayConfig struct {
	ListenAddr          string            `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	EnableDocs          bool              `json:"enable_docs" yaml:"enable_docs"`
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"` // Default: 1 MB.
	APIKeyUserMapping   map[string]string `json:"api_key_user_mapping" yaml:"api_key_user_mapping"`     // API key → user ID.
	RateLimit           RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address with a default of ":8080".
func (g *GatewayConfig) Addr() string {
	if g != nil && g.ListenAddr != "" {
		return g.ListenAddr
	}
	return ":8080"
}

// RateLimitConfig configures per-user rate limiting for the gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "sanduku"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDocker   bool `json:"include_docker" yaml:"include_docker"`
	IncludeSessions bool `json:"include_sessions" yaml:"include_sessions"`
}

// DefaultConfigPath returns the default config file path (~/.sanduku/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/sanduku.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".sanduku", "config.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a usable configuration when no config file exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides applies SANDUKU_* environment variables over file values.
func applyEnvOverrides(cfg *Config) {
	if envWS := os.Getenv("SANDUKU_WORKSPACE"); envWS != "" {
		cfg.Workspace = envWS
	}
	if envTools := os.Getenv("SANDUKU_TOOLS_DIR"); envTools != "" {
		cfg.ToolsDir = envTools
	}
	if envImage := os.Getenv("SANDUKU_SANDBOX_IMAGE"); envImage != "" {
		cfg.Sandbox.DefaultImage = envImage
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

func (c *Config) validate() error {
	if c.Sandbox.PIDsLimit < 0 {
		return fmt.Errorf("sandbox.pids_limit must not be negative")
	}
	if c.Sessions.TTLHours < 0 {
		return fmt.Errorf("sessions.ttl_hours must not be negative")
	}
	if c.Sessions.SweepSchedule != "" && c.Sessions.SweepSchedule != "off" {
		// Cron spec syntax is validated by the scheduler at startup; here we
		// only reject obviously empty-but-set values.
		if strings.TrimSpace(c.Sessions.SweepSchedule) == "" {
			return fmt.Errorf("sessions.sweep_schedule must be a cron spec or \"off\"")
		}
	}
	if c.Gateway != nil {
		if c.Gateway.MaxRequestSizeBytes < 0 {
			return fmt.Errorf("gateway.max_request_size_bytes must not be negative")
		}
		if c.Gateway.RateLimit.RequestsPerMinute < 0 {
			return fmt.Errorf("gateway.rate_limit.requests_per_minute must not be negative")
		}
	}
	return nil
}
