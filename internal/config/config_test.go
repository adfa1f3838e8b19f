package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"workspace": "/srv/sanduku",
		"tools_dir": "/srv/sanduku/tools",
		"sandbox": {"default_image": "custom:1", "pids_limit": 50},
		"sessions": {"ttl_hours": 6, "sweep_schedule": "@every 30m"},
		"gateway": {"listen_addr": ":9090", "enable_docs": true}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Workspace != "/srv/sanduku" {
		t.Errorf("Workspace = %q", cfg.Workspace)
	}
	if cfg.Sandbox.Image() != "custom:1" {
		t.Errorf("Image = %q", cfg.Sandbox.Image())
	}
	if cfg.Sandbox.PIDs() != 50 {
		t.Errorf("PIDs = %d", cfg.Sandbox.PIDs())
	}
	if cfg.Sessions.TTL() != 6*time.Hour {
		t.Errorf("TTL = %v", cfg.Sessions.TTL())
	}
	if cfg.Sessions.Schedule() != "@every 30m" {
		t.Errorf("Schedule = %q", cfg.Sessions.Schedule())
	}
	if cfg.Gateway == nil || cfg.Gateway.Addr() != ":9090" {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
workspace: /srv/sanduku
sandbox:
  default_image: custom:2
sessions:
  ttl_hours: 12
gateway:
  listen_addr: ":7070"
  api_key_user_mapping:
    key-one: alice
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.Image() != "custom:2" {
		t.Errorf("Image = %q", cfg.Sandbox.Image())
	}
	if cfg.Sessions.TTL() != 12*time.Hour {
		t.Errorf("TTL = %v", cfg.Sessions.TTL())
	}
	if cfg.Gateway.APIKeyUserMapping["key-one"] != "alice" {
		t.Errorf("APIKeyUserMapping = %v", cfg.Gateway.APIKeyUserMapping)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, "bad.json", `{not json`)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SANDUKU_WORKSPACE", "/env/workspace")
	t.Setenv("SANDUKU_TOOLS_DIR", "/env/tools")
	t.Setenv("SANDUKU_SANDBOX_IMAGE", "env-image:latest")

	path := writeConfig(t, "config.json", `{
		"workspace": "/file/workspace",
		"sandbox": {"default_image": "file-image:1"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "/env/workspace" {
		t.Errorf("Workspace = %q, env must win", cfg.Workspace)
	}
	if cfg.ToolsDir != "/env/tools" {
		t.Errorf("ToolsDir = %q, env must win", cfg.ToolsDir)
	}
	if cfg.Sandbox.Image() != "env-image:latest" {
		t.Errorf("Image = %q, env must win", cfg.Sandbox.Image())
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}

	if cfg.Sandbox.Image() != "sanduku-runtime:latest" {
		t.Errorf("default image = %q", cfg.Sandbox.Image())
	}
	if cfg.Sandbox.PIDs() != 100 {
		t.Errorf("default pids = %d", cfg.Sandbox.PIDs())
	}
	if cfg.Sessions.TTL() != 24*time.Hour {
		t.Errorf("default ttl = %v", cfg.Sessions.TTL())
	}
	if cfg.Sessions.Schedule() != "@hourly" {
		t.Errorf("default schedule = %q", cfg.Sessions.Schedule())
	}
	if !cfg.Sessions.SweepEnabled() {
		t.Error("sweep should default to enabled")
	}
	if cfg.Gateway.Addr() != ":8080" {
		t.Errorf("default addr = %q", cfg.Gateway.Addr())
	}
}

func TestSweepDisabled(t *testing.T) {
	s := &SessionsConfig{SweepSchedule: "off"}
	if s.SweepEnabled() {
		t.Error("schedule \"off\" must disable the sweep")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative pids", Config{Sandbox: SandboxConfig{PIDsLimit: -1}}},
		{"negative ttl", Config{Sessions: SessionsConfig{TTLHours: -1}}},
		{"negative request size", Config{Gateway: &GatewayConfig{MaxRequestSizeBytes: -1}}},
		{"negative rate limit", Config{Gateway: &GatewayConfig{RateLimit: RateLimitConfig{RequestsPerMinute: -5}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
