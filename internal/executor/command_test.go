package executor

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
)

func TestBuildCodeCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		want     []string
		wantErr  bool
	}{
		{"python", map[string]any{"code": "print(1)", "language": "python"}, []string{"python3", "-c", "print(1)"}, false},
		{"default language", map[string]any{"code": "print(1)"}, []string{"python3", "-c", "print(1)"}, false},
		{"bash", map[string]any{"code": "echo hi", "language": "bash"}, []string{"bash", "-c", "echo hi"}, false},
		{"node", map[string]any{"code": "console.log(1)", "language": "node"}, []string{"node", "-e", "console.log(1)"}, false},
		{"javascript alias", map[string]any{"code": "1", "language": "javascript"}, []string{"node", "-e", "1"}, false},
		{"unsupported", map[string]any{"code": "x", "language": "ruby"}, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildCodeCommand(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tc.want) {
				t.Errorf("command = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildShellCommand(t *testing.T) {
	got, err := buildShellCommand(map[string]any{"command": "ls -la | wc -l"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"bash", "-c", "ls -la | wc -l"}
	if !slices.Equal(got, want) {
		t.Errorf("command = %v, want %v", got, want)
	}
}

func TestPyJSONLiteralRoundTrip(t *testing.T) {
	// Hostile values must survive the double encoding intact and never
	// produce unescaped quote or newline characters in the literal.
	params := map[string]any{
		"content": "line1\nline2\"; import subprocess; '''",
		"query":   `a'b"c\d`,
	}

	literal, err := pyJSONLiteral(params)
	if err != nil {
		t.Fatal(err)
	}

	// The literal is one JSON string; decoding it twice recovers the value.
	var inner string
	if err := json.Unmarshal([]byte(literal), &inner); err != nil {
		t.Fatalf("literal is not a single JSON string: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(inner), &decoded); err != nil {
		t.Fatalf("inner payload is not valid JSON: %v", err)
	}
	if decoded["content"] != params["content"] || decoded["query"] != params["query"] {
		t.Errorf("round trip lost data: %v", decoded)
	}

	// No raw newlines may appear inside the generated literal.
	if strings.ContainsAny(literal, "\n\r") {
		t.Error("literal contains raw newline")
	}
}

func TestBuildAnalysisCommand(t *testing.T) {
	cmd, err := buildAnalysisCommand(map[string]any{
		"content": `{"a": 1}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if cmd[0] != "python3" || cmd[1] != "-c" {
		t.Fatalf("command = %v", cmd[:2])
	}

	script := cmd[2]
	if !strings.Contains(script, "json.loads(") {
		t.Error("script missing JSON argument decode")
	}
	// Defaults applied for absent optional arguments.
	if !strings.Contains(script, `auto`) || !strings.Contains(script, `parse`) {
		t.Error("file_type/operation defaults missing from payload")
	}
	// Content must appear only in escaped form, never as raw script text
	// that could terminate the literal.
	if strings.Contains(script, "\"content\": {") {
		t.Error("content embedded unescaped")
	}
}

func TestBuildFetchCommand(t *testing.T) {
	cmd, err := buildFetchCommand(map[string]any{
		"url":     "https://example.com/page",
		"headers": map[string]any{"X-Token": "abc"},
	})
	if err != nil {
		t.Fatal(err)
	}
	script := cmd[2]
	if !strings.Contains(script, "requests.request") {
		t.Error("script missing request call")
	}
	if !strings.Contains(script, "example.com") {
		t.Error("url missing from payload")
	}
	// Method and extract defaults.
	if !strings.Contains(script, "GET") || !strings.Contains(script, "text") {
		t.Error("method/extract defaults missing from payload")
	}
}

func TestKindForTool(t *testing.T) {
	tests := []struct {
		tool string
		kind OpKind
		ok   bool
	}{
		{"code_execution", OpCode, true},
		{"bash_command", OpShell, true},
		{"file_analysis", OpAnalysis, true},
		{"web_fetch", OpFetch, true},
		{"data_storage", 0, false},
		{"nope", 0, false},
	}
	for _, tc := range tests {
		kind, ok := kindForTool(tc.tool)
		if ok != tc.ok || (ok && kind != tc.kind) {
			t.Errorf("kindForTool(%q) = %v,%v", tc.tool, kind, ok)
		}
	}
}

func TestBuildDockerArgs(t *testing.T) {
	spec := ContainerSpec{
		Name:       "sanduku-sbx-test",
		Image:      "sanduku-runtime:latest",
		Command:    []string{"python3", "-c", "print(1)"},
		MemoryMB:   256,
		CPUPercent: 50,
		PIDsLimit:  100,
		ReadOnly:   true,
	}

	args := buildDockerArgs(spec)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--user=1000:1000",
		"--memory=256m",
		"--memory-swap=256m",
		"--cpus=0.50",
		"--pids-limit=100",
		"--network=none",
		"--read-only",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}

	// The command comes after the image, untouched.
	idx := slices.Index(args, spec.Image)
	if idx < 0 || !slices.Equal(args[idx+1:], spec.Command) {
		t.Errorf("command not appended after image: %v", args)
	}

	// Network-enabled spec swaps to bridge.
	spec.Network = true
	joined = strings.Join(buildDockerArgs(spec), " ")
	if !strings.Contains(joined, "--network=bridge") || strings.Contains(joined, "--network=none") {
		t.Errorf("network flag wrong: %s", joined)
	}

	// Workspace mount appears only when requested.
	spec.WorkspaceDir = "/host/sessions/s1"
	joined = strings.Join(buildDockerArgs(spec), " ")
	if !strings.Contains(joined, "/host/sessions/s1:/home/sandbox/workspace:rw") {
		t.Errorf("workspace volume missing: %s", joined)
	}
}

func TestLimitedWriter(t *testing.T) {
	var sb strings.Builder
	lw := &limitedWriter{w: &sb, remaining: 5}

	n, err := lw.Write([]byte("hello world"))
	if err != nil || n != 11 {
		t.Fatalf("Write = %d,%v", n, err)
	}
	if sb.String() != "hello" {
		t.Errorf("captured = %q, want truncation at cap", sb.String())
	}

	// Further writes are discarded but reported as successful.
	n, err = lw.Write([]byte("more"))
	if err != nil || n != 4 {
		t.Errorf("Write after cap = %d,%v", n, err)
	}
	if sb.String() != "hello" {
		t.Errorf("captured grew past cap: %q", sb.String())
	}
}
