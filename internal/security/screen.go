// Package security implements the pre-execution code screen. The screen
// is a pure function over the submitted source: it allocates nothing,
// touches no container, and returns a verdict with a human-readable
// reason. A block is final; the executor never launches a container for
// screened-out code.
package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrBlocked is wrapped into every screen failure so call sites can
// branch with errors.Is.
var ErrBlocked = errors.New("code blocked by security screen")

// blockedImports lists python modules and attribute paths that grant
// process spawning, raw sockets, interpreter introspection, or
// unconstrained filesystem deletion. Network modules stay blocked in
// user code; fetch-style tools get network access through their own
// generated scripts under policy instead.
var blockedImports = []string{
	"subprocess",
	"os.system",
	"os.popen",
	"os.spawn",
	"commands",
	"pty",
	"pexpect",
	"paramiko",
	"fabric",
	"socket",
	"ctypes",
	"cffi",
	"multiprocessing",
	"threading",
	"__builtins__",
	"builtins",
	"importlib",
	"pickle",
	"marshal",
	"shelve",
	"tempfile",
	"shutil.rmtree",
	"os.remove",
	"os.unlink",
	"os.rmdir",
}

// blockedPatterns catches dynamic-evaluation and introspection constructs
// regardless of which module they come from. Matched case-insensitively.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)compile\s*\(`),
	regexp.MustCompile(`(?i)__import__\s*\(`),
	regexp.MustCompile(`(?i)open\s*\([^)]*['"][wa]`), // open() with write or append mode
	regexp.MustCompile(`(?i)getattr\s*\(\s*__builtins__`),
	regexp.MustCompile(`(?i)globals\s*\(\s*\)`),
	regexp.MustCompile(`(?i)locals\s*\(\s*\)`),
}

// importForms holds, per blocked import, the precise statement shapes
// that count as a use: a plain import, a from-import of the root module,
// and a string-literal __import__ call. Substring hits outside these
// shapes (comments, identifiers like "mysocket") pass. Compiled once at
// package init.
type importForms struct {
	name     string
	patterns []*regexp.Regexp
}

var blockedImportForms = buildImportForms()

func buildImportForms() []importForms {
	forms := make([]importForms, 0, len(blockedImports))
	for _, name := range blockedImports {
		root := strings.SplitN(name, ".", 2)[0]
		forms = append(forms, importForms{
			name: name,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`import\s+` + regexp.QuoteMeta(name)),
				regexp.MustCompile(`from\s+` + regexp.QuoteMeta(root) + `\s+import`),
				regexp.MustCompile(`__import__\s*\(\s*['"]` + regexp.QuoteMeta(name) + `['"]`),
			},
		})
	}
	return forms
}

// Verdict is the outcome of a screen. Reason is empty when Allowed.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Err returns nil for an allowed verdict, otherwise an error wrapping
// ErrBlocked with the verdict's reason.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrBlocked, v.Reason)
}

// Check screens source code before execution. Only python code is
// inspected; other languages rely on container isolation alone and
// always pass.
func Check(code, language string) Verdict {
	if language != "python" {
		return Verdict{Allowed: true}
	}

	for _, form := range blockedImportForms {
		// Substring gate before the precise statement match. The full
		// dotted name must appear somewhere in the code; bare use of a
		// root module ("from os import path") is not a hit on its own.
		if !strings.Contains(code, form.name) {
			continue
		}
		for _, re := range form.patterns {
			if re.MatchString(code) {
				return Verdict{Reason: fmt.Sprintf("blocked import: %s", form.name)}
			}
		}
	}

	for _, re := range blockedPatterns {
		if re.MatchString(code) {
			return Verdict{Reason: "blocked pattern detected"}
		}
	}

	return Verdict{Allowed: true}
}
