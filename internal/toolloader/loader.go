// Package toolloader parses tool descriptors from Markdown files with
// YAML frontmatter and serves them as an immutable, atomically reloadable
// catalog.
//
// Descriptors live one level deep under the tools root: each tool is a
// directory containing a TOOL.md file. The frontmatter declares the
// tool's name, parameters, and sandbox policy; the Markdown body carries
// free-text usage instructions.
package toolloader

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// descriptorFile is the fixed descriptor filename inside each tool directory.
const descriptorFile = "TOOL.md"

// ErrToolNotFound is returned by Get for names not in the catalog.
var ErrToolNotFound = errors.New("tool not found")

// LoadResult summarizes a catalog load operation.
type LoadResult struct {
	Loaded int
	Errors []LoadError
}

// LoadError records a per-file parse or validation error.
type LoadError struct {
	File    string
	Message string
}

// Loader discovers, parses, and serves tool definitions. The live catalog
// is replaced wholesale on reload; readers never observe a partial load.
type Loader struct {
	root   string
	logger *slog.Logger

	mu   sync.RWMutex
	defs map[string]*ToolDefinition
}

// NewLoader creates a Loader over the given tools root directory.
func NewLoader(root string, logger *slog.Logger) *Loader {
	return &Loader{
		root:   root,
		logger: logger,
		defs:   make(map[string]*ToolDefinition),
	}
}

// Load performs the initial catalog load. Identical to Reload; the two
// names exist so call sites read naturally.
func (l *Loader) Load() (*LoadResult, error) {
	return l.Reload()
}

// Reload rescans the tools root and atomically replaces the catalog.
// Per-file failures are logged and collected in the result; healthy
// sibling descriptors still load. A duplicate tool name is an error for
// the later file and the first definition stands. Returns an error only
// if the root directory itself cannot be read, in which case the current
// catalog is left untouched.
func (l *Loader) Reload() (*LoadResult, error) {
	correlationID := newCorrelationID()

	l.logger.Info("loading tool descriptors",
		slog.String("dir", l.root),
		slog.String("correlation_id", correlationID),
	)

	entries, err := os.ReadDir(l.root)
	if err != nil {
		// A missing root is an empty catalog, not a failure.
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading tools directory %s: %w", l.root, err)
		}
		entries = nil
	}

	result := &LoadResult{}
	next := make(map[string]*ToolDefinition)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(l.root, entry.Name(), descriptorFile)
		if _, err := os.Stat(path); err != nil {
			continue // Tool directory without a descriptor.
		}

		def, err := ParseFile(path)
		if err != nil {
			l.logger.Warn("tool descriptor parse error",
				slog.String("file", path),
				slog.String("error", err.Error()),
				slog.String("correlation_id", correlationID),
			)
			result.Errors = append(result.Errors, LoadError{File: path, Message: err.Error()})
			continue
		}

		if err := def.Validate(); err != nil {
			l.logger.Warn("tool descriptor validation error",
				slog.String("file", path),
				slog.String("tool", def.Name),
				slog.String("error", err.Error()),
				slog.String("correlation_id", correlationID),
			)
			result.Errors = append(result.Errors, LoadError{File: path, Message: err.Error()})
			continue
		}

		if !def.IsEnabled() {
			l.logger.Info("tool descriptor disabled, skipping",
				slog.String("tool", def.Name),
				slog.String("file", path),
				slog.String("correlation_id", correlationID),
			)
			continue
		}

		if prev, ok := next[def.Name]; ok {
			msg := fmt.Sprintf("duplicate tool name %q (already defined in %s)", def.Name, prev.SourceFile)
			l.logger.Warn("tool descriptor conflict",
				slog.String("tool", def.Name),
				slog.String("file", path),
				slog.String("first_definition", prev.SourceFile),
				slog.String("correlation_id", correlationID),
			)
			result.Errors = append(result.Errors, LoadError{File: path, Message: msg})
			continue
		}

		l.logger.Info("tool definition loaded",
			slog.String("tool", def.Name),
			slog.Int("parameters", len(def.Parameters)),
			slog.Duration("timeout", def.Sandbox.Timeout()),
			slog.Bool("network", def.Sandbox.Network),
			slog.String("correlation_id", correlationID),
		)

		next[def.Name] = def
		result.Loaded++
	}

	l.mu.Lock()
	l.defs = next
	l.mu.Unlock()

	l.logger.Info("tool descriptor load complete",
		slog.Int("loaded", result.Loaded),
		slog.Int("errors", len(result.Errors)),
		slog.String("correlation_id", correlationID),
	)

	return result, nil
}

// Get returns the definition for name, or ErrToolNotFound.
func (l *Loader) Get(name string) (*ToolDefinition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	def, ok := l.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return def, nil
}

// List returns all loaded definitions sorted by name.
func (l *Loader) List() []*ToolDefinition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	defs := make([]*ToolDefinition, 0, len(l.defs))
	for _, def := range l.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// FunctionDescriptors returns the function-calling schemas for every
// loaded tool, sorted by name.
func (l *Loader) FunctionDescriptors() []FunctionDescriptor {
	defs := l.List()
	out := make([]FunctionDescriptor, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.FunctionDescriptor())
	}
	return out
}

// ParseFile reads a descriptor file, extracting YAML frontmatter and the
// Markdown instructions body.
func ParseFile(path string) (*ToolDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	// Expect first line to be "---".
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != "---" {
		return nil, fmt.Errorf("missing YAML frontmatter (file must start with ---)")
	}

	// Read until closing "---".
	var frontmatterLines []string
	foundClose := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			foundClose = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !foundClose {
		return nil, fmt.Errorf("unclosed YAML frontmatter (missing closing ---)")
	}

	// Read remaining body as instructions.
	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	frontmatter := strings.Join(frontmatterLines, "\n")
	def := &ToolDefinition{}
	if err := yaml.Unmarshal([]byte(frontmatter), def); err != nil {
		return nil, fmt.Errorf("parsing YAML frontmatter: %w", err)
	}

	def.Instructions = strings.TrimSpace(strings.Join(bodyLines, "\n"))
	def.SourceFile = path

	return def, nil
}

// newCorrelationID generates an 8-byte random hex correlation ID.
func newCorrelationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
