package toolloader

import (
	"fmt"
	"time"
)

// ToolParameter describes one parameter a tool accepts.
type ToolParameter struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"` // string, integer, number, boolean, array, object
	Required    bool     `yaml:"required" json:"required"`
	Description string   `yaml:"description" json:"description"`
	Default     any      `yaml:"default,omitempty" json:"default,omitempty"`
	Enum        []string `yaml:"enum,omitempty" json:"enum,omitempty"`
}

// validParamTypes enumerates the accepted parameter type values.
var validParamTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// SandboxPolicy sets the isolation limits for a tool's executions.
// Zero values fall back to the defaults via the accessor methods.
type SandboxPolicy struct {
	Image          string `yaml:"image,omitempty" json:"image,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	MemoryMB       int    `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	CPUPercent     int    `yaml:"cpu_percent,omitempty" json:"cpu_percent,omitempty"`
	Network        bool   `yaml:"network" json:"network"`
	WritableRoot   bool   `yaml:"writable_root" json:"writable_root"`
	MountWorkspace bool   `yaml:"mount_workspace" json:"mount_workspace"`
}

// Timeout returns the execution deadline with a default of 30s.
func (p SandboxPolicy) Timeout() time.Duration {
	if p.TimeoutSeconds > 0 {
		return time.Duration(p.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// Memory returns the hard memory cap in MB with a default of 256.
func (p SandboxPolicy) Memory() int {
	if p.MemoryMB > 0 {
		return p.MemoryMB
	}
	return 256
}

// CPU returns the CPU quota as a percentage of one core, default 50.
func (p SandboxPolicy) CPU() int {
	if p.CPUPercent > 0 {
		return p.CPUPercent
	}
	return 50
}

// ReadOnly reports whether the container root filesystem is read-only.
func (p SandboxPolicy) ReadOnly() bool {
	return !p.WritableRoot
}

// ToolDefinition is a parsed tool descriptor. Definitions are immutable
// after load; callers receive copies or read-only views, never pointers
// into the loader's live map.
type ToolDefinition struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	Version      string          `yaml:"version,omitempty"`
	Enabled      *bool           `yaml:"enabled"` // nil means enabled
	Parameters   []ToolParameter `yaml:"parameters"`
	Sandbox      SandboxPolicy   `yaml:"sandbox"`
	Examples     []string        `yaml:"examples,omitempty"`
	Instructions string          `yaml:"-"` // Markdown body below the frontmatter.
	SourceFile   string          `yaml:"-"` // Descriptor path for audit.
}

// IsEnabled reports whether the tool should be loaded.
func (d *ToolDefinition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Param returns the parameter with the given name, or nil.
func (d *ToolDefinition) Param(name string) *ToolParameter {
	for i := range d.Parameters {
		if d.Parameters[i].Name == name {
			return &d.Parameters[i]
		}
	}
	return nil
}

// FunctionDescriptor is the function-calling schema shape emitted for
// LLM integration: a name, description, and a JSON-Schema-style
// parameters object.
type FunctionDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FunctionDescriptor converts the definition into its function-calling
// schema. Enum and default values pass through untouched; required
// parameter names are collected into the schema's required list.
func (d *ToolDefinition) FunctionDescriptor() FunctionDescriptor {
	properties := make(map[string]any, len(d.Parameters))
	required := []string{}

	for _, p := range d.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	// "required" is always present, empty when nothing is mandatory, so
	// schema consumers never branch on a missing list.
	params := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}

	return FunctionDescriptor{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  params,
	}
}

// Validate checks that a definition has all required fields and valid values.
func (d *ToolDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Description == "" {
		return fmt.Errorf("description is required")
	}

	seen := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if !validParamTypes[p.Type] {
			return fmt.Errorf("parameter %q has invalid type %q", p.Name, p.Type)
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("parameter %q is required and must not declare a default", p.Name)
		}
	}

	if d.Sandbox.TimeoutSeconds < 0 {
		return fmt.Errorf("sandbox.timeout_seconds must not be negative")
	}
	if d.Sandbox.MemoryMB < 0 {
		return fmt.Errorf("sandbox.memory_mb must not be negative")
	}
	if d.Sandbox.CPUPercent < 0 || d.Sandbox.CPUPercent > 100 {
		return fmt.Errorf("sandbox.cpu_percent must be between 0 and 100")
	}

	return nil
}
