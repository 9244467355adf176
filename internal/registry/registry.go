// Package registry loads the static tool-descriptor file into an immutable,
// concurrency-safe catalog.
//
// Grounded on _examples/original_source/src/smith/registry.py (load-once,
// cache, lookup-by-name) and the teacher's config/loader.go load-then-validate
// shape.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smith-runtime/smith/contracts"
)

// descriptorFile is the on-disk shape of the tool-registry descriptor file
// (external interfaces section): an object whose "tools" array holds one
// entry per tool. Fields not declared on wireDescriptor are dropped on load;
// they are not kept for re-marshalling.
type descriptorFile struct {
	Tools []wireDescriptor `json:"tools" yaml:"tools"`
}

type wireDescriptor struct {
	Name                string     `json:"name" yaml:"name"`
	Description         string     `json:"description" yaml:"description"`
	FunctionID          string     `json:"function_id" yaml:"function_id"`
	Dangerous           bool       `json:"dangerous" yaml:"dangerous"`
	Domain              string     `json:"domain" yaml:"domain"`
	OutputType          string     `json:"output_type" yaml:"output_type"`
	Parameters          wireSchema `json:"parameters" yaml:"parameters"`
	Resources           []string   `json:"resources,omitempty" yaml:"resources,omitempty"`
	DefaultTimeout      float64    `json:"default_timeout,omitempty" yaml:"default_timeout,omitempty"`
	DefaultRateInterval float64    `json:"default_rate_interval,omitempty" yaml:"default_rate_interval,omitempty"`
	Notes               string     `json:"notes,omitempty" yaml:"notes,omitempty"`
}

type wireSchema struct {
	Type       string                `json:"type" yaml:"type"`
	Properties map[string]wireParam  `json:"properties" yaml:"properties"`
	Required   []string              `json:"required" yaml:"required"`
}

type wireParam struct {
	Type    string `json:"type" yaml:"type"`
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// registry implements contracts.Registry over an immutable map.
type registry struct {
	tools map[contracts.ToolName]contracts.ToolDescriptor
}

// New returns an empty registry; use for tests or to register the reserved
// sub_agent tool programmatically alongside a loaded catalog.
func New() contracts.Registry {
	return &registry{tools: make(map[contracts.ToolName]contracts.ToolDescriptor)}
}

// LoadFile parses a tool-registry descriptor file and builds an immutable
// Registry, selecting the wire format by extension (.yaml/.yml for YAML,
// anything else for JSON) the same way config.Loader does. A tool whose
// name collides with an earlier entry is rejected: the data model requires
// globally unique names.
func LoadFile(path string) (contracts.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool registry %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	default:
		return LoadBytes(data)
	}
}

// LoadBytes parses a tool-registry descriptor file from raw JSON.
func LoadBytes(data []byte) (contracts.Registry, error) {
	var file descriptorFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tool registry JSON: %w", err)
	}
	return fromDescriptorFile(file)
}

// LoadYAML parses a tool-registry descriptor file from raw YAML.
func LoadYAML(data []byte) (contracts.Registry, error) {
	var file descriptorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tool registry YAML: %w", err)
	}
	return fromDescriptorFile(file)
}

func fromDescriptorFile(file descriptorFile) (contracts.Registry, error) {
	r := &registry{tools: make(map[contracts.ToolName]contracts.ToolDescriptor, len(file.Tools))}
	for _, w := range file.Tools {
		if w.Name == "" {
			return nil, fmt.Errorf("tool descriptor missing name: %w", contracts.ErrDAGInvalid)
		}
		name := contracts.ToolName(w.Name)
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q: %w", w.Name, contracts.ErrDAGInvalid)
		}

		params := make(map[string]contracts.ParamSpec, len(w.Parameters.Properties))
		required := make(map[string]bool, len(w.Parameters.Required))
		for _, req := range w.Parameters.Required {
			required[req] = true
		}
		for key, p := range w.Parameters.Properties {
			params[key] = contracts.ParamSpec{
				Type:     p.Type,
				Required: required[key],
				Default:  p.Default,
			}
		}

		r.tools[name] = contracts.ToolDescriptor{
			Name:                w.Name,
			Description:         w.Description,
			FunctionID:          w.FunctionID,
			Dangerous:           w.Dangerous,
			Domain:              w.Domain,
			OutputType:          w.OutputType,
			Parameters:          params,
			Required:            w.Parameters.Required,
			Resources:           w.Resources,
			DefaultTimeout:      time.Duration(w.DefaultTimeout * float64(time.Second)),
			DefaultRateInterval: time.Duration(w.DefaultRateInterval * float64(time.Second)),
			Notes:               w.Notes,
		}
	}
	return r, nil
}

// Register adds or replaces a descriptor. Used to install the reserved
// sub_agent tool, which has no entry in the static descriptor file.
func Register(r contracts.Registry, d contracts.ToolDescriptor) contracts.Registry {
	reg, ok := r.(*registry)
	if !ok {
		reg = &registry{tools: make(map[contracts.ToolName]contracts.ToolDescriptor)}
		for _, existing := range r.ListAll() {
			reg.tools[contracts.ToolName(existing.Name)] = existing
		}
	}
	reg.tools[contracts.ToolName(d.Name)] = d
	return reg
}

// WithoutTool returns a copy of r with name removed. Used when spawning a
// sub-agent: its registry is the full catalog minus sub_agent, preventing
// unbounded recursion.
func WithoutTool(r contracts.Registry, name contracts.ToolName) contracts.Registry {
	reg := &registry{tools: make(map[contracts.ToolName]contracts.ToolDescriptor)}
	for _, d := range r.ListAll() {
		if contracts.ToolName(d.Name) == name {
			continue
		}
		reg.tools[contracts.ToolName(d.Name)] = d
	}
	return reg
}

func (r *registry) Lookup(name contracts.ToolName) (contracts.ToolDescriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

func (r *registry) ListAll() []contracts.ToolDescriptor {
	out := make([]contracts.ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}
