package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/prismllm/prism/pkg/models"
)

// MaxToolNameLength bounds registered tool names.
const MaxToolNameLength = 256

// Tool is one registered capability the model may invoke.
type Tool interface {
	// Name returns the unique tool identifier.
	Name() string

	// Description explains the tool to the model.
	Description() string

	// Schema returns the JSON-Schema document for the argument map.
	Schema() json.RawMessage

	// Execute runs the tool with decoded arguments and returns any
	// JSON-serializable value.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolRegistry maps tool names to their schema and executor. All
// registration happens at startup; the registry is read-only at
// request time.
type ToolRegistry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its argument schema. Duplicate
// names and uncompilable schemas are rejected.
func (r *ToolRegistry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("invalid tool name %q", name)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(string(tool.Schema()))); err != nil {
		return fmt.Errorf("tool %s: invalid schema: %w", name, err)
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("tool %s: schema compile failed: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	r.compiled[name] = schema
	return nil
}

// Get returns the tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas resolves the named subset into provider-facing schemas.
// Unknown names are skipped; the orchestrator validates the request's
// tool list before calling this.
func (r *ToolRegistry) Schemas(names []string) []models.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolSchema, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			continue
		}
		out = append(out, models.ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return out
}

// ValidateArgs checks a decoded argument map against the tool's
// compiled schema.
func (r *ToolRegistry) ValidateArgs(name string, args map[string]any) error {
	r.mu.RLock()
	schema, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := schema.Validate(args); err != nil {
		return fmt.Errorf("arguments for %s: %w", name, err)
	}
	return nil
}

// Execute runs a registered tool and serializes its result to JSON.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	value, err := tool.Execute(ctx, args)
	if err != nil {
		return "", err
	}

	serialized, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("tool %s: result not serializable: %w", name, err)
	}
	return string(serialized), nil
}
