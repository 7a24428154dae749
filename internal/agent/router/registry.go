// Package router assigns each planned task to one tool from a closed registry
// and dispatches tasks concurrently.
package router

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
)

// Handler runs a tool for a task. args is the JSON object chosen by the
// selector. A handler may return a partial result together with an error;
// the router records the error on the result.
type Handler func(ctx context.Context, task model.Task, args string) (model.TaskResult, error)

// Tool is one registered capability.
type Tool struct {
	Info   *schema.ToolInfo
	Handle Handler
	// Direct builds arguments from the task alone. Nil when the arguments must
	// be chosen by the model.
	Direct func(task model.Task) string
}

func (t Tool) Name() string {
	return t.Info.Name
}

// Registry is built once at startup and read concurrently afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
	def   string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds t. Names outside the closed tool set are rejected.
func (r *Registry) Register(t Tool) error {
	if t.Info == nil || t.Handle == nil {
		return fmt.Errorf("register tool: info and handler are required")
	}
	name := t.Info.Name
	if !model.KnownTool(name) {
		return fmt.Errorf("register tool: unknown tool %q", name)
	}
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("register tool: %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// SetDefault names the tool used when selection yields nothing usable. The
// default must accept Direct arguments.
func (r *Registry) SetDefault(name string) error {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("default tool %q is not registered", name)
	}
	if t.Direct == nil {
		return fmt.Errorf("default tool %q cannot build its own arguments", name)
	}
	r.def = name
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Default returns the fallback tool, if any.
func (r *Registry) Default() (Tool, bool) {
	if r.def == "" {
		return Tool{}, false
	}
	return r.tools[r.def], true
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Infos returns the tool schemas in registration order for model binding.
func (r *Registry) Infos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Info)
	}
	return out
}
