package router

import (
	"context"
	"errors"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/prompts"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/llm"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/pipeline"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// ErrUnassigned is returned by Select when no tool fits and no default exists.
var ErrUnassigned = errors.New("unable to assign tool")

// Selection is the tool picked for a task together with its JSON arguments.
type Selection struct {
	Tool      string
	Arguments string
}

type Router struct {
	registry *Registry
	selector llm.Model
	catalog  string
	// single tool that builds its own arguments; no model call needed
	direct *Tool
}

// New binds the registry's tools to chat. chat may be nil when the registry
// holds a single tool with Direct arguments.
func New(reg *Registry, chat einomodel.ToolCallingChatModel, modelName, catalogText string) (*Router, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, fmt.Errorf("router: no tools registered")
	}
	r := &Router{registry: reg, catalog: catalogText}

	if names := reg.Names(); len(names) == 1 {
		if t, _ := reg.Get(names[0]); t.Direct != nil {
			r.direct = &t
			return r, nil
		}
	}
	if chat == nil {
		return nil, errx.NewKind(errx.KindConfiguration, errors.New("tool selection needs a chat model"), "router")
	}
	bound, err := chat.WithTools(reg.Infos())
	if err != nil {
		return nil, errx.NewKind(errx.KindConfiguration, err, "bind router tools")
	}
	r.selector = llm.Model{Chat: bound, Name: modelName}
	return r, nil
}

// Select picks a tool for task. Model failures, missing tool calls and
// unknown tool names fall back to the default tool.
func (r *Router) Select(ctx context.Context, task model.Task) (Selection, error) {
	if r.direct != nil {
		return Selection{Tool: r.direct.Name(), Arguments: r.direct.Direct(task)}, nil
	}

	if sel, ok := r.ask(ctx, task); ok {
		return sel, nil
	}
	if def, ok := r.registry.Default(); ok {
		return Selection{Tool: def.Name(), Arguments: def.Direct(task)}, nil
	}
	return Selection{}, errx.NewKind(errx.KindToolSelection, ErrUnassigned, unassignedMessage(task))
}

func (r *Router) ask(ctx context.Context, task model.Task) (Selection, bool) {
	msgs, err := prompts.ToolSelection(ctx, r.catalog, task.Question)
	if err != nil {
		logx.Warn().Err(err).Str("task_id", task.ID).Msg("Render tool selection prompt failed")
		return Selection{}, false
	}
	out, err := r.selector.Generate(ctx, "tool_selection", msgs)
	if err != nil {
		logx.Warn().Err(err).Str("task_id", task.ID).Msg("Tool selection failed; using default")
		return Selection{}, false
	}
	if len(out.ToolCalls) == 0 {
		logx.Debug().Str("task_id", task.ID).Msg("Model made no tool call")
		return Selection{}, false
	}
	call := out.ToolCalls[0].Function
	if _, ok := r.registry.Get(call.Name); !ok {
		logx.Warn().Str("task_id", task.ID).Str("tool", call.Name).Msg("Model chose an unknown tool")
		return Selection{}, false
	}
	return Selection{Tool: call.Name, Arguments: call.Arguments}, true
}

func unassignedMessage(task model.Task) string {
	return "Unable to assign tool to question: " + task.Question
}

// Route selects a tool and runs it. Every failure is recorded on the result;
// Route never fails the request.
func (r *Router) Route(ctx context.Context, task model.Task) model.TaskResult {
	sel, err := r.Select(ctx, task)
	if err != nil {
		logx.Warn().Str("task_id", task.ID).Str("task", task.Question).Msg("No tool assigned")
		return model.TaskResult{
			TaskID:  task.ID,
			Task:    task.Question,
			Tool:    model.ToolNone,
			Records: pipeline.NoResults(),
			Errors:  []validator.Issue{{Kind: errx.KindToolSelection, Message: unassignedMessage(task)}},
			Empty:   true,
		}
	}
	t, _ := r.registry.Get(sel.Tool)

	ctx = einocb.ReuseHandlers(ctx, &einocb.RunInfo{Name: sel.Tool, Type: "Router", Component: components.ComponentOfTool})
	ctx = einocb.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: sel.Arguments})

	res, err := t.Handle(ctx, task, sel.Arguments)
	res.TaskID = task.ID
	res.Task = task.Question
	res.Tool = sel.Tool
	if err != nil {
		kind := errx.KindOf(err)
		if kind == errx.KindUnknown {
			kind = errx.KindExecution
		}
		res.Errors = append(res.Errors, validator.Issue{Kind: kind, Message: err.Error()})
		if len(res.Records) == 0 {
			res.Records = pipeline.NoResults()
		}
		res.Empty = true
		einocb.OnError(ctx, err)
	} else {
		einocb.OnEnd(ctx, &tool.CallbackOutput{Response: fmt.Sprintf("%d records", len(res.Records))})
	}

	logx.Info().
		Str("task_id", task.ID).
		Str("tool", sel.Tool).
		Int("records", len(res.Records)).
		Int("errors", len(res.Errors)).
		Bool("empty", res.Empty).
		Msg("Task routed")
	return res
}
