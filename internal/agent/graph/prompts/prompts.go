// Package prompts renders the agent's prompt templates through the eino prompt
// component so prompt callbacks fire for every rendering.
package prompts

import (
	"context"
	"embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/*.txt
var templateFS embed.FS

type pair struct {
	system string
	user   string
}

// Template names; each has a _system.txt and a _user.txt file.
const (
	nameGuardrails  = "guardrails"
	namePlanner     = "planner"
	nameToolSelect  = "tool_selection"
	nameGeneration  = "text2cypher_generation"
	nameCorrection  = "text2cypher_correction"
	nameValidation  = "text2cypher_validation"
	nameSummarize   = "summarize"
	nameFinalAnswer = "final_answer_validation"
)

var templates = mustLoad(nameGuardrails, namePlanner, nameToolSelect, nameGeneration,
	nameCorrection, nameValidation, nameSummarize, nameFinalAnswer)

func mustLoad(names ...string) map[string]pair {
	out := make(map[string]pair, len(names))
	for _, n := range names {
		sys, err := templateFS.ReadFile("template/" + n + "_system.txt")
		if err != nil {
			panic(fmt.Sprintf("prompts: %v", err))
		}
		user, err := templateFS.ReadFile("template/" + n + "_user.txt")
		if err != nil {
			panic(fmt.Sprintf("prompts: %v", err))
		}
		out[n] = pair{system: string(sys), user: string(user)}
	}
	return out
}

func render(ctx context.Context, name string, vars map[string]any) ([]*schema.Message, error) {
	p, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt %q", name)
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(p.system),
		schema.UserMessage(p.user),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs, nil
}

// Guardrails renders the scope decision prompt. Scope and schema may be empty.
func Guardrails(ctx context.Context, scope, schemaText, question string) ([]*schema.Message, error) {
	return render(ctx, nameGuardrails, map[string]any{
		"Scope":    scope,
		"Schema":   schemaText,
		"Question": question,
	})
}

// Planner renders the decomposition prompt with optional conversation history.
func Planner(ctx context.Context, question, history string) ([]*schema.Message, error) {
	return render(ctx, namePlanner, map[string]any{
		"Question": question,
		"History":  history,
	})
}

// ToolSelection renders the routing prompt; catalog is the named query listing.
func ToolSelection(ctx context.Context, catalog, question string) ([]*schema.Message, error) {
	if catalog == "" {
		catalog = "(none)"
	}
	return render(ctx, nameToolSelect, map[string]any{
		"Catalog":  catalog,
		"Question": question,
	})
}

func Generation(ctx context.Context, schemaText, examples, question string) ([]*schema.Message, error) {
	return render(ctx, nameGeneration, map[string]any{
		"Schema":   schemaText,
		"Examples": examples,
		"Question": question,
	})
}

func Correction(ctx context.Context, schemaText, question, statement, errs string) ([]*schema.Message, error) {
	return render(ctx, nameCorrection, map[string]any{
		"Schema":    schemaText,
		"Question":  question,
		"Statement": statement,
		"Errors":    errs,
	})
}

func Validation(ctx context.Context, schemaText, question, statement string) ([]*schema.Message, error) {
	return render(ctx, nameValidation, map[string]any{
		"Schema":    schemaText,
		"Question":  question,
		"Statement": statement,
	})
}

func Summarize(ctx context.Context, question, results string) ([]*schema.Message, error) {
	return render(ctx, nameSummarize, map[string]any{
		"Question": question,
		"Results":  results,
	})
}

func FinalAnswer(ctx context.Context, question, answer, schemaText, data string) ([]*schema.Message, error) {
	return render(ctx, nameFinalAnswer, map[string]any{
		"Question": question,
		"Answer":   answer,
		"Schema":   schemaText,
		"Data":     data,
	})
}
