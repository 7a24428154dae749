package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/parsers"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/prompts"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/llm"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// ===================================
// Guardrails
// ===================================

// Guardrail decides whether a question is in scope.
type Guardrail struct {
	model      llm.Model
	scope      string
	schemaText string
}

func NewGuardrail(m llm.Model, scope, schemaText string) *Guardrail {
	return &Guardrail{model: m, scope: scope, schemaText: schemaText}
}

// Allow reports whether the question should continue to the planner. Model
// failures are returned; an unreadable decision counts as allowed.
func (g *Guardrail) Allow(ctx context.Context, question string) (bool, error) {
	msgs, err := prompts.Guardrails(ctx, g.scope, g.schemaText, question)
	if err != nil {
		return false, err
	}
	out, err := g.model.Generate(ctx, NodeGuardrails, msgs)
	if err != nil {
		return false, err
	}
	var dec parsers.GuardrailsOutput
	if err := parsers.DecodeJSON(out.Content, &dec); err != nil {
		logx.Warn().Err(err).Msg("Unreadable guardrails decision; continuing")
		return true, nil
	}
	switch strings.ToLower(strings.TrimSpace(dec.Decision)) {
	case "end":
		return false, nil
	default:
		return true, nil
	}
}

// ===================================
// Planner
// ===================================

// Planner splits a question into independent tasks.
type Planner struct {
	model llm.Model
}

func NewPlanner(m llm.Model) *Planner {
	return &Planner{model: m}
}

// Plan never returns zero tasks: empty or unreadable plans fall back to the
// question itself.
func (p *Planner) Plan(ctx context.Context, question, history string) ([]model.Task, error) {
	msgs, err := prompts.Planner(ctx, question, history)
	if err != nil {
		return nil, err
	}
	out, err := p.model.Generate(ctx, NodePlanner, msgs)
	if err != nil {
		return nil, err
	}

	var plan parsers.PlannerOutput
	if err := parsers.DecodeJSON(out.Content, &plan); err != nil {
		logx.Warn().Err(err).Msg("Unreadable plan; using the question as the only task")
	}

	tasks := make([]model.Task, 0, len(plan.Tasks))
	seen := map[string]struct{}{}
	for _, pt := range plan.Tasks {
		q := strings.TrimSpace(pt.Question)
		if q == "" {
			continue
		}
		norm := strings.ToLower(q)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		parent := strings.TrimSpace(pt.ParentTask)
		if parent == "" {
			parent = question
		}
		tasks = append(tasks, model.Task{
			ID:                    uuid.NewString(),
			Question:              q,
			ParentTask:            parent,
			RequiresVisualization: pt.RequiresVisualization,
		})
	}
	if len(tasks) == 0 {
		tasks = append(tasks, model.Task{ID: uuid.NewString(), Question: question, ParentTask: question})
	}
	return tasks, nil
}

// ===================================
// Summarizer
// ===================================

const noMatchingData = "No matching data was found for this part of the question."

// Summarizer writes the answer from the usable task results.
type Summarizer struct {
	model  llm.Model
	noData string
}

func NewSummarizer(m llm.Model, noData string) *Summarizer {
	if noData == "" {
		noData = "No data to summarize."
	}
	return &Summarizer{model: m, noData: noData}
}

// Summarize answers without a model call when no result is usable.
func (s *Summarizer) Summarize(ctx context.Context, question string, results []model.TaskResult) (string, error) {
	facts, usable := formatFacts(results)
	if usable == 0 {
		logx.Debug().Int("results", len(results)).Msg("Nothing usable to summarize")
		return s.noData, nil
	}
	msgs, err := prompts.Summarize(ctx, question, facts)
	if err != nil {
		return "", err
	}
	out, err := s.model.Generate(ctx, NodeSummarize, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Content), nil
}

// formatFacts renders usable records and describes every other result as a
// no matching data note.
func formatFacts(results []model.TaskResult) (string, int) {
	var b strings.Builder
	usable := 0
	for _, r := range results {
		fmt.Fprintf(&b, "Task: %s\n", r.Task)
		if r.Usable() {
			usable++
			raw, err := json.Marshal(r.Records)
			if err != nil {
				raw = []byte(fmt.Sprint(r.Records))
			}
			fmt.Fprintf(&b, "Records: %s\n", raw)
		} else {
			fmt.Fprintf(&b, "Note: %s\n", noMatchingData)
		}
		for _, m := range r.MappingErrors {
			fmt.Fprintf(&b, "Note: %s\n", m)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), usable
}

// ===================================
// Final answer validation
// ===================================

// AnswerValidator checks the answer against the question and proposes one
// follow-up question when something is missing.
type AnswerValidator struct {
	model      llm.Model
	schemaText string
}

func NewAnswerValidator(m llm.Model, schemaText string) *AnswerValidator {
	return &AnswerValidator{model: m, schemaText: schemaText}
}

// FollowUp returns the follow-up question, or "" when the answer is accepted.
// Model and parse failures accept the answer.
func (v *AnswerValidator) FollowUp(ctx context.Context, question, answer string, results []model.TaskResult) string {
	data, _ := formatFacts(results)
	msgs, err := prompts.FinalAnswer(ctx, question, answer, v.schemaText, data)
	if err != nil {
		logx.Warn().Err(err).Msg("Render final answer prompt failed; accepting answer")
		return ""
	}
	out, err := v.model.Generate(ctx, NodeValidateAnswer, msgs)
	if err != nil {
		logx.Warn().Err(err).Msg("Final answer check failed; accepting answer")
		return ""
	}
	var verdict parsers.FinalAnswerOutput
	if err := parsers.DecodeJSON(out.Content, &verdict); err != nil {
		logx.Warn().Err(err).Msg("Unreadable final answer verdict; accepting answer")
		return ""
	}
	if verdict.Valid {
		return ""
	}
	return strings.TrimSpace(verdict.FollowUpQuestion)
}
