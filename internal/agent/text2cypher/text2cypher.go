// Package text2cypher implements the model-backed steps of the Cypher pipeline:
// generation with retrieved examples, correction from validation issues and the
// optional semantic review.
package text2cypher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/parsers"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/prompts"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/llm"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/examples"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

var errEmptyStatement = errors.New("model returned no statement")

// Synthesizer writes the first statement for a question.
type Synthesizer struct {
	model    llm.Model
	schema   *schema.Schema
	examples *examples.Library
	k        int
	// formatted once; the schema snapshot never changes
	schemaText string
}

// NewSynthesizer returns a synthesizer. lib may be nil, k <= 0 uses examples.DefaultK.
func NewSynthesizer(m llm.Model, s *schema.Schema, lib *examples.Library, k int) *Synthesizer {
	return &Synthesizer{model: m, schema: s, examples: lib, k: k, schemaText: s.Format()}
}

func (s *Synthesizer) Generate(ctx context.Context, question string) (string, error) {
	var shots string
	if s.examples != nil {
		picked := s.examples.Retrieve(question, s.k)
		shots = examples.Format(picked)
		logx.Debug().Str("component", "text2cypher").Int("examples", len(picked)).Msg("Retrieved few-shot examples")
	}
	msgs, err := prompts.Generation(ctx, s.schemaText, shots, question)
	if err != nil {
		return "", err
	}
	out, err := s.model.Generate(ctx, "text2cypher_generation", msgs)
	if err != nil {
		return "", err
	}
	stmt := parsers.CleanStatement(out.Content)
	if stmt == "" {
		return "", errx.NewKind(errx.KindModel, errEmptyStatement, "generate cypher")
	}
	return stmt, nil
}

// Corrector rewrites a statement from its validation issues.
type Corrector struct {
	model      llm.Model
	schemaText string
}

func NewCorrector(m llm.Model, s *schema.Schema) *Corrector {
	return &Corrector{model: m, schemaText: s.Format()}
}

func (c *Corrector) Correct(ctx context.Context, question, stmt string, errs []validator.Issue) (string, error) {
	msgs, err := prompts.Correction(ctx, c.schemaText, question, stmt, FormatIssues(errs))
	if err != nil {
		return "", err
	}
	out, err := c.model.Generate(ctx, "text2cypher_correction", msgs)
	if err != nil {
		return "", err
	}
	fixed := parsers.CleanStatement(out.Content)
	if fixed == "" {
		return "", errx.NewKind(errx.KindModel, errEmptyStatement, "correct cypher")
	}
	logx.Debug().Str("component", "text2cypher").Str("before", stmt).Str("after", fixed).Msg("Corrected statement")
	return fixed, nil
}

// Reviewer asks the model to review a statement and name the literal values it
// filters on.
type Reviewer struct {
	model llm.Model
}

func NewReviewer(m llm.Model) *Reviewer {
	return &Reviewer{model: m}
}

func (r *Reviewer) Review(ctx context.Context, s *schema.Schema, question, stmt string) (*validator.SemanticReport, error) {
	msgs, err := prompts.Validation(ctx, s.Format(), question, stmt)
	if err != nil {
		return nil, err
	}
	out, err := r.model.Generate(ctx, "text2cypher_validation", msgs)
	if err != nil {
		return nil, err
	}
	var report validator.SemanticReport
	if err := parsers.DecodeJSON(out.Content, &report); err != nil {
		return nil, fmt.Errorf("semantic review: %w", err)
	}
	return &report, nil
}

// FormatIssues renders issues as a bullet list for the correction prompt.
func FormatIssues(errs []validator.Issue) string {
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = "- " + e.Message
	}
	return strings.Join(lines, "\n")
}
