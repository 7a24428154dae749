// Package validator checks a generated Cypher statement against the graph
// schema: syntax dry-run, read-only policy, structural schema conformance,
// relationship direction correction and an optional model review with
// value-existence lookups.
package validator

import (
	"context"
	"fmt"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/extractor"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// Issue is one validation finding.
type Issue struct {
	Kind    errx.Kind `json:"kind"`
	Message string    `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Kind, i.Message)
}

// Result is the outcome of one validation.
type Result struct {
	Errors []Issue
	// MappingErrors report literal values that do not exist in the data.
	MappingErrors      []string
	CorrectedStatement string
	Filters            []extractor.ValidationTask
}

// HasCorrective reports whether any error can be fixed by regenerating the statement.
func (r Result) HasCorrective() bool {
	for _, e := range r.Errors {
		if e.Kind.Corrective() {
			return true
		}
	}
	return false
}

// HasPolicyViolation reports whether a write clause or a non-read entry clause was found.
func (r Result) HasPolicyViolation() bool {
	for _, e := range r.Errors {
		if e.Kind == errx.KindPolicy {
			return true
		}
	}
	return false
}

// Messages returns the error messages in order.
func (r Result) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Message
	}
	return out
}

// SyntaxChecker performs an explain-only parse of a statement.
// Errors tagged errx.KindExecution are transport failures, anything else is a parse failure.
type SyntaxChecker interface {
	Explain(ctx context.Context, stmt string) error
}

// ValueChecker reports whether a literal value exists for a node property.
type ValueChecker interface {
	ValueExists(ctx context.Context, label, property, value string) (bool, error)
}

// SemanticFilter is a property/value pair claimed by the model review.
type SemanticFilter struct {
	NodeLabel     string `json:"node_label"`
	PropertyKey   string `json:"property_key"`
	PropertyValue string `json:"property_value"`
}

// SemanticReport is the structured output of a model review.
type SemanticReport struct {
	Errors  []string         `json:"errors"`
	Filters []SemanticFilter `json:"filters"`
}

// SemanticChecker reviews a statement with a language model.
type SemanticChecker interface {
	Review(ctx context.Context, s *schema.Schema, question, stmt string) (*SemanticReport, error)
}

// Option configures a Validator.
type Option func(*Validator)

// WithSyntaxChecker enables the dry-run step.
func WithSyntaxChecker(c SyntaxChecker) Option {
	return func(v *Validator) { v.syntax = c }
}

// WithValueChecker enables value-existence lookups for semantic filters.
func WithValueChecker(c ValueChecker) Option {
	return func(v *Validator) { v.values = c }
}

// WithSemanticChecker enables the model review step.
func WithSemanticChecker(c SemanticChecker) Option {
	return func(v *Validator) { v.semantic = c }
}

// Validator is safe for concurrent use; it holds only the schema snapshot and
// stateless collaborators.
type Validator struct {
	schema   *schema.Schema
	syntax   SyntaxChecker
	values   ValueChecker
	semantic SemanticChecker
}

func New(s *schema.Schema, opts ...Option) *Validator {
	v := &Validator{schema: s}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Schema returns the snapshot the validator checks against.
func (v *Validator) Schema() *schema.Schema {
	return v.schema
}

// Validate runs all steps in order. The returned error is reserved for failures
// that make validation impossible (cancelled context, unreachable database).
func (v *Validator) Validate(ctx context.Context, stmt, question string) (Result, error) {
	res := Result{CorrectedStatement: stmt}
	var issues []Issue

	if v.syntax != nil {
		if err := v.syntax.Explain(ctx, stmt); err != nil {
			if errx.KindOf(err) == errx.KindExecution || ctx.Err() != nil {
				return res, fmt.Errorf("syntax check: %w", err)
			}
			issues = append(issues, Issue{Kind: errx.KindSyntax, Message: err.Error()})
		}
	}

	if !StartsWithReadClause(stmt) {
		issues = append(issues, Issue{Kind: errx.KindPolicy, Message: ReadEntryMessage})
	}
	for _, wc := range FindWriteClauses(stmt) {
		issues = append(issues, Issue{Kind: errx.KindPolicy, Message: writeClauseMessage(wc)})
	}

	ex := extractor.Extract(stmt)
	issues = append(issues, checkReferences(v.schema, ex)...)
	for i := range ex.Filters {
		resolveType(v.schema, &ex.Filters[i])
		issues = append(issues, checkFilter(v.schema, ex.Filters[i])...)
	}
	res.Filters = ex.Filters

	res.CorrectedStatement = CorrectDirections(v.schema, stmt)
	if res.CorrectedStatement != stmt {
		logx.Debug().
			Str("component", "validator").
			Str("before", stmt).
			Str("after", res.CorrectedStatement).
			Msg("Corrected relationship direction")
	}

	if v.semantic != nil {
		report, err := v.semantic.Review(ctx, v.schema, question, res.CorrectedStatement)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logx.Warn().Err(err).Str("component", "validator").Msg("Semantic review failed; skipping")
		case report != nil:
			for _, msg := range report.Errors {
				issues = append(issues, Issue{Kind: errx.KindSemantic, Message: msg})
			}
			mapping, err := v.checkValues(ctx, report.Filters)
			if err != nil {
				return res, err
			}
			res.MappingErrors = mapping
		}
	}

	res.Errors = dedupe(issues)
	return res, nil
}

// checkValues looks up each claimed string filter in the live database.
func (v *Validator) checkValues(ctx context.Context, filters []SemanticFilter) ([]string, error) {
	if v.values == nil {
		return nil, nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, f := range filters {
		p, ok := v.schema.NodeProperty(f.NodeLabel, f.PropertyKey)
		if !ok || p.Type != schema.TypeString || f.PropertyValue == "" {
			continue
		}
		exists, err := v.values.ValueExists(ctx, f.NodeLabel, f.PropertyKey, f.PropertyValue)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logx.Warn().Err(err).
				Str("label", f.NodeLabel).
				Str("property", f.PropertyKey).
				Msg("Value lookup failed; skipping filter")
			continue
		}
		if exists {
			continue
		}
		msg := fmt.Sprintf("Missing value mapping for %s on property %s with value %s", f.NodeLabel, f.PropertyKey, f.PropertyValue)
		if _, dup := seen[msg]; !dup {
			seen[msg] = struct{}{}
			out = append(out, msg)
		}
	}
	return out, nil
}

func dedupe(in []Issue) []Issue {
	seen := make(map[Issue]struct{}, len(in))
	out := make([]Issue, 0, len(in))
	for _, i := range in {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}
