package text2cypher

import (
	"github.com/cypherqa-core-poc-v1/server/internal/agent/llm"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/examples"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/pipeline"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
)

// Database is what the pipeline needs from the graph database.
type Database interface {
	validator.SyntaxChecker
	validator.ValueChecker
	pipeline.Executor
}

type Options struct {
	Pipeline pipeline.Config
	// LLMValidation enables the semantic review and value lookups.
	LLMValidation bool
	ExamplesK     int
}

// NewPipeline wires generation, validation, correction and execution into one machine.
func NewPipeline(m llm.Model, s *schema.Schema, lib *examples.Library, db Database, opts Options) *pipeline.Machine {
	vopts := []validator.Option{validator.WithSyntaxChecker(db)}
	if opts.LLMValidation {
		vopts = append(vopts, validator.WithSemanticChecker(NewReviewer(m)), validator.WithValueChecker(db))
	}
	return pipeline.New(opts.Pipeline,
		NewSynthesizer(m, s, lib, opts.ExamplesK),
		validator.New(s, vopts...),
		NewCorrector(m, s),
		db,
	)
}
