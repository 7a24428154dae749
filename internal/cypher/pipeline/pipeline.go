// Package pipeline runs the generate → validate → correct → execute state
// machine for one ad-hoc text-to-Cypher task.
package pipeline

import (
	"context"
	"fmt"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// State is a pipeline state.
type State string

const (
	StateGenerate State = "generate"
	StateValidate State = "validate"
	StateCorrect  State = "correct"
	StateExecute  State = "execute"
	StateDone     State = "done"
)

// NoResultsMessage is the sentinel record text for an empty result.
const NoResultsMessage = "No matching records were found in the database."

// NoResults returns the empty-result sentinel record set.
func NoResults() []map[string]any {
	return []map[string]any{{"error": NoResultsMessage}}
}

// Config bounds the correction loop.
type Config struct {
	MaxAttempts int `envconfig:"CYPHER_MAX_ATTEMPTS" default:"3"`
	// ForceExecuteOnFinalAttempt executes a statement that still has errors once
	// the attempts are exhausted. Risky: the statement is known to be defective.
	// Write clauses are never executed, even with this flag.
	ForceExecuteOnFinalAttempt bool `envconfig:"CYPHER_FORCE_EXECUTE_ON_FINAL_ATTEMPT" default:"false"`
	// CorrectOnMappingErrors also loops correction for values missing from the data.
	CorrectOnMappingErrors bool `envconfig:"CYPHER_CORRECT_ON_MAPPING_ERRORS" default:"false"`
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

// QueryState is owned by one run and never shared across tasks.
type QueryState struct {
	Task          string
	Statement     string
	Parameters    map[string]any
	Errors        []validator.Issue
	MappingErrors []string
	Records       []map[string]any
	Attempts      int
	Corrections   int
	NextAction    State
	Steps         []string
	Executed      bool
	// Empty is set when execution returned no rows and Records holds the sentinel.
	Empty bool
}

type Generator interface {
	Generate(ctx context.Context, question string) (string, error)
}

type Validator interface {
	Validate(ctx context.Context, stmt, question string) (validator.Result, error)
}

type Corrector interface {
	Correct(ctx context.Context, question, stmt string, errs []validator.Issue) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error)
}

// GenerateFunc adapts a function to Generator.
type GenerateFunc func(ctx context.Context, question string) (string, error)

func (f GenerateFunc) Generate(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// ValidateFunc adapts a function to Validator.
type ValidateFunc func(ctx context.Context, stmt, question string) (validator.Result, error)

func (f ValidateFunc) Validate(ctx context.Context, stmt, question string) (validator.Result, error) {
	return f(ctx, stmt, question)
}

// CorrectFunc adapts a function to Corrector.
type CorrectFunc func(ctx context.Context, question, stmt string, errs []validator.Issue) (string, error)

func (f CorrectFunc) Correct(ctx context.Context, question, stmt string, errs []validator.Issue) (string, error) {
	return f(ctx, question, stmt, errs)
}

// ExecuteFunc adapts a function to Executor.
type ExecuteFunc func(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error)

func (f ExecuteFunc) Execute(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error) {
	return f(ctx, stmt, params)
}

// Transition runs one state and returns the next one.
type Transition func(ctx context.Context, st *QueryState) (State, error)

// Machine is reusable and safe for concurrent runs; all per-run data lives in QueryState.
type Machine struct {
	cfg         Config
	transitions map[State]Transition
}

// New wires the four collaborators into the state machine.
func New(cfg Config, g Generator, v Validator, c Corrector, e Executor) *Machine {
	m := &Machine{cfg: cfg, transitions: map[State]Transition{}}
	m.RegisterTransition(StateGenerate, m.generate(g))
	m.RegisterTransition(StateValidate, m.validate(v))
	m.RegisterTransition(StateCorrect, m.correct(c))
	m.RegisterTransition(StateExecute, m.execute(e))
	return m
}

// RegisterTransition replaces the handler of a state.
func (m *Machine) RegisterTransition(s State, t Transition) {
	m.transitions[s] = t
}

// Run drives one task from GENERATE to DONE. The returned state is never nil.
// Errors are model or database failures; validation findings stay in the state.
func (m *Machine) Run(ctx context.Context, question string) (*QueryState, error) {
	st := &QueryState{Task: question, NextAction: StateGenerate}
	// generate + one validate per attempt + corrections + execute
	maxSteps := 3*m.cfg.maxAttempts() + 2

	for step := 0; st.NextAction != StateDone; step++ {
		if step >= maxSteps {
			return st, fmt.Errorf("pipeline exceeded %d steps", maxSteps)
		}
		select {
		case <-ctx.Done():
			next := st.NextAction
			st.NextAction = StateDone
			return st, fmt.Errorf("pipeline cancelled in %s: %w", next, ctx.Err())
		default:
		}

		t, ok := m.transitions[st.NextAction]
		if !ok {
			return st, fmt.Errorf("no transition registered for state %q", st.NextAction)
		}
		current := st.NextAction
		next, err := t(ctx, st)
		if err != nil {
			st.NextAction = StateDone
			return st, err
		}
		logx.Debug().
			Str("component", "pipeline").
			Str("from", string(current)).
			Str("to", string(next)).
			Int("attempts", st.Attempts).
			Msg("Pipeline transition")
		st.NextAction = next
	}
	return st, nil
}

// Decide picks the state after VALIDATE from the validation result and the
// attempts used so far. Only corrective errors block execution unless
// CorrectOnMappingErrors is set.
func Decide(cfg Config, res validator.Result, attempts int) State {
	blocking := res.HasCorrective() || (cfg.CorrectOnMappingErrors && len(res.MappingErrors) > 0)
	limit := cfg.maxAttempts()
	switch {
	case blocking && attempts < limit:
		return StateCorrect
	case !blocking:
		return StateExecute
	case cfg.ForceExecuteOnFinalAttempt && attempts >= limit && !res.HasPolicyViolation():
		return StateExecute
	default:
		return StateDone
	}
}

func (m *Machine) generate(g Generator) Transition {
	return func(ctx context.Context, st *QueryState) (State, error) {
		stmt, err := g.Generate(ctx, st.Task)
		if err != nil {
			return StateDone, errx.NewKind(errx.KindModel, err, "generate cypher")
		}
		st.Statement = stmt
		st.Steps = append(st.Steps, "generate_cypher")
		return StateValidate, nil
	}
}

func (m *Machine) validate(v Validator) Transition {
	return func(ctx context.Context, st *QueryState) (State, error) {
		st.Attempts++
		res, err := v.Validate(ctx, st.Statement, st.Task)
		if err != nil {
			return StateDone, err
		}
		st.Errors = res.Errors
		st.MappingErrors = res.MappingErrors
		if res.CorrectedStatement != "" {
			st.Statement = res.CorrectedStatement
		}
		st.Steps = append(st.Steps, "validate_cypher")
		return Decide(m.cfg, res, st.Attempts), nil
	}
}

func (m *Machine) correct(c Corrector) Transition {
	return func(ctx context.Context, st *QueryState) (State, error) {
		errs := st.Errors
		if m.cfg.CorrectOnMappingErrors {
			for _, msg := range st.MappingErrors {
				errs = append(errs, validator.Issue{Kind: errx.KindValueNotFound, Message: msg})
			}
		}
		stmt, err := c.Correct(ctx, st.Task, st.Statement, errs)
		if err != nil {
			return StateDone, errx.NewKind(errx.KindModel, err, "correct cypher")
		}
		st.Statement = stmt
		st.Corrections++
		st.Steps = append(st.Steps, "correct_cypher")
		return StateValidate, nil
	}
}

func (m *Machine) execute(e Executor) Transition {
	return func(ctx context.Context, st *QueryState) (State, error) {
		records, err := e.Execute(ctx, st.Statement, st.Parameters)
		st.Steps = append(st.Steps, "execute_cypher")
		if err != nil {
			st.Records = NoResults()
			st.Empty = true
			if errx.KindOf(err) == errx.KindExecution {
				return StateDone, err
			}
			return StateDone, errx.NewKind(errx.KindExecution, err, "execute cypher")
		}
		st.Executed = true
		if len(records) == 0 {
			st.Records = NoResults()
			st.Empty = true
		} else {
			st.Records = records
		}
		return StateDone, nil
	}
}
