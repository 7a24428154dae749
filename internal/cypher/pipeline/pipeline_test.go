package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
)

type recorder struct {
	generated   int
	corrections int
	executed    []string
}

func (r *recorder) generator(stmt string) GenerateFunc {
	return func(context.Context, string) (string, error) {
		r.generated++
		return stmt, nil
	}
}

func (r *recorder) corrector(stmts ...string) CorrectFunc {
	return func(_ context.Context, _, prior string, _ []validator.Issue) (string, error) {
		r.corrections++
		if len(stmts) == 0 {
			return prior, nil
		}
		next := stmts[0]
		stmts = stmts[1:]
		return next, nil
	}
}

func (r *recorder) executor(rows []map[string]any, err error) ExecuteFunc {
	return func(_ context.Context, stmt string, _ map[string]any) ([]map[string]any, error) {
		r.executed = append(r.executed, stmt)
		return rows, err
	}
}

func alwaysInvalid(kind errx.Kind) ValidateFunc {
	return func(_ context.Context, stmt, _ string) (validator.Result, error) {
		return validator.Result{
			Errors:             []validator.Issue{{Kind: kind, Message: "broken"}},
			CorrectedStatement: stmt,
		}, nil
	}
}

func alwaysValid() ValidateFunc {
	return func(_ context.Context, stmt, _ string) (validator.Result, error) {
		return validator.Result{CorrectedStatement: stmt}, nil
	}
}

var someRows = []map[string]any{{"p.ProductName": "Chai"}}

func TestCleanStatementExecutesWithoutCorrection(t *testing.T) {
	r := &recorder{}
	m := New(Config{MaxAttempts: 3}, r.generator("MATCH (p:Product) RETURN p.ProductName"), alwaysValid(),
		r.corrector(), r.executor(someRows, nil))

	st, err := m.Run(context.Background(), "list products")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Corrections)
	assert.Equal(t, 0, r.corrections)
	assert.Equal(t, 1, st.Attempts)
	assert.True(t, st.Executed)
	assert.False(t, st.Empty)
	assert.Equal(t, someRows, st.Records)
	assert.Equal(t, []string{"generate_cypher", "validate_cypher", "execute_cypher"}, st.Steps)
	assert.Equal(t, StateDone, st.NextAction)
}

func TestCleanStatementExecutesOnFinalAttempt(t *testing.T) {
	r := &recorder{}
	m := New(Config{MaxAttempts: 1}, r.generator("MATCH (p:Product) RETURN p.ProductName"), alwaysValid(),
		r.corrector(), r.executor(someRows, nil))

	st, err := m.Run(context.Background(), "list products")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Attempts)
	assert.True(t, st.Executed)
	assert.Equal(t, 0, r.corrections)
	assert.Equal(t, []string{"MATCH (p:Product) RETURN p.ProductName"}, r.executed)
}

func TestCorrectionsBoundedByMaxAttempts(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		r := &recorder{}
		m := New(Config{MaxAttempts: n}, r.generator("MATCH (p:Prodcut) RETURN p"), alwaysInvalid(errx.KindSchema),
			r.corrector(), r.executor(someRows, nil))

		st, err := m.Run(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, n-1, r.corrections, "max attempts %d", n)
		assert.Equal(t, n, st.Attempts)
		assert.Empty(t, r.executed)
		assert.False(t, st.Executed)
		assert.NotEmpty(t, st.Errors)
	}
}

func TestForceExecuteOnFinalAttempt(t *testing.T) {
	r := &recorder{}
	m := New(Config{MaxAttempts: 2, ForceExecuteOnFinalAttempt: true}, r.generator("MATCH (p:Prodcut) RETURN p"),
		alwaysInvalid(errx.KindSchema), r.corrector(), r.executor(someRows, nil))

	st, err := m.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 1, r.corrections)
	assert.Len(t, r.executed, 1)
	assert.True(t, st.Executed)
}

func TestPolicyViolationNeverExecuted(t *testing.T) {
	r := &recorder{}
	m := New(Config{MaxAttempts: 2, ForceExecuteOnFinalAttempt: true}, r.generator("MATCH (p) DELETE p"),
		alwaysInvalid(errx.KindPolicy), r.corrector(), r.executor(someRows, nil))

	st, err := m.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, r.executed)
	assert.False(t, st.Executed)
	assert.Equal(t, errx.KindPolicy, st.Errors[0].Kind)
}

func TestRangeViolationCorrectedThenExecuted(t *testing.T) {
	lo, hi := 0.0, 100000.0
	s := schema.New(map[string][]schema.Property{
		"Product": {
			{Name: "ProductName", Type: schema.TypeString},
			{Name: "UnitPrice", Type: schema.TypeFloat, Min: &lo, Max: &hi},
		},
	}, nil, nil)

	r := &recorder{}
	m := New(Config{MaxAttempts: 3},
		r.generator("MATCH (p:Product) WHERE p.UnitPrice = 500000 RETURN p.ProductName"),
		validator.New(s),
		r.corrector("MATCH (p:Product) WHERE p.UnitPrice = 50 RETURN p.ProductName"),
		r.executor(someRows, nil))

	st, err := m.Run(context.Background(), "products priced 500000")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Corrections)
	assert.Empty(t, st.Errors)
	assert.Equal(t, []string{"MATCH (p:Product) WHERE p.UnitPrice = 50 RETURN p.ProductName"}, r.executed)
	assert.Equal(t, []string{"generate_cypher", "validate_cypher", "correct_cypher", "validate_cypher", "execute_cypher"}, st.Steps)
}

func TestMappingErrorsAreInformationalByDefault(t *testing.T) {
	withMapping := ValidateFunc(func(_ context.Context, stmt, _ string) (validator.Result, error) {
		return validator.Result{CorrectedStatement: stmt, MappingErrors: []string{"Missing value mapping for Supplier on property Country with value Atlantis"}}, nil
	})

	r := &recorder{}
	m := New(Config{MaxAttempts: 3}, r.generator("MATCH (s:Supplier) RETURN s"), withMapping, r.corrector(), r.executor(nil, nil))
	st, err := m.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 0, r.corrections)
	assert.Len(t, r.executed, 1)
	assert.Len(t, st.MappingErrors, 1)
	assert.True(t, st.Empty)

	r = &recorder{}
	var seen []validator.Issue
	corrector := CorrectFunc(func(_ context.Context, _, prior string, errs []validator.Issue) (string, error) {
		seen = errs
		r.corrections++
		return prior, nil
	})
	m = New(Config{MaxAttempts: 2, CorrectOnMappingErrors: true}, r.generator("MATCH (s:Supplier) RETURN s"), withMapping,
		corrector, r.executor(nil, nil))
	_, err = m.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 1, r.corrections)
	require.Len(t, seen, 1)
	assert.Equal(t, errx.KindValueNotFound, seen[0].Kind)
}

func TestEmptyResultUsesSentinel(t *testing.T) {
	r := &recorder{}
	m := New(Config{}, r.generator("MATCH (p:Product) RETURN p"), alwaysValid(), r.corrector(), r.executor(nil, nil))

	st, err := m.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, st.Executed)
	assert.True(t, st.Empty)
	assert.Equal(t, NoResults(), st.Records)
	assert.Equal(t, NoResultsMessage, st.Records[0]["error"])
}

func TestExecutionFailureIsTyped(t *testing.T) {
	r := &recorder{}
	m := New(Config{}, r.generator("MATCH (p:Product) RETURN p"), alwaysValid(), r.corrector(),
		r.executor(nil, errors.New("connection refused")))

	st, err := m.Run(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, errx.KindExecution, errx.KindOf(err))
	assert.True(t, st.Empty)
	assert.False(t, st.Executed)
}

func TestGenerateFailureIsModelError(t *testing.T) {
	gen := GenerateFunc(func(context.Context, string) (string, error) { return "", errors.New("quota") })
	m := New(Config{}, gen, alwaysValid(), (&recorder{}).corrector(), (&recorder{}).executor(nil, nil))

	_, err := m.Run(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, errx.KindModel, errx.KindOf(err))
}

func TestCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &recorder{}
	m := New(Config{}, r.generator("MATCH (n) RETURN n"), alwaysValid(), r.corrector(), r.executor(someRows, nil))
	st, err := m.Run(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.generated)
	assert.Equal(t, StateDone, st.NextAction)
}

func TestValidatorCorrectionIsCarriedForward(t *testing.T) {
	rewrite := ValidateFunc(func(_ context.Context, stmt, _ string) (validator.Result, error) {
		return validator.Result{CorrectedStatement: strings.Replace(stmt, "->", "-", 1)}, nil
	})
	r := &recorder{}
	m := New(Config{}, r.generator("MATCH (a)-[:R]->(b) RETURN a"), rewrite, r.corrector(), r.executor(someRows, nil))

	st, err := m.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (a)-[:R]-(b) RETURN a", st.Statement)
	assert.Equal(t, []string{st.Statement}, r.executed)
}

func TestRegisterTransitionOverridesState(t *testing.T) {
	r := &recorder{}
	m := New(Config{}, r.generator("MATCH (n) RETURN n"), alwaysValid(), r.corrector(), r.executor(someRows, nil))
	m.RegisterTransition(StateExecute, func(_ context.Context, st *QueryState) (State, error) {
		st.Records = []map[string]any{{"dry": true}}
		return StateDone, nil
	})

	st, err := m.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, r.executed)
	assert.Equal(t, true, st.Records[0]["dry"])
}

func TestDecide(t *testing.T) {
	corrective := validator.Result{Errors: []validator.Issue{{Kind: errx.KindSyntax}}}
	policy := validator.Result{Errors: []validator.Issue{{Kind: errx.KindPolicy}}}
	mapping := validator.Result{MappingErrors: []string{"missing"}}
	clean := validator.Result{}

	cfg := Config{MaxAttempts: 3}
	force := Config{MaxAttempts: 3, ForceExecuteOnFinalAttempt: true}

	assert.Equal(t, StateCorrect, Decide(cfg, corrective, 1))
	assert.Equal(t, StateCorrect, Decide(cfg, corrective, 2))
	assert.Equal(t, StateDone, Decide(cfg, corrective, 3))
	assert.Equal(t, StateExecute, Decide(force, corrective, 3))
	assert.Equal(t, StateDone, Decide(force, policy, 3))
	assert.Equal(t, StateExecute, Decide(cfg, clean, 3))
	assert.Equal(t, StateExecute, Decide(cfg, mapping, 1))
	assert.Equal(t, StateCorrect, Decide(Config{MaxAttempts: 3, CorrectOnMappingErrors: true}, mapping, 1))
}
