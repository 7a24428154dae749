package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	einoschema "github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/nodes"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/llm"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/llm/llmtest"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/pipeline"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
)

type fakeDB struct {
	mu       sync.Mutex
	executed []string
	// statements containing failOn fail to execute
	failOn string
}

func (d *fakeDB) Explain(context.Context, string) error { return nil }

func (d *fakeDB) ValueExists(context.Context, string, string, string) (bool, error) {
	return true, nil
}

func (d *fakeDB) Execute(_ context.Context, stmt string, _ map[string]any) ([]map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executed = append(d.executed, stmt)
	if d.failOn != "" && strings.Contains(stmt, d.failOn) {
		return nil, errors.New("connection reset by peer")
	}
	return []map[string]any{{"name": "Chai"}, {"name": "Chang"}}, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (c *memCache) Lookup(_ context.Context, q string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[strings.ToLower(q)]
	return v, ok, nil
}

func (c *memCache) Update(_ context.Context, q, resp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]string{}
	}
	c.entries[strings.ToLower(q)] = resp
	return nil
}

type fixture struct {
	guardrail *llmtest.ChatModel
	planner   *llmtest.ChatModel
	cypher    *llmtest.ChatModel
	summary   *llmtest.ChatModel
	db        *fakeDB
	cache     *memCache
}

func newFixture(guardrail, planner, summary *llmtest.ChatModel) *fixture {
	return &fixture{
		guardrail: guardrail,
		planner:   planner,
		cypher:    llmtest.Reply("MATCH (p:Product) RETURN p.ProductName AS name"),
		summary:   summary,
		db:        &fakeDB{},
		cache:     &memCache{},
	}
}

func (f *fixture) runner(t *testing.T) Runner {
	t.Helper()
	cms := &nodes.ChatModels{
		Guardrail:   llm.Model{Chat: f.guardrail, Name: "fake"},
		Planner:     llm.Model{Chat: f.planner, Name: "fake"},
		Cypher:      llm.Model{Chat: f.cypher, Name: "fake"},
		Summary:     llm.Model{Chat: f.summary, Name: "fake"},
		CypherTools: f.cypher,
	}
	cfg := Config{
		Scope: model.ScopeConfig{
			Description:       "Northwind products",
			OutOfScopeMessage: "Sorry, I can only answer questions about our products.",
			NoDataMessage:     "No data to summarize.",
		},
		Router:   model.RouterConfig{MaxConcurrentTasks: 2, DefaultToCypher: true},
		Pipeline: pipeline.Config{MaxAttempts: 3},
		Schema: schema.New(map[string][]schema.Property{
			"Product":  {{Name: "ProductName", Type: schema.TypeString}},
			"Supplier": {{Name: "CompanyName", Type: schema.TypeString}},
		}, nil, nil),
		Database: f.db,
		Cache:    f.cache,
	}
	r, err := NewRunner(context.Background(), cfg, cms)
	require.NoError(t, err)
	return r
}

func TestOutOfScopeShortCircuits(t *testing.T) {
	f := newFixture(
		llmtest.Reply(`{"decision": "end"}`),
		llmtest.Reply(`{"tasks": []}`),
		llmtest.Reply("unused"),
	)

	ans, err := f.runner(t).Invoke(context.Background(), model.QueryInput{Question: "What's the weather in Paris?"})
	require.NoError(t, err)
	assert.True(t, ans.OutOfScope)
	assert.Equal(t, "Sorry, I can only answer questions about our products.", ans.Answer)
	assert.Equal(t, []string{nodes.NodeGuardrails, nodes.NodeOutOfScope}, ans.Steps)
	assert.NotEmpty(t, ans.RequestID)
	assert.Zero(t, f.planner.Calls())
	assert.Zero(t, f.summary.Calls())
	assert.Empty(t, f.cache.entries)
}

func TestAnswerIsCached(t *testing.T) {
	f := newFixture(
		llmtest.Reply(`{"decision": "planner"}`),
		llmtest.Reply(`{"tasks": [{"question": "Which products are beverages?"}]}`),
		llmtest.Replies("Chai and Chang.", `{"valid": true}`),
	)
	r := f.runner(t)

	ans, err := r.Invoke(context.Background(), model.QueryInput{Question: "Which products are beverages?"})
	require.NoError(t, err)
	assert.False(t, ans.Cached)
	assert.Equal(t, "Chai and Chang.", ans.Answer)
	require.Len(t, ans.Results, 1)
	assert.Equal(t, model.ToolCypherQuery, ans.Results[0].Tool)
	assert.Equal(t, []map[string]any{{"name": "Chai"}, {"name": "Chang"}}, ans.Results[0].Records)
	assert.Contains(t, ans.Steps, nodes.NodeFinalAnswer)
	require.Len(t, ans.History.Cyphers, 1)
	assert.Equal(t, "MATCH (p:Product) RETURN p.ProductName AS name", ans.History.Cyphers[0].Statement)

	again, err := r.Invoke(context.Background(), model.QueryInput{Question: "  which products are beverages?  "})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, "Chai and Chang.", again.Answer)
	assert.Equal(t, []string{StepCache}, again.Steps)
	assert.Equal(t, 1, f.planner.Calls())
	assert.Len(t, f.db.executed, 1)
}

func TestFollowUpLoopsOnce(t *testing.T) {
	f := newFixture(
		llmtest.Reply(`{"decision": "planner"}`),
		llmtest.Reply(`{"tasks": [{"question": "Which products are beverages?"}]}`),
		llmtest.Replies(
			"Chai and Chang.",
			`{"valid": false, "follow_up_question": "What is the price of Chai?"}`,
			"Chai and Chang. Chai costs 18.",
		),
	)

	ans, err := f.runner(t).Invoke(context.Background(), model.QueryInput{Question: "Which beverages do we sell and at what price?"})
	require.NoError(t, err)
	assert.Equal(t, "Chai and Chang. Chai costs 18.", ans.Answer)
	require.Len(t, ans.Results, 2)
	assert.Equal(t, "What is the price of Chai?", ans.Results[1].Task)

	// summarize, validate, summarize; the second pass skips validation
	assert.Equal(t, 3, f.summary.Calls())
	validations := 0
	for _, s := range ans.Steps {
		if s == nodes.NodeValidateAnswer {
			validations++
		}
	}
	assert.Equal(t, 1, validations)
	assert.Len(t, f.db.executed, 2)
}

func TestEmptyQuestionRejected(t *testing.T) {
	f := newFixture(llmtest.Reply("{}"), llmtest.Reply("{}"), llmtest.Reply(""))
	_, err := f.runner(t).Invoke(context.Background(), model.QueryInput{Question: "   "})
	assert.Error(t, err)
	assert.Zero(t, f.guardrail.Calls())
}

func TestPartialFailureStillSummarizes(t *testing.T) {
	f := newFixture(
		llmtest.Reply(`{"decision": "planner"}`),
		llmtest.Reply(`{"tasks": [{"question": "Which products are beverages?"}, {"question": "Which suppliers are in Japan?"}]}`),
		llmtest.Replies("Chai and Chang are beverages.", `{"valid": true}`),
	)
	f.cypher = llmtest.New(func(msgs []*einoschema.Message) (*einoschema.Message, error) {
		if strings.Contains(msgs[len(msgs)-1].Content, "suppliers") {
			return einoschema.AssistantMessage("MATCH (s:Supplier) RETURN s.CompanyName AS name", nil), nil
		}
		return einoschema.AssistantMessage("MATCH (p:Product) RETURN p.ProductName AS name", nil), nil
	})
	f.db.failOn = "Supplier"

	ans, err := f.runner(t).Invoke(context.Background(), model.QueryInput{Question: "Beverages and Japanese suppliers?"})
	require.NoError(t, err)
	assert.Equal(t, "Chai and Chang are beverages.", ans.Answer)
	require.Len(t, ans.Results, 2)
	assert.True(t, ans.Results[0].Usable())
	assert.False(t, ans.Results[1].Usable())
	require.NotEmpty(t, ans.Results[1].Errors)
	assert.Equal(t, errx.KindExecution, ans.Results[1].Errors[0].Kind)
	require.Len(t, ans.History.Cyphers, 1)
	assert.Equal(t, "Which products are beverages?", ans.History.Cyphers[0].Task)
	assert.Equal(t, 2, f.summary.Calls())
}
