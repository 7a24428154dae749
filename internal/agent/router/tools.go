package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/kb"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/metrics"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/catalog"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/pipeline"
)

// ===================================
// cypher_query
// ===================================

// QueryRunner drives one task through the pipeline state machine.
type QueryRunner interface {
	Run(ctx context.Context, question string) (*pipeline.QueryState, error)
}

type CypherQueryInput struct {
	Task string `json:"task"`
}

// CypherQueryTool generates, validates and runs an ad-hoc statement.
func CypherQueryTool(runner QueryRunner, m *metrics.Metrics) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: model.ToolCypherQuery,
			Desc: "Answer a question about the graph database by writing and running a new Cypher query. Use this when no predefined query fits.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"task": {
					Type:     "string",
					Desc:     "The question to answer, rephrased as a standalone request if needed.",
					Required: true,
				},
			}),
		},
		Direct: func(task model.Task) string {
			return mustJSON(CypherQueryInput{Task: task.Question})
		},
		Handle: func(ctx context.Context, task model.Task, args string) (model.TaskResult, error) {
			var in CypherQueryInput
			if err := decodeArgs(args, &in); err != nil {
				return model.TaskResult{}, err
			}
			question := strings.TrimSpace(in.Task)
			if question == "" {
				question = task.Question
			}

			st, err := runner.Run(ctx, question)
			res := model.TaskResult{}
			if st != nil {
				m.ObservePipeline(st.Attempts, st.Corrections, st.Errors)
				res.Statement = st.Statement
				res.Parameters = st.Parameters
				res.Records = st.Records
				res.Errors = st.Errors
				res.MappingErrors = st.MappingErrors
				res.Steps = st.Steps
				res.Empty = st.Empty
			}
			if err == nil && st != nil && !st.Executed {
				// attempts ran out with corrective errors left
				res.Records = pipeline.NoResults()
				res.Empty = true
			}
			return res, err
		},
	}
}

// ===================================
// predefined_cypher
// ===================================

// Executor runs a named query's statement.
type Executor interface {
	Execute(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error)
}

type PredefinedCypherInput struct {
	Query string `json:"query"`
	// Parameters is a JSON object, sent either inline or as an encoded string.
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// PredefinedCypherTool runs a named query from the catalog.
func PredefinedCypherTool(cat *catalog.Catalog, exec Executor) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: model.ToolPredefinedCypher,
			Desc: "Run one of the predefined, reviewed Cypher queries listed in the instructions. Prefer this when a query matches the question exactly.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Name of the predefined query.",
					Enum:     cat.Names(),
					Required: true,
				},
				"parameters": {
					Type: "string",
					Desc: `JSON object with the query parameters, for example {"category": "Beverages"}. Use {} when the query takes none.`,
				},
			}),
		},
		Handle: func(ctx context.Context, task model.Task, args string) (model.TaskResult, error) {
			var in PredefinedCypherInput
			if err := decodeArgs(args, &in); err != nil {
				return model.TaskResult{}, err
			}
			params, err := decodeParams(in.Parameters)
			if err != nil {
				return model.TaskResult{}, errx.NewKind(errx.KindToolSelection, err, "predefined cypher parameters")
			}
			q, bound, err := cat.Resolve(in.Query, params)
			if err != nil {
				return model.TaskResult{}, err
			}

			res := model.TaskResult{
				Statement:  q.Statement,
				Parameters: bound,
				Steps:      []string{"resolve_predefined_cypher", "execute_cypher"},
			}
			records, err := exec.Execute(ctx, q.Statement, bound)
			if err != nil {
				if errx.KindOf(err) == errx.KindUnknown {
					err = errx.NewKind(errx.KindExecution, err, "execute predefined cypher")
				}
				return res, err
			}
			res.Records = records
			if len(records) == 0 {
				res.Records = pipeline.NoResults()
				res.Empty = true
			}
			return res, nil
		},
	}
}

// decodeParams accepts an inline object, a JSON-encoded object string or nothing.
func decodeParams(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err == nil {
		return params, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("parameters must be an object: %w", err)
	}
	if strings.TrimSpace(encoded) == "" {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal([]byte(encoded), &params); err != nil {
		return nil, fmt.Errorf("parameters must be an object: %w", err)
	}
	return params, nil
}

// ===================================
// kb_search
// ===================================

// Searcher queries the document knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string) (*kb.Response, error)
}

type KBSearchInput struct {
	Query string `json:"query"`
}

// KBSearchTool answers from the document knowledge base instead of the graph.
func KBSearchTool(s Searcher) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: model.ToolKBSearch,
			Desc: "Search the document knowledge base for policies, descriptions and other unstructured information that is not stored in the graph.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search query in natural language.",
					Required: true,
				},
			}),
		},
		Direct: func(task model.Task) string {
			return mustJSON(KBSearchInput{Query: task.Question})
		},
		Handle: func(ctx context.Context, task model.Task, args string) (model.TaskResult, error) {
			var in KBSearchInput
			if err := decodeArgs(args, &in); err != nil {
				return model.TaskResult{}, err
			}
			query := strings.TrimSpace(in.Query)
			if query == "" {
				query = task.Question
			}
			res := model.TaskResult{Steps: []string{"kb_search"}}
			resp, err := s.Search(ctx, query)
			if err != nil {
				return res, err
			}
			res.Records = resp.Records()
			if len(res.Records) == 0 {
				res.Records = pipeline.NoResults()
				res.Empty = true
			}
			return res, nil
		},
	}
}

func decodeArgs(args string, out any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(args), out); err != nil {
		return errx.NewKind(errx.KindToolSelection, err, "decode tool arguments")
	}
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
