package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/cache"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/conversations"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/nodes"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/observers"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/kb"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/metrics"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/router"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/text2cypher"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/catalog"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/examples"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/pipeline"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// StepCache is the only step of an answer served from the response cache.
const StepCache = "cache"

// Runner is a thin wrapper to execute the compiled graph with the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.Answer, error)
}

// Config holds everything needed to compose the full question answering graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat models,
// the tool registry and the dispatcher.
type Config struct {
	APIKey         string
	BaseURL        string
	GuardrailModel model.GuardrailModelConfig
	PlannerModel   model.PlannerModelConfig
	CypherModel    model.CypherModelConfig
	SummaryModel   model.SummaryModelConfig

	Scope    model.ScopeConfig
	Cypher   model.CypherConfig
	Router   model.RouterConfig
	Pipeline pipeline.Config
	History  model.HistoryConfig

	Schema   *schema.Schema
	Catalog  *catalog.Catalog
	Examples *examples.Library
	Database text2cypher.Database
	// KB is optional; a disabled client leaves kb_search out of the registry.
	KB          *kb.Client
	HistoryRepo model.HistoryRepository
	// Cache is optional; nil disables response caching.
	Cache   cache.Cache
	Metrics *metrics.Metrics
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Guardrail         *nodes.Guardrail
	Planner           *nodes.Planner
	Dispatcher        nodes.TaskDispatcher
	Summarizer        *nodes.Summarizer
	AnswerValidator   *nodes.AnswerValidator
	History           *conversations.HistoryManager
	OutOfScopeMessage string
}

// GraphBuilder handles the construction of the question answering graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *model.Answer]
}

// BuildRunner creates the Gemini chat models and composes the runner.
func BuildRunner(ctx context.Context, cfg Config) (Runner, error) {
	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Guardrail: cfg.GuardrailModel.Settings(),
		Planner:   cfg.PlannerModel.Settings(),
		Cypher:    cfg.CypherModel.Settings(),
		Summary:   cfg.SummaryModel.Settings(),
	})
	if err != nil {
		return nil, err
	}
	return NewRunner(ctx, cfg, cms)
}

// NewRunner composes the graph from already constructed chat models.
func NewRunner(ctx context.Context, cfg Config, cms *nodes.ChatModels) (Runner, error) {
	gc, err := Assemble(cfg, cms)
	if err != nil {
		return nil, err
	}
	runnable, err := BuildGraph(ctx, gc)
	if err != nil {
		return nil, err
	}

	c := cfg.Cache
	if c == nil {
		c = cache.Noop{}
	}
	logx.Debug().Msg("Question answering graph built successfully")
	return &graphRunner{runnable: runnable, cache: c, metrics: cfg.Metrics}, nil
}

// Assemble builds the tool registry, router, dispatcher and graph steps.
func Assemble(cfg Config, cms *nodes.ChatModels) (*GraphConfig, error) {
	if cms == nil {
		return nil, errx.NewKind(errx.KindConfiguration, errors.New("chat models are nil"), "assemble graph")
	}
	if cfg.Schema == nil {
		return nil, errx.NewKind(errx.KindConfiguration, errors.New("schema is nil"), "assemble graph")
	}
	if cfg.Database == nil {
		return nil, errx.NewKind(errx.KindConfiguration, errors.New("database is nil"), "assemble graph")
	}

	reg, err := buildRegistry(cfg, cms)
	if err != nil {
		return nil, err
	}
	var catalogText string
	if cfg.Catalog != nil && cfg.Router.EnablePredefined {
		catalogText = cfg.Catalog.Describe()
	}
	rt, err := router.New(reg, cms.CypherTools, cms.Cypher.Name, catalogText)
	if err != nil {
		return nil, err
	}

	schemaText := cfg.Schema.Format()
	return &GraphConfig{
		Guardrail:         nodes.NewGuardrail(cms.Guardrail, cfg.Scope.Description, schemaText),
		Planner:           nodes.NewPlanner(cms.Planner),
		Dispatcher:        router.NewDispatcher(rt, cfg.Router, cfg.Metrics),
		Summarizer:        nodes.NewSummarizer(cms.Summary, cfg.Scope.NoDataMessage),
		AnswerValidator:   nodes.NewAnswerValidator(cms.Summary, schemaText),
		History:           conversations.NewHistoryManager(cfg.HistoryRepo, cfg.History),
		OutOfScopeMessage: cfg.Scope.OutOfScopeMessage,
	}, nil
}

func buildRegistry(cfg Config, cms *nodes.ChatModels) (*router.Registry, error) {
	reg := router.NewRegistry()
	machine := text2cypher.NewPipeline(cms.Cypher, cfg.Schema, cfg.Examples, cfg.Database, text2cypher.Options{
		Pipeline:      cfg.Pipeline,
		LLMValidation: cfg.Cypher.LLMValidation,
		ExamplesK:     cfg.Cypher.ExamplesK,
	})
	if err := reg.Register(router.CypherQueryTool(machine, cfg.Metrics)); err != nil {
		return nil, err
	}
	if cfg.Router.DefaultToCypher {
		if err := reg.SetDefault(model.ToolCypherQuery); err != nil {
			return nil, err
		}
	}
	if cfg.Router.EnablePredefined && cfg.Catalog != nil && cfg.Catalog.Len() > 0 {
		if err := reg.Register(router.PredefinedCypherTool(cfg.Catalog, cfg.Database)); err != nil {
			return nil, err
		}
	}
	if cfg.KB.Enabled() {
		if err := reg.Register(router.KBSearchTool(cfg.KB)); err != nil {
			return nil, err
		}
	}
	logx.Debug().Strs("tools", reg.Names()).Msg("Tool registry ready")
	return reg, nil
}

// BuildGraph constructs and returns the compiled question answering graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *model.Answer], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Guardrail == nil || config.Planner == nil || config.Summarizer == nil || config.AnswerValidator == nil {
		return nil, fmt.Errorf("graph steps are not properly initialized")
	}
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("task dispatcher is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *model.Answer](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	steps := []struct {
		name string
		node *compose.Lambda
		opts []compose.GraphAddNodeOpt
	}{
		{nodes.NodeGuardrails, nodes.NewGuardrailsNode(b.config.Guardrail), []compose.GraphAddNodeOpt{
			compose.WithStatePreHandler(nodes.NewGuardrailsPreHandler()),
		}},
		{nodes.NodeOutOfScope, nodes.NewOutOfScopeNode(b.config.OutOfScopeMessage), nil},
		{nodes.NodePlanner, nodes.NewPlannerNode(b.config.Planner, b.config.History), []compose.GraphAddNodeOpt{
			compose.WithStatePostHandler(nodes.NewPlannerPostHandler()),
		}},
		{nodes.NodeDispatch, nodes.NewDispatchNode(b.config.Dispatcher), []compose.GraphAddNodeOpt{
			compose.WithStatePostHandler(nodes.NewDispatchPostHandler()),
		}},
		{nodes.NodeSummarize, nodes.NewSummarizeNode(b.config.Summarizer), []compose.GraphAddNodeOpt{
			compose.WithStatePostHandler(nodes.NewSummarizePostHandler()),
		}},
		{nodes.NodeValidateAnswer, nodes.NewValidateAnswerNode(b.config.AnswerValidator), nil},
		{nodes.NodeFinalAnswer, nodes.NewFinalAnswerNode(b.config.History), nil},
	}

	for _, s := range steps {
		if err := b.graph.AddLambdaNode(s.name, s.node, s.opts...); err != nil {
			logx.Error().Err(err).Str("node", s.name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.name, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeGuardrails},
		{nodes.NodeOutOfScope, compose.END},
		{nodes.NodePlanner, nodes.NodeDispatch},
		{nodes.NodeDispatch, nodes.NodeSummarize},
		{nodes.NodeSummarize, nodes.NodeValidateAnswer},
		{nodes.NodeFinalAnswer, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	scopeBranch := compose.NewGraphBranch(
		nodes.NewGuardrailsCondition(),
		map[string]bool{
			nodes.NodeOutOfScope: true,
			nodes.NodePlanner:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeGuardrails, scopeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding guardrails branch")
		return fmt.Errorf("error adding guardrails branch: %w", err)
	}

	followUpBranch := compose.NewGraphBranch(
		nodes.NewValidateAnswerCondition(),
		map[string]bool{
			nodes.NodeDispatch:    true,
			nodes.NodeFinalAnswer: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeValidateAnswer, followUpBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding follow-up branch")
		return fmt.Errorf("error adding follow-up branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.Answer], error) {
	// one pass is six nodes; the follow-up loop adds three more
	const maxSteps = 20

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *model.Answer]
	cache    cache.Cache
	metrics  *metrics.Metrics
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.Answer, error) {
	start := time.Now()
	in.Question = strings.TrimSpace(in.Question)
	if in.Question == "" {
		return nil, errx.New(errors.New("question is empty"), http.StatusBadRequest, "question is required")
	}
	if in.RequestID == "" {
		in.RequestID = uuid.NewString()
	}

	if ans, ok := r.fromCache(ctx, in); ok {
		r.metrics.ObserveRequest(metrics.OutcomeCached, time.Since(start).Seconds())
		return ans, nil
	}

	meter := &model.CostMeter{}
	ctx = model.WithCostMeter(ctx, meter)
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		r.metrics.ObserveRequest(metrics.OutcomeFailed, time.Since(start).Seconds())
		logx.Error().Err(err).Str("request_id", in.RequestID).Msg("Graph invocation failed")
		return nil, err
	}
	if out == nil {
		r.metrics.ObserveRequest(metrics.OutcomeFailed, time.Since(start).Seconds())
		return nil, errx.New(errors.New("graph returned no answer"), http.StatusInternalServerError, errx.SystemErrorMessage)
	}
	cost, calls := meter.Total()
	out.CostUSD = cost

	outcome := metrics.OutcomeAnswered
	if out.OutOfScope {
		outcome = metrics.OutcomeOutOfScope
	} else if hasUsable(out.Results) {
		if err := r.cache.Update(ctx, in.Question, out.Answer); err != nil {
			logx.Warn().Err(err).Str("request_id", in.RequestID).Msg("Cache update failed")
		}
	}
	r.metrics.ObserveRequest(outcome, time.Since(start).Seconds())

	logx.Info().
		Str("request_id", in.RequestID).
		Str("outcome", outcome).
		Int("results", len(out.Results)).
		Int("model_calls", calls).
		Float64("cost_usd", cost).
		Dur("elapsed", time.Since(start)).
		Msg("Question answered")
	return out, nil
}

// fromCache substitutes the whole graph on a hit. Cache failures count as misses.
func (r *graphRunner) fromCache(ctx context.Context, in model.QueryInput) (*model.Answer, bool) {
	resp, ok, err := r.cache.Lookup(ctx, in.Question)
	if err != nil {
		logx.Warn().Err(err).Str("request_id", in.RequestID).Msg("Cache lookup failed")
		return nil, false
	}
	r.metrics.ObserveCache(ok)
	if !ok {
		return nil, false
	}
	logx.Debug().Str("request_id", in.RequestID).Msg("Answer served from cache")
	return &model.Answer{
		RequestID: in.RequestID,
		Question:  in.Question,
		Answer:    resp,
		Steps:     []string{StepCache},
		Cached:    true,
	}, true
}

func hasUsable(results []model.TaskResult) bool {
	for _, r := range results {
		if r.Usable() {
			return true
		}
	}
	return false
}
