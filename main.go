package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/metrics"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	"github.com/cypherqa-core-poc-v1/server/internal/core"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/pipeline"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
	pkgneo4j "github.com/cypherqa-core-poc-v1/server/pkg/neo4j"
	pkgredis "github.com/cypherqa-core-poc-v1/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// Infrastructure
	Redis pkgredis.Config
	Neo4j pkgneo4j.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Guardrail   model.GuardrailModelConfig
	Planner     model.PlannerModelConfig
	Cypher      model.CypherModelConfig
	Summary     model.SummaryModelConfig
	Pipeline    pipeline.Config
	Text2Cypher model.CypherConfig
	Router      model.RouterConfig
	Scope       model.ScopeConfig
	Cache       model.CacheConfig
	History     model.HistoryConfig
	KB          model.KBConfig
}

func loadConfig() (*AppConfig, error) {
	// Load .env file
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(cfg.AppEnv),
		Level:       cfg.LogLevel,
	})
	return &cfg, nil
}

// serveMetrics registers the collectors and exposes them when an address is configured.
func serveMetrics(addr string) (*metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	if addr == "" {
		return m, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	go func() {
		logx.Info().Str("addr", addr).Msg("Serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logx.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	return m, nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cypherqa",
		Short:         "Answer questions over a Neo4j graph with validated Cypher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAskCommand(), newSchemaCommand(), newCatalogCommand())
	return root
}

func main() {
	ctx := context.Background()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logx.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
