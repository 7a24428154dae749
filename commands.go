package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/cache"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/kb"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/repo"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/catalog"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/examples"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
	"github.com/cypherqa-core-poc-v1/server/internal/graphdb"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

func newAskCommand() *cobra.Command {
	var (
		conversationID string
		asJSON         bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question; without arguments, one question is read per stdin line",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.APIKey == "" {
				return errors.New("GEMINI_API_KEY is required")
			}

			m, err := serveMetrics(cfg.MetricsAddr)
			if err != nil {
				return fmt.Errorf("failed to register metrics: %w", err)
			}

			rdb, err := cfg.Redis.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialise Redis client: %w", err)
			}
			defer rdb.Close()

			db, err := openGraph(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			sch, err := loadSchema(ctx, cfg.Text2Cypher, db)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg.Text2Cypher)
			if err != nil {
				return err
			}
			lib, err := loadExamples(cfg.Text2Cypher)
			if err != nil {
				return err
			}

			var c cache.Cache = cache.Noop{}
			if cfg.Cache.Enabled {
				c = cache.NewRedisCache(rdb, cfg.Cache)
			}

			runner, err := graph.BuildRunner(ctx, graph.Config{
				APIKey:         cfg.APIKey,
				BaseURL:        cfg.BaseURL,
				GuardrailModel: cfg.Guardrail,
				PlannerModel:   cfg.Planner,
				CypherModel:    cfg.Cypher,
				SummaryModel:   cfg.Summary,
				Scope:          cfg.Scope,
				Cypher:         cfg.Text2Cypher,
				Router:         cfg.Router,
				Pipeline:       cfg.Pipeline,
				History:        cfg.History,
				Schema:         sch,
				Catalog:        cat,
				Examples:       lib,
				Database:       db,
				KB:             kb.New(cfg.KB),
				HistoryRepo:    repo.NewRedisHistoryRepository(rdb, cfg.History),
				Cache:          c,
				Metrics:        m,
			})
			if err != nil {
				return fmt.Errorf("failed to build graph: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return answer(ctx, out, runner, model.QueryInput{
					ConversationID: conversationID,
					Question:       strings.Join(args, " "),
				}, asJSON)
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				q := strings.TrimSpace(scanner.Text())
				if q == "" {
					continue
				}
				in := model.QueryInput{ConversationID: conversationID, Question: q}
				if err := answer(ctx, out, runner, in, asJSON); err != nil {
					logx.Error().Err(err).Str("question", q).Msg("Failed to answer question")
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation ID; enables history across questions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full answer with task results as JSON")
	return cmd
}

func answer(ctx context.Context, w io.Writer, runner graph.Runner, in model.QueryInput, asJSON bool) error {
	ans, err := runner.Invoke(ctx, in)
	if err != nil {
		return err
	}
	if !asJSON {
		_, err = fmt.Fprintln(w, ans.Answer)
		return err
	}
	raw, err := json.MarshalIndent(ans, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func newSchemaCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the graph schema as the models see it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var db *graphdb.Client
			if cfg.Text2Cypher.SchemaFile == "" {
				if db, err = openGraph(ctx, cfg); err != nil {
					return err
				}
				defer db.Close(ctx)
			}
			sch, err := loadSchema(ctx, cfg.Text2Cypher, db)
			if err != nil {
				return err
			}

			if !asJSON {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), sch.Format())
				return err
			}
			raw, err := json.MarshalIndent(sch, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the schema descriptor JSON instead of the prompt text")
	return cmd
}

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the named queries available to the router",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg.Text2Cypher)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cat.Describe())
			return err
		},
	}
}

func openGraph(ctx context.Context, cfg *AppConfig) (*graphdb.Client, error) {
	driver, err := cfg.Neo4j.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise Neo4j driver: %w", err)
	}
	logx.Info().Str("uri", cfg.Neo4j.URI).Msg("Connected to Neo4j")
	return graphdb.New(driver, cfg.Neo4j.Database), nil
}

// loadSchema reads the descriptor file when configured and introspects the database otherwise.
func loadSchema(ctx context.Context, cfg model.CypherConfig, db *graphdb.Client) (*schema.Schema, error) {
	if cfg.SchemaFile != "" {
		return schema.LoadFile(cfg.SchemaFile)
	}
	if db == nil {
		return nil, errors.New("no schema file and no database to introspect")
	}
	sch, err := db.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}
	return sch, nil
}

func loadCatalog(cfg model.CypherConfig) (*catalog.Catalog, error) {
	if cfg.CatalogFile != "" {
		return catalog.LoadFile(cfg.CatalogFile)
	}
	return catalog.Default()
}

func loadExamples(cfg model.CypherConfig) (*examples.Library, error) {
	if cfg.ExamplesFile != "" {
		return examples.LoadFile(cfg.ExamplesFile)
	}
	return examples.Default()
}
