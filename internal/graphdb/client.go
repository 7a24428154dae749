// Package graphdb runs read-only Cypher against Neo4j: execution, EXPLAIN
// dry-runs, literal value lookups and schema introspection.
package graphdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

type readFunc func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)

// Client is safe for concurrent use. Each call acquires its own session from
// the driver pool.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	read     readFunc

	enumThreshold int
	sampleLimit   int
}

type Option func(*Client)

// WithEnumThreshold sets the largest distinct count for which introspection
// records the observed string values. Defaults to 10.
func WithEnumThreshold(n int) Option {
	return func(c *Client) { c.enumThreshold = n }
}

// WithSampleLimit bounds the nodes scanned per property during introspection.
func WithSampleLimit(n int) Option {
	return func(c *Client) { c.sampleLimit = n }
}

func New(driver neo4j.DriverWithContext, database string, opts ...Option) *Client {
	c := &Client{
		driver:        driver,
		database:      database,
		enumThreshold: 10,
		sampleLimit:   10000,
	}
	c.read = c.readTx
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

func (c *Client) readTx(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if c.driver == nil {
		return nil, errx.WrapNeo4j(fmt.Errorf("driver not connected"))
	}
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

// Execute runs a statement in a read transaction. Rows are returned as maps
// keyed by column with graph values flattened to plain maps.
func (c *Client) Execute(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error) {
	start := time.Now()
	records, err := c.read(ctx, stmt, params)
	if err != nil {
		logx.Error().Err(err).Str("component", "graphdb").Str("cypher", stmt).Msg("Cypher execution failed")
		return nil, errx.WrapNeo4j(err)
	}

	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(rec.Keys))
		for i, k := range rec.Keys {
			row[k] = normalize(rec.Values[i])
		}
		rows = append(rows, row)
	}
	logx.Debug().
		Str("component", "graphdb").
		Int("rows", len(rows)).
		Dur("took", time.Since(start)).
		Msg("Cypher executed")
	return rows, nil
}

// Explain dry-runs a statement. Statement errors reported by the server are
// returned as plain errors carrying the server message; every other failure
// is tagged errx.KindExecution.
func (c *Client) Explain(ctx context.Context, stmt string) error {
	_, err := c.read(ctx, "EXPLAIN "+stmt, nil)
	if err == nil {
		return nil
	}
	if msg, ok := statementError(err); ok {
		return errors.New(msg)
	}
	return errx.WrapNeo4j(err)
}

// ValueExists reports whether some node of label has property equal to value,
// ignoring case.
func (c *Client) ValueExists(ctx context.Context, label, property, value string) (bool, error) {
	cypher := fmt.Sprintf("MATCH (n:%s) WHERE toLower(toString(n.%s)) = toLower($value) RETURN 'yes' LIMIT 1",
		quoteIdent(label), quoteIdent(property))
	records, err := c.read(ctx, cypher, map[string]any{"value": value})
	if err != nil {
		return false, errx.WrapNeo4j(err)
	}
	return len(records) > 0, nil
}

// statementError extracts the server message of a Neo.ClientError.Statement.* failure.
func statementError(err error) (string, bool) {
	var nerr *neo4j.Neo4jError
	if !errors.As(err, &nerr) {
		return "", false
	}
	if !strings.HasPrefix(nerr.Code, "Neo.ClientError.Statement.") {
		return "", false
	}
	return nerr.Msg, true
}

// quoteIdent backtick-quotes a label or property key.
func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
