// Package kb queries the document knowledge base service over HTTP.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

const queryPath = "/api/query"

// maxBody bounds the response body read from the service.
const maxBody = 4 << 20

var ErrDisabled = errors.New("knowledge base is not configured")

type request struct {
	Query     string `json:"query"`
	QueryType string `json:"query_type"`
}

// Response is the knowledge base answer for one query.
type Response struct {
	Query     string `json:"query"`
	Response  string `json:"response"`
	QueryType string `json:"query_type"`
	Context   string `json:"context"`
}

// Records renders the response as task records.
func (r *Response) Records() []map[string]any {
	if strings.TrimSpace(r.Response) == "" {
		return nil
	}
	rec := map[string]any{"answer": r.Response}
	if r.Context != "" {
		rec["context"] = r.Context
	}
	return []map[string]any{rec}
}

type Client struct {
	baseURL   string
	queryType string
	http      *http.Client
}

// New returns a client for cfg. An empty URL yields a client whose Search
// always fails with ErrDisabled.
func New(cfg model.KBConfig) *Client {
	qt := cfg.QueryType
	if qt == "" {
		qt = "local"
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		queryType: qt,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	if !c.Enabled() {
		return nil, errx.NewKind(errx.KindConfiguration, ErrDisabled, "kb search")
	}
	body, err := json.Marshal(request{Query: query, QueryType: c.queryType})
	if err != nil {
		return nil, fmt.Errorf("encode kb request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build kb request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errx.NewKind(errx.KindExecution, err, "kb search")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errx.NewKind(errx.KindExecution, err, "read kb response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errx.NewKind(errx.KindExecution,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), "kb search")
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errx.NewKind(errx.KindExecution, err, "decode kb response")
	}
	logx.Debug().
		Str("component", "kb").
		Str("query_type", c.queryType).
		Dur("took", time.Since(start)).
		Msg("Knowledge base answered")
	return &out, nil
}
