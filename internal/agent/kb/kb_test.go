package kb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/query", r.URL.Path)

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "return policy", req.Query)
		assert.Equal(t, "global", req.QueryType)

		_ = json.NewEncoder(w).Encode(Response{Query: req.Query, Response: "30 days", QueryType: req.QueryType, Context: "policy.md"})
	}))
	defer srv.Close()

	c := New(model.KBConfig{URL: srv.URL + "/", Timeout: time.Second, QueryType: "global"})
	resp, err := c.Search(context.Background(), "return policy")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"answer": "30 days", "context": "policy.md"}}, resp.Records())
}

func TestSearchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(model.KBConfig{URL: srv.URL, Timeout: time.Second}).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, errx.KindExecution, errx.KindOf(err))
	assert.Contains(t, err.Error(), "index not loaded")

	c := New(model.KBConfig{})
	assert.False(t, c.Enabled())
	_, err = c.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestEmptyResponseHasNoRecords(t *testing.T) {
	assert.Nil(t, (&Response{Response: "  "}).Records())
}
