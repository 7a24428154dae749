package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
)

func TestDecodeJSON(t *testing.T) {
	tests := map[string]string{
		"bare":   `{"decision": "end"}`,
		"fenced": "```json\n{\"decision\": \"end\"}\n```",
		"prose":  "Sure! Here is my answer: {\"decision\": \"end\"} Hope it helps.",
		"braces": `{"decision": "end", "note": "a } inside"}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			var out GuardrailsOutput
			require.NoError(t, DecodeJSON(in, &out))
			assert.Equal(t, "end", out.Decision)
		})
	}
}

func TestDecodeJSONPlanner(t *testing.T) {
	var out PlannerOutput
	err := DecodeJSON(`{"tasks": [{"question": "a", "parent_task": "p", "requires_visualization": true}, {"question": "b"}]}`, &out)
	require.NoError(t, err)
	require.Len(t, out.Tasks, 2)
	assert.True(t, out.Tasks[0].RequiresVisualization)
	assert.Equal(t, "b", out.Tasks[1].Question)
}

func TestDecodeJSONFailures(t *testing.T) {
	var out FinalAnswerOutput
	err := DecodeJSON("no json here", &out)
	require.ErrorIs(t, err, ErrNoJSON)
	assert.Equal(t, errx.KindModel, errx.KindOf(err))

	err = DecodeJSON(`{"valid": "maybe"}`, &out)
	assert.Error(t, err)

	err = DecodeJSON(`{"valid": true`, &out)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestCleanStatement(t *testing.T) {
	want := "MATCH (p:Product) WHERE p.UnitPrice > 20 RETURN p.ProductName"
	tests := map[string]string{
		"bare":          want,
		"fenced":        "```cypher\n" + want + "\n```",
		"fenced upper":  "```Cypher\n" + want + ";\n```",
		"label":         "cypher: " + want,
		"cypher prefix": "Cypher query: " + want,
		"preamble":      "Here is the query:\n" + want,
		"trailing":      want + "\n\nThis query returns the names of products.",
		"semicolon":     want + ";",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, CleanStatement(in))
		})
	}
}

func TestCleanStatementKeepsMultiline(t *testing.T) {
	in := "```\nMATCH (c:Customer)-[:PLACED]->(o:Order)\nWITH c, count(o) AS n\nRETURN c.CompanyName, n\n```"
	assert.Equal(t, "MATCH (c:Customer)-[:PLACED]->(o:Order)\nWITH c, count(o) AS n\nRETURN c.CompanyName, n", CleanStatement(in))
}

func TestCleanStatementKeepsWriteClauses(t *testing.T) {
	assert.Equal(t, "MATCH (n) DETACH DELETE n", CleanStatement("MATCH (n) DETACH DELETE n"))
}

func TestCleanStatementSpansBlankLines(t *testing.T) {
	in := "MATCH (p:Product)\n\nWHERE p.UnitPrice > 20\n\n\nRETURN p.ProductName\n\nThe query lists expensive products."
	assert.Equal(t, "MATCH (p:Product)\nWHERE p.UnitPrice > 20\nRETURN p.ProductName", CleanStatement(in))

	in = "```cypher\nMATCH (c:Customer)-[:PLACED]->(o:Order)\n\nRETURN c.CompanyName, count(o) AS n\n```\n\nMATCH is used here."
	assert.Equal(t, "MATCH (c:Customer)-[:PLACED]->(o:Order)\nRETURN c.CompanyName, count(o) AS n", CleanStatement(in))
}
