package graphdb

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// normalize flattens driver graph types into maps so rows serialize cleanly
// into prompts and history records.
func normalize(v any) any {
	switch t := v.(type) {
	case dbtype.Node:
		out := make(map[string]any, len(t.Props)+1)
		for k, p := range t.Props {
			out[k] = normalize(p)
		}
		out["labels"] = t.Labels
		return out
	case dbtype.Relationship:
		out := make(map[string]any, len(t.Props)+1)
		for k, p := range t.Props {
			out[k] = normalize(p)
		}
		out["type"] = t.Type
		return out
	case dbtype.Path:
		nodes := make([]any, len(t.Nodes))
		for i, n := range t.Nodes {
			nodes[i] = normalize(n)
		}
		rels := make([]any, len(t.Relationships))
		for i, r := range t.Relationships {
			rels[i] = normalize(r)
		}
		return map[string]any{"nodes": nodes, "relationships": rels}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}
