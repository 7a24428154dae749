package graphdb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

const (
	nodeTypePropertiesQuery = "CALL db.schema.nodeTypeProperties() YIELD nodeLabels, propertyName, propertyTypes " +
		"RETURN nodeLabels, propertyName, propertyTypes"
	relTypePropertiesQuery = "CALL db.schema.relTypeProperties() YIELD relType, propertyName, propertyTypes " +
		"RETURN relType, propertyName, propertyTypes"
	visualizationQuery = "CALL db.schema.visualization() YIELD nodes, relationships RETURN nodes, relationships"
)

// Introspect builds a schema snapshot from the database catalog procedures and
// samples value statistics for every property.
func (c *Client) Introspect(ctx context.Context) (*schema.Schema, error) {
	nodeRecs, err := c.read(ctx, nodeTypePropertiesQuery, nil)
	if err != nil {
		return nil, errx.WrapNeo4j(fmt.Errorf("node type properties: %w", err))
	}
	relRecs, err := c.read(ctx, relTypePropertiesQuery, nil)
	if err != nil {
		return nil, errx.WrapNeo4j(fmt.Errorf("rel type properties: %w", err))
	}
	vizRecs, err := c.read(ctx, visualizationQuery, nil)
	if err != nil {
		return nil, errx.WrapNeo4j(fmt.Errorf("schema visualization: %w", err))
	}

	nodeProps := collectProperties(nodeRecs, "nodeLabels")
	relProps := collectProperties(relRecs, "relType")
	rels := collectRelationships(vizRecs)

	for label, props := range nodeProps {
		match := fmt.Sprintf("MATCH (n:%s)", quoteIdent(label))
		for i := range props {
			c.sample(ctx, match, "n", &props[i])
		}
	}
	for relType, props := range relProps {
		match := fmt.Sprintf("MATCH ()-[n:%s]->()", quoteIdent(relType))
		for i := range props {
			c.sample(ctx, match, "n", &props[i])
		}
	}

	s := schema.New(nodeProps, relProps, rels)
	logx.Info().
		Str("component", "graphdb").
		Int("labels", len(s.Labels())).
		Int("rel_types", len(s.RelTypes())).
		Int("relationships", len(rels)).
		Msg("Schema introspected")
	return s, nil
}

// sample fills value statistics for one property. Failures are logged and the
// property keeps its bare type.
func (c *Client) sample(ctx context.Context, match, v string, p *schema.Property) {
	if p.Type != schema.TypeString && !p.Type.IsNumeric() {
		return
	}
	prop := v + "." + quoteIdent(p.Name)
	cypher := fmt.Sprintf("%s WHERE %s IS NOT NULL WITH %s AS v LIMIT $limit "+
		"RETURN count(DISTINCT v) AS distinct, collect(DISTINCT v)[..$k] AS values, min(v) AS min, max(v) AS max",
		match, prop, prop)
	records, err := c.read(ctx, cypher, map[string]any{"limit": c.sampleLimit, "k": c.enumThreshold + 1})
	if err != nil || len(records) == 0 {
		if err != nil {
			logx.Warn().Err(err).Str("component", "graphdb").Str("property", p.Name).Msg("Property sampling failed")
		}
		return
	}
	applyStats(p, records[0].AsMap(), c.enumThreshold)
}

func applyStats(p *schema.Property, row map[string]any, threshold int) {
	switch {
	case p.Type == schema.TypeString:
		distinct, ok := toInt(row["distinct"])
		if !ok || distinct == 0 || distinct > threshold {
			return
		}
		values, _ := row["values"].([]any)
		p.Values = p.Values[:0]
		for _, v := range values {
			if s, ok := v.(string); ok {
				p.Values = append(p.Values, s)
			}
		}
		p.DistinctCount = &distinct
	case p.Type.IsNumeric():
		if f, ok := toFloat(row["min"]); ok {
			p.Min = &f
		}
		if f, ok := toFloat(row["max"]); ok {
			p.Max = &f
		}
	}
}

// collectProperties groups catalog rows by label or type. Labels without
// properties are kept so the label itself is known.
func collectProperties(records []*neo4j.Record, ownerKey string) map[string][]schema.Property {
	out := map[string][]schema.Property{}
	for _, rec := range records {
		row := rec.AsMap()
		var owners []string
		switch v := row[ownerKey].(type) {
		case []any:
			for _, l := range v {
				if s, ok := l.(string); ok {
					owners = append(owners, s)
				}
			}
		case string:
			owners = append(owners, cleanTypeName(v))
		}

		name, _ := row["propertyName"].(string)
		types, _ := row["propertyTypes"].([]any)
		for _, owner := range owners {
			if _, ok := out[owner]; !ok {
				out[owner] = []schema.Property{}
			}
			if name == "" {
				continue
			}
			out[owner] = append(out[owner], schema.Property{Name: name, Type: propertyType(types)})
		}
	}
	for owner := range out {
		props := out[owner]
		sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	}
	return out
}

func collectRelationships(records []*neo4j.Record) []schema.Relationship {
	seen := map[schema.Relationship]struct{}{}
	var out []schema.Relationship
	for _, rec := range records {
		row := rec.AsMap()
		labels := map[string]string{}
		nodes, _ := row["nodes"].([]any)
		for _, n := range nodes {
			node, ok := n.(dbtype.Node)
			if !ok || len(node.Labels) == 0 {
				continue
			}
			labels[node.ElementId] = node.Labels[0]
		}
		rels, _ := row["relationships"].([]any)
		for _, r := range rels {
			rel, ok := r.(dbtype.Relationship)
			if !ok {
				continue
			}
			triple := schema.Relationship{
				Start: labels[rel.StartElementId],
				Type:  rel.Type,
				End:   labels[rel.EndElementId],
			}
			if triple.Start == "" || triple.End == "" {
				continue
			}
			if _, dup := seen[triple]; dup {
				continue
			}
			seen[triple] = struct{}{}
			out = append(out, triple)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
	return out
}

// propertyType maps catalog type names (String, Long, Double, StringArray, ...)
// to schema types. Mixed types fall back to the first one reported.
func propertyType(types []any) schema.PropertyType {
	if len(types) == 0 {
		return schema.TypeString
	}
	t, _ := types[0].(string)
	switch {
	case strings.HasSuffix(t, "Array"):
		return schema.TypeList
	case t == "Long" || t == "Integer":
		return schema.TypeInteger
	case t == "Double" || t == "Float":
		return schema.TypeFloat
	case t == "Boolean":
		return schema.TypeBoolean
	case strings.Contains(t, "Date") || strings.Contains(t, "Time"):
		return schema.TypeDateTime
	default:
		return schema.TypeString
	}
}

// cleanTypeName turns ":`CONTAINS`" into "CONTAINS".
func cleanTypeName(s string) string {
	return strings.Trim(strings.TrimPrefix(s, ":"), "`")
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
