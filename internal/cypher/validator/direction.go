package validator

import (
	"sort"
	"strings"

	"github.com/cypherqa-core-poc-v1/server/internal/cypher/extractor"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
)

type edit struct {
	from, to int
	text     string
}

// CorrectDirections rewrites relationship arrows whose written direction is not
// declared in the schema while the reverse direction is. Patterns it cannot
// resolve are left untouched.
func CorrectDirections(s *schema.Schema, stmt string) string {
	patterns := extractor.Scan(stmt)
	if len(patterns) == 0 {
		return stmt
	}

	bound := map[string][]string{}
	for _, p := range patterns {
		if p.Kind != extractor.KindNode || p.Variable == "" || p.Labels.Empty() {
			continue
		}
		if _, ok := bound[p.Variable]; !ok {
			bound[p.Variable] = p.Labels.Labels()
		}
	}
	labelsOf := func(p *extractor.Pattern) []string {
		if p == nil {
			return nil
		}
		if !p.Labels.Empty() {
			return p.Labels.Labels()
		}
		return bound[p.Variable]
	}

	var edits []edit
	for i, p := range patterns {
		if p.Kind != extractor.KindRelationship {
			continue
		}
		if p.Arrow != extractor.ArrowLeft && p.Arrow != extractor.ArrowRight {
			continue
		}
		types := p.Labels.Labels()
		if len(types) != 1 || len(s.RelationshipsOfType(types[0])) == 0 {
			continue
		}
		left := adjacentNode(stmt, patterns, i, -1)
		right := adjacentNode(stmt, patterns, i, +1)
		from, to := labelsOf(left), labelsOf(right)
		if p.Arrow == extractor.ArrowLeft {
			from, to = to, from
		}
		if declared(s, from, types[0], to) || !declared(s, to, types[0], from) {
			continue
		}
		if p.Arrow == extractor.ArrowRight {
			edits = append(edits, edit{p.LeftFrom, p.LeftTo, "<-"}, edit{p.RightFrom, p.RightTo, "-"})
		} else {
			edits = append(edits, edit{p.LeftFrom, p.LeftTo, "-"}, edit{p.RightFrom, p.RightTo, "->"})
		}
	}
	if len(edits) == 0 {
		return stmt
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].from > edits[j].from })
	out := stmt
	for _, e := range edits {
		out = out[:e.from] + e.text + out[e.to:]
	}
	return out
}

// adjacentNode returns the node pattern directly before (dir -1) or after (dir +1)
// relationship i, separated only by whitespace.
func adjacentNode(stmt string, patterns []extractor.Pattern, i, dir int) *extractor.Pattern {
	rel := patterns[i]
	for j := i + dir; j >= 0 && j < len(patterns); j += dir {
		n := patterns[j]
		if n.Kind != extractor.KindNode {
			continue
		}
		if dir < 0 {
			if n.End <= rel.LeftFrom && strings.TrimSpace(stmt[n.End:rel.LeftFrom]) == "" {
				return &patterns[j]
			}
		} else if n.Start >= rel.RightTo && strings.TrimSpace(stmt[rel.RightTo:n.Start]) == "" {
			return &patterns[j]
		}
		return nil
	}
	return nil
}

// declared reports whether some triple of relType connects the given label sets.
// An unknown side (nil) matches any label.
func declared(s *schema.Schema, from []string, relType string, to []string) bool {
	for _, r := range s.RelationshipsOfType(relType) {
		if matchesAny(from, r.Start) && matchesAny(to, r.End) {
			return true
		}
	}
	return false
}

func matchesAny(labels []string, label string) bool {
	if len(labels) == 0 {
		return true
	}
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
