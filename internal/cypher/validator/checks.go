package validator

import (
	"fmt"
	"strconv"
	"strings"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/extractor"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
)

// checkReferences flags labels and relationship types missing from the schema.
func checkReferences(s *schema.Schema, ex extractor.Extraction) []Issue {
	var issues []Issue
	for _, l := range ex.Labels {
		if !s.HasLabel(l) {
			issues = append(issues, schemaIssue("Label %s does not exist in the graph schema.", l))
		}
	}
	for _, t := range ex.RelTypes {
		if !s.HasRelType(t) {
			issues = append(issues, schemaIssue("Relationship type %s does not exist in the graph schema.", t))
		}
	}
	return issues
}

// lookup returns the property declared on a label (node) or type (relationship).
func lookup(s *schema.Schema, kind extractor.PatternKind, label, name string) (schema.Property, bool) {
	if kind == extractor.KindRelationship {
		return s.RelProperty(label, name)
	}
	return s.NodeProperty(label, name)
}

func known(s *schema.Schema, kind extractor.PatternKind, label string) bool {
	if kind == extractor.KindRelationship {
		return s.HasRelType(label)
	}
	return s.HasLabel(label)
}

// resolveType sets PropertyType when every label that declares the property
// agrees on one type. Mixed or missing types leave it empty.
func resolveType(s *schema.Schema, task *extractor.ValidationTask) {
	var found schema.PropertyType
	for _, l := range task.LabelsOrTypes.Labels() {
		p, ok := lookup(s, task.Kind, l, task.PropertyName)
		if !ok {
			continue
		}
		if found != "" && found != p.Type {
			task.PropertyType = ""
			return
		}
		found = p.Type
	}
	task.PropertyType = found
}

// checkFilter runs the existence, enum and range checks for one filter.
// A filter passes when any OR term passes; a term passes when all its labels do.
func checkFilter(s *schema.Schema, task extractor.ValidationTask) []Issue {
	for _, l := range task.LabelsOrTypes.Labels() {
		if !known(s, task.Kind, l) {
			// already reported by checkReferences
			return nil
		}
	}

	subject := describeLabels(task)

	if !anyTerm(task, func(label string) bool {
		_, ok := lookup(s, task.Kind, label, task.PropertyName)
		return ok
	}) {
		return []Issue{schemaIssue("%s does not have the property %s in the graph database.", subject, task.PropertyName)}
	}

	// best-effort from here on: unresolved types skip value checks
	switch {
	case task.PropertyType == schema.TypeString:
		if !(task.Operator == "=" && task.Quoted) && task.Operator != "IN" {
			return nil
		}
		for _, value := range filterValues(task) {
			ok := anyTerm(task, func(label string) bool {
				p, found := lookup(s, task.Kind, label, task.PropertyName)
				return !found || !p.IsEnum() || p.HasValue(value)
			})
			if !ok {
				return []Issue{schemaIssue("%s with property %s = %s not found in graph database.", subject, task.PropertyName, value)}
			}
		}
	case task.PropertyType.IsNumeric():
		for _, raw := range filterValues(task) {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				continue
			}
			var bad schema.Property
			ok := anyTerm(task, func(label string) bool {
				p, found := lookup(s, task.Kind, label, task.PropertyName)
				if !found || satisfiable(p, task.Operator, v) {
					return true
				}
				bad = p
				return false
			})
			if !ok {
				return []Issue{schemaIssue("%s has property %s %s %s which is out of range %s to %s in graph database.",
					subject, task.PropertyName, task.Operator, raw, bound(bad.Min), bound(bad.Max))}
			}
		}
	}
	return nil
}

// satisfiable reports whether the comparison can hold for some value in [Min, Max].
func satisfiable(p schema.Property, op string, v float64) bool {
	switch op {
	case "=", "IN":
		return p.InRange(v)
	case ">", ">=":
		return p.Max == nil || v < *p.Max || (op == ">=" && v == *p.Max)
	case "<", "<=":
		return p.Min == nil || v > *p.Min || (op == "<=" && v == *p.Min)
	default:
		return true
	}
}

func filterValues(task extractor.ValidationTask) []string {
	if task.Operator == "IN" {
		return extractor.ListItems(task.PropertyValue)
	}
	return []string{task.PropertyValue}
}

func anyTerm(task extractor.ValidationTask, ok func(label string) bool) bool {
	for _, term := range task.LabelsOrTypes.Terms {
		all := true
		for _, l := range term {
			if !ok(l) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func describeLabels(task extractor.ValidationTask) string {
	terms := make([]string, len(task.LabelsOrTypes.Terms))
	for i, t := range task.LabelsOrTypes.Terms {
		terms[i] = strings.Join(t, " and ")
	}
	noun := "Node"
	if task.Kind == extractor.KindRelationship {
		noun = "Relationship"
	}
	return noun + " " + strings.Join(terms, " or ")
}

func bound(v *float64) string {
	if v == nil {
		return "unbounded"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func schemaIssue(format string, args ...any) Issue {
	return Issue{Kind: errx.KindSchema, Message: fmt.Sprintf(format, args...)}
}
