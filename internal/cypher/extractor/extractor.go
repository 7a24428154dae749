// Package extractor pulls label/type, property, operator and value filters out of
// a Cypher statement without a full grammar. It recognises literal property maps
// inside node and relationship patterns, "var:Label" predicates and
// "var.prop OP value" comparisons in either operand order.
package extractor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
)

// ValidationTask is one filter to be checked against the schema.
type ValidationTask struct {
	LabelsOrTypes LabelExpr
	Kind          PatternKind
	Variable      string
	PropertyName  string
	Operator      string
	PropertyValue string
	// Quoted is set for string literals.
	Quoted bool
	// PropertyType is resolved by the validator; empty when unknown or ambiguous.
	PropertyType schema.PropertyType

	pos int
}

// Extraction is everything the validator needs from one statement.
type Extraction struct {
	Patterns []Pattern
	Filters  []ValidationTask
	// Labels and RelTypes list every positive label/type referenced, in order.
	Labels   []string
	RelTypes []string
}

const comparisonOps = `=|<>|!=|<=|>=|<|>|(?i:contains|starts\s+with|ends\s+with|in)`

// mirroredOps are the operators that keep their meaning with swapped operands.
const mirroredOps = `=|<>|!=|<=|>=|<|>`

var mirror = map[string]string{"<": ">", ">": "<", "<=": ">=", ">=": "<="}

var labelPredicateRe = regexp.MustCompile("(?:^|[^\\p{L}\\p{N}_.$`])([\\p{L}_][\\p{L}\\p{N}_]*)\\s*:\\s*" +
	"(!?\\s*`?[\\p{L}_][\\p{L}\\p{N}_]*`?(?:\\s*[&|:]\\s*!?\\s*`?[\\p{L}_][\\p{L}\\p{N}_]*`?)*)")

const valueLiteral = `'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?|\[[^\]]*\]|(?i:true|false)`

// Extract parses a statement into patterns, referenced labels/types and filters.
func Extract(stmt string) Extraction {
	patterns := Scan(stmt)
	ex := Extraction{Patterns: patterns}

	labelSeen := map[string]struct{}{}
	typeSeen := map[string]struct{}{}
	// first labelled occurrence of each variable wins
	bindings := map[string]Pattern{}

	for _, p := range patterns {
		for _, l := range p.Labels.Labels() {
			if p.Kind == KindNode {
				if _, ok := labelSeen[l]; !ok {
					labelSeen[l] = struct{}{}
					ex.Labels = append(ex.Labels, l)
				}
			} else if _, ok := typeSeen[l]; !ok {
				typeSeen[l] = struct{}{}
				ex.RelTypes = append(ex.RelTypes, l)
			}
		}
		if p.Variable != "" && !p.Labels.Empty() {
			if _, ok := bindings[p.Variable]; !ok {
				bindings[p.Variable] = p
			}
		}
		if p.Props == "" || p.Labels.Empty() {
			continue
		}
		for _, pair := range ParsePropertyMap(p.Props) {
			if pair.Param {
				continue
			}
			ex.Filters = append(ex.Filters, ValidationTask{
				LabelsOrTypes: p.Labels,
				Kind:          p.Kind,
				Variable:      p.Variable,
				PropertyName:  pair.Key,
				Operator:      "=",
				PropertyValue: pair.Value,
				Quoted:        pair.Quoted,
				pos:           p.PropsFrom,
			})
		}
	}

	for _, lp := range labelPredicates(stmt, patterns) {
		seen, names := labelSeen, &ex.Labels
		if lp.Kind == KindRelationship {
			seen, names = typeSeen, &ex.RelTypes
		}
		for _, l := range lp.Labels.Labels() {
			if _, ok := seen[l]; !ok {
				seen[l] = struct{}{}
				*names = append(*names, l)
			}
		}
		if _, ok := bindings[lp.Variable]; !ok && !lp.Labels.Empty() {
			bindings[lp.Variable] = lp
		}
	}

	ex.Filters = append(ex.Filters, variableFilters(stmt, bindings)...)
	sort.SliceStable(ex.Filters, func(i, j int) bool { return ex.Filters[i].pos < ex.Filters[j].pos })
	return ex
}

// labelPredicates finds "var:Label" tests outside patterns and map literals,
// such as WHERE p:Product or WHERE p:Product|Supplier. Variables bound by a
// relationship pattern test relationship types.
func labelPredicates(stmt string, patterns []Pattern) []Pattern {
	masked := MaskStrings(stmt)
	depth := braceDepth(masked)
	relVars := map[string]struct{}{}
	for _, p := range patterns {
		if p.Kind == KindRelationship && p.Variable != "" {
			relVars[p.Variable] = struct{}{}
		}
	}

	var out []Pattern
	for _, m := range labelPredicateRe.FindAllStringSubmatchIndex(masked, -1) {
		start, end := m[2], m[5]
		if depth[start] > 0 || insidePattern(patterns, start) {
			continue
		}
		// map values and function calls such as {name: p.name} or n: count(x)
		if next := strings.TrimLeft(masked[end:], " \t\n"); strings.HasPrefix(next, ".") || strings.HasPrefix(next, "(") {
			continue
		}
		p := Pattern{
			Kind:     KindNode,
			Start:    start,
			End:      end,
			Variable: masked[m[2]:m[3]],
			Labels:   ParseLabels(masked[m[4]:m[5]]),
		}
		if _, ok := relVars[p.Variable]; ok {
			p.Kind = KindRelationship
		}
		out = append(out, p)
	}
	return out
}

// braceDepth returns the map literal nesting depth at every byte offset.
func braceDepth(masked string) []int {
	out := make([]int, len(masked)+1)
	d := 0
	for i := 0; i < len(masked); i++ {
		out[i] = d
		switch masked[i] {
		case '{':
			d++
		case '}':
			if d > 0 {
				d--
			}
		}
	}
	out[len(masked)] = d
	return out
}

func insidePattern(patterns []Pattern, at int) bool {
	for _, p := range patterns {
		if at >= p.Start && at < p.End {
			return true
		}
	}
	return false
}

// variableFilters finds "var.prop OP literal" and "literal OP var.prop"
// comparisons for bound variables.
func variableFilters(stmt string, bindings map[string]Pattern) []ValidationTask {
	names := make([]string, 0, len(bindings))
	for v := range bindings {
		names = append(names, v)
	}
	sort.Strings(names)

	masked := MaskStrings(stmt)
	var out []ValidationTask
	for _, v := range names {
		binding := bindings[v]
		re := regexp.MustCompile(`(?:^|[^\p{L}\p{N}_.])` + regexp.QuoteMeta(v) +
			"\\.`?([\\p{L}\\p{N}_]+)`?\\s*(" + comparisonOps + `)\s*(` + valueLiteral + `)`)
		for _, m := range re.FindAllStringSubmatchIndex(masked, -1) {
			// values come from the unmasked statement at the same offsets
			op := strings.ToUpper(strings.Join(strings.Fields(stmt[m[4]:m[5]]), " "))
			if op == "!=" {
				op = "<>"
			}
			value, quoted := unquote(stmt[m[6]:m[7]])
			out = append(out, ValidationTask{
				LabelsOrTypes: binding.Labels,
				Kind:          binding.Kind,
				Variable:      v,
				PropertyName:  stmt[m[2]:m[3]],
				Operator:      op,
				PropertyValue: value,
				Quoted:        quoted,
				pos:           m[2],
			})
		}

		rev := regexp.MustCompile(`(?:^|[^\p{L}\p{N}_.$])(` + valueLiteral + `)\s*(` + mirroredOps + `)\s*` +
			regexp.QuoteMeta(v) + "\\.`?([\\p{L}\\p{N}_]+)`?")
		for _, m := range rev.FindAllStringSubmatchIndex(masked, -1) {
			op := stmt[m[4]:m[5]]
			if op == "!=" {
				op = "<>"
			}
			if swapped, ok := mirror[op]; ok {
				op = swapped
			}
			value, quoted := unquote(stmt[m[2]:m[3]])
			out = append(out, ValidationTask{
				LabelsOrTypes: binding.Labels,
				Kind:          binding.Kind,
				Variable:      v,
				PropertyName:  stmt[m[6]:m[7]],
				Operator:      op,
				PropertyValue: value,
				Quoted:        quoted,
				pos:           m[6],
			})
		}
	}
	return out
}

// ListItems splits an IN list literal such as ['a', 'b'] into unquoted items.
func ListItems(value string) []string {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "[") || !strings.HasSuffix(value, "]") {
		return []string{value}
	}
	var out []string
	for _, item := range splitTopLevel(value[1:len(value)-1], ',') {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		v, _ := unquote(item)
		out = append(out, v)
	}
	return out
}
