package extractor

import "strings"

// Combinator is how the labels of one pattern combine.
type Combinator string

const (
	CombineNone   Combinator = ""
	CombineSingle Combinator = "single"
	CombineAnd    Combinator = "and"
	CombineOr     Combinator = "or"
)

// LabelExpr is a label or relationship-type expression in disjunctive normal form:
// the expression holds when any term holds, and a term holds when all of its labels do.
// Negated labels (leading '!') are recorded separately and never checked.
type LabelExpr struct {
	Raw     string
	Terms   [][]string
	Negated []string
}

// ParseLabels splits a label expression such as "Person&Actor", "A|B", "A:B" or
// "!Deleted" on its combinators. ':' binds like '&'; '|' separates alternatives.
func ParseLabels(expr string) LabelExpr {
	out := LabelExpr{Raw: expr}
	expr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(expr), ":"))
	if expr == "" {
		return out
	}
	// Legacy relationship syntax [:A|:B].
	expr = strings.ReplaceAll(expr, "|:", "|")

	for _, alt := range strings.Split(expr, "|") {
		var term []string
		for _, part := range strings.FieldsFunc(alt, func(r rune) bool { return r == '&' || r == ':' }) {
			label := cleanLabel(part)
			if label == "" {
				continue
			}
			if strings.HasPrefix(label, "!") {
				if neg := cleanLabel(strings.TrimLeft(label, "!")); neg != "" {
					out.Negated = append(out.Negated, neg)
				}
				continue
			}
			term = append(term, label)
		}
		if len(term) > 0 {
			out.Terms = append(out.Terms, term)
		}
	}
	return out
}

func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`()")
	return strings.TrimSpace(s)
}

// Combinator reports the top-level combination of the expression.
func (e LabelExpr) Combinator() Combinator {
	switch {
	case len(e.Terms) == 0:
		return CombineNone
	case len(e.Terms) > 1:
		return CombineOr
	case len(e.Terms[0]) > 1:
		return CombineAnd
	default:
		return CombineSingle
	}
}

// Labels returns every positive label once, in order of appearance.
func (e LabelExpr) Labels() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, term := range e.Terms {
		for _, l := range term {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// Empty reports whether no positive label remains.
func (e LabelExpr) Empty() bool {
	return len(e.Terms) == 0
}

// String renders the positive part with '&' and '|'.
func (e LabelExpr) String() string {
	terms := make([]string, len(e.Terms))
	for i, t := range e.Terms {
		terms[i] = strings.Join(t, "&")
	}
	return strings.Join(terms, "|")
}
