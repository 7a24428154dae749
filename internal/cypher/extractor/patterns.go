package extractor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PatternKind distinguishes node and relationship patterns.
type PatternKind string

const (
	KindNode         PatternKind = "node"
	KindRelationship PatternKind = "relationship"
)

// Arrow is the written direction of a relationship pattern.
type Arrow string

const (
	ArrowNone  Arrow = ""
	ArrowRight Arrow = "->"
	ArrowLeft  Arrow = "<-"
	ArrowBoth  Arrow = "<->"
)

// Pattern is one node "(...)" or relationship "-[...]-" element of a statement.
// Start and End are byte offsets of the brackets, End exclusive.
type Pattern struct {
	Kind     PatternKind
	Start    int
	End      int
	Variable string
	Labels   LabelExpr
	// Props is the literal property map including braces, or empty.
	Props     string
	PropsFrom int

	// Relationship only: offsets of the dashes/arrow heads around the brackets.
	LeftFrom, LeftTo   int
	RightFrom, RightTo int
	Arrow              Arrow
}

var (
	nodeRe = regexp.MustCompile(`\(([^()]*)\)`)
	relRe  = regexp.MustCompile(`\[([^\[\]]*)\]`)

	variableRe  = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$|^$`)
	labelExprRe = regexp.MustCompile("^[\\p{L}\\p{N}_|&!:`\\s]+$")
	varLengthRe = regexp.MustCompile(`\*[\d.\s]*$`)
	stringLitRe = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)
)

// MaskStrings blanks the contents of string literals so brackets inside
// quoted values never look like patterns. Offsets are preserved.
func MaskStrings(stmt string) string {
	return stringLitRe.ReplaceAllStringFunc(stmt, func(lit string) string {
		if len(lit) < 2 {
			return lit
		}
		return lit[:1] + strings.Repeat("x", len(lit)-2) + lit[len(lit)-1:]
	})
}

// Scan returns node and relationship patterns in order of appearance.
func Scan(stmt string) []Pattern {
	masked := MaskStrings(stmt)
	var out []Pattern

	for _, loc := range nodeRe.FindAllStringSubmatchIndex(masked, -1) {
		if precededByIdentifier(masked, loc[0]) {
			// function call such as count(p)
			continue
		}
		p, ok := parseElement(stmt, masked, loc[2], loc[3])
		if !ok {
			continue
		}
		p.Kind = KindNode
		p.Start, p.End = loc[0], loc[1]
		out = append(out, p)
	}

	for _, loc := range relRe.FindAllStringSubmatchIndex(masked, -1) {
		leftFrom, leftTo, leftOK := leftDash(masked, loc[0])
		rightFrom, rightTo, rightOK := rightDash(masked, loc[1])
		if !leftOK || !rightOK {
			// list literal or index expression
			continue
		}
		inner := loc[3]
		// strip variable-length suffix like *1..3 before parsing
		head := masked[loc[2]:inner]
		if brace := strings.IndexByte(head, '{'); brace < 0 {
			if m := varLengthRe.FindStringIndex(head); m != nil {
				inner = loc[2] + m[0]
			}
		}
		p, ok := parseElement(stmt, masked, loc[2], inner)
		if !ok {
			continue
		}
		p.Kind = KindRelationship
		p.Start, p.End = loc[0], loc[1]
		p.LeftFrom, p.LeftTo = leftFrom, leftTo
		p.RightFrom, p.RightTo = rightFrom, rightTo
		left := strings.HasPrefix(masked[leftFrom:leftTo], "<")
		right := strings.HasSuffix(masked[rightFrom:rightTo], ">")
		switch {
		case left && right:
			p.Arrow = ArrowBoth
		case left:
			p.Arrow = ArrowLeft
		case right:
			p.Arrow = ArrowRight
		}
		out = append(out, p)
	}

	sortPatterns(out)
	return out
}

func sortPatterns(ps []Pattern) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].Start < ps[j-1].Start; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

// parseElement splits "var:Label {props}" found between from and to.
func parseElement(stmt, masked string, from, to int) (Pattern, bool) {
	var p Pattern
	head := masked[from:to]
	if brace := strings.IndexByte(head, '{'); brace >= 0 {
		closing := strings.LastIndexByte(head, '}')
		if closing < brace {
			return p, false
		}
		p.Props = stmt[from+brace : from+closing+1]
		p.PropsFrom = from + brace
		head = head[:brace]
	}
	head = strings.TrimSpace(head)

	variable, labels := head, ""
	if colon := strings.IndexByte(head, ':'); colon >= 0 {
		variable, labels = strings.TrimSpace(head[:colon]), head[colon+1:]
	}
	variable = strings.Trim(variable, "`")
	if !variableRe.MatchString(variable) {
		return p, false
	}
	if labels != "" && !labelExprRe.MatchString(labels) {
		return p, false
	}
	p.Variable = variable
	p.Labels = ParseLabels(labels)
	return p, true
}

func precededByIdentifier(s string, at int) bool {
	if at == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:at])
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// leftDash finds "-" or "<-" immediately before a relationship bracket.
func leftDash(s string, at int) (int, int, bool) {
	end := at
	i := at
	for i > 0 && s[i-1] == ' ' {
		i--
	}
	if i == 0 || s[i-1] != '-' {
		return 0, 0, false
	}
	i--
	if i > 0 && s[i-1] == '<' {
		i--
	}
	return i, end, true
}

// rightDash finds "-" or "->" immediately after a relationship bracket.
func rightDash(s string, at int) (int, int, bool) {
	start := at
	i := at
	for i < len(s) && s[i] == ' ' {
		i++
	}
	if i >= len(s) || s[i] != '-' {
		return 0, 0, false
	}
	i++
	if i < len(s) && s[i] == '>' {
		i++
	}
	return start, i, true
}

// PropertyPair is one key/value of a literal property map.
type PropertyPair struct {
	Key   string
	Value string
	// Quoted marks string literals; Param marks $parameter references.
	Quoted bool
	Param  bool
}

// ParsePropertyMap splits "{a: 'x', b: 3}" into pairs. Commas inside quotes
// or nested brackets do not split.
func ParsePropertyMap(props string) []PropertyPair {
	props = strings.TrimSpace(props)
	props = strings.TrimPrefix(props, "{")
	props = strings.TrimSuffix(props, "}")

	var out []PropertyPair
	for _, entry := range splitTopLevel(props, ',') {
		colon := strings.IndexByte(entry, ':')
		if colon < 0 {
			continue
		}
		key := strings.Trim(strings.TrimSpace(entry[:colon]), "`")
		if key == "" {
			continue
		}
		value, quoted := unquote(strings.TrimSpace(entry[colon+1:]))
		out = append(out, PropertyPair{
			Key:    key,
			Value:  value,
			Quoted: quoted,
			Param:  !quoted && strings.HasPrefix(value, "$"),
		})
	}
	return out
}

func splitTopLevel(s string, sep byte) []string {
	var (
		out   []string
		depth int
		quote byte
		last  int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[' || c == '{' || c == '(':
			depth++
		case c == ']' || c == '}' || c == ')':
			depth--
		case c == sep && depth == 0:
			out = append(out, s[last:i])
			last = i + 1
		}
	}
	out = append(out, s[last:])
	return out
}

func unquote(v string) (string, bool) {
	if len(v) >= 2 {
		if (v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"') {
			return v[1 : len(v)-1], true
		}
	}
	return v, false
}
