package parsers

import (
	"regexp"
	"strings"
)

var (
	labelPrefix = regexp.MustCompile(`(?i)^\s*(cypher\s*(query|statement)?\s*:?)\s*`)
	clauseStart = regexp.MustCompile(`(?i)^\s*(MATCH|OPTIONAL\s+MATCH|WITH|UNWIND|CALL|RETURN|EXPLAIN|PROFILE|CREATE|MERGE|DELETE|DETACH|SET|REMOVE|FOREACH)\b`)
	// clauses and keywords that only continue a statement
	continuation = regexp.MustCompile(`(?i)^\s*(WHERE|ORDER\s+BY|SKIP|LIMIT|OFFSET|UNION|YIELD|AND|OR|XOR|NOT)\b`)
)

// CleanStatement turns raw model output into a bare Cypher statement: fences,
// a leading "cypher" label, preamble lines and trailing prose are removed.
// Write clauses are kept so the validator can report them.
func CleanStatement(content string) string {
	s := stripFences(content)
	s = labelPrefix.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	first := -1
	for i, l := range lines {
		if clauseStart.MatchString(l) {
			first = i
			break
		}
	}
	if first < 0 {
		return strings.TrimSuffix(strings.TrimSpace(s), ";")
	}

	var kept []string
	rest := lines[first:]
	for i, l := range rest {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			break
		}
		if strings.TrimSpace(l) == "" {
			// a blank line ends the statement unless a clause follows it
			if next := nextNonBlank(rest[i+1:]); next == "" || !startsClause(next) {
				break
			}
			continue
		}
		kept = append(kept, strings.TrimRight(l, " \t"))
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	return strings.TrimSpace(strings.TrimSuffix(out, ";"))
}

func nextNonBlank(lines []string) string {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	return ""
}

func startsClause(line string) bool {
	return clauseStart.MatchString(line) || continuation.MatchString(line)
}
