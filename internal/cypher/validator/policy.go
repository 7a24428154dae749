package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// WriteClauses are the mutating keywords rejected in generated statements.
var WriteClauses = []string{
	"CREATE",
	"DELETE",
	"DETACH DELETE",
	"SET",
	"REMOVE",
	"FOREACH",
	"MERGE",
}

// WriteProcedures are procedure namespaces that mutate the graph or run
// arbitrary statements.
var WriteProcedures = []string{
	"apoc.create.",
	"apoc.merge.",
	"apoc.refactor.",
	"apoc.periodic.",
	"apoc.cypher.doIt",
	"apoc.cypher.runWrite",
	"apoc.do.",
	"apoc.nodes.delete",
}

var writeClauseRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(WriteClauses))
	for i, wc := range WriteClauses {
		pattern := strings.ReplaceAll(regexp.QuoteMeta(wc), " ", `\s+`)
		out[i] = regexp.MustCompile(`(?i)\b` + pattern + `\b`)
	}
	return out
}()

var writeProcedureRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(WriteProcedures))
	for i, wp := range WriteProcedures {
		pattern := strings.ReplaceAll(regexp.QuoteMeta(wp), `\.`, `\s*\.\s*`)
		out[i] = regexp.MustCompile(`(?i)\b` + pattern)
	}
	return out
}()

// FindWriteClauses returns every write clause present in the statement, in the
// order of WriteClauses, followed by every write procedure. The whole text is
// scanned: keywords inside string literals, property names and parameters
// count too.
func FindWriteClauses(stmt string) []string {
	var found []string
	for i, re := range writeClauseRes {
		if re.MatchString(stmt) {
			found = append(found, WriteClauses[i])
		}
	}
	for i, re := range writeProcedureRes {
		if re.MatchString(stmt) {
			found = append(found, strings.TrimSuffix(WriteProcedures[i], "."))
		}
	}
	return found
}

// leading comments are skipped
var readEntryRe = regexp.MustCompile(`(?i)^(?:\s|//[^\n]*(?:\n|$)|/\*[\s\S]*?\*/)*(?:MATCH|OPTIONAL\s+MATCH|WITH|UNWIND|CALL)\b`)

// ReadEntryMessage is reported for statements that do not open with a read clause.
const ReadEntryMessage = "Cypher must start with a read clause: MATCH, OPTIONAL MATCH, WITH, UNWIND or CALL"

// StartsWithReadClause reports whether the first clause reads from the graph.
// Write procedures behind CALL are caught by FindWriteClauses.
func StartsWithReadClause(stmt string) bool {
	return readEntryRe.MatchString(stmt)
}

func writeClauseMessage(wc string) string {
	return fmt.Sprintf("Cypher contains write clause: %s", wc)
}
