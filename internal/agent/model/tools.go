package model

// Names of the closed tool set the router dispatches to.
const (
	ToolCypherQuery      = "cypher_query"
	ToolPredefinedCypher = "predefined_cypher"
	ToolKBSearch         = "kb_search"
	// ToolNone is recorded on results of tasks no tool could be assigned to.
	ToolNone = "error_tool_selection"
)

// KnownTool reports whether name belongs to the closed tool set.
func KnownTool(name string) bool {
	switch name {
	case ToolCypherQuery, ToolPredefinedCypher, ToolKBSearch:
		return true
	default:
		return false
	}
}
