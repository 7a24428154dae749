package model

import (
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
)

// Task is one independent sub-question produced by the planner.
type Task struct {
	ID                    string `json:"id"`
	Question              string `json:"question"`
	ParentTask            string `json:"parent_task"`
	RequiresVisualization bool   `json:"requires_visualization"`
}

// FollowUpParent marks tasks created by the final answer check.
const FollowUpParent = "follow up question"

// TaskResult is the dispatcher's output for one task. It is written once.
type TaskResult struct {
	TaskID        string            `json:"task_id"`
	Task          string            `json:"task"`
	Tool          string            `json:"tool"`
	Statement     string            `json:"statement,omitempty"`
	Parameters    map[string]any    `json:"parameters,omitempty"`
	Records       []map[string]any  `json:"records"`
	Errors        []validator.Issue `json:"errors,omitempty"`
	MappingErrors []string          `json:"mapping_errors,omitempty"`
	Steps         []string          `json:"steps,omitempty"`
	Empty         bool              `json:"empty"`
}

// Usable reports whether the records can feed the summarizer.
func (r TaskResult) Usable() bool {
	return !r.Empty && len(r.Errors) == 0 && len(r.Records) > 0
}
