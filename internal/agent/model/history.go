package model

import (
	"context"
)

type HistoryRepository interface {
	// Append stores a record and drops the oldest ones beyond the configured cap.
	Append(ctx context.Context, conversationID string, record HistoryRecord) error

	// Recent returns up to n most recent records, oldest first.
	Recent(ctx context.Context, conversationID string, n int) ([]HistoryRecord, error)

	// Clear removes all history for a conversation
	Clear(ctx context.Context, conversationID string) error

	// Count returns the number of stored records
	Count(ctx context.Context, conversationID string) (int, error)
}

// CypherRecord is the part of a task result worth remembering.
type CypherRecord struct {
	Task      string           `json:"task"`
	Statement string           `json:"statement"`
	Records   []map[string]any `json:"records"`
}

// HistoryRecord is what one answered question leaves for later questions.
type HistoryRecord struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Cyphers  []CypherRecord `json:"cyphers"`
}

// NewHistoryRecord builds the record for an answered question.
func NewHistoryRecord(question, answer string, results []TaskResult) HistoryRecord {
	rec := HistoryRecord{Question: question, Answer: answer, Cyphers: make([]CypherRecord, 0, len(results))}
	for _, r := range results {
		rec.Cyphers = append(rec.Cyphers, CypherRecord{Task: r.Task, Statement: r.Statement, Records: r.Records})
	}
	return rec
}
