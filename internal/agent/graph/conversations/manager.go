package conversations

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// maxRecordsInContext bounds the rows of each past statement shown to the planner.
const maxRecordsInContext = 3

type HistoryManager struct {
	historyRepo model.HistoryRepository
	maxRecords  int
}

// NewHistoryManager returns a manager. A nil repo disables history.
func NewHistoryManager(historyRepo model.HistoryRepository, config model.HistoryConfig) *HistoryManager {
	return &HistoryManager{
		historyRepo: historyRepo,
		maxRecords:  config.MaxRecords,
	}
}

// =========== Function for Planner ===========
func (hm *HistoryManager) PlannerContext(ctx context.Context, conversationID string) (string, error) {
	if hm == nil || hm.historyRepo == nil || conversationID == "" || hm.maxRecords <= 0 {
		return "", nil
	}
	records, err := hm.historyRepo.Recent(ctx, conversationID, hm.maxRecords)
	if err != nil {
		return "", err
	}
	return buildPlannerContext(trimTail(records, hm.maxRecords)), nil
}

func buildPlannerContext(records []model.HistoryRecord) string {
	var b strings.Builder
	for _, rec := range records {
		if rec.Question == "" {
			continue
		}
		b.WriteString("Question: " + rec.Question + "\n")
		for _, c := range rec.Cyphers {
			if c.Statement == "" {
				continue
			}
			b.WriteString("Cypher: " + c.Statement + "\n")
			if rows := trimTail(c.Records, maxRecordsInContext); len(rows) > 0 {
				if raw, err := json.Marshal(rows); err == nil {
					b.WriteString("Records: " + string(raw) + "\n")
				}
			}
		}
		if rec.Answer != "" {
			b.WriteString("Answer: " + rec.Answer + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Save stores the record of an answered question. Missing conversation IDs are skipped.
func (hm *HistoryManager) Save(ctx context.Context, conversationID string, record model.HistoryRecord) error {
	if hm == nil || hm.historyRepo == nil || conversationID == "" {
		return nil
	}
	if err := hm.historyRepo.Append(ctx, conversationID, record); err != nil {
		return err
	}
	logx.Debug().Str("conversation_id", conversationID).Msg("Saved history record")
	return nil
}

// ====================== Helper function ======================
func trimTail[T any](items []T, max int) []T {
	if max <= 0 {
		return nil
	}
	if len(items) <= max {
		result := make([]T, len(items))
		copy(result, items)
		return result
	}
	source := items[len(items)-max:]
	result := make([]T, len(source))
	copy(result, source)
	return result
}
