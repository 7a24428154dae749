package nodes

import (
	"context"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
)

// ===== Small helpers to keep handlers simple/readable =====

// buildAnswer snapshots the state into the public answer. The request cost is
// read from the meter that every model call of this request reports to.
func buildAnswer(ctx context.Context, state *model.AppState) *model.Answer {
	if total, _ := model.CostMeterFrom(ctx).Total(); total > 0 {
		state.TotalCostUSD = total
	}
	results := make([]model.TaskResult, len(state.Results))
	copy(results, state.Results)
	return &model.Answer{
		RequestID:  state.RequestID,
		Question:   state.Question,
		Answer:     state.Answer,
		Results:    results,
		Steps:      append([]string(nil), state.Steps...),
		History:    model.NewHistoryRecord(state.Question, state.Answer, usableResults(results)),
		CostUSD:    state.TotalCostUSD,
		OutOfScope: state.OutOfScope,
	}
}

// usableResults keeps the results worth remembering in history.
func usableResults(results []model.TaskResult) []model.TaskResult {
	out := make([]model.TaskResult, 0, len(results))
	for _, r := range results {
		if r.Usable() {
			out = append(out, r)
		}
	}
	return out
}
