package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/graph/conversations"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// Node names. They double as the node label passed to model calls.
const (
	NodeGuardrails     = "guardrails"
	NodeOutOfScope     = "out_of_scope"
	NodePlanner        = "planner"
	NodeDispatch       = "dispatch_tasks"
	NodeSummarize      = "summarize"
	NodeValidateAnswer = "final_answer_validation"
	NodeFinalAnswer    = "final_answer"
)

// TaskDispatcher runs tasks concurrently and returns their results in order.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, tasks []model.Task) []model.TaskResult
}

// NewGuardrailsPreHandler resets the state for a new request.
func NewGuardrailsPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		*s = model.AppState{
			RequestID:      in.RequestID,
			ConversationID: in.ConversationID,
			Question:       in.Question,
		}
		return in, nil
	}
}

// NewGuardrailsNode records the scope decision in state and passes the input through.
func NewGuardrailsNode(g *Guardrail) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (model.QueryInput, error) {
		allowed, err := g.Allow(ctx, in.Question)
		if err != nil {
			return in, fmt.Errorf("guardrails: %w", err)
		}
		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.OutOfScope = !allowed
			state.Steps = append(state.Steps, NodeGuardrails)
			return nil
		})
		if err != nil {
			return in, fmt.Errorf("failed to access state: %w", err)
		}
		return in, nil
	})
}

// NewGuardrailsCondition routes out-of-scope questions away from the planner.
func NewGuardrailsCondition() func(context.Context, model.QueryInput) (string, error) {
	return func(ctx context.Context, in model.QueryInput) (string, error) {
		var outOfScope bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			outOfScope = state.OutOfScope
			return nil
		})
		if err != nil {
			return "", err
		}
		if outOfScope {
			logx.Debug().Str("request_id", in.RequestID).Msg("Question out of scope - routing to end")
			return NodeOutOfScope, nil
		}
		return NodePlanner, nil
	}
}

// NewOutOfScopeNode answers with the fixed out-of-scope message.
func NewOutOfScopeNode(message string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (*model.Answer, error) {
		var ans *model.Answer
		err := compose.ProcessState(ctx, func(ctx context.Context, state *model.AppState) error {
			state.Answer = message
			state.Steps = append(state.Steps, NodeOutOfScope)
			ans = buildAnswer(ctx, state)
			ans.OutOfScope = true
			return nil
		})
		return ans, err
	})
}

// NewPlannerNode plans tasks with the recent conversation history as context.
func NewPlannerNode(p *Planner, hm *conversations.HistoryManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) ([]model.Task, error) {
		history, err := hm.PlannerContext(ctx, in.ConversationID)
		if err != nil {
			// history only sharpens the plan
			logx.Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("Load history failed; planning without it")
			history = ""
		}
		tasks, err := p.Plan(ctx, in.Question, history)
		if err != nil {
			return nil, fmt.Errorf("planner: %w", err)
		}
		return tasks, nil
	})
}

// NewPlannerPostHandler stores the planned tasks.
func NewPlannerPostHandler() func(context.Context, []model.Task, *model.AppState) ([]model.Task, error) {
	return func(ctx context.Context, out []model.Task, state *model.AppState) ([]model.Task, error) {
		state.Tasks = append(state.Tasks, out...)
		state.Steps = append(state.Steps, NodePlanner)
		logx.Debug().
			Str("request_id", state.RequestID).
			Int("tasks", len(out)).
			Msg("Planned tasks")
		return out, nil
	}
}

// NewDispatchNode fans tasks out to the tool router.
func NewDispatchNode(d TaskDispatcher) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, tasks []model.Task) ([]model.TaskResult, error) {
		return d.Dispatch(ctx, tasks), nil
	})
}

// NewDispatchPostHandler appends the new results and hands every result so
// far to the summarizer.
func NewDispatchPostHandler() func(context.Context, []model.TaskResult, *model.AppState) ([]model.TaskResult, error) {
	return func(ctx context.Context, out []model.TaskResult, state *model.AppState) ([]model.TaskResult, error) {
		state.Results = append(state.Results, out...)
		for _, r := range out {
			state.Steps = append(state.Steps, r.Steps...)
		}
		state.Steps = append(state.Steps, NodeDispatch)
		all := make([]model.TaskResult, len(state.Results))
		copy(all, state.Results)
		return all, nil
	}
}

func NewSummarizeNode(s *Summarizer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, results []model.TaskResult) (string, error) {
		var question string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			question = state.Question
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		answer, err := s.Summarize(ctx, question, results)
		if err != nil {
			return "", fmt.Errorf("summarize: %w", err)
		}
		return answer, nil
	})
}

func NewSummarizePostHandler() func(context.Context, string, *model.AppState) (string, error) {
	return func(ctx context.Context, out string, state *model.AppState) (string, error) {
		state.Answer = out
		state.Steps = append(state.Steps, NodeSummarize)
		return out, nil
	}
}

// NewValidateAnswerNode returns the follow-up task, if any. The check runs at
// most once per request.
func NewValidateAnswerNode(v *AnswerValidator) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, answer string) ([]model.Task, error) {
		var (
			skip     bool
			question string
			results  []model.TaskResult
		)
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			skip = state.FollowUpUsed
			question = state.Question
			results = append(results, state.Results...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if skip {
			return nil, nil
		}

		followUp := v.FollowUp(ctx, question, answer, results)
		var tasks []model.Task
		if followUp != "" {
			tasks = []model.Task{{ID: uuid.NewString(), Question: followUp, ParentTask: model.FollowUpParent}}
		}
		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Steps = append(state.Steps, NodeValidateAnswer)
			if len(tasks) > 0 {
				state.FollowUpUsed = true
				state.Tasks = append(state.Tasks, tasks...)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if len(tasks) > 0 {
			logx.Debug().Str("follow_up", followUp).Msg("Answer incomplete - dispatching follow-up")
		}
		return tasks, nil
	})
}

// NewValidateAnswerCondition loops back to dispatch when a follow-up exists.
func NewValidateAnswerCondition() func(context.Context, []model.Task) (string, error) {
	return func(ctx context.Context, followUps []model.Task) (string, error) {
		if len(followUps) > 0 {
			return NodeDispatch, nil
		}
		return NodeFinalAnswer, nil
	}
}

// NewFinalAnswerNode assembles the answer and stores its history record.
func NewFinalAnswerNode(hm *conversations.HistoryManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []model.Task) (*model.Answer, error) {
		var (
			ans            *model.Answer
			conversationID string
		)
		err := compose.ProcessState(ctx, func(ctx context.Context, state *model.AppState) error {
			state.Steps = append(state.Steps, NodeFinalAnswer)
			ans = buildAnswer(ctx, state)
			conversationID = state.ConversationID
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if err := hm.Save(ctx, conversationID, ans.History); err != nil {
			logx.Error().Err(err).Str("request_id", ans.RequestID).Msg("Error saving history record")
		}
		return ans, nil
	})
}
