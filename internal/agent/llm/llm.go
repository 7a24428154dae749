// Package llm wraps eino chat models with usage cost accounting.
package llm

import (
	"context"
	"errors"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// Model is a chat model together with the name used for pricing.
type Model struct {
	Chat einomodel.BaseChatModel
	Name string
}

// Generate calls the model and records its usage on the request cost meter.
// Failures are returned as errx.KindModel.
func (m Model) Generate(ctx context.Context, node string, msgs []*schema.Message) (*schema.Message, error) {
	if m.Chat == nil {
		return nil, errx.NewKind(errx.KindConfiguration, errors.New("chat model is nil"), fmt.Sprintf("%s: no chat model", node))
	}
	out, err := m.Chat.Generate(ctx, msgs)
	if err != nil {
		logx.Error().Err(err).Str("node", node).Str("model", m.Name).Msg("Model call failed")
		return nil, errx.NewKind(errx.KindModel, err, fmt.Sprintf("%s: model call failed", node))
	}
	if out == nil {
		return nil, errx.NewKind(errx.KindModel, errors.New("empty response"), fmt.Sprintf("%s: model call failed", node))
	}
	m.record(ctx, node, out)
	return out, nil
}

func (m Model) record(ctx context.Context, node string, out *schema.Message) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(m.Name))
	running := model.CostMeterFrom(ctx).Add(totalC)

	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             m.Name,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	out.Extra["usage_cost_total_usd"] = running

	logx.Debug().
		Str("node", node).
		Str("model", m.Name).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
