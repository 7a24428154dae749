package model

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides hardcoded USD pricing per 1M tokens (text tokens).
var defaultPricing = map[string]Pricing{
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
}

// ResolvePricing returns hardcoded pricing for a model, zero when unknown.
func ResolvePricing(model string) Pricing {
	return defaultPricing[model]
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// CostMeter accumulates model cost for one request. Tasks run concurrently,
// so unlike AppState it is guarded by its own mutex.
type CostMeter struct {
	mu    sync.Mutex
	total float64
	calls int
}

// Add records one call and returns the running total.
func (m *CostMeter) Add(cost float64) float64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += cost
	m.calls++
	return m.total
}

// Total returns the accumulated cost in USD and the number of calls.
func (m *CostMeter) Total() (float64, int) {
	if m == nil {
		return 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, m.calls
}

type meterKey struct{}

// WithCostMeter attaches a meter to the request context.
func WithCostMeter(ctx context.Context, m *CostMeter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// CostMeterFrom returns the request meter, or nil.
func CostMeterFrom(ctx context.Context) *CostMeter {
	m, _ := ctx.Value(meterKey{}).(*CostMeter)
	return m
}
