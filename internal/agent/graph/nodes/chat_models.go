package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/llm"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey    string
	BaseURL   string
	Guardrail model.ModelSettings
	Planner   model.ModelSettings
	Cypher    model.ModelSettings
	Summary   model.ModelSettings
}

// ChatModels holds one model per role. The Cypher model serves tool selection,
// generation, correction and review.
type ChatModels struct {
	Guardrail llm.Model
	Planner   llm.Model
	Cypher    llm.Model
	Summary   llm.Model
	// CypherTools is the Cypher model before tool binding
	CypherTools einomodel.ToolCallingChatModel
}

// NewChatModels creates the Gemini chat models sharing one client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	guardrail, err := newGeminiModel(ctx, client, config.Guardrail, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating guardrail model: %w", err)
	}
	planner, err := newGeminiModel(ctx, client, config.Planner, &genai.ThinkingConfig{
		IncludeThoughts: true,
		ThinkingBudget:  genai.Ptr(int32(2000)),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}
	cypher, err := newGeminiModel(ctx, client, config.Cypher, &genai.ThinkingConfig{
		IncludeThoughts: true,
		ThinkingBudget:  genai.Ptr(int32(2000)),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating cypher model: %w", err)
	}
	summary, err := newGeminiModel(ctx, client, config.Summary, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating summary model: %w", err)
	}

	return &ChatModels{
		Guardrail:   llm.Model{Chat: guardrail, Name: config.Guardrail.Model},
		Planner:     llm.Model{Chat: planner, Name: config.Planner.Model},
		Cypher:      llm.Model{Chat: cypher, Name: config.Cypher.Model},
		Summary:     llm.Model{Chat: summary, Name: config.Summary.Model},
		CypherTools: cypher,
	}, nil
}

func newGeminiModel(ctx context.Context, client *genai.Client, s model.ModelSettings, thinking *genai.ThinkingConfig) (*gemini.ChatModel, error) {
	temperature := s.Temperature
	maxTokens := s.MaxTokens
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:         client,
		Model:          s.Model,
		Temperature:    &temperature,
		MaxTokens:      &maxTokens,
		ThinkingConfig: thinking,
	})
	if err != nil {
		logx.Error().Err(err).Str("model", s.Model).Msg("Error creating chat model")
		return nil, err
	}
	return cm, nil
}
