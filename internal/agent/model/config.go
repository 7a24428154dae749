package model

import "time"

// ================ Config ================

// ModelSettings is the provider-independent view of one chat model config.
type ModelSettings struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

type GuardrailModelConfig struct {
	Model       string  `envconfig:"GUARDRAIL_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"GUARDRAIL_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"GUARDRAIL_TEMPERATURE" default:"0"`
}

func (c GuardrailModelConfig) Settings() ModelSettings {
	return ModelSettings{Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature}
}

type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0"`
}

func (c PlannerModelConfig) Settings() ModelSettings {
	return ModelSettings{Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature}
}

// CypherModelConfig drives tool selection, statement generation, correction and review.
type CypherModelConfig struct {
	Model       string  `envconfig:"CYPHER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"CYPHER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"CYPHER_TEMPERATURE" default:"0"`
}

func (c CypherModelConfig) Settings() ModelSettings {
	return ModelSettings{Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature}
}

type SummaryModelConfig struct {
	Model       string  `envconfig:"SUMMARY_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"SUMMARY_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"SUMMARY_TEMPERATURE" default:"0.3"`
}

func (c SummaryModelConfig) Settings() ModelSettings {
	return ModelSettings{Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature}
}

// ScopeConfig describes what the assistant answers and the fixed replies it gives otherwise.
type ScopeConfig struct {
	Description       string `envconfig:"SCOPE_DESCRIPTION" default:"Questions about the products, categories, suppliers, customers, orders, employees and reviews of a Northwind-style trading company."`
	OutOfScopeMessage string `envconfig:"SCOPE_OUT_OF_SCOPE_MESSAGE" default:"Sorry, I can only answer questions about our products, orders, customers and suppliers."`
	NoDataMessage     string `envconfig:"SCOPE_NO_DATA_MESSAGE" default:"No data to summarize."`
}

// CypherConfig holds the data files and optional steps of the synthesis pipeline.
// The correction loop bounds live in pipeline.Config.
type CypherConfig struct {
	LLMValidation bool   `envconfig:"CYPHER_LLM_VALIDATION" default:"false"`
	ExamplesK     int    `envconfig:"CYPHER_EXAMPLES_K" default:"3"`
	SchemaFile    string `envconfig:"CYPHER_SCHEMA_FILE"`
	CatalogFile   string `envconfig:"CYPHER_CATALOG_FILE"`
	ExamplesFile  string `envconfig:"CYPHER_EXAMPLES_FILE"`
}

type RouterConfig struct {
	MaxConcurrentTasks int           `envconfig:"ROUTER_MAX_CONCURRENT_TASKS" default:"4"`
	TaskTimeout        time.Duration `envconfig:"ROUTER_TASK_TIMEOUT" default:"90s"`
	DefaultToCypher    bool          `envconfig:"ROUTER_DEFAULT_TO_CYPHER" default:"true"`
	EnablePredefined   bool          `envconfig:"ROUTER_ENABLE_PREDEFINED" default:"true"`
}

type CacheConfig struct {
	Enabled    bool          `envconfig:"CACHE_ENABLED" default:"true"`
	TTL        time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	MaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"1000"`
}

type HistoryConfig struct {
	TTL        time.Duration `envconfig:"HISTORY_TTL" default:"24h"`
	MaxRecords int           `envconfig:"HISTORY_MAX_RECORDS" default:"5"`
}

// KBConfig points at the knowledge-base search service. An empty URL disables kb_search.
type KBConfig struct {
	URL       string        `envconfig:"KB_URL"`
	Timeout   time.Duration `envconfig:"KB_TIMEOUT" default:"30s"`
	QueryType string        `envconfig:"KB_QUERY_TYPE" default:"local"`
}
