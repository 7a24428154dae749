package model

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Dispatched tasks run on their own goroutines and never touch AppState;
//     the dispatch node copies their results in after the join.
type AppState struct {
	RequestID      string
	ConversationID string
	Question       string

	OutOfScope   bool
	Tasks        []Task       // every task dispatched so far, follow-up included
	Results      []TaskResult // in task submission order
	Answer       string
	FollowUpUsed bool // at most one follow-up loop per request
	Steps        []string

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput represents the input for processing user questions.
type QueryInput struct {
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
}

// Answer is the public result of one request.
type Answer struct {
	RequestID string        `json:"request_id"`
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	Results   []TaskResult  `json:"results,omitempty"`
	Steps     []string      `json:"steps"`
	History   HistoryRecord `json:"history"`
	CostUSD   float64       `json:"cost_usd"`
	Cached    bool          `json:"cached"`
	// OutOfScope is set when the guardrail rejected the question.
	OutOfScope bool `json:"out_of_scope"`
}
