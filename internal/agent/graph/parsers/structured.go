package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024 // 128KB
	maxErrSnippet = 200        // limit error snippet size
)

// ErrNoJSON is returned when the content holds no JSON object.
var ErrNoJSON = errors.New("no json object in model output")

// GuardrailsOutput is the scope decision.
type GuardrailsOutput struct {
	Decision string `json:"decision"`
}

// PlannedTask is one task as emitted by the planner model.
type PlannedTask struct {
	Question              string `json:"question"`
	ParentTask            string `json:"parent_task"`
	RequiresVisualization bool   `json:"requires_visualization"`
}

// PlannerOutput is the decomposition emitted by the planner model.
type PlannerOutput struct {
	Tasks []PlannedTask `json:"tasks"`
}

// FinalAnswerOutput is the verdict of the final answer check.
type FinalAnswerOutput struct {
	Valid            bool   `json:"valid"`
	FollowUpQuestion string `json:"follow_up_question"`
}

// DecodeJSON extracts the first JSON object from model output and decodes it into out.
// Code fences and surrounding prose are tolerated.
func DecodeJSON(content string, out any) (err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "json_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("json parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
		}
	}()

	// content length guard
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "json_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		return errx.NewKind(errx.KindModel, fmt.Errorf("invalid utf8"), "decode model output")
	}

	obj, ok := extractObject(stripFences(content))
	if !ok {
		return errx.NewKind(errx.KindModel, fmt.Errorf("%w: %s", ErrNoJSON, safeSnippet(content)), "decode model output")
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return errx.NewKind(errx.KindModel, fmt.Errorf("%w: %s", err, safeSnippet(obj)), "decode model output")
	}
	return nil
}

// extractObject returns the first balanced {...} span, honouring JSON strings.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case inStr && c == '\\':
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// --- helpers ---

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string (json, cypher, ...)
		if !strings.ContainsAny(s[:nl], "{(") {
			s = s[nl+1:]
		}
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
