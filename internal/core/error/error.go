package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// GraphDBErrorMessage describes Neo4j related failures.
	GraphDBErrorMessage = "graph database operation failed"
)

// Kind classifies failures of the question answering pipeline.
type Kind string

const (
	KindUnknown       Kind = ""
	KindSyntax        Kind = "syntax_error"
	KindPolicy        Kind = "policy_violation"
	KindSchema        Kind = "schema_violation"
	KindSemantic      Kind = "semantic_error"
	KindValueNotFound Kind = "value_not_found"
	KindToolSelection Kind = "tool_selection_error"
	KindExecution     Kind = "execution_error"
	KindModel         Kind = "model_error"
	KindConfiguration Kind = "configuration_error"
)

// Corrective reports whether errors of this kind can be fixed by regenerating the statement.
func (k Kind) Corrective() bool {
	switch k {
	case KindSyntax, KindPolicy, KindSchema, KindSemantic:
		return true
	default:
		return false
	}
}

// AppError wraps an underlying error with an HTTP status, a safe message and a kind.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// NewKind creates an AppError tagged with a pipeline error kind.
func NewKind(kind Kind, err error, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  statusForKind(kind),
		Message: message,
		Kind:    kind,
	}
}

// KindOf returns the kind of the first AppError in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// WrapRedis maps Redis errors to AppError with appropriate status codes.
// A missing key (redis.Nil) maps to 404 so callers can branch on it.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if isRedisNil(err) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapNeo4j wraps a graph database failure as an execution error.
func WrapNeo4j(err error) error {
	if err == nil {
		return nil
	}
	return NewKind(KindExecution, err, GraphDBErrorMessage)
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindSyntax, KindPolicy, KindSchema, KindSemantic, KindToolSelection:
		return http.StatusUnprocessableEntity
	case KindValueNotFound:
		return http.StatusNotFound
	case KindExecution, KindModel:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
