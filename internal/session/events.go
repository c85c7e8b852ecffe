package session

import (
	"encoding/json"

	"github.com/bull/voicekb/internal/retrieval"
)

// SearchFunction is the function name the model uses to search the
// knowledge base.
const SearchFunction = "kb_search"

// FunctionCall is a model-issued function-call event received over the
// session's data channel.
type FunctionCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"function_name"`
	Arguments json.RawMessage `json:"arguments"`
}

// SearchArgs are the arguments of a kb_search call.
type SearchArgs struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// FunctionResult is emitted back into the session as the function's return
// value, tagged with the originating invocation id. Exactly one of Result or
// Error is populated.
type FunctionResult struct {
	InvocationID string             `json:"invocation_id"`
	Result       []retrieval.Result `json:"result,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// InvocationStatus is the lifecycle of one function-call invocation.
type InvocationStatus int

const (
	InvocationReceived InvocationStatus = iota
	InvocationExecuting
	InvocationCompleted
	InvocationFailed
)

func (s InvocationStatus) String() string {
	switch s {
	case InvocationReceived:
		return "received"
	case InvocationExecuting:
		return "executing"
	case InvocationCompleted:
		return "completed"
	case InvocationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Invocation tracks one in-flight function call owned by a session.
type Invocation struct {
	ID        string
	SessionID string
	Name      string
	Arguments json.RawMessage
	Status    InvocationStatus
}
