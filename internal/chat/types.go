// Package chat adapts a remote OpenAI-compatible chat-completion API into
// the two response modes the agent needs: buffered and incrementally
// streamed. It owns the conversation message types, the wire protocol, the
// streaming delta accumulator, and the tool-call execution round-trip.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn as stored in session state. Timestamps
// are epoch milliseconds. Messages are append-only; only a streaming
// placeholder is ever finalized in place.
type Message struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp int64      `json:"timestamp"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// ToolCall records one executed tool invocation: what the model asked for
// and what came back. Consumed only within the turn that produced it.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result"`
}

// NewMessage creates a message stamped with a fresh id and the current time.
func NewMessage(role, content string, toolCalls ...ToolCall) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
		ToolCalls: toolCalls,
	}
}

// ToolDefinition is an OpenAI-format tool schema attached to completion
// requests.
type ToolDefinition struct {
	Type     string      `json:"type"` // always "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef describes one callable function to the model.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Executor dispatches tool invocations requested by the model. Execution
// must never fail outright: implementations convert failures into
// error-shaped result values so one failing tool cannot abort a turn.
type Executor interface {
	// Definitions returns the tool schemas to advertise, recomputed per
	// call.
	Definitions(ctx context.Context) []ToolDefinition

	// Execute runs a named tool and returns its result value.
	Execute(ctx context.Context, name string, args map[string]any) any
}
