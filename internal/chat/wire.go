package chat

// Wire-level request and response shapes for the OpenAI-compatible
// chat-completion protocol. These stay private to the package; callers work
// with Message and ToolCall.

type completionRequest struct {
	Model               string           `json:"model"`
	Messages            []wireMessage    `json:"messages"`
	Tools               []ToolDefinition `json:"tools,omitempty"`
	ToolChoice          string           `json:"tool_choice,omitempty"`
	MaxTokens           int              `json:"max_tokens,omitempty"`
	MaxCompletionTokens int              `json:"max_completion_tokens,omitempty"`
	Stream              bool             `json:"stream,omitempty"`
}

// wireMessage is one protocol-level turn. Content is a pointer because the
// assistant turn that carries tool calls must serialize content as an
// explicit null.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

func userMessage(content string) wireMessage {
	return wireMessage{Role: RoleUser, Content: &content}
}

func systemMessage(content string) wireMessage {
	return wireMessage{Role: RoleSystem, Content: &content}
}

// wireToolCall is a completed tool invocation request as the protocol
// frames it: arguments travel as a JSON-encoded string, not an object.
type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

type completionChoice struct {
	Index        int                  `json:"index"`
	Message      wireAssistantMessage `json:"message"`
	FinishReason string               `json:"finish_reason"`
}

type wireAssistantMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls"`
}

// streamChunk is one server-sent event payload in streaming mode.
type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// streamDelta carries incremental content and tool-call fragments. Every
// field is optional; tool-call fragments are correlated by Index, and the
// id and function name arrive only on the first fragment for that index.
type streamDelta struct {
	Content   string          `json:"content"`
	ToolCalls []deltaToolCall `json:"tool_calls"`
}

type deltaToolCall struct {
	Index    int           `json:"index"`
	ID       string        `json:"id"`
	Function deltaFunction `json:"function"`
}

type deltaFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
