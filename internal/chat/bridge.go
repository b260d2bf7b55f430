package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nebulacms/nebula/internal/log"
)

const systemPersona = `You are Nebula AI, an enterprise CMS assistant built for Astro and Cloudflare.
Persona: Expert, concise, "agency-grade" technical advisor.
Knowledge Base:
- Astro Docs: https://docs.astro.build
- Cloudflare Agents Skills: https://skills.sh
You help users manage content, define schemas, and deploy Astro sites to Cloudflare Pages/Workers.
Always suggest best practices for Edge computing.`

const followUpInstruction = "Respond naturally to the tool results."

// Fallback responses when the upstream returns an empty or malformed turn.
const (
	fallbackNoChoice = "Issue processing request."
	fallbackToolOnly = "Success."
)

// History windows attached to completion requests.
const (
	historyWindowPrimary  = 10
	historyWindowFollowUp = 3
)

// Response is the outcome of one completed turn.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Bridge drives the full request cycle against an OpenAI-compatible
// endpoint: primary completion, tool execution, and the follow-up
// completion that narrates tool results. A Bridge belongs to a single
// session whose actor serializes all access, so the mutable model field
// needs no locking.
type Bridge struct {
	client    *Client
	executor  Executor
	logger    log.Logger
	maxTokens int
	model     string
}

// NewBridge creates a bridge for one session, starting with the given
// model.
func NewBridge(client *Client, executor Executor, model string, maxTokens int, logger log.Logger) *Bridge {
	return &Bridge{
		client:    client,
		executor:  executor,
		logger:    logger,
		maxTokens: maxTokens,
		model:     model,
	}
}

// Model returns the model currently in effect.
func (b *Bridge) Model() string { return b.model }

// UpdateModel switches the model used for subsequent turns.
func (b *Bridge) UpdateModel(model string) { b.model = model }

// ProcessMessage runs one conversation turn. When onChunk is non-nil the
// primary completion streams and content fragments are forwarded as they
// arrive; the follow-up completion after tool calls is always buffered.
// History is read-only context; persisting the turn is the caller's job.
func (b *Bridge) ProcessMessage(ctx context.Context, message string, history []Message, onChunk func(string)) (Response, error) {
	messages := b.buildConversationMessages(message, history)
	tools := b.executor.Definitions(ctx)

	if onChunk != nil {
		return b.processStreaming(ctx, message, history, messages, tools, onChunk)
	}
	return b.processBuffered(ctx, message, history, messages, tools)
}

func (b *Bridge) processBuffered(ctx context.Context, message string, history []Message, messages []wireMessage, tools []ToolDefinition) (Response, error) {
	completion, err := b.client.Complete(ctx, completionRequest{
		Model:      b.model,
		Messages:   messages,
		Tools:      tools,
		ToolChoice: "auto",
		MaxTokens:  b.maxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{Content: fallbackNoChoice}, nil
	}

	assistant := completion.Choices[0].Message
	if len(assistant.ToolCalls) == 0 {
		return Response{Content: assistant.Content}, nil
	}
	return b.resolveToolCalls(ctx, message, history, assistant.ToolCalls)
}

func (b *Bridge) processStreaming(ctx context.Context, message string, history []Message, messages []wireMessage, tools []ToolDefinition, onChunk func(string)) (Response, error) {
	stream, err := b.client.Stream(ctx, completionRequest{
		Model:               b.model,
		Messages:            messages,
		Tools:               tools,
		ToolChoice:          "auto",
		MaxCompletionTokens: b.maxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var acc accumulator
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, fmt.Errorf("chat stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if fragment := acc.merge(chunk.Choices[0].Delta); fragment != "" {
			onChunk(fragment)
		}
	}

	assistant := acc.finish()
	if len(assistant.ToolCalls) == 0 {
		return Response{Content: assistant.Content}, nil
	}
	for i := range assistant.ToolCalls {
		if assistant.ToolCalls[i].ID == "" {
			assistant.ToolCalls[i].ID = fmt.Sprintf("tool_%d_%d", time.Now().UnixMilli(), i)
		}
	}
	return b.resolveToolCalls(ctx, message, history, assistant.ToolCalls)
}

// resolveToolCalls executes the requested tools and asks the model to
// narrate their results in a buffered follow-up completion.
func (b *Bridge) resolveToolCalls(ctx context.Context, message string, history []Message, requested []wireToolCall) (Response, error) {
	executed := b.executeToolCalls(ctx, requested)

	content, err := b.generateToolResponse(ctx, message, history, requested, executed)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: content, ToolCalls: executed}, nil
}

// executeToolCalls runs every requested tool. Failures are isolated per
// call: a tool whose arguments fail to parse yields an error-shaped result
// and never aborts its siblings.
func (b *Bridge) executeToolCalls(ctx context.Context, requested []wireToolCall) []ToolCall {
	executed := make([]ToolCall, 0, len(requested))
	for _, tc := range requested {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				b.logger.Warn("tool arguments unparseable",
					"tool", tc.Function.Name,
					"error", err)
				executed = append(executed, ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: map[string]any{},
					Result:    map[string]any{"error": "Execution failed"},
				})
				continue
			}
		}

		result := b.executor.Execute(ctx, tc.Function.Name, args)
		executed = append(executed, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
			Result:    result,
		})
	}
	return executed
}

func (b *Bridge) generateToolResponse(ctx context.Context, message string, history []Message, requested []wireToolCall, executed []ToolCall) (string, error) {
	messages := []wireMessage{systemMessage(followUpInstruction)}
	for _, m := range tail(history, historyWindowFollowUp) {
		content := m.Content
		messages = append(messages, wireMessage{Role: m.Role, Content: &content})
	}
	messages = append(messages, userMessage(message))
	messages = append(messages, wireMessage{Role: RoleAssistant, Content: nil, ToolCalls: requested})
	for i, tc := range executed {
		raw, err := json.Marshal(tc.Result)
		if err != nil {
			raw = []byte("null")
		}
		id := tc.ID
		if i < len(requested) && requested[i].ID != "" {
			id = requested[i].ID
		}
		content := string(raw)
		messages = append(messages, wireMessage{Role: RoleTool, Content: &content, ToolCallID: id})
	}

	followUp, err := b.client.Complete(ctx, completionRequest{
		Model:     b.model,
		Messages:  messages,
		MaxTokens: b.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("tool follow-up completion: %w", err)
	}
	if len(followUp.Choices) == 0 || followUp.Choices[0].Message.Content == "" {
		return fallbackToolOnly, nil
	}
	return followUp.Choices[0].Message.Content, nil
}

func (b *Bridge) buildConversationMessages(message string, history []Message) []wireMessage {
	messages := []wireMessage{systemMessage(systemPersona)}
	for _, m := range tail(history, historyWindowPrimary) {
		content := m.Content
		messages = append(messages, wireMessage{Role: m.Role, Content: &content})
	}
	return append(messages, userMessage(message))
}

func tail(history []Message, n int) []Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
