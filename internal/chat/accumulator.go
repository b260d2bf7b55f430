package chat

import "strings"

// accumulator folds streaming deltas into the final assistant turn.
// Tool-call fragments are correlated by the delta index; argument
// fragments are concatenated as raw strings and parsed only after the
// stream ends, because argument JSON may be split across arbitrary chunk
// boundaries.
type accumulator struct {
	content   strings.Builder
	toolCalls []pendingToolCall
}

// pendingToolCall accumulates one tool call's fragments. args is a plain
// string because the slice holding these reallocates as new indices arrive;
// a strings.Builder must not be copied by value.
type pendingToolCall struct {
	id   string
	name string
	args string
}

// merge folds one delta into the accumulator and returns the content
// fragment it carried, if any, for immediate forwarding.
func (a *accumulator) merge(d streamDelta) string {
	a.content.WriteString(d.Content)
	for _, tc := range d.ToolCalls {
		for tc.Index >= len(a.toolCalls) {
			a.toolCalls = append(a.toolCalls, pendingToolCall{})
		}
		slot := &a.toolCalls[tc.Index]
		if tc.ID != "" {
			slot.id = tc.ID
		}
		if tc.Function.Name != "" {
			slot.name = tc.Function.Name
		}
		slot.args += tc.Function.Arguments
	}
	return d.Content
}

// finish renders the accumulated state as a buffered assistant turn,
// making both response modes converge on one code path.
func (a *accumulator) finish() wireAssistantMessage {
	msg := wireAssistantMessage{
		Role:    RoleAssistant,
		Content: a.content.String(),
	}
	for _, pending := range a.toolCalls {
		msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
			ID:   pending.id,
			Type: "function",
			Function: wireFunction{
				Name:      pending.name,
				Arguments: pending.args,
			},
		})
	}
	return msg
}
