package chat

import (
	"reflect"
	"testing"
)

func TestAccumulatorContentOnly(t *testing.T) {
	var acc accumulator

	var forwarded string
	for _, fragment := range []string{"Hel", "lo", " world"} {
		forwarded += acc.merge(streamDelta{Content: fragment})
	}

	if forwarded != "Hello world" {
		t.Errorf("forwarded content = %q, want %q", forwarded, "Hello world")
	}

	msg := acc.finish()
	if msg.Content != "Hello world" {
		t.Errorf("finished content = %q, want %q", msg.Content, "Hello world")
	}
	if len(msg.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(msg.ToolCalls))
	}
}

func TestAccumulatorSplitArguments(t *testing.T) {
	var acc accumulator

	deltas := []streamDelta{
		{ToolCalls: []deltaToolCall{{Index: 0, ID: "call_1", Function: deltaFunction{Name: "get_weather"}}}},
		{ToolCalls: []deltaToolCall{{Index: 0, Function: deltaFunction{Arguments: `{"loca`}}}},
		{ToolCalls: []deltaToolCall{{Index: 0, Function: deltaFunction{Arguments: `tion":"Tok`}}}},
		{ToolCalls: []deltaToolCall{{Index: 0, Function: deltaFunction{Arguments: `yo"}`}}}},
	}
	for _, d := range deltas {
		if got := acc.merge(d); got != "" {
			t.Errorf("tool-call delta forwarded content %q", got)
		}
	}

	msg := acc.finish()
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	want := wireToolCall{
		ID:   "call_1",
		Type: "function",
		Function: wireFunction{
			Name:      "get_weather",
			Arguments: `{"location":"Tokyo"}`,
		},
	}
	if !reflect.DeepEqual(msg.ToolCalls[0], want) {
		t.Errorf("tool call = %+v, want %+v", msg.ToolCalls[0], want)
	}
}

func TestAccumulatorInterleavedIndices(t *testing.T) {
	var acc accumulator

	deltas := []streamDelta{
		{ToolCalls: []deltaToolCall{
			{Index: 0, ID: "call_a", Function: deltaFunction{Name: "get_weather", Arguments: `{"loc`}},
			{Index: 1, ID: "call_b", Function: deltaFunction{Name: "web_search", Arguments: `{"qu`}},
		}},
		{ToolCalls: []deltaToolCall{
			{Index: 1, Function: deltaFunction{Arguments: `ery":"go"}`}},
			{Index: 0, Function: deltaFunction{Arguments: `ation":"Oslo"}`}},
		}},
	}
	for _, d := range deltas {
		acc.merge(d)
	}

	msg := acc.finish()
	if len(msg.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(msg.ToolCalls))
	}
	if got := msg.ToolCalls[0].Function.Arguments; got != `{"location":"Oslo"}` {
		t.Errorf("call 0 arguments = %q", got)
	}
	if got := msg.ToolCalls[1].Function.Arguments; got != `{"query":"go"}` {
		t.Errorf("call 1 arguments = %q", got)
	}
	if msg.ToolCalls[0].ID != "call_a" || msg.ToolCalls[1].ID != "call_b" {
		t.Errorf("ids = %q, %q", msg.ToolCalls[0].ID, msg.ToolCalls[1].ID)
	}
}

func TestAccumulatorMixedContentAndToolCalls(t *testing.T) {
	var acc accumulator

	acc.merge(streamDelta{Content: "Checking."})
	acc.merge(streamDelta{ToolCalls: []deltaToolCall{
		{Index: 0, ID: "call_1", Function: deltaFunction{Name: "get_weather", Arguments: `{}`}},
	}})

	msg := acc.finish()
	if msg.Content != "Checking." {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls))
	}
}
