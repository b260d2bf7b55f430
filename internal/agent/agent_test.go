package agent

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/nebulacms/nebula/internal/chat"
	"github.com/nebulacms/nebula/internal/log"
	"github.com/nebulacms/nebula/internal/store"
)

// stubCompleter is a Completer with scripted output and call recording.
type stubCompleter struct {
	model    string
	response chat.Response
	err      error
	chunks   []string

	sentMessages []string
	lastHistory  []chat.Message
}

func (s *stubCompleter) ProcessMessage(ctx context.Context, message string, history []chat.Message, onChunk func(string)) (chat.Response, error) {
	s.sentMessages = append(s.sentMessages, message)
	s.lastHistory = append([]chat.Message(nil), history...)
	if onChunk != nil {
		for _, fragment := range s.chunks {
			onChunk(fragment)
		}
	}
	return s.response, s.err
}

func (s *stubCompleter) Model() string            { return s.model }
func (s *stubCompleter) UpdateModel(model string) { s.model = model }

type touchRecorder struct {
	ids []string
	err error
}

func (r *touchRecorder) TouchSession(ctx context.Context, id string) error {
	r.ids = append(r.ids, id)
	return r.err
}

// failingStateStore fails writes on demand.
type failingStateStore struct {
	*store.Memory
	writeErr error
}

func (f *failingStateStore) WriteState(ctx context.Context, sessionID string, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.Memory.WriteState(ctx, sessionID, data)
}

func TestSendMessageAppendsTurn(t *testing.T) {
	ctx := context.Background()
	states := store.NewMemory()
	completer := &stubCompleter{model: "default-model", response: chat.Response{Content: "Hi there."}}
	touches := &touchRecorder{}
	session := NewSession("s-1", completer, states, touches, log.NewNop())

	state, err := session.SendMessage(ctx, "  hello  ", "", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(state.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(state.Messages))
	}
	if state.Messages[0].Role != chat.RoleUser || state.Messages[0].Content != "hello" {
		t.Errorf("user message = %+v", state.Messages[0])
	}
	if state.Messages[1].Role != chat.RoleAssistant || state.Messages[1].Content != "Hi there." {
		t.Errorf("assistant message = %+v", state.Messages[1])
	}
	if state.IsProcessing {
		t.Error("processing flag still set")
	}
	if !reflect.DeepEqual(touches.ids, []string{"s-1"}) {
		t.Errorf("touched sessions = %v", touches.ids)
	}

	// The history handed to the completer already contains the user turn.
	if len(completer.lastHistory) != 1 || completer.lastHistory[0].Content != "hello" {
		t.Errorf("history = %+v", completer.lastHistory)
	}

	// State survives a fresh actor over the same backend.
	reloaded := NewSession("s-1", &stubCompleter{model: "default-model"}, states, nil, log.NewNop())
	got, err := reloaded.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("reloaded messages = %d", len(got.Messages))
	}
}

func TestSendMessageEmpty(t *testing.T) {
	completer := &stubCompleter{model: "m"}
	session := NewSession("s-1", completer, store.NewMemory(), nil, log.NewNop())

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := session.SendMessage(context.Background(), text, "", nil); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("SendMessage(%q) = %v, want ErrEmptyMessage", text, err)
		}
	}
	if len(completer.sentMessages) != 0 {
		t.Errorf("completer invoked for empty input: %v", completer.sentMessages)
	}
}

func TestSendMessageModelSwitch(t *testing.T) {
	completer := &stubCompleter{model: "old-model", response: chat.Response{Content: "ok"}}
	session := NewSession("s-1", completer, store.NewMemory(), nil, log.NewNop())

	state, err := session.SendMessage(context.Background(), "hi", "new-model", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if state.Model != "new-model" {
		t.Errorf("state model = %q", state.Model)
	}
	if completer.model != "new-model" {
		t.Errorf("completer model = %q", completer.model)
	}
}

func TestSendMessageFailureDiscardsPartial(t *testing.T) {
	ctx := context.Background()
	states := store.NewMemory()
	completer := &stubCompleter{
		model:  "m",
		chunks: []string{"partial "},
		err:    errors.New("upstream down"),
	}
	session := NewSession("s-1", completer, states, &touchRecorder{}, log.NewNop())

	var forwarded []string
	_, err := session.SendMessage(ctx, "hi", "", func(fragment string) {
		forwarded = append(forwarded, fragment)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// Chunks already sent to the caller are not recalled.
	if !reflect.DeepEqual(forwarded, []string{"partial "}) {
		t.Errorf("forwarded = %v", forwarded)
	}

	state, err := session.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.IsProcessing {
		t.Error("processing flag still set after failure")
	}
	if state.StreamingMessage != "" {
		t.Errorf("streaming message = %q", state.StreamingMessage)
	}
	// The user turn stays; no broken assistant turn is persisted.
	if len(state.Messages) != 1 || state.Messages[0].Role != chat.RoleUser {
		t.Errorf("messages = %+v", state.Messages)
	}
}

func TestSendMessageStreaming(t *testing.T) {
	completer := &stubCompleter{
		model:    "m",
		chunks:   []string{"Hel", "lo"},
		response: chat.Response{Content: "Hello"},
	}
	session := NewSession("s-1", completer, store.NewMemory(), nil, log.NewNop())

	var forwarded []string
	state, err := session.SendMessage(context.Background(), "hi", "", func(fragment string) {
		forwarded = append(forwarded, fragment)
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !reflect.DeepEqual(forwarded, []string{"Hel", "lo"}) {
		t.Errorf("forwarded = %v", forwarded)
	}
	if state.StreamingMessage != "" {
		t.Errorf("streaming message not cleared: %q", state.StreamingMessage)
	}
	if state.Messages[1].Content != "Hello" {
		t.Errorf("assistant content = %q", state.Messages[1].Content)
	}
}

func TestSendMessagePersistFailure(t *testing.T) {
	states := &failingStateStore{Memory: store.NewMemory(), writeErr: errors.New("disk full")}
	completer := &stubCompleter{model: "m", response: chat.Response{Content: "ok"}}
	session := NewSession("s-1", completer, states, nil, log.NewNop())

	if _, err := session.SendMessage(context.Background(), "hi", "", nil); err == nil {
		t.Fatal("expected error")
	}
	// The turn never reached the completer: the user-turn persist failed
	// first.
	if len(completer.sentMessages) != 0 {
		t.Errorf("completer invoked: %v", completer.sentMessages)
	}
}

func TestSendMessageToolCallsRecorded(t *testing.T) {
	completer := &stubCompleter{model: "m", response: chat.Response{
		Content: "Done.",
		ToolCalls: []chat.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: map[string]any{"location": "Oslo"}, Result: map[string]any{"condition": "Rainy"}},
		},
	}}
	session := NewSession("s-1", completer, store.NewMemory(), nil, log.NewNop())

	state, err := session.SendMessage(context.Background(), "weather?", "", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	assistant := state.Messages[1]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Name != "get_weather" {
		t.Errorf("tool calls = %+v", assistant.ToolCalls)
	}
}

func TestClearKeepsModel(t *testing.T) {
	ctx := context.Background()
	completer := &stubCompleter{model: "m", response: chat.Response{Content: "ok"}}
	session := NewSession("s-1", completer, store.NewMemory(), nil, log.NewNop())

	if _, err := session.SendMessage(ctx, "hi", "special-model", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	state, err := session.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(state.Messages) != 0 {
		t.Errorf("messages = %+v", state.Messages)
	}
	if state.Model != "special-model" {
		t.Errorf("model = %q", state.Model)
	}
}

func TestSetModel(t *testing.T) {
	completer := &stubCompleter{model: "m"}
	session := NewSession("s-1", completer, store.NewMemory(), nil, log.NewNop())

	state, err := session.SetModel(context.Background(), "other")
	if err != nil {
		t.Fatalf("SetModel: %v", err)
	}
	if state.Model != "other" || completer.model != "other" {
		t.Errorf("models = %q / %q", state.Model, completer.model)
	}
}

func TestLoadRestoresModel(t *testing.T) {
	ctx := context.Background()
	states := store.NewMemory()

	seed, err := json.Marshal(State{
		Messages:  []chat.Message{{ID: "m-1", Role: chat.RoleUser, Content: "old"}},
		SessionID: "s-1",
		Model:     "persisted-model",
	})
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	if err := states.WriteState(ctx, "s-1", seed); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	completer := &stubCompleter{model: "default-model"}
	session := NewSession("s-1", completer, states, nil, log.NewNop())

	state, err := session.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Model != "persisted-model" {
		t.Errorf("state model = %q", state.Model)
	}
	if completer.model != "persisted-model" {
		t.Errorf("completer model = %q", completer.model)
	}
	if len(state.Messages) != 1 || state.Messages[0].Content != "old" {
		t.Errorf("messages = %+v", state.Messages)
	}
}
