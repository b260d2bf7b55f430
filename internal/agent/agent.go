// Package agent owns per-session conversation state and serializes every
// operation against one session, including its persistence step. Each
// session behaves as a single-writer actor: a mutex held for the full
// logical operation replaces the hosted actor runtime the design assumes.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nebulacms/nebula/internal/chat"
	"github.com/nebulacms/nebula/internal/log"
)

// ErrEmptyMessage rejects blank or whitespace-only user messages.
var ErrEmptyMessage = errors.New("agent: message must not be empty")

// State is the full persisted conversation state for one session.
// StreamingMessage holds partial assistant output only while a streaming
// call is in flight; it is cleared on finalization and never survives a
// failed turn.
type State struct {
	Messages         []chat.Message `json:"messages"`
	SessionID        string         `json:"sessionId"`
	IsProcessing     bool           `json:"isProcessing"`
	StreamingMessage string         `json:"streamingMessage"`
	Model            string         `json:"model"`
}

// StateStore persists session state blobs. ReadState returns nil data and
// a nil error when no state exists for the session.
type StateStore interface {
	ReadState(ctx context.Context, sessionID string) ([]byte, error)
	WriteState(ctx context.Context, sessionID string, data []byte) error
	DeleteState(ctx context.Context, sessionID string) error
}

// ActivityRecorder marks a session as recently active after a completed
// turn. Failures are advisory and never fail the turn.
type ActivityRecorder interface {
	TouchSession(ctx context.Context, id string) error
}

// Completer is the conversation engine behind a session; satisfied by
// *chat.Bridge.
type Completer interface {
	ProcessMessage(ctx context.Context, message string, history []chat.Message, onChunk func(string)) (chat.Response, error)
	Model() string
	UpdateModel(model string)
}

// Session is the actor for one conversation. All exported methods take the
// session mutex for their full duration, so at most one operation runs per
// session at a time.
type Session struct {
	id       string
	bridge   Completer
	states   StateStore
	activity ActivityRecorder
	logger   log.Logger

	mu     sync.Mutex
	loaded bool
	state  State
}

// NewSession creates the actor for a session id. State is hydrated lazily
// on first use.
func NewSession(id string, bridge Completer, states StateStore, activity ActivityRecorder, logger log.Logger) *Session {
	return &Session{
		id:       id,
		bridge:   bridge,
		states:   states,
		activity: activity,
		logger:   logger.With("session", id),
	}
}

// load hydrates state from storage on first access. Callers hold s.mu.
// A load failure leaves loaded false so the next operation retries.
func (s *Session) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	data, err := s.states.ReadState(ctx, s.id)
	if err != nil {
		return fmt.Errorf("read session state: %w", err)
	}
	if data == nil {
		s.state = State{
			Messages:  []chat.Message{},
			SessionID: s.id,
			Model:     s.bridge.Model(),
		}
		s.loaded = true
		return nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}
	if state.Messages == nil {
		state.Messages = []chat.Message{}
	}
	s.state = state
	if state.Model != "" {
		s.bridge.UpdateModel(state.Model)
	}
	s.loaded = true
	return nil
}

// persist writes the current state. Callers hold s.mu.
func (s *Session) persist(ctx context.Context) error {
	data, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := s.states.WriteState(ctx, s.id, data); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

// State returns a snapshot of the current session state.
func (s *Session) State(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return State{}, err
	}
	return s.snapshot(), nil
}

// snapshot copies state so callers cannot alias the live message slice.
// Callers hold s.mu.
func (s *Session) snapshot() State {
	out := s.state
	out.Messages = make([]chat.Message, len(s.state.Messages))
	copy(out.Messages, s.state.Messages)
	return out
}

// SendMessage runs one conversation turn. A non-empty model switches the
// session's model first. When onChunk is non-nil the completion streams
// and fragments are forwarded as they arrive. On failure the processing
// flag is reset and no partial assistant message is persisted; chunks
// already forwarded to the caller are not recalled.
func (s *Session) SendMessage(ctx context.Context, text, model string, onChunk func(string)) (State, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return State{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return State{}, err
	}

	if model != "" && model != s.state.Model {
		s.state.Model = model
		s.bridge.UpdateModel(model)
	}

	s.state.Messages = append(s.state.Messages, chat.NewMessage(chat.RoleUser, text))
	s.state.IsProcessing = true
	if onChunk != nil {
		s.state.StreamingMessage = ""
	}
	if err := s.persist(ctx); err != nil {
		s.state.IsProcessing = false
		return State{}, err
	}

	sink := onChunk
	if onChunk != nil {
		sink = func(fragment string) {
			s.state.StreamingMessage += fragment
			onChunk(fragment)
		}
	}

	response, err := s.bridge.ProcessMessage(ctx, text, s.state.Messages, sink)
	if err != nil {
		s.state.IsProcessing = false
		s.state.StreamingMessage = ""
		if persistErr := s.persist(ctx); persistErr != nil {
			s.logger.Warn("failed to persist state after turn failure", "error", persistErr)
		}
		return State{}, fmt.Errorf("process message: %w", err)
	}

	s.state.Messages = append(s.state.Messages, chat.NewMessage(chat.RoleAssistant, response.Content, response.ToolCalls...))
	s.state.IsProcessing = false
	s.state.StreamingMessage = ""
	if err := s.persist(ctx); err != nil {
		return State{}, err
	}

	if s.activity != nil {
		if err := s.activity.TouchSession(ctx, s.id); err != nil {
			s.logger.Warn("failed to record session activity", "error", err)
		}
	}
	return s.snapshot(), nil
}

// Clear empties the message history. Registry metadata for the session is
// untouched.
func (s *Session) Clear(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return State{}, err
	}
	s.state.Messages = []chat.Message{}
	if err := s.persist(ctx); err != nil {
		return State{}, err
	}
	return s.snapshot(), nil
}

// SetModel switches the model for subsequent turns.
func (s *Session) SetModel(ctx context.Context, model string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return State{}, err
	}
	s.state.Model = model
	s.bridge.UpdateModel(model)
	if err := s.persist(ctx); err != nil {
		return State{}, err
	}
	return s.snapshot(), nil
}
