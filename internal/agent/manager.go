package agent

import (
	"context"
	"sync"

	"github.com/nebulacms/nebula/internal/chat"
	"github.com/nebulacms/nebula/internal/log"
)

// Manager hands out the single Session actor for each session id. Two
// sessions run independently, each with its own bridge so they can use
// different models concurrently.
type Manager struct {
	client       *chat.Client
	executor     chat.Executor
	states       StateStore
	activity     ActivityRecorder
	defaultModel string
	maxTokens    int
	logger       log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates the session manager.
func NewManager(client *chat.Client, executor chat.Executor, states StateStore, activity ActivityRecorder, defaultModel string, maxTokens int, logger log.Logger) *Manager {
	return &Manager{
		client:       client,
		executor:     executor,
		states:       states,
		activity:     activity,
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		logger:       logger,
		sessions:     make(map[string]*Session),
	}
}

// Session returns the actor for id, creating it on first use.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		return session
	}
	bridge := chat.NewBridge(m.client, m.executor, m.defaultModel, m.maxTokens, m.logger)
	session := NewSession(id, bridge, m.states, m.activity, m.logger)
	m.sessions[id] = session
	return session
}

// Remove drops the actor for id and deletes its persisted state.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	return m.states.DeleteState(ctx, id)
}
