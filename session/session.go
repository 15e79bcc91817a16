// Package session ties the per-conversation pieces together: each Session
// owns its TaskQueue, ContextAggregator and ProcessingAgent as plain values —
// never process-wide globals — so concurrent conversations stay fully
// isolated. The Manager is a process-local registry of live sessions.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxlane/duet/agent"
	"github.com/voxlane/duet/aggregator"
	"github.com/voxlane/duet/core"
	"github.com/voxlane/duet/queue"
)

// Session bundles the shared state and the background worker for one
// conversation. The external conversational loop holds a Session and uses
// Queue/Context directly or the Delegate/Collect helpers.
type Session struct {
	ID         string
	Queue      *queue.TaskQueue
	Context    *aggregator.ContextAggregator
	Agent      *agent.ProcessingAgent
	Supervisor *agent.Supervisor
}

// Delegate pushes a deferred task and marks the conversation as waiting on
// it, returning the task id and the filler message to speak meanwhile.
func (s *Session) Delegate(taskType core.TaskType, query string, optFns ...func(*queue.PushOptions)) (taskID, filler string) {
	// Type-specific stock filler first so explicit options can override it.
	fns := append([]func(*queue.PushOptions){
		queue.WithFillerMessage(core.FillerFor(taskType)),
	}, optFns...)

	taskID = s.Queue.Push(taskType, query, fns...)
	task, _ := s.Queue.Get(taskID)
	s.Context.SetWaiting(taskID, task.FillerMessage)
	return taskID, task.FillerMessage
}

// Collect returns the result of the task the conversation is waiting on once
// it is terminal, clearing the waiting slot. done is false while the task is
// still pending or in progress.
func (s *Session) Collect(taskID string) (result any, errMsg string, done bool) {
	task, ok := s.Queue.Get(taskID)
	if !ok {
		// Unknown id: nothing to wait for, release the handshake.
		s.Context.ClearWaiting()
		return nil, "", true
	}
	if !task.Terminal() {
		return nil, "", false
	}
	s.Context.ClearWaiting()
	return task.Result, task.Error, true
}

// Close stops the background worker and supervisor. Safe to call once per
// session at conversation end.
func (s *Session) Close() error {
	if s.Supervisor != nil {
		s.Supervisor.Stop()
	}
	return s.Agent.Stop()
}

// Factory builds the per-session pieces. Wired by the root facade.
type Factory func(sessionID string) *Session

// Manager is a process-local registry of live sessions. Safe for concurrent
// use.
type Manager struct {
	mu       sync.Mutex
	factory  Factory
	sessions map[string]*Session
}

// NewManager constructs a Manager around a session factory.
func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory, sessions: make(map[string]*Session)}
}

// Open creates and starts the session for an id, erroring if it already
// exists.
func (m *Manager) Open(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session %s already open", sessionID)
	}
	sess := m.factory(sessionID)
	if err := sess.Agent.Start(ctx); err != nil {
		return nil, err
	}
	if sess.Supervisor != nil {
		if err := sess.Supervisor.Start(ctx); err != nil {
			_ = sess.Agent.Stop()
			return nil, err
		}
	}
	m.sessions[sessionID] = sess
	return sess, nil
}

// Get returns a live session, false if unknown.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// End closes and discards a session. All of its state is dropped; sessions
// are ephemeral by design.
func (m *Manager) End(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return sess.Close()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
