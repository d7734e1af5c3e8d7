package service

import (
	stdctx "context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/kvs"
)

// Transaction is one session's open transaction with its options and the
// strand serializing shared access.
type Transaction struct {
	ID     string
	Option TransactionOption
	tx     *kvs.Transaction
	strand *kvs.Strand
}

// Handle returns the underlying transaction. Use Strand from concurrent
// goroutines instead.
func (t *Transaction) Handle() *kvs.Transaction { return t.tx }

// Strand returns the serializing view over the transaction.
func (t *Transaction) Strand() *kvs.Strand { return t.strand }

// Session is one client session: an id, its open transaction and the cancel
// source its running requests poll.
type Session struct {
	ID string

	mu     sync.Mutex
	tx     *Transaction
	cancel stdctx.CancelFunc
	ctx    stdctx.Context
}

// Context returns the session's cancel source.
func (s *Session) Context() stdctx.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// CancelRequests cancels the running requests of the session and arms a
// fresh cancel source for the next one.
func (s *Session) CancelRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	s.ctx, s.cancel = stdctx.WithCancel(stdctx.Background())
}

// Transaction returns the open transaction, nil outside one.
func (s *Session) Transaction() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

func (s *Session) setTransaction(tx *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = tx
}

// SessionManager owns the sessions by id.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Create opens a session and returns it.
func (m *SessionManager) Create() *Session {
	ctx, cancel := stdctx.WithCancel(stdctx.Background())
	s := &Session{ID: uuid.NewString(), ctx: ctx, cancel: cancel}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get resolves a session id.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.Errorf("session %s does not exist", id)
	}
	return s, nil
}

// Close removes a session, rolling back any open transaction.
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	if tx := s.Transaction(); tx != nil {
		_ = tx.tx.Rollback()
		s.setTransaction(nil)
	}
	s.CancelRequests()
}
