package assistant

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
)

// Service keeps the live assistant sessions. Sessions share nothing with
// each other; the registry only maps identifiers to them.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	policy   ResponsePolicy
	opts     Options
}

// NewService bootstraps the in-memory session registry. A nil policy falls
// back to the random canned responder.
func NewService(policy ResponsePolicy, opts Options) *Service {
	if policy == nil {
		policy = NewCannedPolicy(nil)
	}
	return &Service{
		sessions: make(map[string]*Session),
		policy:   policy,
		opts:     opts,
	}
}

// CreateSession starts a session pre-seeded with the greetings.
func (s *Service) CreateSession(_ context.Context) (*Session, error) {
	session := newSession(uuid.NewString(), s.policy, s.opts)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	log.Printf("[assistant] session=%s created", session.ID())
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// CloseSession ends a session and discards its transcript.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	log.Printf("[assistant] session=%s closed", sessionID)
	return nil
}

// ListSessions returns summaries ordered by creation time.
func (s *Service) ListSessions(_ context.Context) []chat.Summary {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	summaries := make([]chat.Summary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Close ends every session. Used on shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
