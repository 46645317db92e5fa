package service

import (
	"context"
	"sync"

	"forex_bot/internal/models"
)

// SessionStore зеркалит реестр сессий в долговременное хранилище.
type SessionStore interface {
	SaveSession(ctx context.Context, s *models.TradingSession) error
	LoadSession(ctx context.Context, sessionID string) (*models.TradingSession, error)
	ActiveSessions(ctx context.Context) ([]models.TradingSession, error)
}

// MemorySessionStore — для тестов и запуска без БД.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.TradingSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]models.TradingSession)}
}

func (m *MemorySessionStore) SaveSession(_ context.Context, s *models.TradingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = *s.Clone()
	return nil
}

func (m *MemorySessionStore) LoadSession(_ context.Context, sessionID string) (*models.TradingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemorySessionStore) ActiveSessions(_ context.Context) ([]models.TradingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TradingSession
	for _, s := range m.sessions {
		if s.IsActive {
			out = append(out, *s.Clone())
		}
	}
	return out, nil
}
