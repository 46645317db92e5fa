package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"forex_bot/internal/helper"
	"forex_bot/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidPair     = errors.New("invalid trading pair")
)

// PortfolioSeeder заводит капитал под свежую сессию.
type PortfolioSeeder interface {
	GetOrCreatePortfolio(ctx context.Context, userID string, totalCapital float64) (models.Portfolio, error)
}

// Registry — реестр торговых сессий в памяти под одним мьютексом,
// каждая мутация зеркалится в SessionStore и обновляет last_activity.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*models.TradingSession

	store        SessionStore
	book         PortfolioSeeder
	allowedPairs map[string]struct{}

	defaultCapital float64
}

func NewRegistry(store SessionStore, book PortfolioSeeder, allowedPairs []string, defaultCapital float64) *Registry {
	allowed := make(map[string]struct{}, len(allowedPairs))
	for _, p := range allowedPairs {
		allowed[strings.ToUpper(p)] = struct{}{}
	}
	return &Registry{
		sessions:       make(map[string]*models.TradingSession),
		store:          store,
		book:           book,
		allowedPairs:   allowed,
		defaultCapital: defaultCapital,
	}
}

// Create заводит новую сессию со свежим идентификатором.
func (r *Registry) Create(ctx context.Context, userID string) (s *models.TradingSession, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Registry.Create: %w", err)
		}
	}()

	now := time.Now().UTC()
	session := &models.TradingSession{
		SessionID:        uuid.NewString(),
		UserID:           userID,
		ActiveStrategies: make(map[string]map[string]any),
		IsActive:         true,
		CreatedAt:        now,
		LastActivity:     now,
	}

	r.mu.Lock()
	r.sessions[session.SessionID] = session
	r.mu.Unlock()

	// портфель под сессию: стартовый капитал из конфига,
	// дальше его подрихтует сверка с equity брокера
	if r.book != nil {
		if _, err := r.book.GetOrCreatePortfolio(ctx, session.SessionID, r.defaultCapital); err != nil {
			log.Printf("[SESSIONS] seed portfolio %s: %v", session.SessionID, err)
		}
	}

	if err := r.store.SaveSession(ctx, session); err != nil {
		log.Printf("[SESSIONS] save session %s: %v", session.SessionID, err)
	}
	log.Printf("[SESSIONS] created %s for user %s", session.SessionID, userID)
	return session.Clone(), nil
}

// Get возвращает копию сессии и освежает last_activity.
func (r *Registry) Get(ctx context.Context, sessionID string) (*models.TradingSession, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("Registry.Get: %s: %w", sessionID, ErrSessionNotFound)
	}
	s.LastActivity = time.Now().UTC()
	cp := s.Clone()
	r.mu.Unlock()
	return cp, nil
}

// AddPair включает инструмент в сессию. Неизвестный инструмент — отказ.
func (r *Registry) AddPair(ctx context.Context, sessionID, pair string) error {
	pair = strings.ToUpper(pair)
	if _, ok := r.allowedPairs[pair]; !ok {
		return fmt.Errorf("Registry.AddPair: %s: %w", pair, ErrInvalidPair)
	}
	return r.mutate(ctx, sessionID, "Registry.AddPair", func(s *models.TradingSession) {
		for _, p := range s.ActivePairs {
			if p == pair {
				return
			}
		}
		s.ActivePairs = append(s.ActivePairs, pair)
	})
}

func (r *Registry) RemovePair(ctx context.Context, sessionID, pair string) error {
	pair = strings.ToUpper(pair)
	return r.mutate(ctx, sessionID, "Registry.RemovePair", func(s *models.TradingSession) {
		kept := s.ActivePairs[:0]
		for _, p := range s.ActivePairs {
			if p != pair {
				kept = append(kept, p)
			}
		}
		s.ActivePairs = kept
	})
}

func (r *Registry) AddTimeframe(ctx context.Context, sessionID, timeframe string) error {
	timeframe = helper.NormTF(timeframe)
	return r.mutate(ctx, sessionID, "Registry.AddTimeframe", func(s *models.TradingSession) {
		for _, tf := range s.ActiveTimeframes {
			if tf == timeframe {
				return
			}
		}
		s.ActiveTimeframes = append(s.ActiveTimeframes, timeframe)
	})
}

func (r *Registry) SetStrategyConfig(ctx context.Context, sessionID, strategyName string, cfg map[string]any) error {
	return r.mutate(ctx, sessionID, "Registry.SetStrategyConfig", func(s *models.TradingSession) {
		if s.ActiveStrategies == nil {
			s.ActiveStrategies = make(map[string]map[string]any)
		}
		s.ActiveStrategies[strategyName] = cfg
	})
}

func (r *Registry) SetBrokerConnected(ctx context.Context, sessionID string, connected bool) error {
	return r.mutate(ctx, sessionID, "Registry.SetBrokerConnected", func(s *models.TradingSession) {
		s.BrokerConnected = connected
	})
}

// Restore кладёт поднятую из БД сессию обратно в реестр.
func (r *Registry) Restore(s *models.TradingSession) {
	r.mu.Lock()
	r.sessions[s.SessionID] = s.Clone()
	r.mu.Unlock()
}

// ActiveSessions — копии всех живых сессий.
func (r *Registry) ActiveSessions() []*models.TradingSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.TradingSession
	for _, s := range r.sessions {
		if s.IsActive {
			out = append(out, s.Clone())
		}
	}
	return out
}

// CleanupExpired выселяет сессии без активности дольше ttl.
// Возвращает число выселенных.
func (r *Registry) CleanupExpired(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for id, s := range r.sessions {
		if now.Sub(s.LastActivity) > ttl {
			delete(r.sessions, id)
			count++
			log.Printf("[SESSIONS] expired %s (idle %s)", id, now.Sub(s.LastActivity).Truncate(time.Second))
		}
	}
	return count
}

func (r *Registry) mutate(ctx context.Context, sessionID, op string, fn func(*models.TradingSession)) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %s: %w", op, sessionID, ErrSessionNotFound)
	}
	fn(s)
	s.LastActivity = time.Now().UTC()
	cp := s.Clone()
	r.mu.Unlock()

	if err := r.store.SaveSession(ctx, cp); err != nil {
		log.Printf("[SESSIONS] save session %s: %v", sessionID, err)
	}
	return nil
}
