package service

import (
	"context"
	"sync"

	"forex_bot/internal/models"
)

// Snapshot — плоский слепок всей книги для восстановления после рестарта.
type Snapshot struct {
	Portfolios []models.Portfolio
	Strategies []models.StrategyAllocation
	Pairs      []models.PairAllocation
}

// Store зеркалит каждую мутацию книги в долговременное хранилище.
// SaveX присваивает ID, если он нулевой; иначе это upsert по ID.
type Store interface {
	SavePortfolio(ctx context.Context, p *models.Portfolio) error
	SaveStrategyAllocation(ctx context.Context, s *models.StrategyAllocation) error
	DeleteStrategyAllocation(ctx context.Context, id int64) error
	SavePairAllocation(ctx context.Context, p *models.PairAllocation) error
	SaveRiskEvent(ctx context.Context, e *models.RiskEvent) error
	SetEventTradesClosed(ctx context.Context, id int64, closed int) error
	LoadAll(ctx context.Context) (*Snapshot, error)
}

// MemoryStore — хранилище в памяти, для тестов и запуска без БД.
type MemoryStore struct {
	mu         sync.Mutex
	seq        int64
	portfolios map[int64]models.Portfolio
	strategies map[int64]models.StrategyAllocation
	pairs      map[int64]models.PairAllocation
	events     map[int64]models.RiskEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[int64]models.Portfolio),
		strategies: make(map[int64]models.StrategyAllocation),
		pairs:      make(map[int64]models.PairAllocation),
		events:     make(map[int64]models.RiskEvent),
	}
}

func (m *MemoryStore) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *MemoryStore) SavePortfolio(_ context.Context, p *models.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextID()
	}
	m.portfolios[p.ID] = *p
	return nil
}

func (m *MemoryStore) SaveStrategyAllocation(_ context.Context, s *models.StrategyAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextID()
	}
	m.strategies[s.ID] = *s
	return nil
}

func (m *MemoryStore) DeleteStrategyAllocation(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strategies, id)
	return nil
}

func (m *MemoryStore) SavePairAllocation(_ context.Context, p *models.PairAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextID()
	}
	m.pairs[p.ID] = *p
	return nil
}

func (m *MemoryStore) SaveRiskEvent(_ context.Context, e *models.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = m.nextID()
	}
	m.events[e.ID] = *e
	return nil
}

func (m *MemoryStore) SetEventTradesClosed(_ context.Context, id int64, closed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil
	}
	ev.TradesClosed = closed
	m.events[id] = ev
	return nil
}

func (m *MemoryStore) LoadAll(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &Snapshot{}
	for _, p := range m.portfolios {
		snap.Portfolios = append(snap.Portfolios, p)
	}
	for _, s := range m.strategies {
		snap.Strategies = append(snap.Strategies, s)
	}
	for _, p := range m.pairs {
		snap.Pairs = append(snap.Pairs, p)
	}
	return snap, nil
}

// Events возвращает все записанные события риска, по порядку ID.
// Используется в тестах.
func (m *MemoryStore) Events() []models.RiskEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RiskEvent, 0, len(m.events))
	for i := int64(1); i <= m.seq; i++ {
		if ev, ok := m.events[i]; ok {
			out = append(out, ev)
		}
	}
	return out
}
