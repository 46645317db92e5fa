package service

import (
	"context"
	"fmt"
	"log"
	"sync"

	"forex_bot/internal/models"
)

// Книга капитала: Portfolio -> StrategyAllocation -> PairAllocation.
// Вся иерархия живёт в памяти, каждая мутация зеркалится в Store.
//
// Порядок блокировок строгий: сначала Ledger.mu, потом pairState.mu.
// Обратный порядок запрещён. Мутации строки пары сериализуются её
// собственным мьютексом, чтобы две задачи на одной (стратегия, пара)
// не потеряли обновление used_capital.

type pairState struct {
	mu          sync.Mutex
	row         models.PairAllocation
	lastEventID int64
}

type strategyState struct {
	row   models.StrategyAllocation
	pairs map[string]*pairState
}

type portfolioState struct {
	row        models.Portfolio
	strategies map[string]*strategyState
}

// Ledger ...
type Ledger struct {
	mu         sync.Mutex
	portfolios map[string]*portfolioState
	store      Store

	riskPct        float64 // доля аллокации под риск при расчёте лота
	defaultLossPct float64
}

func NewLedger(store Store, riskPct, floatingLossPct float64) *Ledger {
	if riskPct <= 0 {
		riskPct = 2.0
	}
	if floatingLossPct <= 0 {
		floatingLossPct = 20.0
	}
	return &Ledger{
		portfolios:     make(map[string]*portfolioState),
		store:          store,
		riskPct:        riskPct,
		defaultLossPct: floatingLossPct,
	}
}

// GetOrCreatePortfolio лениво заводит портфель под identity.
// totalCapital используется только при создании.
func (l *Ledger) GetOrCreatePortfolio(ctx context.Context, userID string, totalCapital float64) (p models.Portfolio, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.GetOrCreatePortfolio: %w", err)
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	ps, ok := l.portfolios[userID]
	if !ok {
		ps = &portfolioState{
			row: models.Portfolio{
				UserID:           userID,
				TotalCapital:     totalCapital,
				AvailableCapital: totalCapital,
				IsActive:         true,
			},
			strategies: make(map[string]*strategyState),
		}
		if err = l.store.SavePortfolio(ctx, &ps.row); err != nil {
			return models.Portfolio{}, err
		}
		l.portfolios[userID] = ps
		log.Printf("[LEDGER] portfolio created user=%s total=%.2f", userID, totalCapital)
	}
	return ps.row, nil
}

// AddStrategyCapital переносит свободный капитал портфеля в стратегию.
// Повторный вызов по той же стратегии докидывает сверху.
func (l *Ledger) AddStrategyCapital(ctx context.Context, userID, strategy string, amount float64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.AddStrategyCapital: %w", err)
		}
	}()

	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ps, ok := l.portfolios[userID]
	if !ok {
		return fmt.Errorf("portfolio %s: %w", userID, ErrAllocationNotFound)
	}
	if amount > ps.row.AvailableCapital {
		return fmt.Errorf("need %.2f, available %.2f: %w", amount, ps.row.AvailableCapital, ErrInsufficientFunds)
	}

	st, ok := ps.strategies[strategy]
	if !ok {
		st = &strategyState{
			row: models.StrategyAllocation{
				PortfolioID:  ps.row.ID,
				StrategyName: strategy,
				IsActive:     true,
			},
			pairs: make(map[string]*pairState),
		}
		ps.strategies[strategy] = st
	}

	ps.row.AvailableCapital -= amount
	ps.row.AllocatedCapital += amount
	st.row.AllocatedCapital += amount
	if ps.row.TotalCapital > 0 {
		st.row.AllocationPct = st.row.AllocatedCapital / ps.row.TotalCapital * 100
	}

	if err = l.store.SavePortfolio(ctx, &ps.row); err != nil {
		return err
	}
	if err = l.store.SaveStrategyAllocation(ctx, &st.row); err != nil {
		return err
	}
	log.Printf("[LEDGER] +%.2f -> %s/%s (allocated=%.2f)", amount, userID, strategy, st.row.AllocatedCapital)
	return nil
}

// RemoveStrategyCapital возвращает капитал стратегии обратно в портфель.
// Снять можно только то, что не раздано парам. Осушенная стратегия удаляется.
func (l *Ledger) RemoveStrategyCapital(ctx context.Context, userID, strategy string, amount float64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.RemoveStrategyCapital: %w", err)
		}
	}()

	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ps, st, err := l.lookupStrategy(userID, strategy)
	if err != nil {
		return err
	}

	free := st.row.AllocatedCapital - sumPairAllocated(st)
	if amount > free {
		return fmt.Errorf("need %.2f, unassigned %.2f: %w", amount, free, ErrInsufficientFunds)
	}

	st.row.AllocatedCapital -= amount
	ps.row.AllocatedCapital -= amount
	ps.row.AvailableCapital += amount
	if ps.row.TotalCapital > 0 {
		st.row.AllocationPct = st.row.AllocatedCapital / ps.row.TotalCapital * 100
	}

	if err = l.store.SavePortfolio(ctx, &ps.row); err != nil {
		return err
	}
	if st.row.AllocatedCapital == 0 {
		if err = l.store.DeleteStrategyAllocation(ctx, st.row.ID); err != nil {
			return err
		}
		delete(ps.strategies, strategy)
		log.Printf("[LEDGER] strategy %s/%s drained, removed", userID, strategy)
		return nil
	}
	return l.store.SaveStrategyAllocation(ctx, &st.row)
}

// AllocateToPair закрепляет часть капитала стратегии за инструментом.
// lossThresholdPct <= 0 означает дефолтный порог плавающего убытка.
func (l *Ledger) AllocateToPair(ctx context.Context, userID, strategy, pair string, amount, lossThresholdPct float64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.AllocateToPair: %w", err)
		}
	}()

	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, st, err := l.lookupStrategy(userID, strategy)
	if err != nil {
		return err
	}

	free := st.row.AllocatedCapital - sumPairAllocated(st)
	if amount > free {
		return fmt.Errorf("need %.2f, unassigned %.2f: %w", amount, free, ErrInsufficientFunds)
	}

	pr, ok := st.pairs[pair]
	if !ok {
		if lossThresholdPct <= 0 {
			lossThresholdPct = l.defaultLossPct
		}
		pr = &pairState{row: models.PairAllocation{
			StrategyAllocationID:     st.row.ID,
			Pair:                     pair,
			AllocatedCapital:         amount,
			FloatingLossThresholdPct: lossThresholdPct,
			IsActive:                 true,
		}}
		if err = l.store.SavePairAllocation(ctx, &pr.row); err != nil {
			return err
		}
		st.pairs[pair] = pr
		log.Printf("[LEDGER] pair %s/%s/%s allocated %.2f (threshold %.1f%%)", userID, strategy, pair, amount, lossThresholdPct)
		return nil
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.row.RiskBreached {
		return fmt.Errorf("pair %s: %w", pair, ErrRiskBreached)
	}
	pr.row.AllocatedCapital += amount
	return l.store.SavePairAllocation(ctx, &pr.row)
}

// UpdateUsedCapital двигает used_capital пары. op: "add" | "remove".
// add проверяет свободный остаток и липкий риск-флаг; remove не уходит ниже нуля.
// При отказе состояние не меняется.
func (l *Ledger) UpdateUsedCapital(ctx context.Context, userID, strategy, pair string, amount float64, op string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.UpdateUsedCapital: %w", err)
		}
	}()

	if amount < 0 {
		return fmt.Errorf("amount must be non-negative, got %.2f", amount)
	}

	l.mu.Lock()
	_, st, pr, lerr := l.lookupPair(userID, strategy, pair)
	if lerr != nil {
		l.mu.Unlock()
		return lerr
	}
	pr.mu.Lock()

	switch op {
	case "add":
		if pr.row.RiskBreached {
			pr.mu.Unlock()
			l.mu.Unlock()
			return fmt.Errorf("pair %s: %w", pair, ErrRiskBreached)
		}
		if amount > pr.row.AvailableCapital() {
			pr.mu.Unlock()
			l.mu.Unlock()
			return fmt.Errorf("need %.2f, available %.2f: %w", amount, pr.row.AvailableCapital(), ErrInsufficientFunds)
		}
		pr.row.UsedCapital += amount
		st.row.UsedCapital += amount
	case "remove":
		released := amount
		if released > pr.row.UsedCapital {
			released = pr.row.UsedCapital
		}
		pr.row.UsedCapital -= released
		st.row.UsedCapital -= released
	default:
		pr.mu.Unlock()
		l.mu.Unlock()
		return fmt.Errorf("unknown op %q", op)
	}

	pairCopy := pr.row
	stratCopy := st.row
	l.mu.Unlock()

	// Зеркалим под pr.mu, чтобы порядок записей по строке совпадал с порядком мутаций.
	err = l.store.SavePairAllocation(ctx, &pairCopy)
	pr.mu.Unlock()
	if err != nil {
		return err
	}
	return l.store.SaveStrategyAllocation(ctx, &stratCopy)
}

// GetAllocationForTrading — срез пары для торгового решения.
// Отсутствие аллокации это запрет на торговлю, а не нулевой капитал.
func (l *Ledger) GetAllocationForTrading(ctx context.Context, userID, pair, strategy string) (info *models.AllocationInfo, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.GetAllocationForTrading: %w", err)
		}
	}()

	l.mu.Lock()
	_, _, pr, lerr := l.lookupPair(userID, strategy, pair)
	if lerr != nil {
		l.mu.Unlock()
		return nil, lerr
	}
	pr.mu.Lock()
	l.mu.Unlock()
	defer pr.mu.Unlock()

	row := pr.row
	available := row.AvailableCapital()
	return &models.AllocationInfo{
		AllocatedCapital:         row.AllocatedCapital,
		UsedCapital:              row.UsedCapital,
		AvailableCapital:         available,
		RealizedPnl:              row.RealizedPnl,
		FloatingPnl:              row.FloatingPnl,
		RiskBreached:             row.RiskBreached,
		CanTrade:                 !row.RiskBreached && available > 0,
		SuggestedLotSize:         SuggestLotSize(pair, available, l.riskPct),
		FloatingLossThresholdPct: row.FloatingLossThresholdPct,
	}, nil
}

// SettleClose фиксирует результат после закрытия всех позиций пары:
// плавающий P&L становится реализованным, занятый капитал освобождается.
func (l *Ledger) SettleClose(ctx context.Context, userID, strategy, pair string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.SettleClose: %w", err)
		}
	}()

	l.mu.Lock()
	_, st, pr, lerr := l.lookupPair(userID, strategy, pair)
	if lerr != nil {
		l.mu.Unlock()
		return lerr
	}
	pr.mu.Lock()

	settled := pr.row.FloatingPnl
	released := pr.row.UsedCapital
	pr.row.RealizedPnl += settled
	pr.row.FloatingPnl = 0
	pr.row.UsedCapital = 0
	st.row.RealizedPnl += settled
	st.row.UsedCapital -= released
	if st.row.UsedCapital < 0 {
		st.row.UsedCapital = 0
	}

	pairCopy := pr.row
	stratCopy := st.row
	l.mu.Unlock()

	err = l.store.SavePairAllocation(ctx, &pairCopy)
	pr.mu.Unlock()
	if err != nil {
		return err
	}
	return l.store.SaveStrategyAllocation(ctx, &stratCopy)
}

// ReconcileDynamicCapital подтягивает total_capital к фактическому equity брокера.
// Занятое не трогаем; свободное пересчитывается и не уходит ниже нуля.
func (l *Ledger) ReconcileDynamicCapital(ctx context.Context, userID string, equity float64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.ReconcileDynamicCapital: %w", err)
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	ps, ok := l.portfolios[userID]
	if !ok {
		return fmt.Errorf("portfolio %s: %w", userID, ErrAllocationNotFound)
	}
	ps.row.TotalCapital = equity
	available := equity - ps.row.AllocatedCapital
	if available < 0 {
		available = 0
	}
	ps.row.AvailableCapital = available
	return l.store.SavePortfolio(ctx, &ps.row)
}

// Restore поднимает книгу из хранилища после рестарта.
func (l *Ledger) Restore(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.Restore: %w", err)
		}
	}()

	snap, err := l.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byPortfolioID := make(map[int64]*portfolioState)
	byStrategyID := make(map[int64]*strategyState)

	l.portfolios = make(map[string]*portfolioState, len(snap.Portfolios))
	for _, p := range snap.Portfolios {
		ps := &portfolioState{row: p, strategies: make(map[string]*strategyState)}
		l.portfolios[p.UserID] = ps
		byPortfolioID[p.ID] = ps
	}
	for _, s := range snap.Strategies {
		ps, ok := byPortfolioID[s.PortfolioID]
		if !ok {
			log.Printf("[LEDGER] orphan strategy allocation id=%d, skipped", s.ID)
			continue
		}
		st := &strategyState{row: s, pairs: make(map[string]*pairState)}
		ps.strategies[s.StrategyName] = st
		byStrategyID[s.ID] = st
	}
	for _, p := range snap.Pairs {
		st, ok := byStrategyID[p.StrategyAllocationID]
		if !ok {
			log.Printf("[LEDGER] orphan pair allocation id=%d, skipped", p.ID)
			continue
		}
		st.pairs[p.Pair] = &pairState{row: p}
	}
	log.Printf("[LEDGER] restored %d portfolios", len(l.portfolios))
	return nil
}

// lookupStrategy ожидает, что l.mu уже взят.
func (l *Ledger) lookupStrategy(userID, strategy string) (*portfolioState, *strategyState, error) {
	ps, ok := l.portfolios[userID]
	if !ok {
		return nil, nil, fmt.Errorf("portfolio %s: %w", userID, ErrAllocationNotFound)
	}
	st, ok := ps.strategies[strategy]
	if !ok {
		return nil, nil, fmt.Errorf("strategy %s/%s: %w", userID, strategy, ErrAllocationNotFound)
	}
	return ps, st, nil
}

// lookupPair ожидает, что l.mu уже взят.
func (l *Ledger) lookupPair(userID, strategy, pair string) (*portfolioState, *strategyState, *pairState, error) {
	ps, st, err := l.lookupStrategy(userID, strategy)
	if err != nil {
		return nil, nil, nil, err
	}
	pr, ok := st.pairs[pair]
	if !ok {
		return nil, nil, nil, fmt.Errorf("pair %s/%s/%s: %w", userID, strategy, pair, ErrAllocationNotFound)
	}
	return ps, st, pr, nil
}

func sumPairAllocated(st *strategyState) float64 {
	var sum float64
	for _, pr := range st.pairs {
		sum += pr.row.AllocatedCapital
	}
	return sum
}
