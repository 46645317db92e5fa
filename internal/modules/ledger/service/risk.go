package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"forex_bot/internal/models"
)

// CheckRiskControl обновляет P&L пары и проверяет два порога:
// плавающий убыток против floating_loss_threshold_pct и полное
// исчерпание аллокации (|realized+floating| >= allocated).
//
// Возвращает событие только при СВЕЖЕМ пробое; если флаг уже стоит,
// событие не дублируется. breached отражает состояние после проверки.
func (l *Ledger) CheckRiskControl(ctx context.Context, userID, strategy, pair string, floatingPnl, realizedPnl float64) (event *models.RiskEvent, breached bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.CheckRiskControl: %w", err)
		}
	}()

	l.mu.Lock()
	_, _, pr, lerr := l.lookupPair(userID, strategy, pair)
	if lerr != nil {
		l.mu.Unlock()
		return nil, false, lerr
	}
	pr.mu.Lock()
	l.mu.Unlock()
	defer pr.mu.Unlock()

	pr.row.FloatingPnl = floatingPnl
	pr.row.RealizedPnl = realizedPnl

	if pr.row.RiskBreached {
		// Липкий флаг: уже пробито, новое событие не пишем.
		if err = l.store.SavePairAllocation(ctx, &pr.row); err != nil {
			return nil, true, err
		}
		return nil, true, nil
	}

	if pr.row.AllocatedCapital > 0 {
		floatingLossPct := math.Abs(floatingPnl) / pr.row.AllocatedCapital * 100
		totalLoss := math.Abs(realizedPnl + floatingPnl)

		switch {
		case floatingLossPct >= pr.row.FloatingLossThresholdPct:
			event = &models.RiskEvent{
				PairAllocationID: pr.row.ID,
				EventType:        models.RiskEventFloatingLoss,
				TriggerValue:     floatingLossPct,
				ThresholdValue:   pr.row.FloatingLossThresholdPct,
				ActionTaken:      "CLOSE_ALL_TRADES",
				CreatedAt:        time.Now().UTC(),
			}
		case totalLoss >= pr.row.AllocatedCapital:
			event = &models.RiskEvent{
				PairAllocationID: pr.row.ID,
				EventType:        models.RiskEventCapitalExhaustion,
				TriggerValue:     totalLoss,
				ThresholdValue:   pr.row.AllocatedCapital,
				ActionTaken:      "CLOSE_ALL_TRADES",
				CreatedAt:        time.Now().UTC(),
			}
		}
	}

	if event != nil {
		pr.row.RiskBreached = true
		if err = l.store.SaveRiskEvent(ctx, event); err != nil {
			return nil, true, err
		}
		pr.lastEventID = event.ID
		log.Printf("[RISK] %s breach %s/%s/%s trigger=%.2f threshold=%.2f",
			event.EventType, userID, strategy, pair, event.TriggerValue, event.ThresholdValue)
	}

	if err = l.store.SavePairAllocation(ctx, &pr.row); err != nil {
		return nil, pr.row.RiskBreached, err
	}
	return event, pr.row.RiskBreached, nil
}

// RecordClosedTrades дописывает в последнее событие риска, сколько позиций
// реально закрыли после форс-сигнала.
func (l *Ledger) RecordClosedTrades(ctx context.Context, userID, strategy, pair string, closed int) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.RecordClosedTrades: %w", err)
		}
	}()

	l.mu.Lock()
	_, _, pr, lerr := l.lookupPair(userID, strategy, pair)
	if lerr != nil {
		l.mu.Unlock()
		return lerr
	}
	pr.mu.Lock()
	l.mu.Unlock()
	defer pr.mu.Unlock()

	if pr.lastEventID == 0 {
		return nil
	}
	return l.store.SetEventTradesClosed(ctx, pr.lastEventID, closed)
}

// ResetPairRisk снимает липкий флаг и обнуляет P&L пары. Ручная операция.
func (l *Ledger) ResetPairRisk(ctx context.Context, userID, strategy, pair string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.ResetPairRisk: %w", err)
		}
	}()

	l.mu.Lock()
	_, _, pr, lerr := l.lookupPair(userID, strategy, pair)
	if lerr != nil {
		l.mu.Unlock()
		return lerr
	}
	pr.mu.Lock()
	l.mu.Unlock()
	defer pr.mu.Unlock()

	pr.row.RiskBreached = false
	pr.row.FloatingPnl = 0
	pr.row.RealizedPnl = 0
	log.Printf("[RISK] reset %s/%s/%s", userID, strategy, pair)
	return l.store.SavePairAllocation(ctx, &pr.row)
}

// ResetAllRisks — админский массовый сброс по всем парам пользователя.
// Возвращает число сброшенных пар.
func (l *Ledger) ResetAllRisks(ctx context.Context, userID string) (count int, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.ResetAllRisks: %w", err)
		}
	}()

	type target struct{ strategy, pair string }
	var targets []target

	l.mu.Lock()
	ps, ok := l.portfolios[userID]
	if !ok {
		l.mu.Unlock()
		return 0, fmt.Errorf("portfolio %s: %w", userID, ErrAllocationNotFound)
	}
	for name, st := range ps.strategies {
		for pair, pr := range st.pairs {
			if pr.row.RiskBreached {
				targets = append(targets, target{name, pair})
			}
		}
	}
	l.mu.Unlock()

	for _, t := range targets {
		if err = l.ResetPairRisk(ctx, userID, t.strategy, t.pair); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// RiskStatus — read-only снимок пары для API и мониторинга.
func (l *Ledger) RiskStatus(ctx context.Context, userID, strategy, pair string) (st *models.RiskStatus, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.RiskStatus: %w", err)
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
	status := &models.RiskStatus{
		Pair:             pair,
		StrategyName:     strategy,
		AllocatedCapital: row.AllocatedCapital,
		UsedCapital:      row.UsedCapital,
		RealizedPnl:      row.RealizedPnl,
		FloatingPnl:      row.FloatingPnl,
		CumulativeLoss:   row.RealizedPnl + row.FloatingPnl,
		RiskBreached:     row.RiskBreached,
		CanTrade:         !row.RiskBreached && row.AvailableCapital() > 0,
	}
	if row.AllocatedCapital > 0 {
		status.FloatingLossPct = math.Abs(row.FloatingPnl) / row.AllocatedCapital * 100
		status.CapitalExhaustionPct = math.Abs(row.RealizedPnl+row.FloatingPnl) / row.AllocatedCapital * 100
	}
	return status, nil
}
