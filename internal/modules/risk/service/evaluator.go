package service

import (
	"context"
	"errors"
	"fmt"

	"forex_bot/internal/models"
	ledger "forex_bot/internal/modules/ledger/service"
	metrics "forex_bot/internal/modules/metrics/service"
)

// Evaluator — тонкий слой политики над книгой капитала. Сам состояния
// не держит: читает и двигает PairAllocation через Ledger.
type Evaluator struct {
	ledger *ledger.Ledger
}

func NewEvaluator(l *ledger.Ledger) *Evaluator {
	return &Evaluator{ledger: l}
}

// UpdatePnl прогоняет свежий P&L пары через риск-контроль.
// На свежем пробое возвращает форс-сигнал CLOSE_ALL; blocked=true значит
// липкий флаг стоит и новые входы запрещены (свежий пробой или старый).
func (e *Evaluator) UpdatePnl(ctx context.Context, userID, strategy, pair string, floatingPnl, realizedPnl float64) (forced *models.Signal, blocked bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Evaluator.UpdatePnl: %w", err)
		}
	}()

	event, breached, err := e.ledger.CheckRiskControl(ctx, userID, strategy, pair, floatingPnl, realizedPnl)
	if err != nil {
		return nil, false, err
	}
	if event != nil {
		metrics.RiskBreaches.WithLabelValues(string(event.EventType)).Inc()
		return &models.Signal{
			Action: models.ActionCloseAll,
			Reason: fmt.Sprintf("risk control: %s (%.2f >= %.2f)", event.EventType, event.TriggerValue, event.ThresholdValue),
		}, true, nil
	}
	return nil, breached, nil
}

// CheckTradePermission — можно ли паре наращивать объём прямо сейчас.
// Отсутствие аллокации трактуем как запрет, а не как ошибку.
func (e *Evaluator) CheckTradePermission(ctx context.Context, userID, strategy, pair string) (ok bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Evaluator.CheckTradePermission: %w", err)
		}
	}()

	info, err := e.ledger.GetAllocationForTrading(ctx, userID, pair, strategy)
	if err != nil {
		if errors.Is(err, ledger.ErrAllocationNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.CanTrade, nil
}

// ValidateSignal — второй проход по сигналу самой стратегии: вход
// сверяется со свежим состоянием аллокации, закрытия проходят всегда.
func (e *Evaluator) ValidateSignal(ctx context.Context, userID, strategy, pair string, sig *models.Signal) (out *models.Signal, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Evaluator.ValidateSignal: %w", err)
		}
	}()

	if sig == nil || !sig.IsEntry() {
		return sig, nil
	}

	ok, err := e.CheckTradePermission(ctx, userID, strategy, pair)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &models.Signal{
			Action: models.ActionBlocked,
			Reason: fmt.Sprintf("entry %s rejected: trading forbidden on %s/%s", sig.Action, strategy, pair),
		}, nil
	}
	return sig, nil
}
