package service

import (
	"context"
	"errors"
	"log"
	"time"

	"forex_bot/internal/models"
	ledger "forex_bot/internal/modules/ledger/service"
	metrics "forex_bot/internal/modules/metrics/service"
)

// Оценка маржи под один ордер. Стандартный лот, плечо в расчёт не берём:
// резерв консервативный, освобождается целиком на закрытии.
const marginPerLot = 1000.0

// runLoop — тело задачи. Ошибки итерации не фатальны: лог и бэкофф.
// Цикл завершается только по сброшенному флагу или отмене контекста.
func (e *Engine) runLoop(ctx context.Context, t *task) {
	log.Printf("[ENGINE] loop %s running", t.TaskID)
	defer log.Printf("[ENGINE] loop %s done", t.TaskID)

	for t.active.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := e.iterate(ctx, t); err != nil {
			log.Printf("[ENGINE] %s: %v", t.TaskID, err)
			metrics.TaskErrors.WithLabelValues(t.Pair).Inc()
			if !sleepCtx(ctx, e.cfg.ErrorBackoff) {
				return
			}
			continue
		}

		if !sleepCtx(ctx, e.cfg.PollInterval) {
			return
		}
	}
}

func (e *Engine) iterate(ctx context.Context, t *task) error {
	if !e.market.IsConnected() {
		// мост лежит: не ошибка, просто ждём следующего опроса
		e.health.SetBridgeConnected(false)
		return nil
	}
	e.health.SetBridgeConnected(true)

	candle, ok, err := e.market.LatestCandle(ctx, t.Pair, t.Timeframe)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	e.health.TouchTick(time.Now())
	metrics.Ticks.WithLabelValues(t.Pair, t.Timeframe).Inc()

	// парным стратегиям скармливаем свечи дополнительных символов
	for _, sym := range t.stg.ExtraSymbols() {
		c2, ok, err := e.market.LatestCandle(ctx, sym, t.Timeframe)
		if err != nil {
			log.Printf("[ENGINE] %s extra symbol %s: %v", t.TaskID, sym, err)
			continue
		}
		if ok {
			t.stg.AddCandle(sym, c2)
		}
	}

	floating, realized := e.pnlSnapshot(ctx, t)

	sig, err := t.stg.Evaluate(ctx, candle, floating, realized)
	if err != nil {
		return err
	}
	if sig == nil {
		return nil
	}

	metrics.Signals.WithLabelValues(t.StrategyName, string(sig.Action)).Inc()
	log.Printf("[ENGINE] %s signal %s lot=%.2f: %s", t.TaskID, sig.Action, sig.LotSize, sig.Reason)

	return e.execute(ctx, t, sig)
}

func (e *Engine) pnlSnapshot(ctx context.Context, t *task) (floating, realized float64) {
	info, err := e.book.GetAllocationForTrading(ctx, t.SessionID, t.Pair, t.StrategyName)
	if err != nil {
		if !errors.Is(err, ledger.ErrAllocationNotFound) {
			log.Printf("[ENGINE] %s pnl snapshot: %v", t.TaskID, err)
		}
		return 0, 0
	}
	return info.FloatingPnl, info.RealizedPnl
}

// execute маршрутизирует сигнал исполнителю и отражает результат в книге.
// Ошибки исполнения не валят цикл: следующая попытка на следующем тике.
func (e *Engine) execute(ctx context.Context, t *task, sig *models.Signal) error {
	switch sig.Action {
	case models.ActionBuy, models.ActionSell:
		res, err := e.exec.PlaceOrder(ctx, t.Pair, sig.Action.Side(), sig.LotSize, sig.TakeProfit)
		if err != nil {
			metrics.Orders.WithLabelValues(t.Pair, string(sig.Action), "failed").Inc()
			log.Printf("[ENGINE] %s place order: %v", t.TaskID, err)
			return nil
		}
		metrics.Orders.WithLabelValues(t.Pair, string(sig.Action), "filled").Inc()

		if err := e.book.UpdateUsedCapital(ctx, t.SessionID, t.StrategyName, t.Pair, sig.LotSize*marginPerLot, "add"); err != nil {
			log.Printf("[ENGINE] %s reserve capital: %v", t.TaskID, err)
		}
		e.n.Sendf("🎯 %s %s %.2f lot @ %.5f (ticket %d)\n%s",
			sig.Action, t.Pair, res.Volume, res.FillPrice, res.Ticket, sig.Reason)

	case models.ActionCloseAll:
		closed, err := e.exec.CloseAllPositions(ctx, t.Pair)
		if err != nil {
			metrics.Orders.WithLabelValues(t.Pair, "CLOSE_ALL", "failed").Inc()
			log.Printf("[ENGINE] %s close all: %v", t.TaskID, err)
			return nil
		}
		metrics.Orders.WithLabelValues(t.Pair, "CLOSE_ALL", "filled").Inc()

		if err := e.book.SettleClose(ctx, t.SessionID, t.StrategyName, t.Pair); err != nil {
			if !errors.Is(err, ledger.ErrAllocationNotFound) {
				log.Printf("[ENGINE] %s settle close: %v", t.TaskID, err)
			}
		}
		if err := e.book.RecordClosedTrades(ctx, t.SessionID, t.StrategyName, t.Pair, closed); err != nil {
			if !errors.Is(err, ledger.ErrAllocationNotFound) {
				log.Printf("[ENGINE] %s record closed: %v", t.TaskID, err)
			}
		}
		e.n.Sendf("⛔ CLOSE_ALL %s: %d positions closed\n%s", t.Pair, closed, sig.Reason)

	case models.ActionBlocked:
		// вход отклонён риск-контролем, только лог
		log.Printf("[ENGINE] %s blocked: %s", t.TaskID, sig.Reason)
	}
	return nil
}

// sleepCtx: false когда контекст погас раньше таймера.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
