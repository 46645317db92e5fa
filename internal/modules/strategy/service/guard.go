package service

import (
	"context"
	"fmt"
	"log"

	"forex_bot/internal/models"
	risk "forex_bot/internal/modules/risk/service"
)

// Guarded — общая риск-обёртка вокруг любой стратегии.
// Порядок на тике жёсткий:
//  1. свежий P&L уходит в риск-контроль; пробой перебивает всё
//     форс-сигналом CLOSE_ALL, сама стратегия на этом тике не запускается;
//  2. липкий флаг без свежего пробоя — стратегию тоже не пускаем,
//     чтобы она не наращивала внутреннее состояние вслепую;
//  3. иначе сигнал стратегии прогоняется вторым проходом через валидацию
//     (вход сверяется со свежим состоянием аллокации).
type Guarded struct {
	inner    Strategy
	eval     *risk.Evaluator
	userID   string
	strategy string
	pair     string
}

func NewGuarded(inner Strategy, eval *risk.Evaluator, userID, pair string) *Guarded {
	return &Guarded{
		inner:    inner,
		eval:     eval,
		userID:   userID,
		strategy: inner.Name(),
		pair:     pair,
	}
}

func (g *Guarded) Evaluate(ctx context.Context, c models.Candle, floatingPnl, realizedPnl float64) (sig *models.Signal, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Guarded.Evaluate: %w", err)
		}
	}()

	forced, blocked, err := g.eval.UpdatePnl(ctx, g.userID, g.strategy, g.pair, floatingPnl, realizedPnl)
	if err != nil {
		return nil, err
	}
	if forced != nil {
		// Позиции будут закрыты, внутреннее состояние больше не актуально.
		g.inner.Reset()
		log.Printf("[GUARD] %s/%s forced close: %s", g.strategy, g.pair, forced.Reason)
		return forced, nil
	}
	if blocked {
		return nil, nil
	}

	return g.eval.ValidateSignal(ctx, g.userID, g.strategy, g.pair, g.inner.Evaluate(c, floatingPnl, realizedPnl))
}

func (g *Guarded) Reset()                 { g.inner.Reset() }
func (g *Guarded) Status() map[string]any { return g.inner.Status() }
func (g *Guarded) Name() string           { return g.strategy }

// ExtraSymbols пробрасывает парную подписку внутренней стратегии.
func (g *Guarded) ExtraSymbols() []string {
	if pf, ok := g.inner.(PairFeed); ok {
		return pf.ExtraSymbols()
	}
	return nil
}

func (g *Guarded) AddCandle(symbol string, c models.Candle) {
	if pf, ok := g.inner.(PairFeed); ok {
		pf.AddCandle(symbol, c)
	}
}
