package service

import "forex_bot/internal/models"

// Strategy — чистая машина состояний одной задачи. Никакого I/O:
// свеча и текущий P&L на входе, максимум один сигнал на выходе.
type Strategy interface {
	// nil когда тик не дал сигнала
	Evaluate(c models.Candle, floatingPnl, realizedPnl float64) *models.Signal

	Reset()
	Status() map[string]any
	Name() string
}

// PairFeed реализуют стратегии, которым нужны свечи дополнительных
// символов помимо основного инструмента задачи (парная торговля).
type PairFeed interface {
	ExtraSymbols() []string
	AddCandle(symbol string, c models.Candle)
}
