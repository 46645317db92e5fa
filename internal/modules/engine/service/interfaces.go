package service

import (
	"context"

	"forex_bot/internal/models"
)

// Коллабораторы ядра. Живые реализации сидят в мосте к терминалу,
// в тестах подставляются фейки.

// MarketData — источник котировок и текущего equity счёта.
type MarketData interface {
	IsConnected() bool
	// ok==false когда свечи по инструменту ещё нет
	LatestCandle(ctx context.Context, pair, timeframe string) (models.Candle, bool, error)
	AccountEquity(ctx context.Context) (float64, error)
}

// Execution — исполнитель ордеров.
type Execution interface {
	PlaceOrder(ctx context.Context, pair string, side models.Side, lotSize, takeProfit float64) (*models.OrderResult, error)
	// возвращает число закрытых позиций
	CloseAllPositions(ctx context.Context, pair string) (int, error)
}
