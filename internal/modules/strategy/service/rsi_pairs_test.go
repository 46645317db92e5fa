package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex_bot/internal/models"
)

func rsiPairsTestConfig() RSIPairsConfig {
	return RSIPairsConfig{
		Mode:          "negative",
		Symbol1:       "EURUSD",
		Symbol2:       "GBPUSD",
		RSIPeriod:     5,
		ATRPeriod:     3,
		RSIOverbought: 70,
		RSIOversold:   30,
		MaxTradeHours: 2,
		BaseLotSize:   1.0,
	}
}

func feedFalling(s *RSIPairs, n int) *models.Signal {
	var first *models.Signal
	for i := 0; i < n; i++ {
		close := 100.0 - float64(i)
		s.AddCandle("GBPUSD", candle(close))
		if sig := s.Evaluate(candle(close), 0, 0); sig != nil && first == nil {
			first = sig
		}
	}
	return first
}

func TestRSIPairsBothOversoldOpensLong(t *testing.T) {
	s := NewRSIPairs(rsiPairsTestConfig(), nil)
	assert.Equal(t, []string{"GBPUSD"}, s.ExtraSymbols())

	// падение на обоих плечах: RSI обоих уходит в 0 < 30
	sig := feedFalling(s, 7)
	require.NotNil(t, sig)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, 1.0, sig.LotSize)

	st := s.Status()
	assert.Equal(t, true, st["in_trade"])
	assert.Equal(t, "long", st["trade_direction"])

	// пока сделка открыта, новых входов нет
	s.AddCandle("GBPUSD", candle(92))
	assert.Nil(t, s.Evaluate(candle(92), -10, 0))
}

func TestRSIPairsSilentUntilBothLegsWarm(t *testing.T) {
	s := NewRSIPairs(rsiPairsTestConfig(), nil)

	// второго плеча нет — стратегия молчит при любом RSI первого
	for i := 0; i < 10; i++ {
		assert.Nil(t, s.Evaluate(candle(100-float64(i)), 0, 0))
	}
	assert.Equal(t, false, s.Status()["in_trade"])
}

func TestRSIPairsTimeLimitExit(t *testing.T) {
	s := NewRSIPairs(rsiPairsTestConfig(), nil)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NotNil(t, feedFalling(s, 7))

	// лимит 2 часа ещё не вышел
	base = base.Add(time.Hour)
	s.AddCandle("GBPUSD", candle(93))
	assert.Nil(t, s.Evaluate(candle(93), 0, 0))

	base = base.Add(90 * time.Minute)
	s.AddCandle("GBPUSD", candle(93))
	sig := s.Evaluate(candle(93), 0, 0)
	require.NotNil(t, sig)
	assert.Equal(t, models.ActionCloseAll, sig.Action)
	assert.Equal(t, "exit: TIME_LIMIT", sig.Reason)
	assert.Equal(t, false, s.Status()["in_trade"])
}

func TestRSIPairsPositiveModeIsInert(t *testing.T) {
	cfg := rsiPairsTestConfig()
	cfg.Mode = "positive"
	s := NewRSIPairs(cfg, nil)

	assert.Nil(t, feedFalling(s, 10))
	assert.Equal(t, false, s.Status()["in_trade"])
}

func TestHedgeRatioClamps(t *testing.T) {
	// ATR в пипсах: 10 против 50 -> 0.2 снизу
	assert.InDelta(t, 0.2, hedgeRatio("EURUSD", "GBPUSD", 0.0010, 0.0050), 1e-9)
	// 0.0050/0.0010 -> 5.0 сверху
	assert.InDelta(t, 5.0, hedgeRatio("EURUSD", "GBPUSD", 0.0050, 0.0010), 1e-9)
	// разный размер пипса нормализуется: JPY-пара живёт в 0.01
	assert.InDelta(t, 1.0, hedgeRatio("EURUSD", "USDJPY", 0.0010, 0.10), 1e-9)
	assert.Equal(t, 1.0, hedgeRatio("EURUSD", "GBPUSD", 0.0010, 0))
}

func TestPipSizeByInstrumentClass(t *testing.T) {
	assert.Equal(t, 0.0001, pipSize("EURUSD"))
	assert.Equal(t, 0.01, pipSize("USDJPY"))
	assert.Equal(t, 0.01, pipSize("XAUUSD"))
	assert.Equal(t, 1.0, pipSize("BTCUSD"))
}
