package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryBuildsByName(t *testing.T) {
	s, err := New(StrategyGoldBuyDip, "XAUUSD", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyGoldBuyDip, s.Name())

	s, err = New(StrategyRSIPairs, "EURUSD", map[string]any{"symbol2": "GBPUSD"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyRSIPairs, s.Name())

	_, err = New("martingale", "XAUUSD", nil, nil)
	assert.Error(t, err)
}

func TestFactoryRequiresSecondSymbolForPairs(t *testing.T) {
	_, err := New(StrategyRSIPairs, "EURUSD", map[string]any{}, nil)
	assert.Error(t, err)
}

func TestFactoryCoercesConfigValues(t *testing.T) {
	// JSON отдаёт числа как float64, API может прислать int — оба валидны
	s, err := New(StrategyRSIPairs, "EURUSD", map[string]any{
		"symbol2":        "GBPUSD",
		"rsi_period":     float64(7),
		"rsi_overbought": 80,
		"mode":           "negative",
	}, nil)
	require.NoError(t, err)

	rp, ok := s.(*RSIPairs)
	require.True(t, ok)
	assert.Equal(t, 7, rp.cfg.RSIPeriod)
	assert.Equal(t, 80.0, rp.cfg.RSIOverbought)
}
