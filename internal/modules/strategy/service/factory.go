package service

import (
	"fmt"

	"forex_bot/internal/models"
)

// New собирает стратегию по имени из сырого конфига задачи.
// Неизвестные ключи игнорируются, пропущенные добиваются дефолтами.
func New(name, pair string, cfg map[string]any, alloc *models.AllocationInfo) (Strategy, error) {
	switch name {
	case StrategyGoldBuyDip:
		return NewGoldDip(GoldDipConfig{
			LotSize:             cfgFloat(cfg, "lot_size", 0.01),
			PercentageThreshold: cfgFloat(cfg, "percentage_threshold", 2.0),
			ZScoreThresholdBuy:  cfgFloat(cfg, "zscore_threshold_buy", -3.0),
			ZScoreThresholdSell: cfgFloat(cfg, "zscore_threshold_sell", 3.0),
			ZScorePeriod:        cfgInt(cfg, "zscore_period", 20),
			LookbackCandles:     cfgInt(cfg, "lookback_candles", 50),
			ZScoreWaitCandles:   cfgInt(cfg, "zscore_wait_candles", 5),

			UseGridTrading:       cfgBool(cfg, "use_grid_trading", true),
			MaxGridTrades:        cfgInt(cfg, "max_grid_trades", 5),
			UseGridPercent:       cfgBool(cfg, "use_grid_percent", true),
			GridPercent:          cfgFloat(cfg, "grid_percent", 0.5),
			GridATRMultiplier:    cfgFloat(cfg, "grid_atr_multiplier", 1.0),
			ATRPeriod:            cfgInt(cfg, "atr_period", 14),
			UseProgressiveLots:   cfgBool(cfg, "use_progressive_lots", false),
			GridLotMultiplier:    cfgFloat(cfg, "grid_lot_multiplier", 1.0),
			LotProgressionFactor: cfgFloat(cfg, "lot_progression_factor", 1.2),

			UseTakeProfitPercent: cfgBool(cfg, "use_take_profit_percent", true),
			TakeProfitPercent:    cfgFloat(cfg, "take_profit_percent", 1.0),
			TakeProfitPoints:     cfgFloat(cfg, "take_profit", 100),

			MaxDrawdownPercent: cfgFloat(cfg, "max_drawdown_percent", 50.0),
		}, pair, alloc), nil

	case StrategyRSIPairs:
		symbol2 := cfgString(cfg, "symbol2", "")
		if symbol2 == "" {
			return nil, fmt.Errorf("strategy %s: symbol2 is required", name)
		}
		return NewRSIPairs(RSIPairsConfig{
			Mode:          cfgString(cfg, "mode", "negative"),
			Symbol1:       cfgString(cfg, "symbol1", pair),
			Symbol2:       symbol2,
			RSIPeriod:     cfgInt(cfg, "rsi_period", 14),
			ATRPeriod:     cfgInt(cfg, "atr_period", 5),
			RSIOverbought: cfgFloat(cfg, "rsi_overbought", 75.0),
			RSIOversold:   cfgFloat(cfg, "rsi_oversold", 25.0),
			MaxTradeHours: cfgFloat(cfg, "max_trade_hours", 2400.0),
			BaseLotSize:   cfgFloat(cfg, "base_lot_size", 1.0),
		}, alloc), nil
	}

	return nil, fmt.Errorf("unknown strategy %q", name)
}

// Конфиг приходит из JSON, числа там обычно float64, но от API может
// прилететь что угодно — приводим мягко.

func cfgFloat(cfg map[string]any, key string, def float64) float64 {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

func cfgInt(cfg map[string]any, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func cfgBool(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

func cfgString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}
