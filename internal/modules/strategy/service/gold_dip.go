package service

import (
	"fmt"
	"log"
	"math"
	"sync"

	"forex_bot/internal/indicators"
	"forex_bot/internal/models"
)

const StrategyGoldBuyDip = "gold_buy_dip"

type SetupState string

const (
	StateWaitingForTrigger SetupState = "WAITING_FOR_TRIGGER"
	StateWaitingForZScore  SetupState = "WAITING_FOR_ZSCORE"
	StateTradeExecuted     SetupState = "TRADE_EXECUTED"
)

// GoldDipConfig — полный набор ручек сеточной стратегии откупа провалов.
type GoldDipConfig struct {
	LotSize             float64
	PercentageThreshold float64 // % хода от экстремума, взводящий триггер
	ZScoreThresholdBuy  float64
	ZScoreThresholdSell float64
	ZScorePeriod        int
	LookbackCandles     int
	ZScoreWaitCandles   int // сколько свечей ждём подтверждения z-score

	UseGridTrading       bool
	MaxGridTrades        int
	UseGridPercent       bool
	GridPercent          float64 // шаг сетки в % от цены
	GridATRMultiplier    float64 // либо шаг в ATR
	ATRPeriod            int
	UseProgressiveLots   bool
	GridLotMultiplier    float64
	LotProgressionFactor float64

	UseTakeProfitPercent bool
	TakeProfitPercent    float64
	TakeProfitPoints     float64 // пункты, перевод в цену через /10000

	MaxDrawdownPercent float64
}

type gridLeg struct {
	Price     float64
	Direction models.Action
	LotSize   float64
	Level     int
}

// GoldDip ловит резкий ход от локального экстремума и откупает его сеткой
// против движения. WAITING_FOR_TRIGGER -> WAITING_FOR_ZSCORE ->
// TRADE_EXECUTED -> обратно.
type GoldDip struct {
	mu   sync.Mutex
	cfg  GoldDipConfig
	pair string

	candles     []models.Candle
	state       SetupState
	triggerDir  models.Action
	waitCandles int
	legs        []gridLeg

	allocatedCapital float64
	initialBalance   float64 // база для стоп-аута по просадке
}

// NewGoldDip. alloc может быть nil: тогда лот берётся из конфига,
// а стоп-аут по просадке не активен.
func NewGoldDip(cfg GoldDipConfig, pair string, alloc *models.AllocationInfo) *GoldDip {
	s := &GoldDip{
		cfg:   cfg,
		pair:  pair,
		state: StateWaitingForTrigger,
	}
	if alloc != nil {
		s.allocatedCapital = alloc.AllocatedCapital
		s.initialBalance = alloc.AllocatedCapital
		if alloc.SuggestedLotSize > 0 {
			s.cfg.LotSize = alloc.SuggestedLotSize
		}
	}
	return s
}

func (s *GoldDip) Name() string { return StrategyGoldBuyDip }

func (s *GoldDip) Evaluate(c models.Candle, floatingPnl, realizedPnl float64) *models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	// защита от мусора
	if c.Close <= 0 {
		return nil
	}
	s.addCandle(c)

	if s.drawdownExceeded(floatingPnl, realizedPnl) {
		s.state = StateWaitingForTrigger
		s.legs = nil
		return &models.Signal{
			Action: models.ActionCloseAll,
			Reason: "strategy max drawdown exceeded",
		}
	}

	switch s.state {
	case StateWaitingForTrigger:
		if dir := s.percentageTrigger(); dir != "" {
			s.state = StateWaitingForZScore
			s.triggerDir = dir
			s.waitCandles = 0
			log.Printf("[GOLD_DIP] %s trigger armed: %s", s.pair, dir)
		}

	case StateWaitingForZScore:
		s.waitCandles++
		if s.zscoreConfirmed() {
			s.state = StateTradeExecuted
			lot := s.positionSize()
			s.legs = append(s.legs, gridLeg{
				Price:     c.Close,
				Direction: s.triggerDir,
				LotSize:   lot,
				Level:     0,
			})
			log.Printf("[GOLD_DIP] %s initial leg: %s %.2f @ %.5f", s.pair, s.triggerDir, lot, c.Close)
			return &models.Signal{
				Action:     s.triggerDir,
				LotSize:    lot,
				TakeProfit: s.averageTakeProfit(),
				Reason:     "initial trade - z-score confirmed",
			}
		}
		if s.waitCandles >= s.cfg.ZScoreWaitCandles {
			// подтверждение не пришло, триггер сгорел
			s.state = StateWaitingForTrigger
			s.triggerDir = ""
		}

	case StateTradeExecuted:
		if !s.cfg.UseGridTrading {
			return nil
		}
		if s.gridExit(c.Close) {
			closed := len(s.legs)
			s.state = StateWaitingForTrigger
			s.legs = nil
			return &models.Signal{
				Action: models.ActionCloseAll,
				Reason: fmt.Sprintf("grid exit: %d legs closed", closed),
			}
		}
		if len(s.legs) < s.cfg.MaxGridTrades {
			last := s.legs[len(s.legs)-1]
			spacing := s.gridSpacing()
			adverse := (last.Direction == models.ActionBuy && c.Close <= last.Price-spacing) ||
				(last.Direction == models.ActionSell && c.Close >= last.Price+spacing)
			if adverse {
				level := len(s.legs)
				lot := s.gridLotSize(level)
				if adj := s.positionSize(); adj < lot {
					lot = adj
				}
				s.legs = append(s.legs, gridLeg{
					Price:     c.Close,
					Direction: last.Direction,
					LotSize:   lot,
					Level:     level,
				})
				log.Printf("[GOLD_DIP] %s grid leg %d: %s %.2f @ %.5f", s.pair, level+1, last.Direction, lot, c.Close)
				return &models.Signal{
					Action:     last.Direction,
					LotSize:    lot,
					TakeProfit: s.averageTakeProfit(),
					Reason:     fmt.Sprintf("grid trade level %d", level+1),
				}
			}
		}
	}

	return nil
}

func (s *GoldDip) addCandle(c models.Candle) {
	s.candles = append(s.candles, c)
	maxNeeded := s.cfg.LookbackCandles
	if s.cfg.ZScorePeriod > maxNeeded {
		maxNeeded = s.cfg.ZScorePeriod
	}
	if s.cfg.ATRPeriod > maxNeeded {
		maxNeeded = s.cfg.ATRPeriod
	}
	maxNeeded += 10
	if len(s.candles) > maxNeeded {
		s.candles = s.candles[len(s.candles)-maxNeeded:]
	}
}

// percentageTrigger смотрит ход текущего close от экстремумов закрытий
// за lookback окно. Рост от минимума взводит SELL, провал от максимума — BUY.
func (s *GoldDip) percentageTrigger() models.Action {
	if len(s.candles) < s.cfg.LookbackCandles {
		return ""
	}
	recent := s.candles[len(s.candles)-s.cfg.LookbackCandles:]
	high, low := recent[0].Close, recent[0].Close
	for _, c := range recent[1:] {
		if c.Close > high {
			high = c.Close
		}
		if c.Close < low {
			low = c.Close
		}
	}
	cur := s.candles[len(s.candles)-1].Close

	if low > 0 && (cur-low)/low*100 >= s.cfg.PercentageThreshold {
		return models.ActionSell
	}
	if high > 0 && (high-cur)/high*100 >= s.cfg.PercentageThreshold {
		return models.ActionBuy
	}
	return ""
}

func (s *GoldDip) zscoreConfirmed() bool {
	if len(s.candles) < s.cfg.ZScorePeriod {
		return false
	}
	closes := make([]float64, len(s.candles))
	for i, c := range s.candles {
		closes[i] = c.Close
	}
	z := indicators.ZScore(closes, s.cfg.ZScorePeriod)

	switch s.triggerDir {
	case models.ActionSell:
		return z >= s.cfg.ZScoreThresholdSell
	case models.ActionBuy:
		return z <= s.cfg.ZScoreThresholdBuy
	}
	return false
}

func (s *GoldDip) gridSpacing() float64 {
	if s.cfg.UseGridPercent {
		return s.candles[len(s.candles)-1].Close * s.cfg.GridPercent / 100
	}
	return indicators.ATR(s.candles, s.cfg.ATRPeriod) * s.cfg.GridATRMultiplier
}

func (s *GoldDip) gridLotSize(level int) float64 {
	if s.cfg.UseProgressiveLots {
		return s.cfg.LotSize * math.Pow(s.cfg.LotProgressionFactor, float64(level))
	}
	return s.cfg.LotSize * s.cfg.GridLotMultiplier
}

// positionSize — 1% выделенного капитала на сделку, не больше двух базовых лотов.
func (s *GoldDip) positionSize() float64 {
	if s.allocatedCapital <= 0 {
		return s.cfg.LotSize
	}
	riskPerTrade := s.allocatedCapital * 0.01
	lot := math.Min(riskPerTrade/1000, s.cfg.LotSize*2)
	return math.Max(0.01, lot)
}

// averageTakeProfit — тейк от средневзвешенной цены входа, по направлению
// первой ноги.
func (s *GoldDip) averageTakeProfit() float64 {
	if len(s.legs) == 0 {
		return 0
	}
	var totalLots, weighted float64
	for _, leg := range s.legs {
		totalLots += leg.LotSize
		weighted += leg.Price * leg.LotSize
	}
	if totalLots == 0 {
		return 0
	}
	avg := weighted / totalLots

	if s.legs[0].Direction == models.ActionBuy {
		if s.cfg.UseTakeProfitPercent {
			return avg * (1 + s.cfg.TakeProfitPercent/100)
		}
		return avg + s.cfg.TakeProfitPoints/10000
	}
	if s.cfg.UseTakeProfitPercent {
		return avg * (1 - s.cfg.TakeProfitPercent/100)
	}
	return avg - s.cfg.TakeProfitPoints/10000
}

func (s *GoldDip) gridExit(price float64) bool {
	if len(s.legs) == 0 {
		return false
	}
	if len(s.legs) >= s.cfg.MaxGridTrades {
		log.Printf("[GOLD_DIP] %s max grid legs reached: %d/%d", s.pair, len(s.legs), s.cfg.MaxGridTrades)
		return true
	}
	tp := s.averageTakeProfit()
	if tp == 0 {
		return false
	}
	if s.legs[0].Direction == models.ActionBuy && price >= tp {
		return true
	}
	if s.legs[0].Direction == models.ActionSell && price <= tp {
		return true
	}
	return false
}

// drawdownExceeded — стоп-аут уровня стратегии, работает независимо от
// риск-контроля книги. Без начального баланса проверка выключена.
func (s *GoldDip) drawdownExceeded(floatingPnl, realizedPnl float64) bool {
	if s.initialBalance <= 0 {
		return false
	}
	equity := s.initialBalance + realizedPnl + floatingPnl
	ddPct := (s.initialBalance - equity) / s.initialBalance * 100
	if ddPct >= s.cfg.MaxDrawdownPercent {
		log.Printf("[GOLD_DIP] %s drawdown limit exceeded: %.2f%% >= %.2f%%", s.pair, ddPct, s.cfg.MaxDrawdownPercent)
		return true
	}
	return false
}

func (s *GoldDip) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateWaitingForTrigger
	s.triggerDir = ""
	s.waitCandles = 0
	s.legs = nil
	s.candles = nil
}

func (s *GoldDip) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totalLots float64
	levels := make([]int, 0, len(s.legs))
	for _, leg := range s.legs {
		totalLots += leg.LotSize
		levels = append(levels, leg.Level)
	}
	return map[string]any{
		"name":              StrategyGoldBuyDip,
		"setup_state":       string(s.state),
		"trigger_direction": string(s.triggerDir),
		"candles_loaded":    len(s.candles),
		"grid_active":       len(s.legs) > 0,
		"grid_trades":       len(s.legs),
		"grid_levels":       levels,
		"total_lots":        totalLots,
		"initial_balance":   s.initialBalance,
	}
}
