package service

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"forex_bot/internal/indicators"
	"forex_bot/internal/models"
)

const StrategyRSIPairs = "rsi_pairs"

// RSIPairsConfig. Mode "positive" оставлен заглушкой: семантика не
// определена продуктом, стратегия в этом режиме просто молчит.
type RSIPairsConfig struct {
	Mode          string
	Symbol1       string
	Symbol2       string
	RSIPeriod     int
	ATRPeriod     int
	RSIOverbought float64
	RSIOversold   float64
	MaxTradeHours float64
	BaseLotSize   float64
}

// RSIPairs торгует связку из двух инструментов: в negative-режиме
// одновременная перекупленность обоих RSI шортит оба плеча,
// одновременная перепроданность — лонгует. Объём второго плеча
// масштабируется hedge ratio из ATR в пипсах.
type RSIPairs struct {
	mu  sync.Mutex
	cfg RSIPairsConfig

	s1Candles []models.Candle
	s2Candles []models.Candle

	inTrade    bool
	direction  string // "long" | "short"
	entryTime  time.Time
	s1Lots     float64
	s2Lots     float64
	s1EntryPx  float64
	s2EntryPx  float64

	allocatedCapital float64

	now func() time.Time // подменяется в тестах
}

func NewRSIPairs(cfg RSIPairsConfig, alloc *models.AllocationInfo) *RSIPairs {
	s := &RSIPairs{
		cfg: cfg,
		now: time.Now,
	}
	if alloc != nil {
		s.allocatedCapital = alloc.AllocatedCapital
	}
	return s
}

func (s *RSIPairs) Name() string { return StrategyRSIPairs }

// ExtraSymbols: раннер обязан кормить стратегию свечами второго символа.
func (s *RSIPairs) ExtraSymbols() []string { return []string{s.cfg.Symbol2} }

func (s *RSIPairs) AddCandle(symbol string, c models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCandle(symbol, c)
}

func (s *RSIPairs) appendCandle(symbol string, c models.Candle) {
	maxNeeded := s.cfg.RSIPeriod
	if s.cfg.ATRPeriod > maxNeeded {
		maxNeeded = s.cfg.ATRPeriod
	}
	maxNeeded += 10

	switch symbol {
	case s.cfg.Symbol1:
		s.s1Candles = append(s.s1Candles, c)
		if len(s.s1Candles) > maxNeeded {
			s.s1Candles = s.s1Candles[len(s.s1Candles)-maxNeeded:]
		}
	case s.cfg.Symbol2:
		s.s2Candles = append(s.s2Candles, c)
		if len(s.s2Candles) > maxNeeded {
			s.s2Candles = s.s2Candles[len(s.s2Candles)-maxNeeded:]
		}
	}
}

// Evaluate получает свечи основного инструмента задачи (Symbol1);
// второй символ приходит через AddCandle.
func (s *RSIPairs) Evaluate(c models.Candle, floatingPnl, realizedPnl float64) *models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Close <= 0 {
		return nil
	}
	s.appendCandle(s.cfg.Symbol1, c)

	if len(s.s1Candles) < s.cfg.RSIPeriod+1 || len(s.s2Candles) < s.cfg.RSIPeriod+1 {
		return nil
	}

	if s.inTrade {
		if reason := s.exitReason(); reason != "" {
			s.inTrade = false
			s.entryTime = time.Time{}
			return &models.Signal{
				Action: models.ActionCloseAll,
				Reason: "exit: " + reason,
			}
		}
		return nil
	}

	s1RSI, s2RSI := s.bothRSI()
	s1ATR := indicators.ATR(s.s1Candles, s.cfg.ATRPeriod)
	s2ATR := indicators.ATR(s.s2Candles, s.cfg.ATRPeriod)
	if s1ATR <= 0 || s2ATR <= 0 {
		return nil
	}

	direction := s.entryDirection(s1RSI, s2RSI)
	if direction == "" {
		return nil
	}

	s1Lots, s2Lots := s.lotSizes(s1ATR, s2ATR)
	s.inTrade = true
	s.direction = direction
	s.entryTime = s.now()
	s.s1Lots = s1Lots
	s.s2Lots = s2Lots
	s.s1EntryPx = c.Close
	s.s2EntryPx = s.s2Candles[len(s.s2Candles)-1].Close

	log.Printf("[RSI_PAIRS] entry %s %s(%.2f) + %s(%.2f)", direction, s.cfg.Symbol1, s1Lots, s.cfg.Symbol2, s2Lots)

	action := models.ActionSell
	if direction == "long" {
		action = models.ActionBuy
	}
	return &models.Signal{
		Action:  action,
		LotSize: s1Lots,
		Reason:  fmt.Sprintf("rsi pairs %s: RSI1=%.1f, RSI2=%.1f", direction, s1RSI, s2RSI),
	}
}

func (s *RSIPairs) bothRSI() (float64, float64) {
	s1 := make([]float64, len(s.s1Candles))
	for i, c := range s.s1Candles {
		s1[i] = c.Close
	}
	s2 := make([]float64, len(s.s2Candles))
	for i, c := range s.s2Candles {
		s2[i] = c.Close
	}
	return indicators.RSI(s1, s.cfg.RSIPeriod), indicators.RSI(s2, s.cfg.RSIPeriod)
}

func (s *RSIPairs) entryDirection(s1RSI, s2RSI float64) string {
	switch s.cfg.Mode {
	case "negative":
		if s1RSI > s.cfg.RSIOverbought && s2RSI > s.cfg.RSIOverbought {
			return "short"
		}
		if s1RSI < s.cfg.RSIOversold && s2RSI < s.cfg.RSIOversold {
			return "long"
		}
	case "positive":
		// Семантика positive-режима не определена, вход не генерируем.
	}
	return ""
}

func (s *RSIPairs) exitReason() string {
	if s.entryTime.IsZero() {
		return ""
	}
	if s.now().Sub(s.entryTime).Hours() >= s.cfg.MaxTradeHours {
		return "TIME_LIMIT"
	}
	return ""
}

// pipSize подбирает размер пипса по классу инструмента.
func pipSize(symbol string) float64 {
	symbol = strings.ToUpper(symbol)
	switch {
	case strings.Contains(symbol, "JPY"):
		return 0.01
	case strings.HasPrefix(symbol, "XAU"), strings.HasPrefix(symbol, "XAG"),
		strings.Contains(symbol, "GOLD"), strings.Contains(symbol, "SILVER"):
		return 0.01
	case strings.Contains(symbol, "BTC"), strings.Contains(symbol, "ETH"):
		return 1.0
	default:
		return 0.0001
	}
}

// hedgeRatio = ATR1/ATR2 в пипсах, с жёсткими границами [0.2, 5.0].
func hedgeRatio(symbol1, symbol2 string, s1ATR, s2ATR float64) float64 {
	if s2ATR <= 0 {
		return 1.0
	}
	s1Pips := s1ATR / pipSize(symbol1)
	s2Pips := s2ATR / pipSize(symbol2)
	if s2Pips <= 0 {
		return 1.0
	}
	return math.Max(0.2, math.Min(5.0, s1Pips/s2Pips))
}

func (s *RSIPairs) lotSizes(s1ATR, s2ATR float64) (float64, float64) {
	base := s.positionSize()
	s2Lots := base * hedgeRatio(s.cfg.Symbol1, s.cfg.Symbol2, s1ATR, s2ATR)

	clamp := func(v float64) float64 { return math.Max(0.01, math.Min(10.0, v)) }
	return clamp(base), clamp(s2Lots)
}

func (s *RSIPairs) positionSize() float64 {
	if s.allocatedCapital <= 0 {
		return s.cfg.BaseLotSize
	}
	riskPerTrade := s.allocatedCapital * 0.01
	return math.Max(0.01, math.Min(riskPerTrade/1000, s.cfg.BaseLotSize*2))
}

func (s *RSIPairs) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTrade = false
	s.direction = ""
	s.entryTime = time.Time{}
	s.s1Lots, s.s2Lots = 0, 0
	s.s1EntryPx, s.s2EntryPx = 0, 0
	s.s1Candles = nil
	s.s2Candles = nil
}

func (s *RSIPairs) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := ""
	if !s.entryTime.IsZero() {
		entry = s.entryTime.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"name":            StrategyRSIPairs,
		"mode":            s.cfg.Mode,
		"symbols":         s.cfg.Symbol1 + "/" + s.cfg.Symbol2,
		"in_trade":        s.inTrade,
		"trade_direction": s.direction,
		"entry_time":      entry,
		"s1_candles":      len(s.s1Candles),
		"s2_candles":      len(s.s2Candles),
		"lot_size_s1":     s.s1Lots,
		"lot_size_s2":     s.s2Lots,
	}
}
