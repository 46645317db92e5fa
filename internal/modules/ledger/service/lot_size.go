package service

import (
	"strings"

	"forex_bot/internal/helper"
)

// SuggestLotSize — советный расчёт лота от свободного капитала.
// risk = available * riskPct%; lot = risk / (stopPips * pipValue * 100).
// Константы пары: металлы шире и по стопу, и по стоимости пипса.
// Это подсказка для стратегии, не обязательство исполнения.
func SuggestLotSize(pair string, availableCapital, riskPct float64) float64 {
	if availableCapital <= 0 {
		return 0.01
	}
	if riskPct <= 0 {
		riskPct = 2.0
	}

	stopPips := 50.0
	pipValue := 0.1
	if strings.HasPrefix(pair, "XAU") || strings.HasPrefix(pair, "XAG") {
		stopPips = 100.0
		pipValue = 1.0
	}

	riskAmount := availableCapital * riskPct / 100
	lot := riskAmount / (stopPips * pipValue * 100)
	if lot < 0.01 {
		lot = 0.01
	}
	return helper.RoundLot(lot, 0.01)
}
