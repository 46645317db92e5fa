package helper

import (
	"math"
	"strings"
)

// NormTF приводит таймфрейм к нотации терминала: "1m"/"m1" -> "M1",
// "60m"/"1h" -> "H1" и так далее. Неизвестное значение возвращаем как есть,
// в верхнем регистре.
func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToUpper(raw))
	switch s {
	case "1M", "M1":
		return "M1"
	case "5M", "M5":
		return "M5"
	case "15M", "M15":
		return "M15"
	case "30M", "M30":
		return "M30"
	case "60M", "1H", "H1":
		return "H1"
	case "4H", "H4":
		return "H4"
	case "1D", "D1":
		return "D1"
	default:
		return s
	}
}

// RoundLot округляет объём вниз до шага лота брокера.
func RoundLot(lot, step float64) float64 {
	if step <= 0 {
		return lot
	}
	steps := math.Floor(lot/step + 1e-12)
	return steps * step
}

// TaskKeyParts разбирает ключ задачи "sessionID_pair_timeframe_strategy".
// "_" встречается только в имени стратегии, поэтому режем с начала.
func TaskKeyParts(key string) (sessionID, pair, timeframe, strategy string, ok bool) {
	parts := strings.SplitN(key, "_", 4)
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	sessionID, pair, timeframe, strategy = parts[0], parts[1], parts[2], parts[3]
	if sessionID == "" || pair == "" || timeframe == "" || strategy == "" {
		return "", "", "", "", false
	}
	return sessionID, pair, timeframe, strategy, true
}
