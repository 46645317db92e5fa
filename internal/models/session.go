package models

import "time"

// TradingSession — накопленное состояние активаций клиента:
// какие инструменты/таймфреймы/стратегии он включил.
type TradingSession struct {
	SessionID        string                    `json:"session_id"`
	UserID           string                    `json:"user_id"`
	ActivePairs      []string                  `json:"active_pairs"`
	ActiveTimeframes []string                  `json:"active_timeframes"`
	ActiveStrategies map[string]map[string]any `json:"active_strategies"`
	IsActive         bool                      `json:"is_active"`
	BrokerConnected  bool                      `json:"broker_connected"`
	CreatedAt        time.Time                 `json:"created_at"`
	LastActivity     time.Time                 `json:"last_activity"`
}

// Clone делает глубокую копию, чтобы реестр не отдавал наружу свои слайсы.
func (s *TradingSession) Clone() *TradingSession {
	cp := *s
	cp.ActivePairs = append([]string(nil), s.ActivePairs...)
	cp.ActiveTimeframes = append([]string(nil), s.ActiveTimeframes...)
	cp.ActiveStrategies = make(map[string]map[string]any, len(s.ActiveStrategies))
	for name, conf := range s.ActiveStrategies {
		inner := make(map[string]any, len(conf))
		for k, v := range conf {
			inner[k] = v
		}
		cp.ActiveStrategies[name] = inner
	}
	return &cp
}
