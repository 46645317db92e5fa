package models

// TradingTask — единица работы планировщика.
// Ключ: (session, pair, timeframe, strategy).
type TradingTask struct {
	TaskID       string         `json:"task_id"`
	SessionID    string         `json:"session_id"`
	Pair         string         `json:"pair"`
	Timeframe    string         `json:"timeframe"`
	StrategyName string         `json:"strategy_name"`
	Config       map[string]any `json:"config"`
	IsActive     bool           `json:"is_active"`
}
