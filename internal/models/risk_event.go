package models

import "time"

type RiskEventType string

const (
	RiskEventFloatingLoss      RiskEventType = "FLOATING_LOSS_BREACH"
	RiskEventCapitalExhaustion RiskEventType = "CAPITAL_EXHAUSTION"
)

// RiskEvent — неизменяемая запись аудита о срабатывании риск-контроля.
// Append-only; TradesClosed дописывается после фактического закрытия позиций.
type RiskEvent struct {
	ID               int64
	PairAllocationID int64
	EventType        RiskEventType
	TriggerValue     float64
	ThresholdValue   float64
	ActionTaken      string
	TradesClosed     int
	CreatedAt        time.Time
}
