package models

// Иерархия капитала: Portfolio -> StrategyAllocation -> PairAllocation.
// Это чистые value-типы; персистентный слой их только копирует.

// Portfolio is the per-identity root of the capital hierarchy.
// Invariant: AllocatedCapital + AvailableCapital == TotalCapital.
type Portfolio struct {
	ID               int64
	UserID           string
	TotalCapital     float64
	AllocatedCapital float64
	AvailableCapital float64
	IsActive         bool
}

// StrategyAllocation — кусок портфеля, выданный одной стратегии.
// Invariant: сумма PairAllocation.AllocatedCapital <= AllocatedCapital.
type StrategyAllocation struct {
	ID               int64
	PortfolioID      int64
	StrategyName     string
	AllocationPct    float64
	AllocatedCapital float64
	UsedCapital      float64
	RealizedPnl      float64
	FloatingPnl      float64
	IsActive         bool
}

// PairAllocation — кусок стратегии, закреплённый за инструментом.
// RiskBreached липкий: сбрасывается только явным reset.
type PairAllocation struct {
	ID                       int64
	StrategyAllocationID     int64
	Pair                     string
	AllocatedCapital         float64
	UsedCapital              float64
	RealizedPnl              float64
	FloatingPnl              float64
	FloatingLossThresholdPct float64
	IsActive                 bool
	RiskBreached             bool
}

// AvailableCapital is what the pair may still commit to new volume.
func (p *PairAllocation) AvailableCapital() float64 {
	return p.AllocatedCapital - p.UsedCapital
}

// RiskStatus is a read-only snapshot used by the risk evaluator and the API layer.
type RiskStatus struct {
	Pair                 string
	StrategyName         string
	AllocatedCapital     float64
	UsedCapital          float64
	RealizedPnl          float64
	FloatingPnl          float64
	CumulativeLoss       float64
	FloatingLossPct      float64
	CapitalExhaustionPct float64
	RiskBreached         bool
	CanTrade             bool
}

// AllocationInfo — срез для торговых решений (см. GetAllocationForTrading).
type AllocationInfo struct {
	AllocatedCapital         float64
	UsedCapital              float64
	AvailableCapital         float64
	RealizedPnl              float64
	FloatingPnl              float64
	RiskBreached             bool
	CanTrade                 bool
	SuggestedLotSize         float64
	FloatingLossThresholdPct float64
}
