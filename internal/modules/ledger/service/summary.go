package service

import (
	"context"
	"fmt"
	"sort"
)

// Сводка по портфелю для API-слоя и нотификаций.

type PairSummary struct {
	Pair         string  `json:"pair"`
	Allocated    float64 `json:"allocated_capital"`
	Used         float64 `json:"used_capital"`
	RealizedPnl  float64 `json:"realized_pnl"`
	FloatingPnl  float64 `json:"floating_pnl"`
	RiskBreached bool    `json:"risk_breached"`
}

type StrategySummary struct {
	StrategyName string        `json:"strategy_name"`
	Allocated    float64       `json:"allocated_capital"`
	Used         float64       `json:"used_capital"`
	RealizedPnl  float64       `json:"realized_pnl"`
	FloatingPnl  float64       `json:"floating_pnl"`
	Pairs        []PairSummary `json:"pairs"`
}

type PortfolioSummary struct {
	UserID     string            `json:"user_id"`
	Total      float64           `json:"total_capital"`
	Allocated  float64           `json:"allocated_capital"`
	Available  float64           `json:"available_capital"`
	Strategies []StrategySummary `json:"strategies"`
}

// Users возвращает всех известных книге владельцев портфелей.
func (l *Ledger) Users() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.portfolios))
	for id := range l.portfolios {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Summary собирает срез всей книги пользователя. Плавающий P&L стратегии
// считается суммой по парам на момент вызова, а не хранится.
func (l *Ledger) Summary(ctx context.Context, userID string) (s *PortfolioSummary, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.Summary: %w", err)
		}
	}()
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	ps, ok := l.portfolios[userID]
	if !ok {
		return nil, fmt.Errorf("portfolio %s: %w", userID, ErrAllocationNotFound)
	}

	out := &PortfolioSummary{
		UserID:    userID,
		Total:     ps.row.TotalCapital,
		Allocated: ps.row.AllocatedCapital,
		Available: ps.row.AvailableCapital,
	}
	for name, st := range ps.strategies {
		ss := StrategySummary{
			StrategyName: name,
			Allocated:    st.row.AllocatedCapital,
			Used:         st.row.UsedCapital,
			RealizedPnl:  st.row.RealizedPnl,
		}
		for pair, pr := range st.pairs {
			pr.mu.Lock()
			row := pr.row
			pr.mu.Unlock()
			ss.FloatingPnl += row.FloatingPnl
			ss.Pairs = append(ss.Pairs, PairSummary{
				Pair:         pair,
				Allocated:    row.AllocatedCapital,
				Used:         row.UsedCapital,
				RealizedPnl:  row.RealizedPnl,
				FloatingPnl:  row.FloatingPnl,
				RiskBreached: row.RiskBreached,
			})
		}
		sort.Slice(ss.Pairs, func(i, j int) bool { return ss.Pairs[i].Pair < ss.Pairs[j].Pair })
		out.Strategies = append(out.Strategies, ss)
	}
	sort.Slice(out.Strategies, func(i, j int) bool { return out.Strategies[i].StrategyName < out.Strategies[j].StrategyName })
	return out, nil
}
