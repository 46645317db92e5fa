package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"forex_bot/internal/models"
	"forex_bot/pkg/db"
)

// PgStore зеркалит книгу в postgres через TxManager. Одна мутация — одна транзакция.
type PgStore struct {
	tx db.TxManager
}

func NewPgStore(tx db.TxManager) *PgStore {
	return &PgStore{tx: tx}
}

func (s *PgStore) SavePortfolio(ctx context.Context, p *models.Portfolio) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.SavePortfolio: %w", err)
		}
	}()
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if p.ID == 0 {
			return tx.QueryRow(ctx,
				`INSERT INTO portfolios (user_id, total_capital, allocated_capital, available_capital, is_active)
				 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				p.UserID, p.TotalCapital, p.AllocatedCapital, p.AvailableCapital, p.IsActive,
			).Scan(&p.ID)
		}
		_, err := tx.Exec(ctx,
			`UPDATE portfolios SET total_capital=$2, allocated_capital=$3, available_capital=$4, is_active=$5 WHERE id=$1`,
			p.ID, p.TotalCapital, p.AllocatedCapital, p.AvailableCapital, p.IsActive,
		)
		return err
	})
}

func (s *PgStore) SaveStrategyAllocation(ctx context.Context, a *models.StrategyAllocation) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.SaveStrategyAllocation: %w", err)
		}
	}()
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if a.ID == 0 {
			return tx.QueryRow(ctx,
				`INSERT INTO strategy_allocations (portfolio_id, strategy_name, allocation_pct, allocated_capital, used_capital, realized_pnl, floating_pnl, is_active)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
				a.PortfolioID, a.StrategyName, a.AllocationPct, a.AllocatedCapital, a.UsedCapital, a.RealizedPnl, a.FloatingPnl, a.IsActive,
			).Scan(&a.ID)
		}
		_, err := tx.Exec(ctx,
			`UPDATE strategy_allocations SET allocation_pct=$2, allocated_capital=$3, used_capital=$4, realized_pnl=$5, floating_pnl=$6, is_active=$7 WHERE id=$1`,
			a.ID, a.AllocationPct, a.AllocatedCapital, a.UsedCapital, a.RealizedPnl, a.FloatingPnl, a.IsActive,
		)
		return err
	})
}

func (s *PgStore) DeleteStrategyAllocation(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.DeleteStrategyAllocation: %w", err)
		}
	}()
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM strategy_allocations WHERE id=$1`, id)
		return err
	})
}

func (s *PgStore) SavePairAllocation(ctx context.Context, a *models.PairAllocation) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.SavePairAllocation: %w", err)
		}
	}()
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if a.ID == 0 {
			return tx.QueryRow(ctx,
				`INSERT INTO pair_allocations (strategy_allocation_id, pair, allocated_capital, used_capital, realized_pnl, floating_pnl, floating_loss_threshold_pct, is_active, risk_breached)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
				a.StrategyAllocationID, a.Pair, a.AllocatedCapital, a.UsedCapital, a.RealizedPnl, a.FloatingPnl, a.FloatingLossThresholdPct, a.IsActive, a.RiskBreached,
			).Scan(&a.ID)
		}
		_, err := tx.Exec(ctx,
			`UPDATE pair_allocations SET allocated_capital=$2, used_capital=$3, realized_pnl=$4, floating_pnl=$5, floating_loss_threshold_pct=$6, is_active=$7, risk_breached=$8 WHERE id=$1`,
			a.ID, a.AllocatedCapital, a.UsedCapital, a.RealizedPnl, a.FloatingPnl, a.FloatingLossThresholdPct, a.IsActive, a.RiskBreached,
		)
		return err
	})
}

func (s *PgStore) SaveRiskEvent(ctx context.Context, e *models.RiskEvent) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.SaveRiskEvent: %w", err)
		}
	}()
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO risk_events (pair_allocation_id, event_type, trigger_value, threshold_value, action_taken, trades_closed, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			e.PairAllocationID, string(e.EventType), e.TriggerValue, e.ThresholdValue, e.ActionTaken, e.TradesClosed, e.CreatedAt,
		).Scan(&e.ID)
	})
}

func (s *PgStore) SetEventTradesClosed(ctx context.Context, id int64, closed int) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.SetEventTradesClosed: %w", err)
		}
	}()
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE risk_events SET trades_closed=$2 WHERE id=$1`, id, closed)
		return err
	})
}

func (s *PgStore) LoadAll(ctx context.Context) (snap *Snapshot, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.LoadAll: %w", err)
		}
	}()
	snap = &Snapshot{}
	err = s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, user_id, total_capital, allocated_capital, available_capital, is_active FROM portfolios WHERE is_active`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var p models.Portfolio
			if err := rows.Scan(&p.ID, &p.UserID, &p.TotalCapital, &p.AllocatedCapital, &p.AvailableCapital, &p.IsActive); err != nil {
				rows.Close()
				return err
			}
			snap.Portfolios = append(snap.Portfolios, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx,
			`SELECT id, portfolio_id, strategy_name, allocation_pct, allocated_capital, used_capital, realized_pnl, floating_pnl, is_active FROM strategy_allocations WHERE is_active`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var a models.StrategyAllocation
			if err := rows.Scan(&a.ID, &a.PortfolioID, &a.StrategyName, &a.AllocationPct, &a.AllocatedCapital, &a.UsedCapital, &a.RealizedPnl, &a.FloatingPnl, &a.IsActive); err != nil {
				rows.Close()
				return err
			}
			snap.Strategies = append(snap.Strategies, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx,
			`SELECT id, strategy_allocation_id, pair, allocated_capital, used_capital, realized_pnl, floating_pnl, floating_loss_threshold_pct, is_active, risk_breached FROM pair_allocations WHERE is_active`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var a models.PairAllocation
			if err := rows.Scan(&a.ID, &a.StrategyAllocationID, &a.Pair, &a.AllocatedCapital, &a.UsedCapital, &a.RealizedPnl, &a.FloatingPnl, &a.FloatingLossThresholdPct, &a.IsActive, &a.RiskBreached); err != nil {
				return err
			}
			snap.Pairs = append(snap.Pairs, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
