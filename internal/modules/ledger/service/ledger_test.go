package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex_bot/internal/models"
)

const testStrategy = "gold_buy_dip"

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewLedger(store, 2.0, 20.0), store
}

func TestCapitalFlowThroughHierarchy(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	p, err := l.GetOrCreatePortfolio(ctx, "sess-1", 10000)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, p.AvailableCapital)
	assert.Equal(t, 0.0, p.AllocatedCapital)

	require.NoError(t, l.AddStrategyCapital(ctx, "sess-1", testStrategy, 5000))

	// повторный вызов не создаёт портфель заново
	p, err = l.GetOrCreatePortfolio(ctx, "sess-1", 99999)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, p.TotalCapital)
	assert.Equal(t, 5000.0, p.AvailableCapital)
	assert.Equal(t, 5000.0, p.AllocatedCapital)

	require.NoError(t, l.AllocateToPair(ctx, "sess-1", testStrategy, "XAUUSD", 3000, 20))

	// маржи больше, чем свободно у пары
	err = l.UpdateUsedCapital(ctx, "sess-1", testStrategy, "XAUUSD", 3100, "add")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, l.UpdateUsedCapital(ctx, "sess-1", testStrategy, "XAUUSD", 300, "add"))

	info, err := l.GetAllocationForTrading(ctx, "sess-1", "XAUUSD", testStrategy)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, info.AllocatedCapital)
	assert.Equal(t, 300.0, info.UsedCapital)
	assert.Equal(t, 2700.0, info.AvailableCapital)
	assert.True(t, info.CanTrade)

	// плавающий убыток 650 из 3000 = 21.67% >= 20% — пробой
	event, breached, err := l.CheckRiskControl(ctx, "sess-1", testStrategy, "XAUUSD", -650, 0)
	require.NoError(t, err)
	assert.True(t, breached)
	require.NotNil(t, event)
	assert.Equal(t, models.RiskEventFloatingLoss, event.EventType)
	assert.InDelta(t, 21.67, event.TriggerValue, 0.01)
	assert.Equal(t, "CLOSE_ALL_TRADES", event.ActionTaken)

	// повторная проверка флага событие не дублирует
	event, breached, err = l.CheckRiskControl(ctx, "sess-1", testStrategy, "XAUUSD", -700, 0)
	require.NoError(t, err)
	assert.True(t, breached)
	assert.Nil(t, event)
	assert.Len(t, store.Events(), 1)
}

func TestRiskBreachIsStickyUntilReset(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.GetOrCreatePortfolio(ctx, "u", 10000)
	require.NoError(t, err)
	require.NoError(t, l.AddStrategyCapital(ctx, "u", testStrategy, 4000))
	require.NoError(t, l.AllocateToPair(ctx, "u", testStrategy, "EURUSD", 1000, 20))

	_, breached, err := l.CheckRiskControl(ctx, "u", testStrategy, "EURUSD", -250, 0)
	require.NoError(t, err)
	require.True(t, breached)

	// пока флаг стоит — ни резерв маржи, ни докидывание капитала
	err = l.UpdateUsedCapital(ctx, "u", testStrategy, "EURUSD", 10, "add")
	assert.ErrorIs(t, err, ErrRiskBreached)
	err = l.AllocateToPair(ctx, "u", testStrategy, "EURUSD", 100, 0)
	assert.ErrorIs(t, err, ErrRiskBreached)

	info, err := l.GetAllocationForTrading(ctx, "u", "EURUSD", testStrategy)
	require.NoError(t, err)
	assert.False(t, info.CanTrade)

	require.NoError(t, l.ResetPairRisk(ctx, "u", testStrategy, "EURUSD"))

	info, err = l.GetAllocationForTrading(ctx, "u", "EURUSD", testStrategy)
	require.NoError(t, err)
	assert.True(t, info.CanTrade)
	assert.Equal(t, 0.0, info.FloatingPnl)
	require.NoError(t, l.UpdateUsedCapital(ctx, "u", testStrategy, "EURUSD", 10, "add"))
}

func TestCapitalExhaustionEvent(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	_, err := l.GetOrCreatePortfolio(ctx, "u", 5000)
	require.NoError(t, err)
	require.NoError(t, l.AddStrategyCapital(ctx, "u", testStrategy, 1000))
	require.NoError(t, l.AllocateToPair(ctx, "u", testStrategy, "GBPUSD", 500, 90))

	// порог по флоату высокий, а realized+floating сжирает всю аллокацию
	event, breached, err := l.CheckRiskControl(ctx, "u", testStrategy, "GBPUSD", -100, -420)
	require.NoError(t, err)
	assert.True(t, breached)
	require.NotNil(t, event)
	assert.Equal(t, models.RiskEventCapitalExhaustion, event.EventType)
	assert.Equal(t, 520.0, event.TriggerValue)
	assert.Len(t, store.Events(), 1)
}

func TestRemoveStrategyCapitalRespectsPairAssignments(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.GetOrCreatePortfolio(ctx, "u", 10000)
	require.NoError(t, err)
	require.NoError(t, l.AddStrategyCapital(ctx, "u", testStrategy, 5000))
	require.NoError(t, l.AllocateToPair(ctx, "u", testStrategy, "XAUUSD", 3000, 0))

	// раздано парам 3000, снять можно максимум 2000
	err = l.RemoveStrategyCapital(ctx, "u", testStrategy, 2500)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, l.RemoveStrategyCapital(ctx, "u", testStrategy, 2000))

	s, err := l.Summary(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 7000.0, s.Available)
	assert.Equal(t, 3000.0, s.Allocated)
}

func TestSettleCloseMovesFloatingToRealized(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.GetOrCreatePortfolio(ctx, "u", 10000)
	require.NoError(t, err)
	require.NoError(t, l.AddStrategyCapital(ctx, "u", testStrategy, 5000))
	require.NoError(t, l.AllocateToPair(ctx, "u", testStrategy, "XAUUSD", 3000, 0))
	require.NoError(t, l.UpdateUsedCapital(ctx, "u", testStrategy, "XAUUSD", 500, "add"))

	_, _, err = l.CheckRiskControl(ctx, "u", testStrategy, "XAUUSD", -120, 0)
	require.NoError(t, err)

	require.NoError(t, l.SettleClose(ctx, "u", testStrategy, "XAUUSD"))

	info, err := l.GetAllocationForTrading(ctx, "u", "XAUUSD", testStrategy)
	require.NoError(t, err)
	assert.Equal(t, -120.0, info.RealizedPnl)
	assert.Equal(t, 0.0, info.FloatingPnl)
	assert.Equal(t, 0.0, info.UsedCapital)
	assert.Equal(t, 3000.0, info.AvailableCapital)
}

func TestUnknownAllocationForbidsTrading(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.GetAllocationForTrading(ctx, "ghost", "XAUUSD", testStrategy)
	assert.ErrorIs(t, err, ErrAllocationNotFound)

	_, err = l.GetOrCreatePortfolio(ctx, "u", 1000)
	require.NoError(t, err)
	err = l.AddStrategyCapital(ctx, "u", testStrategy, 2000)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestReconcileDynamicCapital(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.GetOrCreatePortfolio(ctx, "u", 10000)
	require.NoError(t, err)
	require.NoError(t, l.AddStrategyCapital(ctx, "u", testStrategy, 6000))

	// equity просел ниже аллокаций — свободное прижимается к нулю
	require.NoError(t, l.ReconcileDynamicCapital(ctx, "u", 5500))
	s, err := l.Summary(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 5500.0, s.Total)
	assert.Equal(t, 0.0, s.Available)

	require.NoError(t, l.ReconcileDynamicCapital(ctx, "u", 12000))
	s, err = l.Summary(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 6000.0, s.Available)
}

func TestRestoreRebuildsHierarchy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	l := NewLedger(store, 2.0, 20.0)
	_, err := l.GetOrCreatePortfolio(ctx, "u", 10000)
	require.NoError(t, err)
	require.NoError(t, l.AddStrategyCapital(ctx, "u", testStrategy, 5000))
	require.NoError(t, l.AllocateToPair(ctx, "u", testStrategy, "XAUUSD", 3000, 25))
	require.NoError(t, l.UpdateUsedCapital(ctx, "u", testStrategy, "XAUUSD", 400, "add"))

	// свежий инстанс с тем же хранилищем
	l2 := NewLedger(store, 2.0, 20.0)
	require.NoError(t, l2.Restore(ctx))

	info, err := l2.GetAllocationForTrading(ctx, "u", "XAUUSD", testStrategy)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, info.AllocatedCapital)
	assert.Equal(t, 400.0, info.UsedCapital)
	assert.Equal(t, 25.0, info.FloatingLossThresholdPct)
}
