package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex_bot/internal/models"
	ledger "forex_bot/internal/modules/ledger/service"
)

func newEvaluatorFixture(t *testing.T) (*ledger.Ledger, *Evaluator) {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewLedger(ledger.NewMemoryStore(), 2.0, 20.0)
	_, err := l.GetOrCreatePortfolio(ctx, "u", 10000)
	require.NoError(t, err)
	require.NoError(t, l.AddStrategyCapital(ctx, "u", "gold_buy_dip", 5000))
	require.NoError(t, l.AllocateToPair(ctx, "u", "gold_buy_dip", "XAUUSD", 1000, 20))
	return l, NewEvaluator(l)
}

func TestUpdatePnlForcesCloseOnFreshBreach(t *testing.T) {
	_, e := newEvaluatorFixture(t)
	ctx := context.Background()

	forced, blocked, err := e.UpdatePnl(ctx, "u", "gold_buy_dip", "XAUUSD", -50, 0)
	require.NoError(t, err)
	assert.Nil(t, forced)
	assert.False(t, blocked)

	forced, blocked, err = e.UpdatePnl(ctx, "u", "gold_buy_dip", "XAUUSD", -250, 0)
	require.NoError(t, err)
	require.NotNil(t, forced)
	assert.Equal(t, models.ActionCloseAll, forced.Action)
	assert.Contains(t, forced.Reason, "FLOATING_LOSS_BREACH")
	assert.True(t, blocked)

	// старый пробой: блок без повторного форс-сигнала
	forced, blocked, err = e.UpdatePnl(ctx, "u", "gold_buy_dip", "XAUUSD", -10, 0)
	require.NoError(t, err)
	assert.Nil(t, forced)
	assert.True(t, blocked)
}

func TestCheckTradePermission(t *testing.T) {
	l, e := newEvaluatorFixture(t)
	ctx := context.Background()

	ok, err := e.CheckTradePermission(ctx, "u", "gold_buy_dip", "XAUUSD")
	require.NoError(t, err)
	assert.True(t, ok)

	// неизвестная аллокация — запрет, а не ошибка
	ok, err = e.CheckTradePermission(ctx, "u", "gold_buy_dip", "EURUSD")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.UpdateUsedCapital(ctx, "u", "gold_buy_dip", "XAUUSD", 1000, "add"))
	ok, err = e.CheckTradePermission(ctx, "u", "gold_buy_dip", "XAUUSD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateSignalPassesNonEntries(t *testing.T) {
	_, e := newEvaluatorFixture(t)
	ctx := context.Background()

	closeAll := &models.Signal{Action: models.ActionCloseAll}
	out, err := e.ValidateSignal(ctx, "u", "gold_buy_dip", "XAUUSD", closeAll)
	require.NoError(t, err)
	assert.Equal(t, closeAll, out)

	out, err = e.ValidateSignal(ctx, "u", "gold_buy_dip", "XAUUSD", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	// вход по паре без аллокации переписывается в BLOCKED
	entry := &models.Signal{Action: models.ActionBuy, LotSize: 0.1}
	out, err = e.ValidateSignal(ctx, "u", "gold_buy_dip", "EURUSD", entry)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, models.ActionBlocked, out.Action)
}
