package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex_bot/internal/models"
)

type fakeScheduler struct {
	started []string
	failOn  string
}

func (f *fakeScheduler) StartTask(_ context.Context, sessionID, pair, timeframe, strategyName string, _ map[string]any) (string, error) {
	key := sessionID + "_" + pair + "_" + timeframe + "_" + strategyName
	if pair == f.failOn {
		return "", errors.New("allocation missing")
	}
	f.started = append(f.started, key)
	return key, nil
}

type fakeTaskSource struct {
	tasks []models.TradingTask
}

func (f *fakeTaskSource) ActiveTasksForSession(context.Context, string) ([]models.TradingTask, error) {
	return f.tasks, nil
}

func TestRecoverRestartsSavedTasks(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	registry := NewRegistry(store, nil, testPairs, 0)

	sess := &models.TradingSession{SessionID: "s1", UserID: "u", IsActive: true}
	require.NoError(t, store.SaveSession(ctx, sess))

	sched := &fakeScheduler{failOn: "EURUSD"}
	tasks := &fakeTaskSource{tasks: []models.TradingTask{
		{TaskID: "t1", SessionID: "s1", Pair: "XAUUSD", Timeframe: "M15", StrategyName: "gold_buy_dip"},
		{TaskID: "t2", SessionID: "s1", Pair: "EURUSD", Timeframe: "M15", StrategyName: "gold_buy_dip"},
	}}

	rec := NewRecovery(registry, store, sched, tasks)
	report, err := rec.Recover(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.TasksFound)
	assert.Len(t, report.RestartedTasks, 1)
	// упавший перезапуск не теряется молча
	assert.Equal(t, []string{"t2"}, report.FailedTasks)

	// сессия вернулась в реестр
	_, err = registry.Get(ctx, "s1")
	assert.NoError(t, err)
}

func TestRecoverUnknownSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	rec := NewRecovery(NewRegistry(store, nil, testPairs, 0), store, &fakeScheduler{}, &fakeTaskSource{})

	_, err := rec.Recover(ctx, "ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRecoverAllContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	registry := NewRegistry(store, nil, testPairs, 0)

	require.NoError(t, store.SaveSession(ctx, &models.TradingSession{SessionID: "s1", UserID: "u", IsActive: true}))
	require.NoError(t, store.SaveSession(ctx, &models.TradingSession{SessionID: "s2", UserID: "u", IsActive: true}))

	rec := NewRecovery(registry, store, &fakeScheduler{}, &fakeTaskSource{})
	reports, err := rec.RecoverAll(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}
