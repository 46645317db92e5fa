package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex_bot/internal/models"
	ledger "forex_bot/internal/modules/ledger/service"
	metrics "forex_bot/internal/modules/metrics/service"
	risk "forex_bot/internal/modules/risk/service"
	"forex_bot/internal/modules/strategy"
	stgsvc "forex_bot/internal/modules/strategy/service"
	"forex_bot/internal/notify"
)

type fakeMarket struct {
	mu        sync.Mutex
	connected bool
	candles   map[string]models.Candle
	equity    float64
	polls     int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{connected: true, candles: make(map[string]models.Candle)}
}

func (f *fakeMarket) setCandle(pair string, c models.Candle) {
	f.mu.Lock()
	f.candles[pair] = c
	f.mu.Unlock()
}

func (f *fakeMarket) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMarket) LatestCandle(_ context.Context, pair, _ string) (models.Candle, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	c, ok := f.candles[pair]
	return c, ok, nil
}

func (f *fakeMarket) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeMarket) AccountEquity(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.equity, nil
}

type fakeExec struct {
	mu     sync.Mutex
	orders []string
	closed int
}

func (f *fakeExec) PlaceOrder(_ context.Context, pair string, side models.Side, lot, tp float64) (*models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, pair+":"+string(side))
	return &models.OrderResult{Ticket: int64(len(f.orders)), Action: models.Action(side), Volume: lot, FillPrice: 100}, nil
}

func (f *fakeExec) CloseAllPositions(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return 3, nil
}

func (f *fakeExec) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger, *fakeMarket, *fakeExec) {
	t.Helper()

	book := ledger.NewLedger(ledger.NewMemoryStore(), 2.0, 20.0)
	factory := strategy.NewFactory(risk.NewEvaluator(book))
	market := newFakeMarket()
	exec := &fakeExec{}

	e := NewEngine(
		Config{PollInterval: 5 * time.Millisecond, ErrorBackoff: 5 * time.Millisecond, MaxWorkers: 4, ReconcileInterval: time.Hour},
		factory, book, NewMemoryTaskStore(), market, exec, notify.NewStdout(), metrics.NewState(),
	)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop(context.Background()) })
	return e, book, market, exec
}

func seedCapital(t *testing.T, book *ledger.Ledger, sessionID, strategyName, pair string) {
	t.Helper()
	ctx := context.Background()
	_, err := book.GetOrCreatePortfolio(ctx, sessionID, 10000)
	require.NoError(t, err)
	require.NoError(t, book.AddStrategyCapital(ctx, sessionID, strategyName, 5000))
	require.NoError(t, book.AllocateToPair(ctx, sessionID, strategyName, pair, 3000, 20))
}

func TestStartTaskRegistersAndStops(t *testing.T) {
	e, book, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedCapital(t, book, "sess", stgsvc.StrategyGoldBuyDip, "XAUUSD")

	key, err := e.StartTask(ctx, "sess", "XAUUSD", "M15", stgsvc.StrategyGoldBuyDip, nil)
	require.NoError(t, err)
	assert.Equal(t, "sess_XAUUSD_M15_"+stgsvc.StrategyGoldBuyDip, key)

	tasks := e.ActiveTasksForSession("sess")
	require.Len(t, tasks, 1)
	assert.Equal(t, key, tasks[0].TaskID)

	st, err := e.TaskStatus(key)
	require.NoError(t, err)
	assert.Equal(t, key, st["task_id"])
	assert.Equal(t, true, st["is_active"])

	require.NoError(t, e.StopTask(ctx, key))
	assert.Empty(t, e.ActiveTasksForSession("sess"))

	// цикл выходит и выпиливает задачу из реестра
	assert.Eventually(t, func() bool {
		_, err := e.TaskStatus(key)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestStartTaskSupersedesSameKey(t *testing.T) {
	e, book, market, _ := newTestEngine(t)
	ctx := context.Background()
	seedCapital(t, book, "sess", stgsvc.StrategyGoldBuyDip, "XAUUSD")

	key1, err := e.StartTask(ctx, "sess", "XAUUSD", "M15", stgsvc.StrategyGoldBuyDip, nil)
	require.NoError(t, err)

	e.mu.Lock()
	old := e.tasks[key1]
	e.mu.Unlock()
	require.NotNil(t, old)

	key2, err := e.StartTask(ctx, "sess", "XAUUSD", "M15", stgsvc.StrategyGoldBuyDip, map[string]any{"lot_size": 0.2})
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	// вытеснение не плодит дублей и гасит старый цикл
	assert.Len(t, e.ActiveTasksForSession("sess"), 1)
	assert.Eventually(t, func() bool { return !old.active.Load() }, time.Second, 10*time.Millisecond)

	st, err := e.TaskStatus(key2)
	require.NoError(t, err)
	assert.Equal(t, true, st["is_active"])

	// после остановки новой задачи опросы рынка затихают:
	// вытесненный цикл не должен остаться жить зомби
	require.NoError(t, e.StopTask(ctx, key2))
	assert.Eventually(t, func() bool {
		_, err := e.TaskStatus(key2)
		return err != nil
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		before := market.pollCount()
		time.Sleep(25 * time.Millisecond)
		return market.pollCount() == before
	}, time.Second, 10*time.Millisecond)
}

func TestStopTaskUnknownKey(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	err := e.StopTask(ctx, "no-such-key")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	err = e.StopTask(ctx, TaskKey("ghost", "XAUUSD", "M15", stgsvc.StrategyGoldBuyDip))
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTimeframeNormalizedInKey(t *testing.T) {
	e, book, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedCapital(t, book, "sess", stgsvc.StrategyGoldBuyDip, "XAUUSD")

	key, err := e.StartTask(ctx, "sess", "XAUUSD", "15m", stgsvc.StrategyGoldBuyDip, nil)
	require.NoError(t, err)
	assert.Contains(t, key, "_M15_")
}

func TestExecuteBuyReservesMargin(t *testing.T) {
	e, book, _, exec := newTestEngine(t)
	ctx := context.Background()
	seedCapital(t, book, "sess", stgsvc.StrategyGoldBuyDip, "XAUUSD")

	tk := &task{TradingTask: models.TradingTask{
		TaskID:       "k",
		SessionID:    "sess",
		Pair:         "XAUUSD",
		Timeframe:    "M15",
		StrategyName: stgsvc.StrategyGoldBuyDip,
	}}

	require.NoError(t, e.execute(ctx, tk, &models.Signal{Action: models.ActionBuy, LotSize: 0.5}))
	assert.Equal(t, 1, exec.orderCount())
	assert.Equal(t, "XAUUSD:"+string(models.SideBuy), exec.orders[0])

	info, err := book.GetAllocationForTrading(ctx, "sess", "XAUUSD", stgsvc.StrategyGoldBuyDip)
	require.NoError(t, err)
	assert.Equal(t, 500.0, info.UsedCapital)
}

func TestExecuteCloseAllSettles(t *testing.T) {
	e, book, _, exec := newTestEngine(t)
	ctx := context.Background()
	seedCapital(t, book, "sess", stgsvc.StrategyGoldBuyDip, "XAUUSD")
	require.NoError(t, book.UpdateUsedCapital(ctx, "sess", stgsvc.StrategyGoldBuyDip, "XAUUSD", 500, "add"))
	_, _, err := book.CheckRiskControl(ctx, "sess", stgsvc.StrategyGoldBuyDip, "XAUUSD", -100, 0)
	require.NoError(t, err)

	tk := &task{TradingTask: models.TradingTask{
		TaskID:       "k",
		SessionID:    "sess",
		Pair:         "XAUUSD",
		Timeframe:    "M15",
		StrategyName: stgsvc.StrategyGoldBuyDip,
	}}

	require.NoError(t, e.execute(ctx, tk, &models.Signal{Action: models.ActionCloseAll, Reason: "test"}))
	assert.Equal(t, 1, exec.closed)

	info, err := book.GetAllocationForTrading(ctx, "sess", "XAUUSD", stgsvc.StrategyGoldBuyDip)
	require.NoError(t, err)
	assert.Equal(t, 0.0, info.UsedCapital)
	assert.Equal(t, -100.0, info.RealizedPnl)
	assert.Equal(t, 0.0, info.FloatingPnl)
}

func TestIterateSkipsWhenBridgeDown(t *testing.T) {
	e, book, market, exec := newTestEngine(t)
	ctx := context.Background()
	seedCapital(t, book, "sess", stgsvc.StrategyGoldBuyDip, "XAUUSD")

	market.mu.Lock()
	market.connected = false
	market.mu.Unlock()

	_, err := e.StartTask(ctx, "sess", "XAUUSD", "M15", stgsvc.StrategyGoldBuyDip, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, exec.orderCount())
}
