package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"forex_bot/internal/helper"
	"forex_bot/internal/models"
	ledger "forex_bot/internal/modules/ledger/service"
	metrics "forex_bot/internal/modules/metrics/service"
	"forex_bot/internal/modules/strategy"
	stgsvc "forex_bot/internal/modules/strategy/service"
	"forex_bot/internal/notify"
)

// ErrTaskNotFound возвращает StopTask/TaskStatus по незнакомому ключу.
var ErrTaskNotFound = errors.New("task not found")

type Config struct {
	PollInterval      time.Duration
	ErrorBackoff      time.Duration
	MaxWorkers        int
	ReconcileInterval time.Duration
}

type task struct {
	models.TradingTask
	active atomic.Bool
	stg    *stgsvc.Guarded
}

// Engine — планировщик торговых задач: пул независимых поллинг-циклов,
// по одному на живую задачу. Реестр под одним мьютексом; сами циклы
// кооперативно гасятся через атомарный флаг.
type Engine struct {
	mu    sync.Mutex
	tasks map[string]*task

	factory *strategy.Factory
	book    *ledger.Ledger
	store   TaskStore
	market  MarketData
	exec    Execution
	n       notify.Notifier
	health  *metrics.State

	cfg Config
	sem chan struct{} // потолок одновременных циклов

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(cfg Config, factory *strategy.Factory, book *ledger.Ledger, store TaskStore,
	market MarketData, exec Execution, n notify.Notifier, health *metrics.State) *Engine {

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 30 * time.Second
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 50
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}
	return &Engine{
		tasks:   make(map[string]*task),
		factory: factory,
		book:    book,
		store:   store,
		market:  market,
		exec:    exec,
		n:       n,
		health:  health,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxWorkers),
	}
}

// TaskKey — детерминированный составной ключ, он же внешний идентификатор задачи.
func TaskKey(sessionID, pair, timeframe, strategyName string) string {
	return fmt.Sprintf("%s_%s_%s_%s", sessionID, pair, timeframe, strategyName)
}

// Start поднимает корневой контекст циклов. Дергается из fx-лайфцикла.
func (e *Engine) Start(context.Context) error {
	e.ctx, e.cancel = context.WithCancel(context.Background())
	go e.reconcileLoop(e.ctx)
	return nil
}

// Stop гасит все циклы и дожидается их выхода. Висящий I/O вызов может
// задержать остановку на одну итерацию, но не навсегда.
func (e *Engine) Stop(context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return nil
}

// StartTask регистрирует задачу и отправляет её цикл в пул.
// Задача с тем же ключом вытесняется: старый цикл увидит сброшенный флаг
// и выйдет. Возврат не ждёт фактического старта цикла.
func (e *Engine) StartTask(ctx context.Context, sessionID, pair, timeframe, strategyName string, cfg map[string]any) (key string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Engine.StartTask: %w", err)
		}
	}()

	timeframe = helper.NormTF(timeframe)
	key = TaskKey(sessionID, pair, timeframe, strategyName)

	alloc, err := e.book.GetAllocationForTrading(ctx, sessionID, pair, strategyName)
	if err != nil && !errors.Is(err, ledger.ErrAllocationNotFound) {
		return "", err
	}

	stg, err := e.factory.Build(strategyName, sessionID, pair, cfg, alloc)
	if err != nil {
		return "", err
	}

	t := &task{
		TradingTask: models.TradingTask{
			TaskID:       key,
			SessionID:    sessionID,
			Pair:         pair,
			Timeframe:    timeframe,
			StrategyName: strategyName,
			Config:       cfg,
			IsActive:     true,
		},
		stg: stg,
	}
	t.active.Store(true)

	if err := e.store.SaveTask(ctx, &t.TradingTask); err != nil {
		// персистентность не должна валить торговлю
		log.Printf("[ENGINE] save task %s: %v", key, err)
	}

	e.mu.Lock()
	if old, ok := e.tasks[key]; ok {
		log.Printf("[ENGINE] task %s superseded", key)
		old.active.Store(false)
	}
	e.tasks[key] = t
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case e.sem <- struct{}{}:
		case <-e.ctx.Done():
			return
		}
		defer func() { <-e.sem }()

		metrics.ActiveTasks.Inc()
		e.runLoop(e.ctx, t)
		metrics.ActiveTasks.Dec()

		// выпиливаем из реестра только если нас не вытеснили
		e.mu.Lock()
		if cur, ok := e.tasks[t.TaskID]; ok && cur == t {
			delete(e.tasks, t.TaskID)
		}
		e.mu.Unlock()
	}()

	log.Printf("[ENGINE] task %s started (%s %s %s)", key, pair, timeframe, strategyName)
	return key, nil
}

// StopTask сбрасывает флаг: цикл выйдет на следующей итерации. Идемпотентно
// относительно уже остановленного цикла, но незнакомый ключ — ошибка.
func (e *Engine) StopTask(ctx context.Context, key string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Engine.StopTask: %w", err)
		}
	}()

	if _, _, _, _, ok := helper.TaskKeyParts(key); !ok {
		return fmt.Errorf("malformed task key %q: %w", key, ErrTaskNotFound)
	}

	e.mu.Lock()
	t, ok := e.tasks[key]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrTaskNotFound)
	}

	t.active.Store(false)
	if err := e.store.DeactivateTask(ctx, key); err != nil {
		log.Printf("[ENGINE] deactivate task %s: %v", key, err)
	}
	log.Printf("[ENGINE] task %s stop requested", key)
	return nil
}

// ActiveTasksForSession — живые задачи сессии из реестра.
func (e *Engine) ActiveTasksForSession(sessionID string) []models.TradingTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.TradingTask
	for _, t := range e.tasks {
		if t.SessionID == sessionID && t.active.Load() {
			out = append(out, t.TradingTask)
		}
	}
	return out
}

// TaskStatus — статус стратегии задачи для API.
func (e *Engine) TaskStatus(key string) (map[string]any, error) {
	e.mu.Lock()
	t, ok := e.tasks[key]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("Engine.TaskStatus: %s: %w", key, ErrTaskNotFound)
	}
	st := t.stg.Status()
	st["task_id"] = key
	st["is_active"] = t.active.Load()
	return st, nil
}

// reconcileLoop периодически подтягивает портфели к фактическому equity счёта.
func (e *Engine) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.market.IsConnected() {
				continue
			}
			equity, err := e.market.AccountEquity(ctx)
			if err != nil {
				log.Printf("[ENGINE] account equity: %v", err)
				continue
			}
			for _, user := range e.book.Users() {
				if err := e.book.ReconcileDynamicCapital(ctx, user, equity); err != nil {
					log.Printf("[ENGINE] reconcile %s: %v", user, err)
				}
			}
		}
	}
}
