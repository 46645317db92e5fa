package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"forex_bot/internal/models"
	"forex_bot/pkg/db"
)

// TaskStore зеркалит задачи планировщика для восстановления после рестарта.
type TaskStore interface {
	SaveTask(ctx context.Context, t *models.TradingTask) error
	DeactivateTask(ctx context.Context, taskID string) error
	ActiveTasksForSession(ctx context.Context, sessionID string) ([]models.TradingTask, error)
}

// MemoryTaskStore — для тестов и запуска без БД.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]models.TradingTask
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]models.TradingTask)}
}

func (m *MemoryTaskStore) SaveTask(_ context.Context, t *models.TradingTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.TaskID] = *t
	return nil
}

func (m *MemoryTaskStore) DeactivateTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.IsActive = false
		m.tasks[taskID] = t
	}
	return nil
}

func (m *MemoryTaskStore) ActiveTasksForSession(_ context.Context, sessionID string) ([]models.TradingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TradingTask
	for _, t := range m.tasks {
		if t.SessionID == sessionID && t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

// PgTaskStore хранит задачи в postgres, конфиг стратегии — json-колонкой.
type PgTaskStore struct {
	tx db.TxManager
}

func NewPgTaskStore(tx db.TxManager) *PgTaskStore {
	return &PgTaskStore{tx: tx}
}

func (s *PgTaskStore) SaveTask(ctx context.Context, t *models.TradingTask) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgTaskStore.SaveTask: %w", err)
		}
	}()

	data, err := sonic.Marshal(t.Config)
	if err != nil {
		return err
	}
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO trading_tasks (task_id, session_id, pair, timeframe, strategy_name, config, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (task_id) DO UPDATE SET config = EXCLUDED.config, is_active = EXCLUDED.is_active`,
			t.TaskID, t.SessionID, t.Pair, t.Timeframe, t.StrategyName, data, t.IsActive,
		)
		return err
	})
}

func (s *PgTaskStore) DeactivateTask(ctx context.Context, taskID string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgTaskStore.DeactivateTask: %w", err)
		}
	}()

	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE trading_tasks SET is_active = false WHERE task_id = $1`, taskID)
		return err
	})
}

func (s *PgTaskStore) ActiveTasksForSession(ctx context.Context, sessionID string) (tasks []models.TradingTask, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgTaskStore.ActiveTasksForSession: %w", err)
		}
	}()

	err = s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT task_id, session_id, pair, timeframe, strategy_name, config FROM trading_tasks WHERE session_id = $1 AND is_active`,
			sessionID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t models.TradingTask
			var data []byte
			if err := rows.Scan(&t.TaskID, &t.SessionID, &t.Pair, &t.Timeframe, &t.StrategyName, &data); err != nil {
				return err
			}
			if len(data) > 0 {
				if err := sonic.Unmarshal(data, &t.Config); err != nil {
					return err
				}
			}
			t.IsActive = true
			tasks = append(tasks, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
