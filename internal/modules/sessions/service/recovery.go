package service

import (
	"context"
	"fmt"
	"log"

	"forex_bot/internal/models"
)

// Scheduler — то, что восстановлению нужно от планировщика.
type Scheduler interface {
	StartTask(ctx context.Context, sessionID, pair, timeframe, strategyName string, cfg map[string]any) (string, error)
}

// TaskSource отдаёт сохранённые активные задачи сессии.
type TaskSource interface {
	ActiveTasksForSession(ctx context.Context, sessionID string) ([]models.TradingTask, error)
}

// RecoveryReport: что удалось перезапустить, что нет. Упавшие задачи
// не теряются молча — их ключи уходят вызывающему.
type RecoveryReport struct {
	SessionID      string   `json:"session_id"`
	TasksFound     int      `json:"tasks_found"`
	RestartedTasks []string `json:"restarted_tasks"`
	FailedTasks    []string `json:"failed_tasks"`
}

// Recovery пересобирает сессии и их задачи из БД после рестарта процесса.
type Recovery struct {
	registry  *Registry
	store     SessionStore
	scheduler Scheduler
	tasks     TaskSource
}

func NewRecovery(registry *Registry, store SessionStore, scheduler Scheduler, tasks TaskSource) *Recovery {
	return &Recovery{
		registry:  registry,
		store:     store,
		scheduler: scheduler,
		tasks:     tasks,
	}
}

// Recover поднимает одну сессию и перезапускает её живые задачи.
func (r *Recovery) Recover(ctx context.Context, sessionID string) (report *RecoveryReport, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Recovery.Recover: %w", err)
		}
	}()

	sess, err := r.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.registry.Restore(sess)
	log.Printf("[RECOVERY] session %s restored", sessionID)

	saved, err := r.tasks.ActiveTasksForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	report = &RecoveryReport{SessionID: sessionID, TasksFound: len(saved)}
	for _, t := range saved {
		key, err := r.scheduler.StartTask(ctx, t.SessionID, t.Pair, t.Timeframe, t.StrategyName, t.Config)
		if err != nil {
			log.Printf("[RECOVERY] restart task %s: %v", t.TaskID, err)
			report.FailedTasks = append(report.FailedTasks, t.TaskID)
			continue
		}
		report.RestartedTasks = append(report.RestartedTasks, key)
	}
	return report, nil
}

// RecoverAll поднимает все активные сессии. Ошибка одной сессии не
// останавливает остальные.
func (r *Recovery) RecoverAll(ctx context.Context) (reports []*RecoveryReport, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Recovery.RecoverAll: %w", err)
		}
	}()

	sessions, err := r.store.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		report, err := r.Recover(ctx, sess.SessionID)
		if err != nil {
			log.Printf("[RECOVERY] session %s: %v", sess.SessionID, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}
