package bootstrap

import (
	"context"
	"log"

	"go.uber.org/fx"

	"forex_bot/internal/modules/config"
	metrics "forex_bot/internal/modules/metrics/service"
	sessions "forex_bot/internal/modules/sessions/service"
)

// Module поднимает сохранённые сессии и их задачи после рестарта процесса.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, rec *sessions.Recovery, health *metrics.State) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						if cfg.RecoverOnStart {
							reports, err := rec.RecoverAll(context.Background())
							if err != nil {
								log.Printf("[BOOT] recovery error: %v", err)
							}
							restarted, failed := 0, 0
							for _, r := range reports {
								restarted += len(r.RestartedTasks)
								failed += len(r.FailedTasks)
							}
							log.Printf("[BOOT] recovery done: %d sessions, %d tasks restarted, %d failed",
								len(reports), restarted, failed)
						}
						health.SetReady(true)
					}()
					return nil
				},
			})
		}),
	)
}
