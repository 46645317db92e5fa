package engine

import (
	"context"

	"go.uber.org/fx"

	"forex_bot/internal/modules/config"
	"forex_bot/internal/modules/engine/service"
	"forex_bot/pkg/db"
)

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			func(tx db.TxManager) service.TaskStore { return service.NewPgTaskStore(tx) },
			func(cfg *config.Config) service.Config {
				return service.Config{
					PollInterval: cfg.PollInterval,
					ErrorBackoff: cfg.ErrorBackoff,
					MaxWorkers:   cfg.MaxWorkers,
				}
			},
			service.NewEngine,
		),
		fx.Invoke(func(lc fx.Lifecycle, e *service.Engine) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error { return e.Start(ctx) },
				OnStop:  func(ctx context.Context) error { return e.Stop(ctx) },
			})
		}),
	)
}
