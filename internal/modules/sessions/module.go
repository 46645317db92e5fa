package sessions

import (
	"context"
	"log"
	"time"

	"go.uber.org/fx"

	"forex_bot/internal/modules/config"
	enginesvc "forex_bot/internal/modules/engine/service"
	ledgersvc "forex_bot/internal/modules/ledger/service"
	"forex_bot/internal/modules/sessions/service"
	"forex_bot/pkg/db"
)

func Module() fx.Option {
	return fx.Module("sessions",
		fx.Provide(
			func(tx db.TxManager) service.SessionStore { return service.NewPgSessionStore(tx) },
			func(store service.SessionStore, book *ledgersvc.Ledger, cfg *config.Config) *service.Registry {
				return service.NewRegistry(store, book, cfg.AllowedPairs, cfg.DefaultCapital)
			},
			func(registry *service.Registry, store service.SessionStore,
				e *enginesvc.Engine, tasks enginesvc.TaskStore) *service.Recovery {
				return service.NewRecovery(registry, store, e, tasks)
			},
		),
		// Периодическое выселение протухших сессий.
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, registry *service.Registry) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						ticker := time.NewTicker(cfg.SessionSweep)
						defer ticker.Stop()
						for {
							select {
							case <-ctx.Done():
								return
							case <-ticker.C:
								if n := registry.CleanupExpired(cfg.SessionTTL); n > 0 {
									log.Printf("[SESSIONS] sweep: %d expired", n)
								}
							}
						}
					}()
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
