package ledger

import (
	"context"

	"go.uber.org/fx"

	"forex_bot/internal/modules/config"
	"forex_bot/internal/modules/ledger/service"
	"forex_bot/pkg/db"
)

func Module() fx.Option {
	return fx.Module("ledger",
		fx.Provide(
			func(tx db.TxManager) service.Store { return service.NewPgStore(tx) },
			func(store service.Store, cfg *config.Config) *service.Ledger {
				return service.NewLedger(store, cfg.DefaultRiskPct, cfg.DefaultFloatingLossPct)
			},
		),
		// Книга поднимается из БД до старта раннера.
		fx.Invoke(func(lc fx.Lifecycle, l *service.Ledger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return l.Restore(ctx)
				},
			})
		}),
	)
}
