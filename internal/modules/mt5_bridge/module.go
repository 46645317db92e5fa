package mt5bridge

import (
	"context"
	"time"

	"go.uber.org/fx"

	enginesvc "forex_bot/internal/modules/engine/service"
	metricssvc "forex_bot/internal/modules/metrics/service"
	"forex_bot/internal/modules/mt5_bridge/service"
)

func Module() fx.Option {
	return fx.Module("mt5_bridge",
		fx.Provide(
			service.NewClient,
			func(c *service.Client) enginesvc.MarketData { return c },
			func(c *service.Client) enginesvc.Execution { return c },
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client, health *metricssvc.State) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					c.Start(ctx)
					// зеркалим состояние коннекта в health
					go func() {
						t := time.NewTicker(5 * time.Second)
						defer t.Stop()
						for {
							select {
							case <-ctx.Done():
								return
							case <-t.C:
								health.SetBridgeConnected(c.IsConnected())
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
