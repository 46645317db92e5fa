package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"go.uber.org/fx"

	"forex_bot/internal/modules/bootstrap"
	"forex_bot/internal/modules/config"
	"forex_bot/internal/modules/engine"
	"forex_bot/internal/modules/ledger"
	"forex_bot/internal/modules/metrics"
	mt5bridge "forex_bot/internal/modules/mt5_bridge"
	"forex_bot/internal/modules/postgres"
	"forex_bot/internal/modules/risk"
	"forex_bot/internal/modules/sessions"
	"forex_bot/internal/modules/strategy"
	"forex_bot/internal/notify"
	"forex_bot/pkg/logger"
	"forex_bot/pkg/tracing"
)

func main() {
	logger.SetServiceName("forex_bot")
	if err := logger.Init(); err != nil {
		log.Fatalf("logger init: %v", err)
	}

	if host := os.Getenv("JAEGER_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("JAEGER_PORT"))
		if port == 0 {
			port = 6831
		}
		tracing.SetServiceName("forex_bot")
		_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: host, Port: port})
		if err != nil {
			log.Printf("[TRACE] init failed: %v", err)
		} else {
			defer closeTracer()
		}
	}

	app := fx.New(
		fx.Provide(
			func() context.Context { return context.Background() },
			func(cfg *config.Config) notify.Notifier {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					return notify.NewStdout()
				}
				tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					log.Printf("[NOTIFY] telegram init failed, falling back to stdout: %v", err)
					return notify.NewStdout()
				}
				return tg
			},
		),
		config.Module(),
		postgres.Module(),
		metrics.Module(),
		ledger.Module(),
		risk.Module(),
		strategy.Module(),
		mt5bridge.Module(),
		engine.Module(),
		sessions.Module(),
		bootstrap.Module(),
	)

	app.Run()
}
