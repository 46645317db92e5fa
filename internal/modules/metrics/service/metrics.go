package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики ядра. Регистрируются в дефолтном реестре, отдаются на /metrics.
var (
	Ticks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forex_bot_ticks_total",
		Help: "Processed candles per task loop.",
	}, []string{"pair", "timeframe"})

	Signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forex_bot_signals_total",
		Help: "Signals emitted by strategies.",
	}, []string{"strategy", "action"})

	Orders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forex_bot_orders_total",
		Help: "Orders routed to the execution bridge.",
	}, []string{"pair", "side", "status"})

	RiskBreaches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forex_bot_risk_breaches_total",
		Help: "Risk control breaches by type.",
	}, []string{"type"})

	TaskErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forex_bot_task_errors_total",
		Help: "Task loop iteration errors.",
	}, []string{"pair"})

	ActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forex_bot_active_tasks",
		Help: "Currently running trading task loops.",
	})
)
