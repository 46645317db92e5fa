package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	bridgeWSENV       = "BRIDGE_WS_URL"
	bridgeHTTPENV     = "BRIDGE_HTTP_URL"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`

	// Мост к терминалу MT5: котировки по ws, ордера по http.
	Bridge struct {
		WSURL   string `yaml:"ws_url"`
		HTTPURL string `yaml:"http_url"`
	} `yaml:"bridge"`

	// Дефолты риска
	// Сколько от выделенного капитала мы готовы потерять по стопу
	DefaultRiskPct float64 `yaml:"risk_pct"` // например 2.0 => 2% аллокации
	// Порог плавающего убытка по паре, в процентах от аллокации.
	// После пробоя все новые входы блокируются до ручного сброса.
	DefaultFloatingLossPct float64 `yaml:"floating_loss_pct"`

	// Раннер тикающих задач
	PollInterval time.Duration // пауза между свечами
	ErrorBackoff time.Duration // пауза после ошибки брокера/моста
	MaxWorkers   int           // потолок одновременных задач

	// Сессии
	SessionTTL     time.Duration
	SessionSweep   time.Duration
	AllowedPairs   []string `yaml:"allowed_pairs"`
	DefaultCapital float64  `yaml:"default_capital"`
	RecoverOnStart bool     `yaml:"recover_on_start"`
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		DefaultRiskPct:         2.0,
		DefaultFloatingLossPct: 20.0,
		DefaultCapital:         10000,
		RecoverOnStart:         true,

		PollInterval: durationFromEnv("POLL_INTERVAL", "10s"),
		ErrorBackoff: durationFromEnv("ERROR_BACKOFF", "30s"),
		MaxWorkers:   intFromEnv("MAX_WORKERS", 50),

		SessionTTL:   durationFromEnv("SESSION_TTL", "24h"),
		SessionSweep: durationFromEnv("SESSION_SWEEP", "1h"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if len(config.AllowedPairs) == 0 {
		config.AllowedPairs = []string{"XAUUSD", "EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD", "NZDUSD", "EURGBP"}
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if ws := os.Getenv(bridgeWSENV); ws != "" {
		config.Bridge.WSURL = ws
	}
	if h := os.Getenv(bridgeHTTPENV); h != "" {
		config.Bridge.HTTPURL = h
	}

	return &config, nil
}

func getenvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("env %s is required", key))
	}
	return v
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
