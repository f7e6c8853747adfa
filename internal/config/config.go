package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN           string
	Environment     string
	HTTPAddr        string
	DefaultTimeZone string

	SMTP      SMTP
	Scheduler Scheduler
	NATS      NATS
	Telegram  Telegram
	Auth      Auth
	Tracing   Tracing
}

// SMTP параметры исходящей почты
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Scheduler параметры фонового планировщика уведомлений
type Scheduler struct {
	Enabled  bool
	Interval time.Duration
}

type NATS struct {
	URL     string
	Subject string
}

// Telegram чат для оповещений о неотправленных письмах
type Telegram struct {
	Token  string
	ChatID int64
}

type Auth struct {
	JWTSecret string
}

type Tracing struct {
	Endpoint    string
	ServiceName string
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		DBDSN:           os.Getenv("DB_DSN"),
		Environment:     getEnv("ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DefaultTimeZone: getEnv("DEFAULT_TIMEZONE", "UTC"),
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "MWB Support <support@mentorswithoutborders.net>"),
		},
		NATS: NATS{
			URL:     os.Getenv("NATS_URL"),
			Subject: getEnv("NATS_SUBJECT", "mentor_scheduler"),
		},
		Telegram: Telegram{
			Token: os.Getenv("TELEGRAM_TOKEN"),
		},
		Auth: Auth{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Tracing: Tracing{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "mentor_scheduler"),
		},
	}

	var err error
	if cfg.SMTP.Port, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.Telegram.ChatID, err = getEnvInt64("TELEGRAM_ALERT_CHAT_ID", 0); err != nil {
		return nil, err
	}
	if cfg.Scheduler.Enabled, err = getEnvBool("SCHEDULER_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Scheduler.Interval, err = getEnvDuration("SCHEDULER_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.Scheduler.Interval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", cfg.Scheduler.Interval)
	}
	if _, err := time.LoadLocation(cfg.DefaultTimeZone); err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}

	log.Printf("Config loaded\n")

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
