// Package config содержит логику чтения конфигурации сервиса кампаний.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса кампаний.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	JWTSecret   string `env:"JWT_SECRET"`

	TextGenAddress string `env:"TEXTGEN_ADDRESS"`
	TextGenAPIKey  string `env:"TEXTGEN_API_KEY"`

	PaymentGatewayAddress string `env:"PAYMENT_GATEWAY_ADDRESS"`
	PaymentAPIKey         string `env:"PAYMENT_API_KEY"`
	PaymentWebhookSecret  string `env:"PAYMENT_WEBHOOK_SECRET"`
	// CoinPriceCents задаёт цену одной монеты AC в минимальных единицах реальной валюты.
	CoinPriceCents int64 `env:"COIN_PRICE_CENTS" envDefault:"100"`

	StoreTimeout          time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	RefundRetryInterval   time.Duration `env:"REFUND_RETRY_INTERVAL" envDefault:"1m"`
	PaymentSettleInterval time.Duration `env:"PAYMENT_SETTLE_INTERVAL" envDefault:"30s"`
	NotifyQueueSize       int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envJWTSecret := cfg.JWTSecret
	envTextGenAddress := cfg.TextGenAddress
	envPaymentAddress := cfg.PaymentGatewayAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "j", "", "secret used to verify bearer tokens")
	flag.StringVar(&cfg.TextGenAddress, "t", "", "text generation service address")
	flag.StringVar(&cfg.PaymentGatewayAddress, "p", "", "payment gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}
	if envTextGenAddress != "" {
		cfg.TextGenAddress = envTextGenAddress
	}
	if envPaymentAddress != "" {
		cfg.PaymentGatewayAddress = envPaymentAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.StoreTimeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive, got %s", cfg.StoreTimeout)
	}
	if cfg.RefundRetryInterval <= 0 {
		return nil, fmt.Errorf("refund retry interval must be positive, got %s", cfg.RefundRetryInterval)
	}
	if cfg.PaymentSettleInterval <= 0 {
		return nil, fmt.Errorf("payment settle interval must be positive, got %s", cfg.PaymentSettleInterval)
	}
	if cfg.CoinPriceCents <= 0 {
		return nil, fmt.Errorf("coin price must be positive, got %d", cfg.CoinPriceCents)
	}

	return cfg, nil
}
