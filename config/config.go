package config

import (
	"os"
	"strconv"
	"strings"
)

// Global config instance
var global *Config

// Config holds process-wide configuration loaded from the environment.
// Everything trading-related travels inside the signal itself; only
// connectivity and service settings live here.
type Config struct {
	// Service
	APIServerPort     int
	WebhookPassphrase string
	LogLevel          string

	// Exchange
	BinanceAPIKey    string
	BinanceAPISecret string
	Testnet          bool

	// Storage
	DBPath string

	// Notification (optional)
	TelegramToken  string
	TelegramChatID int64
}

// Init initializes the global config from environment variables
func Init() {
	cfg := &Config{
		APIServerPort: 8080,
		LogLevel:      "info",
		DBPath:        "data/gridhook.db",
		// The original bot defaulted to the testnet; keep that so a
		// misconfigured deployment cannot trade real funds by accident.
		Testnet: true,
	}

	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}
	if v := os.Getenv("WEBHOOK_PASSPHRASE"); v != "" {
		cfg.WebhookPassphrase = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.BinanceAPIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.BinanceAPISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("TESTNET"); v != "" {
		cfg.Testnet = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	global = cfg
}

// Get returns the global config, initializing it on first use
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}
