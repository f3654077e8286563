// Package config содержит логику чтения конфигурации CRM.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Значения по умолчанию.
const (
	DefaultRunAddress    = "localhost:8080"
	DefaultCustomersFile = "data/usuarios.json"
	DefaultInvoicesFile  = "data/facturas.json"
	DefaultCountersFile  = "data/contadores.json"
	DefaultLogLevel      = "info"
)

// Config содержит параметры конфигурации CRM.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	CustomersFile string `env:"CUSTOMERS_FILE"`
	InvoicesFile  string `env:"INVOICES_FILE"`
	CountersFile  string `env:"COUNTERS_FILE"`
	LogLevel      string `env:"LOG_LEVEL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", DefaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, file storage is used when empty")
	flag.StringVar(&cfg.CustomersFile, "c", DefaultCustomersFile, "customers JSON file")
	flag.StringVar(&cfg.InvoicesFile, "i", DefaultInvoicesFile, "invoices JSON file")
	flag.StringVar(&cfg.CountersFile, "n", DefaultCountersFile, "identifier counters JSON file")
	flag.StringVar(&cfg.LogLevel, "l", DefaultLogLevel, "log level")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.CustomersFile, fromEnv.CustomersFile)
	override(&cfg.InvoicesFile, fromEnv.InvoicesFile)
	override(&cfg.CountersFile, fromEnv.CountersFile)
	override(&cfg.LogLevel, fromEnv.LogLevel)

	if cfg.RunAddress == "" {
		cfg.RunAddress = DefaultRunAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}
