package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config carries process-level settings. Values come from the environment; a
// local .env file is honored for development.
type Config struct {
	Environment string
	DatabaseURL string

	DatabaseMaxOpenConns int
	DatabaseMaxIdleConns int

	// SeedDemoTenant creates a demo business and owner on startup when the
	// environment is not production.
	SeedDemoTenant bool
}

// Module provides the config to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)

// Load reads configuration from the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("CLIENTELA_ENV", "development"),
		DatabaseURL:          getEnv("CLIENTELA_DATABASE_URL", "postgres://localhost:5432/clientela?sslmode=disable"),
		DatabaseMaxOpenConns: getEnvInt("CLIENTELA_DB_MAX_OPEN_CONNS", 10),
		DatabaseMaxIdleConns: getEnvInt("CLIENTELA_DB_MAX_IDLE_CONNS", 5),
		SeedDemoTenant:       getEnvBool("CLIENTELA_SEED_DEMO_TENANT", false),
	}
	return cfg, nil
}

// IsProduction reports whether the process runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
