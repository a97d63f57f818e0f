// Package config is the coordinator's flag+env configuration layer,
// grounded on the teacher's prom_proxy/main.go getEnvWithDefault pattern.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds every value cmd/sgdmaster needs to start the coordinator.
type Config struct {
	Port              string
	ExpectedNodeCount int
	DatasetPath       string
	PostgresConnStr   string
	PostgresTable     string
	Mode              string // "sync" or "async"
	Epochs            int
	BatchSize         int
	MaxSteps          int64
	CheckEvery        int64
	LeakCoef          float64
	DevMode           bool
	RateLimitTokens   int64
	RateLimitRefill   int64
}

// Load parses flags, falling back to environment variables, then defaults —
// the same precedence the teacher's prom_proxy binary uses.
func Load() Config {
	cfg := Config{}
	flag.StringVar(&cfg.Port, "port", getEnvWithDefault("PORT", "8080"), "HTTP listen port")
	flag.IntVar(&cfg.ExpectedNodeCount, "expected-node-count", getEnvIntWithDefault("EXPECTED_NODE_COUNT", 1), "number of workers expected before the cluster is ready")
	flag.StringVar(&cfg.DatasetPath, "dataset", getEnvWithDefault("DATASET_PATH", ""), "path to a label-first CSV dataset")
	flag.StringVar(&cfg.PostgresConnStr, "postgres-conn", getEnvWithDefault("POSTGRES_CONN", ""), "optional Postgres connection string for dataset loading")
	flag.StringVar(&cfg.PostgresTable, "postgres-table", getEnvWithDefault("POSTGRES_TABLE", ""), "Postgres table holding (features, label) rows")
	flag.StringVar(&cfg.Mode, "mode", getEnvWithDefault("TRAIN_MODE", "sync"), "default training mode: sync or async")
	flag.IntVar(&cfg.Epochs, "epochs", getEnvIntWithDefault("EPOCHS", 10), "sync training epochs")
	flag.IntVar(&cfg.BatchSize, "batch-size", getEnvIntWithDefault("BATCH_SIZE", 32), "batch size for both sync and async training")
	flag.Int64Var(&cfg.MaxSteps, "max-steps", getEnvInt64WithDefault("MAX_STEPS", 10000), "async max updates before forced termination")
	flag.Int64Var(&cfg.CheckEvery, "check-every", getEnvInt64WithDefault("CHECK_EVERY", 50), "async monitor: minimum updates between loss probes")
	flag.Float64Var(&cfg.LeakCoef, "leak-coef", getEnvFloatWithDefault("LEAK_COEF", 1.0), "async monitor exponential smoothing coefficient")
	flag.BoolVar(&cfg.DevMode, "dev", os.Getenv("DEV_MODE") != "", "enable debug-level logging")
	flag.Int64Var(&cfg.RateLimitTokens, "rate-limit-tokens", getEnvInt64WithDefault("RATE_LIMIT_TOKENS", 20), "token bucket capacity for the client HTTP surface")
	flag.Int64Var(&cfg.RateLimitRefill, "rate-limit-refill", getEnvInt64WithDefault("RATE_LIMIT_REFILL", 5), "token bucket refill rate (tokens/sec)")
	flag.Parse()
	return cfg
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
