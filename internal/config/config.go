package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr      string
	StoreDriver   string // "postgres" or "sqlite"
	DatabaseDSN   string
	SQLitePath    string
	JWTIssuer     string
	JWTSecret     string
	InternalToken string
	WSOrigin      string
	OpTimeout     time.Duration
	MinOperating  decimal.Decimal
}

// Load reads the configuration from the environment. All required variables
// are reported together so a misconfigured deployment fails with one message.
func Load() (Config, error) {
	var missing []string
	get := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	getDefault := func(key, def string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		HTTPAddr:      getDefault("HTTP_ADDR", ":8080"),
		StoreDriver:   strings.ToLower(getDefault("STORE_DRIVER", "postgres")),
		SQLitePath:    getDefault("SQLITE_PATH", "treasury.db"),
		JWTIssuer:     getDefault("JWT_ISSUER", "strategyvault"),
		JWTSecret:     get("JWT_SECRET"),
		InternalToken: get("INTERNAL_API_TOKEN"),
		WSOrigin:      getDefault("WS_ORIGIN", "*"),
	}

	switch cfg.StoreDriver {
	case "postgres":
		cfg.DatabaseDSN = get("DB_DSN")
	case "sqlite":
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	timeout, err := time.ParseDuration(getDefault("TREASURY_OP_TIMEOUT", "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TREASURY_OP_TIMEOUT: %w", err)
	}
	cfg.OpTimeout = timeout

	minOp, err := decimal.NewFromString(getDefault("MIN_OPERATING_BALANCE", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid MIN_OPERATING_BALANCE: %w", err)
	}
	cfg.MinOperating = minOp

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}
