// Package config loads the settlement engine's runtime configuration from
// the environment, with optional .env file support.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Oracle providers.
const (
	OracleOpenMeteo = "openmeteo"
	OracleStatic    = "static"
)

type Config struct {
	Port string

	// Journal storage. An empty DatabaseURL selects the in-memory store.
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	Operator common.Address
	Tickets  common.Address
	Custody  common.Address

	// JWTSecret enables bearer-token caller identity. Empty means the
	// X-Account header is trusted (development only).
	JWTSecret string

	OracleProvider      string
	OpenMeteoGeocodeURL string
	OpenMeteoArchiveURL string
	OracleTimeout       time.Duration

	// KeeperInterval is how often due draws are settled. Zero disables the
	// keeper.
	KeeperInterval time.Duration

	// Stake caps per user; zero disables a cap.
	MaxStakePerThreshold decimal.Decimal
	MaxStakePerDraw      decimal.Decimal
}

// Load reads configuration from the environment with sensible defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}
	cfg := &Config{
		Port:                getenvDefault("PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		OracleProvider:      strings.ToLower(getenvDefault("ORACLE_PROVIDER", OracleOpenMeteo)),
		OpenMeteoGeocodeURL: os.Getenv("OPENMETEO_GEOCODE_URL"),
		OpenMeteoArchiveURL: os.Getenv("OPENMETEO_ARCHIVE_URL"),
	}

	var err error
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.OracleTimeout, err = getenvDuration("ORACLE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.KeeperInterval, err = getenvDuration("KEEPER_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if cfg.Operator, err = getenvAddress("OPERATOR_ADDRESS", true); err != nil {
		return nil, err
	}
	if cfg.Custody, err = getenvAddress("CUSTODY_ADDRESS", true); err != nil {
		return nil, err
	}
	if cfg.Tickets, err = getenvAddress("TICKETS_ADDRESS", false); err != nil {
		return nil, err
	}
	if cfg.Custody == cfg.Operator {
		return nil, fmt.Errorf("CUSTODY_ADDRESS must differ from OPERATOR_ADDRESS")
	}

	switch cfg.OracleProvider {
	case OracleOpenMeteo, OracleStatic:
	default:
		return nil, fmt.Errorf("invalid ORACLE_PROVIDER %q (want %s or %s)", cfg.OracleProvider, OracleOpenMeteo, OracleStatic)
	}

	if cfg.MaxStakePerThreshold, err = getenvDecimal("MAX_STAKE_PER_THRESHOLD"); err != nil {
		return nil, err
	}
	if cfg.MaxStakePerDraw, err = getenvDecimal("MAX_STAKE_PER_DRAW"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", key, v)
	}
	return d, nil
}

func getenvDecimal(key string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func getenvAddress(key string, required bool) (common.Address, error) {
	v := os.Getenv(key)
	if v == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s is required", key)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s: %q is not a hex address", key, v)
	}
	addr := common.HexToAddress(v)
	if required && addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s must not be the zero address", key)
	}
	return addr, nil
}
