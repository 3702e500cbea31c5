package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	operatorHex = "0x00000000000000000000000000000000000000f1"
	custodyHex  = "0x00000000000000000000000000000000000000c5"
)

// setRequired sets the required keys and clears the rest so values from the
// host environment cannot leak in.
func setRequired(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "CACHE_TTL", "TICKETS_ADDRESS",
		"JWT_SECRET", "ORACLE_PROVIDER", "OPENMETEO_GEOCODE_URL",
		"OPENMETEO_ARCHIVE_URL", "ORACLE_TIMEOUT", "KEEPER_INTERVAL",
		"MAX_STAKE_PER_THRESHOLD", "MAX_STAKE_PER_DRAW",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("OPERATOR_ADDRESS", operatorHex)
	t.Setenv("CUSTODY_ADDRESS", custodyHex)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Second || cfg.OracleTimeout != 15*time.Second || cfg.KeeperInterval != time.Minute {
		t.Errorf("unexpected durations: ttl=%s timeout=%s keeper=%s", cfg.CacheTTL, cfg.OracleTimeout, cfg.KeeperInterval)
	}
	if cfg.OracleProvider != OracleOpenMeteo {
		t.Errorf("expected openmeteo provider, got %s", cfg.OracleProvider)
	}
	if cfg.Operator != common.HexToAddress(operatorHex) || cfg.Custody != common.HexToAddress(custodyHex) {
		t.Errorf("unexpected addresses: operator=%s custody=%s", cfg.Operator.Hex(), cfg.Custody.Hex())
	}
	if cfg.Tickets != (common.Address{}) {
		t.Errorf("expected zero tickets address, got %s", cfg.Tickets.Hex())
	}
	if !cfg.MaxStakePerThreshold.IsZero() || !cfg.MaxStakePerDraw.IsZero() {
		t.Error("stake caps should default to disabled")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ORACLE_PROVIDER", "STATIC")
	t.Setenv("KEEPER_INTERVAL", "0s")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("MAX_STAKE_PER_THRESHOLD", "100")
	t.Setenv("MAX_STAKE_PER_DRAW", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" || cfg.OracleProvider != OracleStatic {
		t.Errorf("unexpected port/provider: %s %s", cfg.Port, cfg.OracleProvider)
	}
	if cfg.KeeperInterval != 0 || cfg.CacheTTL != 2*time.Minute {
		t.Errorf("unexpected durations: keeper=%s ttl=%s", cfg.KeeperInterval, cfg.CacheTTL)
	}
	if !cfg.MaxStakePerThreshold.Equal(decimal.NewFromInt(100)) || !cfg.MaxStakePerDraw.Equal(decimal.NewFromInt(250)) {
		t.Errorf("unexpected caps: %s %s", cfg.MaxStakePerThreshold, cfg.MaxStakePerDraw)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"missing operator", "OPERATOR_ADDRESS", ""},
		{"bad operator", "OPERATOR_ADDRESS", "alice"},
		{"zero custody", "CUSTODY_ADDRESS", "0x0000000000000000000000000000000000000000"},
		{"custody is operator", "CUSTODY_ADDRESS", operatorHex},
		{"bad tickets", "TICKETS_ADDRESS", "0x12"},
		{"bad provider", "ORACLE_PROVIDER", "noaa"},
		{"bad duration", "ORACLE_TIMEOUT", "soon"},
		{"negative duration", "KEEPER_INTERVAL", "-1m"},
		{"bad cap", "MAX_STAKE_PER_DRAW", "lots"},
		{"negative cap", "MAX_STAKE_PER_THRESHOLD", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
