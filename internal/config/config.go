package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the node configuration. The consensus and ledger constants
// are deployment parameters rather than protocol logic, so they are loaded
// from file/environment with conventional defaults.
type Config struct {
	DBPath string
	Params Params
	Log    LogConfig
}

// Params are the ledger's economic and consensus constants. Amounts are in
// base currency units.
type Params struct {
	// MinAirlineFunding is the exact amount an airline must contribute to
	// become funded.
	MinAirlineFunding uint64
	// ReporterStake is the exact stake required to register a reporter.
	ReporterStake uint64
	// MaxCoverage is the per-flight insurance purchase ceiling.
	MaxCoverage uint64
	// PayoutNumerator/PayoutDenominator form the payout multiplier applied
	// to the insured amount when a flight is late due to the airline
	// (3/2 = the conventional 1.5x).
	PayoutNumerator   uint64
	PayoutDenominator uint64
	// MinResponses is the number of matching reporter submissions required
	// to finalize a flight status.
	MinResponses int
	// IndexesPerReporter is the size of each reporter's index assignment.
	IndexesPerReporter int
	// IndexSpace bounds the index values; indexes are drawn from
	// [0, IndexSpace).
	IndexSpace uint8
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from config file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", "skysurety_data")
	v.SetDefault("params.min_airline_funding", 10_000_000_000)
	v.SetDefault("params.reporter_stake", 1_000_000_000)
	v.SetDefault("params.max_coverage", 1_000_000_000)
	v.SetDefault("params.payout_numerator", 3)
	v.SetDefault("params.payout_denominator", 2)
	v.SetDefault("params.min_responses", 3)
	v.SetDefault("params.indexes_per_reporter", 3)
	v.SetDefault("params.index_space", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/skysurety")
	v.AddConfigPath(".")

	if configPath := os.Getenv("SKYSURETY_CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults + env vars
	}

	v.SetEnvPrefix("SKYSURETY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		DBPath: v.GetString("db_path"),
		Params: Params{
			MinAirlineFunding:  v.GetUint64("params.min_airline_funding"),
			ReporterStake:      v.GetUint64("params.reporter_stake"),
			MaxCoverage:        v.GetUint64("params.max_coverage"),
			PayoutNumerator:    v.GetUint64("params.payout_numerator"),
			PayoutDenominator:  v.GetUint64("params.payout_denominator"),
			MinResponses:       v.GetInt("params.min_responses"),
			IndexesPerReporter: v.GetInt("params.indexes_per_reporter"),
			IndexSpace:         uint8(v.GetUint("params.index_space")),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultParams returns the conventional deployment parameters. Used by
// tests and as the fallback when no configuration is present.
func DefaultParams() Params {
	return Params{
		MinAirlineFunding:  10_000_000_000,
		ReporterStake:      1_000_000_000,
		MaxCoverage:        1_000_000_000,
		PayoutNumerator:    3,
		PayoutDenominator:  2,
		MinResponses:       3,
		IndexesPerReporter: 3,
		IndexSpace:         10,
	}
}

// validate validates the configuration values
func validate(cfg *Config) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	p := cfg.Params
	if p.MinAirlineFunding == 0 {
		return fmt.Errorf("params.min_airline_funding must be greater than 0")
	}
	if p.ReporterStake == 0 {
		return fmt.Errorf("params.reporter_stake must be greater than 0")
	}
	if p.MaxCoverage == 0 {
		return fmt.Errorf("params.max_coverage must be greater than 0")
	}
	if p.PayoutDenominator == 0 {
		return fmt.Errorf("params.payout_denominator must be greater than 0")
	}
	if p.MinResponses <= 0 {
		return fmt.Errorf("params.min_responses must be greater than 0")
	}
	if p.IndexesPerReporter <= 0 {
		return fmt.Errorf("params.indexes_per_reporter must be greater than 0")
	}
	if p.IndexSpace == 0 {
		return fmt.Errorf("params.index_space must be greater than 0")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	return nil
}
