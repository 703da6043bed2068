// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_REDIS_ADDRESS
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, e.g. config.production.yaml
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env from the working directory and its parents so the
// binary works the same from the repo root and from package test dirs.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in every string value.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)
		if s, ok := val.(string); ok && strings.Contains(s, "${") {
			v.Set(key, os.ExpandEnv(s))
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "carsearch"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.MetricsAddress == "" {
		cfg.Server.MetricsAddress = ":9090"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Search.RunTimeout == 0 {
		cfg.Search.RunTimeout = 8000
	}
	if cfg.Search.SourceTimeout == 0 {
		cfg.Search.SourceTimeout = 6000
	}
	if cfg.Search.MaxListings == 0 {
		cfg.Search.MaxListings = 50
	}
	if cfg.Search.TopForAI == 0 {
		cfg.Search.TopForAI = 5
	}
	if cfg.Search.RegistryPath == "" {
		cfg.Search.RegistryPath = "configs/sources.json"
	}

	if cfg.Limits.Actions == nil {
		cfg.Limits.Actions = map[string]LimitConfig{}
	}
	if _, ok := cfg.Limits.Actions["search"]; !ok {
		cfg.Limits.Actions["search"] = LimitConfig{Requests: 10, WindowMs: 60000}
	}
	if _, ok := cfg.Limits.Actions["analysis"]; !ok {
		cfg.Limits.Actions["analysis"] = LimitConfig{Requests: 3, WindowMs: 60000}
	}

	if cfg.Quotas.Actions == nil {
		cfg.Quotas.Actions = map[string]int{}
	}
	if _, ok := cfg.Quotas.Actions["search"]; !ok {
		cfg.Quotas.Actions["search"] = 100
	}
	if _, ok := cfg.Quotas.Actions["analysis"]; !ok {
		cfg.Quotas.Actions["analysis"] = 20
	}
	if len(cfg.Quotas.UnlimitedTiers) == 0 {
		cfg.Quotas.UnlimitedTiers = []string{"admin", "enterprise"}
	}

	applyScoringDefaults(&cfg.Scoring)

	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 5000
	}
}

func applyScoringDefaults(s *ScoringConfig) {
	if s.PriceWeight == 0 {
		s.PriceWeight = 0.40
	}
	if s.YearWeight == 0 {
		s.YearWeight = 0.15
	}
	if s.MileageWeight == 0 {
		s.MileageWeight = 0.10
	}
	if s.FuelWeight == 0 {
		s.FuelWeight = 0.04
	}
	if s.GearboxWeight == 0 {
		s.GearboxWeight = 0.03
	}
	if s.SellerWeight == 0 {
		s.SellerWeight = 0.03
	}
	if s.CompletenessWeight == 0 {
		s.CompletenessWeight = 0.25
	}
	if s.BaselineCacheTTL == 0 {
		s.BaselineCacheTTL = 900
	}
}

func validateConfig(cfg *Config) error {
	for action, limit := range cfg.Limits.Actions {
		if limit.Requests <= 0 {
			return fmt.Errorf("limits.actions.%s.requests must be positive", action)
		}
		if limit.WindowMs <= 0 {
			return fmt.Errorf("limits.actions.%s.window_ms must be positive", action)
		}
	}
	for action, allowance := range cfg.Quotas.Actions {
		if allowance < 0 {
			return fmt.Errorf("quotas.actions.%s must not be negative", action)
		}
	}
	if cfg.Search.RunTimeout < cfg.Search.SourceTimeout {
		return fmt.Errorf("search.run_timeout (%dms) must cover search.source_timeout (%dms)",
			cfg.Search.RunTimeout, cfg.Search.SourceTimeout)
	}
	return nil
}
