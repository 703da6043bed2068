// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Server   ServerConfig            `mapstructure:"server"`
	Database DatabaseConfig          `mapstructure:"database"`
	Search   SearchConfig            `mapstructure:"search"`
	Sources  map[string]SourceConfig `mapstructure:"sources"`
	Limits   LimitsConfig            `mapstructure:"limits"`
	Quotas   QuotasConfig            `mapstructure:"quotas"`
	Scoring  ScoringConfig           `mapstructure:"scoring"`
	AI       AIConfig                `mapstructure:"ai"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	MetricsAddress  string `mapstructure:"metrics_address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field.
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Search Orchestration Config ---

// SearchConfig holds the per-run timing budgets for the orchestrator.
type SearchConfig struct {
	RunTimeout    int    `mapstructure:"run_timeout"`    // milliseconds, whole fan-out budget
	SourceTimeout int    `mapstructure:"source_timeout"` // milliseconds, per adapter call
	MaxListings   int    `mapstructure:"max_listings"`   // cap on the ranked result list
	TopForAI      int    `mapstructure:"top_for_ai"`     // how many top listings feed the analyzer
	RegistryPath  string `mapstructure:"registry_path"`
}

func (s SearchConfig) RunDeadline() time.Duration {
	return time.Duration(s.RunTimeout) * time.Millisecond
}

func (s SearchConfig) SourceDeadline() time.Duration {
	return time.Duration(s.SourceTimeout) * time.Millisecond
}

// SourceConfig holds the per-source adapter settings.
type SourceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Priority int    `mapstructure:"priority"` // lower wins dedup ties
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Index    string `mapstructure:"index"` // elasticsearch-backed sources only
}

// --- Rate Limit / Quota Config ---

// LimitConfig defines one named fixed-window limit.
type LimitConfig struct {
	Requests int `mapstructure:"requests"`
	WindowMs int `mapstructure:"window_ms"`
}

func (l LimitConfig) Window() time.Duration {
	return time.Duration(l.WindowMs) * time.Millisecond
}

// LimitsConfig maps action types ("search", "analysis") to their limits.
type LimitsConfig struct {
	Actions map[string]LimitConfig `mapstructure:"actions"`
}

// QuotasConfig holds the monthly allowances per action and the tiers that
// bypass them.
type QuotasConfig struct {
	Actions        map[string]int `mapstructure:"actions"`
	UnlimitedTiers []string       `mapstructure:"unlimited_tiers"`
}

// --- Scoring Config ---

// ScoringConfig holds every weight of the ranking formula. All weights are
// configuration, never inline constants, so the ranking stays auditable.
type ScoringConfig struct {
	PriceWeight        float64 `mapstructure:"price_weight"`
	YearWeight         float64 `mapstructure:"year_weight"`
	MileageWeight      float64 `mapstructure:"mileage_weight"`
	FuelWeight         float64 `mapstructure:"fuel_weight"`
	GearboxWeight      float64 `mapstructure:"gearbox_weight"`
	SellerWeight       float64 `mapstructure:"seller_weight"`
	CompletenessWeight float64 `mapstructure:"completeness_weight"`
	BaselineCacheTTL   int     `mapstructure:"baseline_cache_ttl"` // seconds
}

func (s ScoringConfig) BaselineTTL() time.Duration {
	return time.Duration(s.BaselineCacheTTL) * time.Second
}

// --- AI Analyzer Config ---

type AIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

func (a AIConfig) Deadline() time.Duration {
	return time.Duration(a.Timeout) * time.Millisecond
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
