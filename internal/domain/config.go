package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Reports  ReportConfig   `mapstructure:"reports"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int32         `mapstructure:"max_open_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	ConfigStorePath string        `mapstructure:"config_store_path"`
}

// CacheConfig represents Redis resolution cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// AuditConfig represents audit event publishing configuration
type AuditConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PolicyConfig drives the interpretation policy: which assay groups require
// subpanel-level scoping, the scope fallback chain, and the sentinel tier.
// The subpanel exception list is data, not branching code, so new assay
// groups can opt in without matcher changes.
type PolicyConfig struct {
	SentinelTier      int      `mapstructure:"sentinel_tier"`
	SubpanelAssays    []string `mapstructure:"subpanel_assays"`
	FallbackChain     []string `mapstructure:"fallback_chain"`
	AlternativeLookup bool     `mapstructure:"alternative_lookup"`
	ScopeCacheSize    int      `mapstructure:"scope_cache_size"`
}

// ReportConfig represents report save behavior
type ReportConfig struct {
	ArtifactDir  string        `mapstructure:"artifact_dir"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// AuthConfig maps API tokens to granted permissions. Permission-string
// enumeration lives with the governance entities; this is only the gate at
// the service boundary.
type AuthConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Tokens  map[string][]string `mapstructure:"tokens"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
