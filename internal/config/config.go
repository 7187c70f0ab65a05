package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Discord   DiscordConfig
	Reconcile ReconcileConfig
	Claims    ClaimsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory stores.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines reporting API token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// DiscordConfig holds the bot credentials and the role mapping for permission levels.
type DiscordConfig struct {
	BotToken        string
	AppID           string
	GuildID         string
	TicketParentIDs []string
	SupportRoleIDs  []string
	AdminRoleIDs    []string
}

// ReconcileConfig sets the sweep periods. A zero slow period disables the slow loop.
type ReconcileConfig struct {
	FastSeconds int
	SlowSeconds int
}

// ClaimsConfig tunes claim accounting.
type ClaimsConfig struct {
	DefaultLimit         int
	LockTTLSeconds       int
	SettingsCacheTTLSecs int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-tracker"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Discord: DiscordConfig{
			BotToken:        strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
			AppID:           strings.TrimSpace(os.Getenv("DISCORD_APP_ID")),
			GuildID:         strings.TrimSpace(os.Getenv("DISCORD_GUILD_ID")),
			TicketParentIDs: getEnvAsList("DISCORD_TICKET_PARENT_IDS"),
			SupportRoleIDs:  getEnvAsList("DISCORD_SUPPORT_ROLE_IDS"),
			AdminRoleIDs:    getEnvAsList("DISCORD_ADMIN_ROLE_IDS"),
		},
		Reconcile: ReconcileConfig{
			FastSeconds: getEnvAsInt("RECONCILE_FAST_SECONDS", 5),
			SlowSeconds: getEnvAsInt("RECONCILE_SLOW_SECONDS", 3600),
		},
		Claims: ClaimsConfig{
			DefaultLimit:         getEnvAsInt("CLAIM_DEFAULT_LIMIT", 5),
			LockTTLSeconds:       getEnvAsInt("CLAIM_LOCK_TTL_SECONDS", 10),
			SettingsCacheTTLSecs: getEnvAsInt("CONFIG_CACHE_TTL_SECONDS", 30),
		},
	}

	return cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if c.Reconcile.FastSeconds <= 0 {
		return fmt.Errorf("RECONCILE_FAST_SECONDS must be positive")
	}
	if c.Reconcile.SlowSeconds < 0 {
		return fmt.Errorf("RECONCILE_SLOW_SECONDS must not be negative")
	}
	if c.Claims.DefaultLimit < 0 {
		return fmt.Errorf("CLAIM_DEFAULT_LIMIT must not be negative")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// FastPeriod returns the fast sweep period.
func (r ReconcileConfig) FastPeriod() time.Duration {
	return time.Duration(r.FastSeconds) * time.Second
}

// SlowPeriod returns the slow sweep period, zero when disabled.
func (r ReconcileConfig) SlowPeriod() time.Duration {
	if r.SlowSeconds <= 0 {
		return 0
	}
	return time.Duration(r.SlowSeconds) * time.Second
}

// LockTTL returns how long a per-agent claim lock may be held.
func (c ClaimsConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// SettingsCacheTTL returns the settings cache lifetime, zero when caching is off.
func (c ClaimsConfig) SettingsCacheTTL() time.Duration {
	if c.SettingsCacheTTLSecs <= 0 {
		return 0
	}
	return time.Duration(c.SettingsCacheTTLSecs) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
