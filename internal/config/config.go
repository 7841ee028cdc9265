package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ledger-backend/internal/db"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultConfigFile = "configs/config.yaml"

type Config struct {
	Server struct {
		Port               int           `mapstructure:"port"`
		StaticDir          string        `mapstructure:"static_dir"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
		CorsAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string      `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string      `mapstructure:"cors_allowed_headers"`
	} `mapstructure:"server"`

	Storage struct {
		Driver       string        `mapstructure:"driver"` // sqlite or pgx
		DSN          string        `mapstructure:"dsn"`
		DataDir      string        `mapstructure:"data_dir"`
		MaxOpenConns int           `mapstructure:"max_open_conns"`
		BusyTimeout  time.Duration `mapstructure:"busy_timeout"`
	} `mapstructure:"storage"`

	// Database is used to build the DSN when the pgx driver is selected
	// without an explicit storage.dsn.
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Readiness struct {
		Timeout      time.Duration `mapstructure:"timeout"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"readiness"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Cache struct {
		Enabled  bool     `mapstructure:"enabled"`
		Backend  string   `mapstructure:"backend"` // bolt or redis
		Path     string   `mapstructure:"path"`
		Prefix   string   `mapstructure:"prefix"`
		Version  string   `mapstructure:"version"`
		Manifest []string `mapstructure:"manifest"`
	} `mapstructure:"cache"`

	Backup struct {
		Enabled   bool          `mapstructure:"enabled"`
		Endpoint  string        `mapstructure:"endpoint"`
		Region    string        `mapstructure:"region"`
		Bucket    string        `mapstructure:"bucket"`
		Prefix    string        `mapstructure:"prefix"`
		AccessKey string        `mapstructure:"access_key"`
		SecretKey string        `mapstructure:"secret_key"`
		Interval  time.Duration `mapstructure:"interval"`
	} `mapstructure:"backup"`

	Monitoring struct {
		StatsInterval time.Duration `mapstructure:"stats_interval"`
	} `mapstructure:"monitoring"`

	Timezone string `mapstructure:"timezone"`
}

// Load reads DefaultConfigFile and the environment. It exits on a malformed config.
func Load() *Config {
	cfg, err := LoadFile(DefaultConfigFile)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	return cfg
}

// LoadFile reads configuration from path (optional), .env and the environment.
// LEDGER_<SECTION>_<KEY> overrides any key; DB_*, REDIS_* and BACKUP_*
// shorthands are also honored.
func LoadFile(path string) (*Config, error) {
	// Load .env file if exists
	godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[Config] No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "web")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "X-Request-ID"})

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.busy_timeout", 5*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "ledger")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("readiness.timeout", 15*time.Second)
	v.SetDefault("readiness.poll_interval", 100*time.Millisecond)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "bolt")
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.prefix", "ledger-assets")
	v.SetDefault("cache.version", "v1")
	v.SetDefault("cache.manifest", []string{})

	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.endpoint", "")
	v.SetDefault("backup.region", "auto")
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.prefix", "snapshots/")
	v.SetDefault("backup.access_key", "")
	v.SetDefault("backup.secret_key", "")
	v.SetDefault("backup.interval", time.Hour)

	v.SetDefault("monitoring.stats_interval", 30*time.Second)

	v.SetDefault("timezone", "UTC")
}

func applyEnvOverrides(cfg *Config) {
	// Override database settings from DB_* environment variables
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	// Backup credentials are only read from the environment or the config file
	if key := os.Getenv("BACKUP_ACCESS_KEY"); key != "" {
		cfg.Backup.AccessKey = key
	}
	if secret := os.Getenv("BACKUP_SECRET_KEY"); secret != "" {
		cfg.Backup.SecretKey = secret
	}
	if bucket := os.Getenv("BACKUP_BUCKET"); bucket != "" {
		cfg.Backup.Bucket = bucket
	}
	if endpoint := os.Getenv("BACKUP_ENDPOINT"); endpoint != "" {
		cfg.Backup.Endpoint = endpoint
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if _, err := db.DialectFor(c.Storage.Driver); err != nil {
		return err
	}
	if c.Readiness.Timeout <= 0 {
		return fmt.Errorf("readiness.timeout must be positive")
	}
	if c.Readiness.PollInterval <= 0 || c.Readiness.PollInterval > c.Readiness.Timeout {
		return fmt.Errorf("readiness.poll_interval must be positive and not exceed the timeout")
	}
	switch c.Cache.Backend {
	case "bolt", "redis":
	default:
		return fmt.Errorf("cache.backend must be bolt or redis, got %q", c.Cache.Backend)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("backup.bucket is required when backups are enabled")
	}
	return nil
}

// StorageDSN returns the configured DSN, or one derived from the data
// directory (sqlite) or the database section (pgx).
func (c *Config) StorageDSN() string {
	if c.Storage.DSN != "" {
		return c.Storage.DSN
	}
	if d, err := db.DialectFor(c.Storage.Driver); err == nil && d.IsPostgres() {
		p := c.Database
		return db.PostgresDSN(p.Host, p.Port, p.User, p.Password, p.Name, p.SSLMode)
	}
	return filepath.Join(c.Storage.DataDir, "ledger.db")
}

// AssetCachePath returns the BoltDB file of the asset cache.
func (c *Config) AssetCachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Storage.DataDir, "assets.db")
}
