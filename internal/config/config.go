package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env      string
	Store    store
	Remote   remote
	API      api
	Sync     Sync
	Quota    quota
	Session  session
	Cache    cache
	Logger   logger
	StateDir string
}

type store struct {
	Path string `env:"STORE_PATH"`
}

type remote struct {
	DatabaseURI string `env:"REMOTE_DATABASE_URI"`
	Migrations  string `env:"REMOTE_MIGRATIONS_PATH"`
	RealtimeURL string `env:"REMOTE_REALTIME_URL"`
}

type api struct {
	Address string `env:"API_ADDRESS"`
}

// Sync параметры движка синхронизации
type Sync struct {
	AutoSync               bool
	Interval               time.Duration
	ActiveMultiplier       float64
	ActiveWindow           time.Duration
	IdleThreshold          time.Duration
	BackgroundInterval     time.Duration
	BatchSize              int
	MaxRetries             int
	BackoffBase            time.Duration
	BackoffMultiplier      float64
	BackoffMax             time.Duration
	ReconnectMax           time.Duration
	MaxConsecutiveFailures int
	ConflictStrategy       string
	PullPageSize           int
	PushConcurrency        int
	MinTriggerInterval     time.Duration
	ProbeTimeout           time.Duration
	PartialLimits          map[string]int
}

type quota struct {
	ReservationTTL time.Duration
}

type session struct {
	TTL time.Duration
}

type cache struct {
	BudgetBytes int64
}

type logger struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("store.path", "bizsync.db")
	v.SetDefault("remote.migrations_path", "migrations/remote")
	v.SetDefault("api.address", "127.0.0.1:8765")
	v.SetDefault("log_level", "info")

	v.SetDefault("sync.auto_sync", true)
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.active_multiplier", 0.5)
	v.SetDefault("sync.active_window", 2*time.Minute)
	v.SetDefault("sync.idle_threshold", 10*time.Minute)
	v.SetDefault("sync.background_interval", 5*time.Minute)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.backoff_base", time.Second)
	v.SetDefault("sync.backoff_multiplier", 2.0)
	v.SetDefault("sync.backoff_max", 30*time.Second)
	v.SetDefault("sync.reconnect_max", 5*time.Minute)
	v.SetDefault("sync.max_consecutive_failures", 5)
	v.SetDefault("sync.conflict_strategy", "last_write_wins")
	v.SetDefault("sync.pull_page_size", 500)
	v.SetDefault("sync.push_concurrency", 4)
	v.SetDefault("sync.min_trigger_interval", 2*time.Second)
	v.SetDefault("sync.probe_timeout", 5*time.Second)
	v.SetDefault("sync.partial_limits", map[string]interface{}{
		"contacts":  1000,
		"templates": 500,
		"assets":    100,
	})

	v.SetDefault("quota.reservation_ttl", 10*time.Minute)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("cache.budget_bytes", int64(256*1024*1024))
}

// Load читает конфигурацию из .env, файла (если задан) и переменных окружения
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env: v.GetString("app_env"),
		Store: store{
			Path: v.GetString("store.path"),
		},
		Remote: remote{
			DatabaseURI: v.GetString("remote.database_uri"),
			Migrations:  v.GetString("remote.migrations_path"),
			RealtimeURL: v.GetString("remote.realtime_url"),
		},
		API: api{Address: v.GetString("api.address")},
		Sync: Sync{
			AutoSync:               v.GetBool("sync.auto_sync"),
			Interval:               v.GetDuration("sync.interval"),
			ActiveMultiplier:       v.GetFloat64("sync.active_multiplier"),
			ActiveWindow:           v.GetDuration("sync.active_window"),
			IdleThreshold:          v.GetDuration("sync.idle_threshold"),
			BackgroundInterval:     v.GetDuration("sync.background_interval"),
			BatchSize:              v.GetInt("sync.batch_size"),
			MaxRetries:             v.GetInt("sync.max_retries"),
			BackoffBase:            v.GetDuration("sync.backoff_base"),
			BackoffMultiplier:      v.GetFloat64("sync.backoff_multiplier"),
			BackoffMax:             v.GetDuration("sync.backoff_max"),
			ReconnectMax:           v.GetDuration("sync.reconnect_max"),
			MaxConsecutiveFailures: v.GetInt("sync.max_consecutive_failures"),
			ConflictStrategy:       v.GetString("sync.conflict_strategy"),
			PullPageSize:           v.GetInt("sync.pull_page_size"),
			PushConcurrency:        v.GetInt("sync.push_concurrency"),
			MinTriggerInterval:     v.GetDuration("sync.min_trigger_interval"),
			ProbeTimeout:           v.GetDuration("sync.probe_timeout"),
			PartialLimits:          partialLimits(v.GetStringMap("sync.partial_limits")),
		},
		Quota:    quota{ReservationTTL: v.GetDuration("quota.reservation_ttl")},
		Session:  session{TTL: v.GetDuration("session.ttl")},
		Cache:    cache{BudgetBytes: v.GetInt64("cache.budget_bytes")},
		Logger:   logger{LogLevel: v.GetString("log_level")},
		StateDir: v.GetString("state_dir"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad загружает конфигурацию и завершает процесс при ошибке
func MustLoad() *Config {
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := Load(nil)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	return cfg
}

func (c *Config) validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown app_env %q", c.Env)
	}

	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}

	return nil
}

func partialLimits(raw map[string]interface{}) map[string]int {
	limits := make(map[string]int, len(raw))
	for table, v := range raw {
		switch n := v.(type) {
		case int:
			limits[table] = n
		case int64:
			limits[table] = int(n)
		case float64:
			limits[table] = int(n)
		}
	}
	return limits
}
