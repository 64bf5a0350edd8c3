package config

import "time"

// Config is the root configuration for the service. Values are loaded from
// defaults and environment variables and threaded through constructors;
// nothing reads configuration from package-level state.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Log         LogConfig         `koanf:"log"`
	Session     SessionConfig     `koanf:"session"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit"`
	Payment     PaymentConfig     `koanf:"payment"`
	Fulfillment FulfillmentConfig `koanf:"fulfillment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"    validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `koanf:"dsn" validate:"required"`
	MaxConns        int           `koanf:"max_conns"`
	MinConns        int           `koanf:"min_conns"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON   bool   `koanf:"json"`
	Source bool   `koanf:"source"`
}

type SessionConfig struct {
	// TTL is the wall-clock lifetime of a checkout session.
	TTL time.Duration `koanf:"ttl" validate:"required"`
}

type RateLimitConfig struct {
	// Default per-key quotas applied at key issuance.
	DefaultHourlyLimit int `koanf:"default_hourly_limit" validate:"min=1"`
	DefaultDailyLimit  int `koanf:"default_daily_limit"  validate:"min=1"`
	// Coarse pre-auth limit applied per client IP.
	IPLimit  int64         `koanf:"ip_limit"`
	IPPeriod time.Duration `koanf:"ip_period"`
}

type PaymentConfig struct {
	ProcessorURL    string        `koanf:"processor_url" validate:"required"`
	ProcessorAPIKey string        `koanf:"processor_api_key"`
	Timeout         time.Duration `koanf:"timeout"`
}

type FulfillmentConfig struct {
	LabelServiceURL string        `koanf:"label_service_url"`
	NotifyURL       string        `koanf:"notify_url"`
	Timeout         time.Duration `koanf:"timeout"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5001,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:            "postgres://localhost:5432/cardmart?sslmode=disable",
			MaxConns:       20,
			MinConns:       0,
			ConnectTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "",
		},
		Log: LogConfig{
			Level: "info",
		},
		Session: SessionConfig{
			TTL: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			DefaultHourlyLimit: 1000,
			DefaultDailyLimit:  10000,
			IPLimit:            300,
			IPPeriod:           time.Minute,
		},
		Payment: PaymentConfig{
			ProcessorURL: "https://api.processor.example.com",
			Timeout:      10 * time.Second,
		},
		Fulfillment: FulfillmentConfig{
			Timeout: 5 * time.Second,
		},
	}
}
