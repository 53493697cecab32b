package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Log       LogConfig
	Store     StoreConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Google    GoogleConfig
	EagleView EagleViewConfig
	Billing   BillingConfig
	Cache     CacheConfig
	Poller    PollerConfig
	Order     OrderConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

type StoreConfig struct {
	Driver string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

func (c RabbitMQConfig) Enabled() bool {
	return c.URL != ""
}

type GoogleConfig struct {
	APIKey       string
	GeocodingURL string
	SolarURL     string
	Timeout      time.Duration
}

type EagleViewConfig struct {
	ClientID            string
	ClientSecret        string
	BaseURL             string
	AuthURL             string
	Timeout             time.Duration
	LiveMode            bool
	DailyOrderLimit     int
	SimulatedTurnaround time.Duration
}

type BillingConfig struct {
	Location *time.Location
}

type CacheConfig struct {
	Freshness time.Duration
}

type PollerConfig struct {
	Interval         time.Duration
	Timeout          time.Duration
	CheckWaitTimeout time.Duration
	MinRecheck       time.Duration
	BatchSize        int
	Concurrency      int
	OrderMaxAge      time.Duration
}

type OrderConfig struct {
	ReservationTxTimeout time.Duration
	MaxRetryAttempts     int
	SubmitLockTTL        time.Duration
	SubmitLockWait       time.Duration
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	setDefaults(v)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreDriverMySQL)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "roofline")
	v.SetDefault("DB_PASSWORD", "secret")
	v.SetDefault("DB_NAME", "roofline")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "roofline.orders")

	v.SetDefault("GOOGLE_API_KEY", "")
	v.SetDefault("GOOGLE_GEOCODING_URL", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("GOOGLE_SOLAR_URL", "https://solar.googleapis.com/v1/buildingInsights:findClosest")
	v.SetDefault("GOOGLE_TIMEOUT", "15s")

	v.SetDefault("EAGLEVIEW_CLIENT_ID", "")
	v.SetDefault("EAGLEVIEW_CLIENT_SECRET", "")
	v.SetDefault("EAGLEVIEW_BASE_URL", "https://api.eagleview.com")
	v.SetDefault("EAGLEVIEW_AUTH_URL", "https://apicenter.eagleview.com/oauth2/v1/token")
	v.SetDefault("EAGLEVIEW_TIMEOUT", "30s")
	v.SetDefault("EAGLEVIEW_LIVE_MODE", false)
	v.SetDefault("EAGLEVIEW_DAILY_ORDER_LIMIT", 5)
	v.SetDefault("SIMULATED_TURNAROUND", "0s")

	v.SetDefault("BILLING_TIMEZONE", "UTC")
	v.SetDefault("CACHE_FRESHNESS", "720h")

	v.SetDefault("POLL_INTERVAL", "60s")
	v.SetDefault("POLL_TIMEOUT", "20s")
	v.SetDefault("CHECK_WAIT_TIMEOUT", "10s")
	v.SetDefault("POLL_MIN_RECHECK", "5s")
	v.SetDefault("POLL_BATCH_SIZE", 50)
	v.SetDefault("POLL_CONCURRENCY", 4)
	v.SetDefault("ORDER_MAX_AGE", "72h")

	v.SetDefault("RESERVATION_TX_TIMEOUT", "5s")
	v.SetDefault("MAX_RETRY_ATTEMPTS", 3)
	v.SetDefault("SUBMIT_LOCK_TTL", "60s")
	v.SetDefault("SUBMIT_LOCK_WAIT", "5s")
}

func fromViper(v *viper.Viper) (*Config, error) {
	var errs []error
	duration := func(key string) time.Duration {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", key, err))
		}
		return d
	}

	loc, err := time.LoadLocation(v.GetString("BILLING_TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("loading BILLING_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: duration("DB_CONN_MAX_LIFETIME"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Store: StoreConfig{
			Driver: v.GetString("STORE_DRIVER"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		Google: GoogleConfig{
			APIKey:       v.GetString("GOOGLE_API_KEY"),
			GeocodingURL: v.GetString("GOOGLE_GEOCODING_URL"),
			SolarURL:     v.GetString("GOOGLE_SOLAR_URL"),
			Timeout:      duration("GOOGLE_TIMEOUT"),
		},
		EagleView: EagleViewConfig{
			ClientID:            v.GetString("EAGLEVIEW_CLIENT_ID"),
			ClientSecret:        v.GetString("EAGLEVIEW_CLIENT_SECRET"),
			BaseURL:             v.GetString("EAGLEVIEW_BASE_URL"),
			AuthURL:             v.GetString("EAGLEVIEW_AUTH_URL"),
			Timeout:             duration("EAGLEVIEW_TIMEOUT"),
			LiveMode:            v.GetBool("EAGLEVIEW_LIVE_MODE"),
			DailyOrderLimit:     v.GetInt("EAGLEVIEW_DAILY_ORDER_LIMIT"),
			SimulatedTurnaround: duration("SIMULATED_TURNAROUND"),
		},
		Billing: BillingConfig{
			Location: loc,
		},
		Cache: CacheConfig{
			Freshness: duration("CACHE_FRESHNESS"),
		},
		Poller: PollerConfig{
			Interval:         duration("POLL_INTERVAL"),
			Timeout:          duration("POLL_TIMEOUT"),
			CheckWaitTimeout: duration("CHECK_WAIT_TIMEOUT"),
			MinRecheck:       duration("POLL_MIN_RECHECK"),
			BatchSize:        v.GetInt("POLL_BATCH_SIZE"),
			Concurrency:      v.GetInt("POLL_CONCURRENCY"),
			OrderMaxAge:      duration("ORDER_MAX_AGE"),
		},
		Order: OrderConfig{
			ReservationTxTimeout: duration("RESERVATION_TX_TIMEOUT"),
			MaxRetryAttempts:     v.GetInt("MAX_RETRY_ATTEMPTS"),
			SubmitLockTTL:        duration("SUBMIT_LOCK_TTL"),
			SubmitLockWait:       duration("SUBMIT_LOCK_WAIT"),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Store.Driver != StoreDriverMySQL && cfg.Store.Driver != StoreDriverMemory {
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.EagleView.DailyOrderLimit < 0 {
		return nil, fmt.Errorf("EAGLEVIEW_DAILY_ORDER_LIMIT must not be negative")
	}
	if cfg.EagleView.LiveMode && (cfg.EagleView.ClientID == "" || cfg.EagleView.ClientSecret == "") {
		return nil, fmt.Errorf("EAGLEVIEW_LIVE_MODE requires EAGLEVIEW_CLIENT_ID and EAGLEVIEW_CLIENT_SECRET")
	}

	return cfg, nil
}
