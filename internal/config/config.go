package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Stripe    StripeConfig
	Auth      AuthConfig
	Booking   BookingConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
}

type AppConfig struct {
	Env       string
	LogLevel  string
	HTTPAddr  string
	GRPCAddr  string
	APIPrefix string
	// Разрешённые CORS origin'ы, "*" значит любой.
	CORSOrigins []string
}

type DBConfig struct {
	Driver          string // postgres | sqlite
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	TimeZone        string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifeTime int // минут
}

type RedisConfig struct {
	URL         string
	RoomPrefix  string
	PushTimeout time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type AuthConfig struct {
	JWTSecret string
}

type BookingConfig struct {
	Currency string
	// Если включено, провайдер не может принять бронь вручную до успешной оплаты.
	RequirePaymentForAccept bool
}

type KafkaConfig struct {
	Brokers string
	Topic   string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type JobsConfig struct {
	RatingRecomputeEvery time.Duration
	PaymentSweepEvery    time.Duration
	PaymentStaleAfter    time.Duration
}

// Load читает конфигурацию из окружения и опционального config.yaml.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":50051")
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "postgres")
	v.SetDefault("DB_USER", "booking")
	v.SetDefault("DB_PASSWORD", "booking")
	v.SetDefault("DB_NAME", "booking_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SQLITE_PATH", "booking.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MIN", 30)

	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("REDIS_ROOM_PREFIX", "rt:")
	v.SetDefault("PUSH_TIMEOUT", "3s")

	v.SetDefault("BOOKING_CURRENCY", "usd")
	v.SetDefault("BOOKING_REQUIRE_PAYMENT_FOR_ACCEPT", false)

	v.SetDefault("KAFKA_TOPIC", "booking-events")

	v.SetDefault("RATE_LIMIT_PER_MIN", 100)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("JOB_RATING_RECOMPUTE_EVERY", "6h")
	v.SetDefault("JOB_PAYMENT_SWEEP_EVERY", "5m")
	v.SetDefault("JOB_PAYMENT_STALE_AFTER", "30m")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:         v.GetString("APP_ENV"),
			LogLevel:    v.GetString("LOG_LEVEL"),
			HTTPAddr:    v.GetString("HTTP_ADDR"),
			GRPCAddr:    v.GetString("GRPC_ADDR"),
			APIPrefix:   v.GetString("API_PREFIX"),
			CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		},
		DB: DBConfig{
			Driver:          v.GetString("DB_DRIVER"),
			Host:            v.GetString("DB_HOST"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			TimeZone:        v.GetString("DB_TIMEZONE"),
			Port:            v.GetInt("DB_PORT"),
			SQLitePath:      v.GetString("DB_SQLITE_PATH"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifeTime: v.GetInt("DB_CONN_MAX_LIFETIME_MIN"),
		},
		Redis: RedisConfig{
			URL:         v.GetString("REDIS_URL"),
			RoomPrefix:  v.GetString("REDIS_ROOM_PREFIX"),
			PushTimeout: v.GetDuration("PUSH_TIMEOUT"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Booking: BookingConfig{
			Currency:                strings.ToLower(v.GetString("BOOKING_CURRENCY")),
			RequirePaymentForAccept: v.GetBool("BOOKING_REQUIRE_PAYMENT_FOR_ACCEPT"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetString("KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: v.GetInt("RATE_LIMIT_PER_MIN"),
			Burst:             v.GetInt("RATE_LIMIT_BURST"),
		},
		Jobs: JobsConfig{
			RatingRecomputeEvery: v.GetDuration("JOB_RATING_RECOMPUTE_EVERY"),
			PaymentSweepEvery:    v.GetDuration("JOB_PAYMENT_SWEEP_EVERY"),
			PaymentStaleAfter:    v.GetDuration("JOB_PAYMENT_STALE_AFTER"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres":
		// минимальная валидация
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			return fmt.Errorf("invalid DB config: host/user/name must not be empty")
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("invalid DB config: sqlite path must not be empty")
		}
	default:
		return fmt.Errorf("invalid DB config: unknown driver %q", c.DB.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("invalid auth config: JWT_SECRET must be set")
	}
	if c.Booking.Currency == "" {
		return fmt.Errorf("invalid booking config: currency must be set")
	}
	return nil
}

// IsProduction сообщает, запущены ли мы в боевом окружении.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
