package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost           int           `mapstructure:"bcrypt_cost"`
}

// ScheduleConfig holds the calendar rules shared by shifts and leave.
type ScheduleConfig struct {
	Timezone        string `mapstructure:"timezone"`
	HoursPerDay     int    `mapstructure:"hours_per_day"`
	DefaultBalance  int    `mapstructure:"default_balance_days"`
	RecurrenceWeeks int    `mapstructure:"recurrence_weeks"`
	DayOffTemplate  string `mapstructure:"day_off_template"`
	HolidayTemplate string `mapstructure:"public_holiday_template"`
}

type NotificationConfig struct {
	EdgeFunctionURL      string        `mapstructure:"edge_function_url"`
	APIKey               string        `mapstructure:"api_key"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxWorkers           int           `mapstructure:"max_workers"`
	JobQueueSize         int           `mapstructure:"job_queue_size"`
	SubscriptionCooldown time.Duration `mapstructure:"subscription_cooldown"`
}

type RealtimeConfig struct {
	Broker        string `mapstructure:"broker"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Channel       string `mapstructure:"channel"`
	ClientBuffer  int    `mapstructure:"client_buffer"`
}

type ObservabilityConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type LoggingConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the configuration from plain environment variables (container deployments).
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			AccessTokenSecret:    getEnv("JWT_ACCESS_SECRET", ""),
			RefreshTokenSecret:   getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenDuration:  getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenDuration: getEnvAsDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			BCryptCost:           getEnvAsInt("BCRYPT_COST", 12),
		},
		Schedule: ScheduleConfig{
			Timezone:        getEnv("SCHEDULE_TIMEZONE", "UTC"),
			HoursPerDay:     getEnvAsInt("SCHEDULE_HOURS_PER_DAY", 8),
			DefaultBalance:  getEnvAsInt("SCHEDULE_DEFAULT_BALANCE_DAYS", 10),
			RecurrenceWeeks: getEnvAsInt("SCHEDULE_RECURRENCE_WEEKS", 4),
			DayOffTemplate:  getEnv("SCHEDULE_DAY_OFF_TEMPLATE", "DAY_OFF"),
			HolidayTemplate: getEnv("SCHEDULE_PUBLIC_HOLIDAY_TEMPLATE", "PUBLIC_HOLIDAY"),
		},
		Notification: NotificationConfig{
			EdgeFunctionURL:      getEnv("PUSH_FUNCTION_URL", ""),
			APIKey:               getEnv("PUSH_FUNCTION_KEY", ""),
			Timeout:              getEnvAsDuration("PUSH_TIMEOUT", 10*time.Second),
			MaxWorkers:           getEnvAsInt("PUSH_MAX_WORKERS", 4),
			JobQueueSize:         getEnvAsInt("PUSH_QUEUE_SIZE", 100),
			SubscriptionCooldown: getEnvAsDuration("PUSH_SUBSCRIPTION_COOLDOWN", 30*time.Second),
		},
		Realtime: RealtimeConfig{
			Broker:        getEnv("REALTIME_BROKER", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			Channel:       getEnv("REALTIME_CHANNEL", "marvellous:changes"),
			ClientBuffer:  getEnvAsInt("REALTIME_CLIENT_BUFFER", 32),
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      getEnv("OTEL_ENABLED", "false") == "true",
				ServiceName:  getEnv("OTEL_SERVICE_NAME", "marvellous-manager"),
				Endpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
				Insecure:     getEnv("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true",
				SamplingRate: 1,
			},
			Logging: LoggingConfig{
				Env:   getEnv("APP_ENV", "production"),
				Level: getEnv("LOG_LEVEL", "info"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Schedule.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("schedule config: %v", err))
	}

	if err := c.Realtime.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("realtime config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access_token_secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh_token_secret must be at least 32 characters")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.BCryptCost != 0 && (c.BCryptCost < 10 || c.BCryptCost > 15) {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *ScheduleConfig) Validate() error {
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %s: %w", c.Timezone, err)
		}
	}
	if c.HoursPerDay < 0 || c.DefaultBalance < 0 || c.RecurrenceWeeks < 0 {
		return errors.New("hours_per_day, default_balance_days and recurrence_weeks must not be negative")
	}
	return nil
}

// Location returns the configured calendar location, UTC when unset or unknown.
func (c ScheduleConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *RealtimeConfig) Validate() error {
	switch c.Broker {
	case "", "memory":
		return nil
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required when broker is redis")
		}
		return nil
	default:
		return fmt.Errorf("unknown broker %q", c.Broker)
	}
}
