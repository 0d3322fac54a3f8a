// Package config loads server settings from BIDFLOW_* environment variables
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/garnizeh/bidflow/pkg/paygate"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Addr           string           `yaml:"addr"`
	Env            string           `yaml:"env"`
	JWTSecret      string           `yaml:"jwt_secret"`
	APITimeout     time.Duration    `yaml:"timeout"`
	DatabaseDriver string           `yaml:"database_driver"`
	DatabaseDSN    string           `yaml:"database_dsn"`
	MigrateOnStart bool             `yaml:"migrate_on_start"`
	Scheduler      SchedulerConfig  `yaml:"scheduler"`
	Payments       PaymentsConfig   `yaml:"payments"`
	Scheduling     SchedulingConfig `yaml:"scheduling"`
	Jobs           JobsConfig       `yaml:"jobs"`
}

type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

type PaymentsConfig struct {
	Gateway       paygate.Config  `yaml:"gateway"`
	WebhookSecret string          `yaml:"webhook_secret"`
	Tolerance     time.Duration   `yaml:"tolerance"`
	SessionTTL    time.Duration   `yaml:"session_ttl"`
	FeePercent    decimal.Decimal `yaml:"fee_percent"`
	Currency      string          `yaml:"currency"`
	SuccessURL    string          `yaml:"success_url"`
	CancelURL     string          `yaml:"cancel_url"`
	// Payouts sends milestone payouts through the gateway. When false they
	// are only logged.
	Payouts bool `yaml:"payouts"`
}

type SchedulingConfig struct {
	WebhookSecret string        `yaml:"webhook_secret"`
	Tolerance     time.Duration `yaml:"tolerance"`
	BookingTTL    time.Duration `yaml:"booking_ttl"`
	Link          string        `yaml:"link"`
}

type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("BIDFLOW_ADDR", ":8080"),
		Env:            getEnv("BIDFLOW_ENV", "production"),
		JWTSecret:      getEnv("BIDFLOW_JWT_SECRET", insecureJWTSecret),
		APITimeout:     15 * time.Second,
		DatabaseDriver: getEnv("BIDFLOW_DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("BIDFLOW_DATABASE_DSN", "bidflow.db"),
		MigrateOnStart: getEnvBool("BIDFLOW_MIGRATE_ON_START", true),
		Payments: PaymentsConfig{
			Gateway:       paygate.DefaultConfig(),
			WebhookSecret: os.Getenv("BIDFLOW_PAYMENTS_WEBHOOK_SECRET"),
			SuccessURL:    os.Getenv("BIDFLOW_PAYMENTS_SUCCESS_URL"),
			CancelURL:     os.Getenv("BIDFLOW_PAYMENTS_CANCEL_URL"),
		},
		Scheduling: SchedulingConfig{
			WebhookSecret: os.Getenv("BIDFLOW_SCHEDULING_WEBHOOK_SECRET"),
			Link:          os.Getenv("BIDFLOW_SCHEDULING_LINK"),
		},
	}
	if v := os.Getenv("BIDFLOW_PAYGATE_URL"); v != "" {
		cfg.Payments.Gateway.BaseURL = v
	}
	cfg.Payments.Gateway.APIKey = os.Getenv("BIDFLOW_PAYGATE_API_KEY")

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate rejects unusable settings and fills in defaults for the optional
// ones. The well-known development JWT secret is only accepted when Env is
// development.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if c.JWTSecret == insecureJWTSecret && !c.IsDevelopment() {
		errs = append(errs, errors.New("jwt_secret must be changed outside development"))
	}
	switch c.DatabaseDriver {
	case "sqlite", "pgx":
	case "":
		c.DatabaseDriver = "sqlite"
	default:
		errs = append(errs, fmt.Errorf("database_driver %q is not supported", c.DatabaseDriver))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database_dsn is required"))
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}

	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = 5 * time.Minute
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 500
	}

	p := &c.Payments
	def := paygate.DefaultConfig()
	if p.Gateway.BaseURL == "" {
		p.Gateway.BaseURL = def.BaseURL
	}
	if p.Gateway.Timeout <= 0 {
		p.Gateway.Timeout = def.Timeout
	}
	if p.Gateway.Retries == 0 {
		p.Gateway.Retries = def.Retries
	}
	if p.Gateway.Backoff <= 0 {
		p.Gateway.Backoff = def.Backoff
	}
	if p.Gateway.CircuitFailureThreshold <= 0 {
		p.Gateway.CircuitFailureThreshold = def.CircuitFailureThreshold
	}
	if p.Gateway.CircuitReset <= 0 {
		p.Gateway.CircuitReset = def.CircuitReset
	}
	if p.Tolerance <= 0 {
		p.Tolerance = 300 * time.Second
	}
	if p.SessionTTL <= 0 {
		p.SessionTTL = 30 * time.Minute
	}
	if p.FeePercent.IsNegative() {
		errs = append(errs, errors.New("payments.fee_percent must not be negative"))
	}
	if p.FeePercent.IsZero() {
		p.FeePercent = decimal.NewFromInt(5)
	}
	if p.Currency == "" {
		p.Currency = "usd"
	}

	s := &c.Scheduling
	if s.Tolerance <= 0 {
		s.Tolerance = 180 * time.Second
	}
	if s.BookingTTL <= 0 {
		s.BookingTTL = 24 * time.Hour
	}

	if !c.IsDevelopment() {
		if p.WebhookSecret == "" {
			errs = append(errs, errors.New("payments.webhook_secret is required outside development"))
		}
		if s.WebhookSecret == "" {
			errs = append(errs, errors.New("scheduling.webhook_secret is required outside development"))
		}
	}

	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.PollInterval <= 0 {
		c.Jobs.PollInterval = time.Second
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
