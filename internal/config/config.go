package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Mpesa     MpesaConfig     `yaml:"mpesa"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Outbox    OutboxConfig    `yaml:"outbox"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	WorkerID     int64         `yaml:"worker_id"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// LedgerConfig carries the money rules of the wallet engine.
type LedgerConfig struct {
	FeeRate              decimal.Decimal `yaml:"fee_rate"`
	Currency             string          `yaml:"currency"`
	MaxAmount            decimal.Decimal `yaml:"max_amount"`
	HideAdminAdjustments bool            `yaml:"hide_admin_adjustments"`
	LowBalanceThreshold  decimal.Decimal `yaml:"low_balance_threshold"`
}

type MpesaConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Environment    string        `yaml:"environment"` // sandbox | production
	BaseURL        string        `yaml:"base_url"`    // overrides Environment when set
	ConsumerKey    string        `yaml:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret"`
	ShortCode      string        `yaml:"shortcode"`
	Passkey        string        `yaml:"passkey"`
	CallbackURL    string        `yaml:"callback_url"`
	CallbackToken  string        `yaml:"callback_token"`
	Timeout        time.Duration `yaml:"timeout"`
	TokenSkew      time.Duration `yaml:"token_skew"`
}

type ReconcileConfig struct {
	LockTTL       time.Duration `yaml:"lock_ttl"`
	CheckInterval time.Duration `yaml:"check_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	BatchSize     int           `yaml:"batch_size"`
}

type OutboxConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// Load reads yaml file, fills defaults and applies env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml bytes into a Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.WorkerID == 0 {
		c.Server.WorkerID = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "wallet.notifications"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.Ledger.FeeRate.IsZero() {
		c.Ledger.FeeRate = decimal.RequireFromString("0.015")
	}
	if c.Ledger.Currency == "" {
		c.Ledger.Currency = "KES"
	}
	if c.Ledger.MaxAmount.IsZero() {
		c.Ledger.MaxAmount = decimal.NewFromInt(10000)
	}
	if c.Ledger.LowBalanceThreshold.IsZero() {
		c.Ledger.LowBalanceThreshold = decimal.NewFromInt(10)
	}
	if c.Mpesa.Environment == "" {
		c.Mpesa.Environment = "sandbox"
	}
	if c.Mpesa.Timeout == 0 {
		c.Mpesa.Timeout = 30 * time.Second
	}
	if c.Mpesa.TokenSkew == 0 {
		c.Mpesa.TokenSkew = time.Minute
	}
	if c.Reconcile.LockTTL == 0 {
		c.Reconcile.LockTTL = 30 * time.Second
	}
	if c.Reconcile.CheckInterval == 0 {
		c.Reconcile.CheckInterval = 30 * time.Second
	}
	if c.Reconcile.StaleAfter == 0 {
		c.Reconcile.StaleAfter = 2 * time.Minute
	}
	if c.Reconcile.BatchSize == 0 {
		c.Reconcile.BatchSize = 50
	}
	if c.Outbox.Interval == 0 {
		c.Outbox.Interval = time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
}

func (c *Config) applyEnv() {
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		c.Postgres.DSN = c.Postgres.DSN + " password=" + pw
	}
	setFromEnv(&c.Redis.Addr, "REDIS_ADDR")
	setFromEnv(&c.Mpesa.ConsumerKey, "MPESA_CONSUMER_KEY")
	setFromEnv(&c.Mpesa.ConsumerSecret, "MPESA_CONSUMER_SECRET")
	setFromEnv(&c.Mpesa.ShortCode, "MPESA_SHORTCODE")
	setFromEnv(&c.Mpesa.Passkey, "MPESA_PASSKEY")
	setFromEnv(&c.Mpesa.CallbackURL, "MPESA_CALLBACK_URL")
	setFromEnv(&c.Mpesa.CallbackToken, "MPESA_CALLBACK_TOKEN")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

const minCallbackToken = 16

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Ledger.FeeRate.IsNegative() || c.Ledger.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("ledger.fee_rate must be in [0,1), got %s", c.Ledger.FeeRate))
	}
	if !c.Ledger.MaxAmount.IsPositive() {
		errs = append(errs, errors.New("ledger.max_amount must be positive"))
	}
	if c.Mpesa.Enabled {
		if c.Mpesa.ShortCode == "" || c.Mpesa.Passkey == "" {
			errs = append(errs, errors.New("mpesa.shortcode and mpesa.passkey are required when mpesa is enabled"))
		}
		if c.Mpesa.CallbackURL == "" {
			errs = append(errs, errors.New("mpesa.callback_url is required when mpesa is enabled"))
		}
		if len(c.Mpesa.CallbackToken) < minCallbackToken {
			errs = append(errs, fmt.Errorf("mpesa.callback_token must be at least %d characters when mpesa is enabled", minCallbackToken))
		}
	}
	return errors.Join(errs...)
}
