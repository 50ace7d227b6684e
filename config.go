package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	Log        LogConfig
	Store      StoreConfig
	Redis      RedisConfig
	Commission CommissionConfig
	Delivery   DeliveryConfig
	Vendor     VendorConfig
	Payment    PaymentConfig
	Stripe     StripeConfig
	JWT        JWTConfig
}

type AppConfig struct {
	Name string
	Env  string
}

type HTTPConfig struct {
	Addr      string
	StaticDir string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type StoreConfig struct {
	Driver    string // memory, sqlite, postgres, redis
	DSN       string
	Namespace string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CommissionConfig struct {
	Rate float64
}

type DeliveryConfig struct {
	ExpressFee int64
}

type VendorConfig struct {
	MinShopLen     int
	MinPasswordLen int
	HashPasswords  bool
}

type PaymentConfig struct {
	BaseURL string
	Timeout time.Duration // zero means wait for the call to settle
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	Currency       string
	SuccessURL     string
	CancelURL      string
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vendormarket")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.static_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.namespace", "v4")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("commission.rate", defaultCommissionRate)
	v.SetDefault("delivery.express_fee", defaultExpressFee)
	v.SetDefault("vendor.min_shop_len", 2)
	v.SetDefault("vendor.min_password_len", 4)
	v.SetDefault("vendor.hash_passwords", false)
	v.SetDefault("payment.base_url", "")
	v.SetDefault("payment.timeout", time.Duration(0))
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.publishable_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.currency", "inr")
	v.SetDefault("stripe.success_url", "http://localhost:8080/?checkout=success")
	v.SetDefault("stripe.cancel_url", "http://localhost:8080/?checkout=cancel")
	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.ttl", time.Hour)
}

// LoadConfig reads config.yaml (or the file at path) and SHOP_ environment
// overrides, e.g. SHOP_STORE_DRIVER=sqlite.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vendormarket")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

// DefaultConfig is the configuration used when nothing is set.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := fromViper(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Addr:      v.GetString("http.addr"),
			StaticDir: v.GetString("http.static_dir"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Store: StoreConfig{
			Driver:    v.GetString("store.driver"),
			DSN:       v.GetString("store.dsn"),
			Namespace: v.GetString("store.namespace"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Commission: CommissionConfig{Rate: v.GetFloat64("commission.rate")},
		Delivery:   DeliveryConfig{ExpressFee: v.GetInt64("delivery.express_fee")},
		Vendor: VendorConfig{
			MinShopLen:     v.GetInt("vendor.min_shop_len"),
			MinPasswordLen: v.GetInt("vendor.min_password_len"),
			HashPasswords:  v.GetBool("vendor.hash_passwords"),
		},
		Payment: PaymentConfig{
			BaseURL: strings.TrimRight(v.GetString("payment.base_url"), "/"),
			Timeout: v.GetDuration("payment.timeout"),
		},
		Stripe: StripeConfig{
			SecretKey:      v.GetString("stripe.secret_key"),
			PublishableKey: v.GetString("stripe.publishable_key"),
			WebhookSecret:  v.GetString("stripe.webhook_secret"),
			Currency:       v.GetString("stripe.currency"),
			SuccessURL:     v.GetString("stripe.success_url"),
			CancelURL:      v.GetString("stripe.cancel_url"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			TTL:    v.GetDuration("jwt.ttl"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Commission.Rate < 0 || c.Commission.Rate >= 1 {
		return fmt.Errorf("commission.rate must be in [0, 1), got %v", c.Commission.Rate)
	}
	if c.Delivery.ExpressFee < 0 {
		return fmt.Errorf("delivery.express_fee must not be negative")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	switch c.Store.Driver {
	case "memory", "redis":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}
	return nil
}
