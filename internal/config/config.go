package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration (file + .env + env overrides)
type Config struct {
	Server struct {
		Addr          string `mapstructure:"addr"`
		LogLevel      string `mapstructure:"log_level"`
		LogFormat     string `mapstructure:"log_format"`
		TriggerSecret string `mapstructure:"trigger_secret"`
	} `mapstructure:"server"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Redis struct {
		Addr               string `mapstructure:"addr"`
		Password           string `mapstructure:"password"`
		DB                 int    `mapstructure:"db"`
		SnapshotTTLSeconds int    `mapstructure:"snapshot_ttl_seconds"`
	} `mapstructure:"redis"`

	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`

	Notify struct {
		// Webhooks maps a NOTIFY channel name (slack, email...) to the URL it posts to.
		Webhooks       map[string]string `mapstructure:"webhooks"`
		TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	} `mapstructure:"notify"`

	Optimizer struct {
		Workers            int `mapstructure:"workers"`
		PageSize           int `mapstructure:"page_size"`
		SweepBudgetSeconds int `mapstructure:"sweep_budget_seconds"`
		RuleTimeoutSeconds int `mapstructure:"rule_timeout_seconds"`
		IntervalSeconds    int `mapstructure:"interval_seconds"` // 0 disables the in-process ticker
	} `mapstructure:"optimizer"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`

	Tracing struct {
		JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
		ServiceName    string `mapstructure:"service_name"`
	} `mapstructure:"tracing"`
}

func Load() Config {
	_ = godotenv.Load() // optional .env for local runs

	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

// bindEnv registers every key so AutomaticEnv can see keys absent from the file.
func bindEnv(v *viper.Viper) {
	for _, k := range []string{
		"server.addr", "server.log_level", "server.log_format", "server.trigger_secret",
		"postgres.host", "postgres.port", "postgres.user", "postgres.password", "postgres.db_name",
		"postgres.ssl_mode", "postgres.max_open_conns", "postgres.max_idle_conns",
		"redis.addr", "redis.password", "redis.db", "redis.snapshot_ttl_seconds",
		"kafka.brokers", "kafka.topic",
		"notify.timeout_seconds",
		"optimizer.workers", "optimizer.page_size", "optimizer.sweep_budget_seconds",
		"optimizer.rule_timeout_seconds", "optimizer.interval_seconds",
		"listener.channel", "listener.reconnect_seconds",
		"tracing.jaeger_endpoint", "tracing.service_name",
	} {
		_ = v.BindEnv(k)
	}
}

func validate(c *Config) {
	if c.Server.Addr == "" { c.Server.Addr = ":8080" }
	if c.Postgres.Port == 0 { c.Postgres.Port = 5432 }
	if c.Postgres.SSLMode == "" { c.Postgres.SSLMode = "disable" }
	if c.Postgres.MaxOpenConns == 0 { c.Postgres.MaxOpenConns = 10 }
	if c.Postgres.MaxIdleConns == 0 { c.Postgres.MaxIdleConns = 10 }
	if c.Redis.SnapshotTTLSeconds <= 0 { c.Redis.SnapshotTTLSeconds = 60 }
	if c.Kafka.Topic == "" { c.Kafka.Topic = "optimizer-notifications" }
	if c.Notify.TimeoutSeconds <= 0 { c.Notify.TimeoutSeconds = 5 }
	if c.Optimizer.Workers <= 0 { c.Optimizer.Workers = 8 }
	if c.Optimizer.PageSize <= 0 { c.Optimizer.PageSize = 500 }
	if c.Optimizer.SweepBudgetSeconds <= 0 { c.Optimizer.SweepBudgetSeconds = 240 }
	if c.Optimizer.RuleTimeoutSeconds <= 0 { c.Optimizer.RuleTimeoutSeconds = 10 }
	if c.Listener.ReconnectSeconds <= 0 { c.Listener.ReconnectSeconds = 5 }
	if c.Tracing.ServiceName == "" { c.Tracing.ServiceName = "campaign-optimizer" }
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }

func (c Config) SweepBudget() time.Duration {
	return time.Duration(c.Optimizer.SweepBudgetSeconds) * time.Second
}

func (c Config) RuleTimeout() time.Duration {
	return time.Duration(c.Optimizer.RuleTimeoutSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Optimizer.IntervalSeconds) * time.Second
}

func (c Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Redis.SnapshotTTLSeconds) * time.Second
}

func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}
