package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateDefaults(t *testing.T) {
	var c Config
	validate(&c)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, 5432, c.Postgres.Port)
	assert.Equal(t, "disable", c.Postgres.SSLMode)
	assert.Equal(t, 8, c.Optimizer.Workers)
	assert.Equal(t, 500, c.Optimizer.PageSize)
	assert.Equal(t, 4*time.Minute, c.SweepBudget())
	assert.Equal(t, 10*time.Second, c.RuleTimeout())
	assert.Equal(t, time.Minute, c.SnapshotTTL())
	assert.Equal(t, 5*time.Second, c.NotifyTimeout())
	assert.Equal(t, 5*time.Second, c.Backoff())
	assert.Zero(t, c.SweepInterval(), "the in-process ticker is off unless configured")
	assert.Equal(t, "campaign-optimizer", c.Tracing.ServiceName)
}

func TestValidateKeepsExplicitValues(t *testing.T) {
	var c Config
	c.Optimizer.Workers = 2
	c.Optimizer.SweepBudgetSeconds = 30
	c.Kafka.Topic = "alerts"
	validate(&c)

	assert.Equal(t, 2, c.Optimizer.Workers)
	assert.Equal(t, 30*time.Second, c.SweepBudget())
	assert.Equal(t, "alerts", c.Kafka.Topic)
}

func TestDSN(t *testing.T) {
	var c Config
	c.Postgres.User = "optimizer"
	c.Postgres.Password = "pw"
	c.Postgres.Host = "db"
	c.Postgres.DBName = "campaigns"
	validate(&c)

	assert.Equal(t, "postgres://optimizer:pw@db:5432/campaigns?sslmode=disable", c.DSN())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_SERVER_ADDR", ":9999")
	t.Setenv("APP_SERVER_TRIGGER_SECRET", "cron-secret")
	t.Setenv("APP_OPTIMIZER_WORKERS", "3")
	t.Setenv("APP_OPTIMIZER_INTERVAL_SECONDS", "300")
	t.Setenv("APP_LISTENER_CHANNEL", "optimizer_sweep")

	c := Load()

	assert.Equal(t, ":9999", c.Server.Addr)
	assert.Equal(t, "cron-secret", c.Server.TriggerSecret)
	assert.Equal(t, 3, c.Optimizer.Workers)
	assert.Equal(t, 5*time.Minute, c.SweepInterval())
	assert.Equal(t, "optimizer_sweep", c.Listener.Channel)
	assert.Equal(t, 500, c.Optimizer.PageSize)
}
