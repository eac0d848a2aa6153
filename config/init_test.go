package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	var c Config
	c.Server.Address = "0.0.0.0"
	c.Server.HTTPPort = "8080"
	c.Session.TimeoutMinutes = 10
	c.Session.RefreshThreshold = 120
	c.Session.TTLHours = 12
	c.Session.Store = "memory"
	c.CredStore.URL = "https://id.example.com"
	c.Database.DSN = "postgres://localhost/moneta"
	return &c
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validate(validConfig()))
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty address", func(c *Config) { c.Server.Address = " " }, "server.address"},
		{"empty port", func(c *Config) { c.Server.HTTPPort = "" }, "server.http_port"},
		{"zero timeout", func(c *Config) { c.Session.TimeoutMinutes = 0 }, "timeout_minutes"},
		{"negative threshold", func(c *Config) { c.Session.RefreshThreshold = -1 }, "refresh_threshold"},
		{"ttl shorter than timeout", func(c *Config) {
			c.Session.TTLHours = 1
			c.Session.TimeoutMinutes = 90
		}, "ttl_hours"},
		{"unknown store", func(c *Config) { c.Session.Store = "etcd" }, "session store"},
		{"missing credstore url", func(c *Config) { c.CredStore.URL = "" }, "credstore.url"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			err := validate(c)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateAllowsRedisStore(t *testing.T) {
	c := validConfig()
	c.Session.Store = "redis"
	c.Session.RedisAddr = "127.0.0.1:6379"
	assert.NoError(t, validate(c))
}
