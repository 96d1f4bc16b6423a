package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
auth:
  jwt_secret: s3cret
database:
  postgres:
    host: db
    database: ratings
    user: ratings
  redis:
    host: cache
ratings:
  task_user_id: 4757633
throttle:
  scopes:
    post:
      user: ["2/minute"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sql", cfg.Database.Postgres.Migrate)
	assert.Equal(t, 4000, cfg.Ratings.MaxBodyLength)
	assert.Equal(t, 25, cfg.Ratings.PageSize)
	assert.Equal(t, time.Hour, cfg.Ratings.DeniedWordCacheTTL())
	assert.Equal(t, "ratings.tasks", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "/metrics", cfg.Metrics.Prometheus.Path)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.AggregatesCron)
	assert.Equal(t, "30 3 * * *", cfg.Scheduler.BayesianCron)

	// File scopes win; missing ones fall back to the defaults.
	assert.Equal(t, []string{"2/minute"}, cfg.Throttle.Scopes["post"].User)
	assert.Empty(t, cfg.Throttle.Scopes["post"].IP)
	assert.Equal(t, DefaultThrottleScopes()["vote"], cfg.Throttle.Scopes["vote"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("RATINGS_TASK_USER_ID", "42")
	t.Setenv("POSTGRES_MIGRATE", "auto")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, uint(42), cfg.Ratings.TaskUserID)
	assert.Equal(t, "auto", cfg.Database.Postgres.Migrate)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Auth: AuthConfig{JWTSecret: "s"},
			Database: DatabaseConfig{
				Postgres: PostgresConfig{Host: "db", Database: "ratings", User: "u", Migrate: "sql"},
				Redis:    RedisConfig{Host: "cache"},
			},
			Ratings: RatingsConfig{TaskUserID: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"no postgres host", func(c *Config) { c.Database.Postgres.Host = "" }, "database.postgres.host"},
		{"bad migrate mode", func(c *Config) { c.Database.Postgres.Migrate = "later" }, "database.postgres.migrate"},
		{"no redis", func(c *Config) { c.Database.Redis.Host = "" }, "database.redis.host"},
		{"no task user", func(c *Config) { c.Ratings.TaskUserID = 0 }, "ratings.task_user_id"},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true }, "nats.url"},
		{"smtp without host", func(c *Config) { c.SMTP.Enabled = true }, "smtp.host"},
		{"mattermost without webhook", func(c *Config) { c.Mattermost.Enabled = true }, "mattermost.webhook_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
