package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "school-admin", cfg.Redis.KeyPrefix)
	assert.Equal(t, 200, cfg.Approvals.BulkLimit)
	assert.Equal(t, 100, cfg.Approvals.ListLimit)
	assert.Equal(t, time.Minute, cfg.Approvals.SummaryCacheTTL)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/school")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("APPROVALS_BULK_LIMIT", "-5")
	t.Setenv("APPROVALS_SUMMARY_CACHE_TTL", "not-a-duration")
	t.Setenv("ENABLE_CACHE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://u:p@db/school", cfg.Database.URL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 200, cfg.Approvals.BulkLimit)
	assert.Equal(t, time.Minute, cfg.Approvals.SummaryCacheTTL)
	assert.True(t, cfg.Cache.Enabled)
}

func TestProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("ENV", EnvProduction)

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "rotated")
	_, err = Load()
	assert.NoError(t, err)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{Port: 70000, Database: DatabaseConfig{Host: "db"}}

	assert.Error(t, cfg.Validate())
}
