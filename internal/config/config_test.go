package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 15*time.Minute, cfg.Security.JWTAccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Security.JWTRefreshTTL)
	assert.Equal(t, 24*time.Hour, cfg.Security.RefreshThreshold)
	assert.Equal(t, 45*time.Minute, cfg.Verification.EmailCodeTTL)
	assert.Equal(t, time.Hour, cfg.Verification.ResetCodeTTL)
	assert.Equal(t, 3*time.Minute, cfg.Verification.ResetWindow)
	assert.Equal(t, 2, cfg.Verification.ResetMaxInWindow)
	assert.Equal(t, "mail:outbox", cfg.Mail.Stream)
	assert.Equal(t, "tasks:background", cfg.Worker.Stream)
	assert.Equal(t, 30*time.Second, cfg.Worker.ClaimInterval)
	assert.Equal(t, int64(5), cfg.Worker.MaxDeliveries)
	assert.Equal(t, "0 0 0 * * *", cfg.Worker.CleanupSchedule)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TASKHUB_ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidateSecrets(t *testing.T) {
	cfg := &Config{
		Security: SecurityConfig{
			JWTAccessTTL:  time.Minute,
			JWTRefreshTTL: time.Hour,
		},
		Verification: VerificationConfig{ResetMaxInWindow: 2},
	}
	assert.Error(t, cfg.Validate())

	cfg.Security.JWTAccessSecret = "same"
	cfg.Security.JWTRefreshSecret = "same"
	assert.Error(t, cfg.Validate())

	cfg.Security.JWTRefreshSecret = "other"
	assert.NoError(t, cfg.Validate())
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TASKHUB_SECURITY_JWTACCESSSECRET", "access-secret")
	t.Setenv("TASKHUB_SECURITY_JWTREFRESHSECRET", "refresh-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "access-secret", cfg.Security.JWTAccessSecret)
	assert.Equal(t, "refresh-secret", cfg.Security.JWTRefreshSecret)
	assert.NoError(t, cfg.Validate())
}
