package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates defaults when no variables are set.
// Scope: Unit Test
// Expected: Credential settings default to 30m tokens, 24h rotation, 3 previous keys, 5m cleanup and a 300s window.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DIRECTORY_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Credentials.AccessTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.Credentials.RotationInterval)
	assert.Equal(t, 3, cfg.Credentials.MaxPreviousKeys)
	assert.Equal(t, 5*time.Minute, cfg.Credentials.CleanupInterval)
	assert.Equal(t, 300*time.Second, cfg.Credentials.ChallengeWindow)
	assert.Equal(t, DriverMemory, cfg.Directory.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

// TestPurpose: Validates environment overrides.
// Scope: Unit Test
// Expected: Values from the environment replace defaults; unparsable values fall back.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("KEY_ROTATION_INTERVAL_HOURS", "6")
	t.Setenv("MAX_PREVIOUS_KEYS", "0")
	t.Setenv("REVOCATION_CLEANUP_INTERVAL", "not-a-duration")
	t.Setenv("DIRECTORY_DRIVER", DriverPostgres)
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Credentials.AccessTokenTTL)
	assert.Equal(t, 6*time.Hour, cfg.Credentials.RotationInterval)
	assert.Equal(t, 0, cfg.Credentials.MaxPreviousKeys)
	assert.Equal(t, 5*time.Minute, cfg.Credentials.CleanupInterval)
	assert.Equal(t, DriverPostgres, cfg.Directory.Driver)
}

// TestPurpose: Validates rejection of unusable settings.
// Scope: Unit Test
// Expected: Non-positive lifetimes, unknown drivers and a passwordless postgres directory are errors.
func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero ttl", map[string]string{"ACCESS_TOKEN_EXPIRE_MINUTES": "0"}},
		{"negative rotation", map[string]string{"KEY_ROTATION_INTERVAL_HOURS": "-1"}},
		{"negative history", map[string]string{"MAX_PREVIOUS_KEYS": "-1"}},
		{"unknown driver", map[string]string{"DIRECTORY_DRIVER": "redis"}},
		{"postgres without password", map[string]string{"DIRECTORY_DRIVER": DriverPostgres, "DB_PASSWORD": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
