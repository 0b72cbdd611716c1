package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that pool settings reach the pgx pool configuration.
// Scope: Unit Test
// Expected: Connection bounds and lifetime are applied; a zero lifetime keeps the pgx default.
func TestParsePoolConfig(t *testing.T) {
	cfg := Config{
		Host:            "db.internal",
		Port:            "5433",
		User:            "horizon",
		Password:        "secret",
		Database:        "horizon",
		SSLMode:         "disable",
		MaxOpenConns:    12,
		MaxIdleConns:    2,
		ConnMaxLifetime: 7 * time.Minute,
	}

	pc, err := parsePoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(12), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, 7*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "db.internal", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5433), pc.ConnConfig.Port)

	cfg.ConnMaxLifetime = 0
	pc, err = parsePoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
}
