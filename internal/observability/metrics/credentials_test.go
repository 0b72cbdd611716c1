package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that credential metrics are exported in Prometheus format when enabled.
// Scope: Unit Test
// Expected: /metrics output contains the issued, verification and rotation counters with their labels.
func TestMetrics_Credentials_Exported(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, Config{Enabled: true}, "horizon-test")
	require.NoError(t, err)
	defer m.Shutdown(ctx)

	c, err := NewCredentials(m)
	require.NoError(t, err)

	c.TokenIssued(ctx, "access")
	c.Verification(ctx, "token", ResultSuccess)
	c.Verification(ctx, "challenge", "challenge_expired")
	c.Rotation(ctx, ResultSuccess)
	c.Revoked(ctx)
	c.Blacklisted(ctx)
	c.Purged(ctx, 1)
	require.NoError(t, ObserveRevocations(m, func() (int, int) { return 4, 2 }))

	h := m.Handler()
	require.NotNil(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Contains(t, string(body), "horizon_tokens_issued_total")
	assert.Contains(t, string(body), `token_type="access"`)
	assert.Contains(t, string(body), `result="challenge_expired"`)
	assert.Contains(t, string(body), "horizon_key_rotations_total")
	assert.Contains(t, string(body), `horizon_revocations_total{kind="blacklisted"`)
	assert.Contains(t, string(body), `horizon_revocations_total{kind="revoked"`)
	assert.Regexp(t, `horizon_revocations_tracked\{kind="revoked"[^}]*\} 4`, string(body))
	assert.Regexp(t, `horizon_revocations_tracked\{kind="blacklisted"[^}]*\} 2`, string(body))
}

// TestPurpose: Validates that disabled metrics and nil recorders are safe no-ops.
// Scope: Unit Test
// Expected: No handler is exposed and recording on nil does not panic.
func TestMetrics_Disabled(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, Config{Enabled: false}, "horizon-test")
	require.NoError(t, err)
	assert.Nil(t, m.Handler())

	c, err := NewCredentials(m)
	require.NoError(t, err)
	c.TokenIssued(ctx, "access")
	assert.NoError(t, ObserveRevocations(m, func() (int, int) { return 0, 0 }))

	var none *Credentials
	assert.NotPanics(t, func() {
		none.TokenIssued(ctx, "access")
		none.Verification(ctx, "token", ResultFailure)
		none.Rotation(ctx, ResultFailure)
		none.Revoked(ctx)
		none.Blacklisted(ctx)
		none.Purged(ctx, 3)
	})
}
