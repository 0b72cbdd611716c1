package token

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/clock"
	"github.com/eventhorizon/horizon/internal/keys"
	"github.com/eventhorizon/horizon/internal/observability/metrics"
	"github.com/eventhorizon/horizon/internal/revocation"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// recordingAudit captures audit events for assertions
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	clock    *clock.Fake
	keys     *keys.Store
	registry *revocation.Registry
	audit    *recordingAudit
	auth     *Authority
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(epoch)
	store, err := keys.NewStore(keys.Config{
		MaxPreviousKeys:  3,
		RotationInterval: time.Hour,
		Clock:            clk,
	})
	require.NoError(t, err)

	registry := revocation.NewRegistry(clk)
	rec := &recordingAudit{}
	auth, err := NewAuthority(Config{
		Keys:        store,
		Revocations: registry,
		DefaultTTL:  30 * time.Minute,
		Clock:       clk,
		Audit:       rec,
	})
	require.NoError(t, err)

	return &fixture{clock: clk, keys: store, registry: registry, audit: rec, auth: auth}
}

func (f *fixture) issue(t *testing.T, ttl time.Duration) *SignedToken {
	t.Helper()
	st, err := f.auth.Issue(context.Background(), "did:example:alice", TypeAccess, ttl)
	require.NoError(t, err)
	return st
}

func (f *fixture) rotate(t *testing.T) {
	t.Helper()
	_, err := f.keys.Rotate()
	require.NoError(t, err)
}

// TestPurpose: Validates issuing and verifying a token with the current key.
// Scope: Unit Test
// Expected: Verify returns the issued claims; iat and exp bracket the default ttl.
func TestAuthority_IssueVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st := f.issue(t, 0)
	assert.Equal(t, 3, strings.Count(st.Raw, ".")+1)
	assert.Equal(t, uint64(0), st.Generation)
	assert.True(t, st.Token.IssuedAt.Equal(epoch))
	assert.True(t, st.Token.ExpiresAt.Equal(epoch.Add(30*time.Minute)))
	assert.NotEmpty(t, st.Token.JTI)

	got, err := f.auth.Verify(ctx, st.Raw)
	require.NoError(t, err)
	assert.Equal(t, "did:example:alice", got.SubjectID)
	assert.Equal(t, TypeAccess, got.TokenType)
	assert.Equal(t, st.Token.JTI, got.JTI)
	assert.True(t, got.ExpiresAt.Equal(st.Token.ExpiresAt))

	assert.Contains(t, f.audit.types(), audit.TypeTokenIssued)
}

// TestPurpose: Validates jti uniqueness across issued tokens.
// Scope: Unit Test
// Expected: Every token carries a distinct jti.
func TestAuthority_Issue_UniqueJTI(t *testing.T) {
	f := newFixture(t)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		st := f.issue(t, time.Minute)
		_, dup := seen[st.Token.JTI]
		require.False(t, dup, "duplicate jti %s", st.Token.JTI)
		seen[st.Token.JTI] = struct{}{}
	}
}

// TestPurpose: Validates subject validation on issue.
// Scope: Unit Test
// Expected: Empty or malformed DIDs fail with ErrInvalidSubject.
func TestAuthority_Issue_InvalidSubject(t *testing.T) {
	f := newFixture(t)
	for _, did := range []string{"", "alice", "did:", "did:has space"} {
		_, err := f.auth.Issue(context.Background(), did, TypeAccess, time.Minute)
		assert.ErrorIs(t, err, ErrInvalidSubject, "did %q", did)
	}
}

// TestPurpose: Validates token type validation on issue.
// Scope: Unit Test
// Expected: Access and websocket types are issued, an empty type defaults to access, anything else fails with ErrInvalidTokenType.
func TestAuthority_Issue_TokenType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, typ := range []string{TypeAccess, TypeWebSocket} {
		st, err := f.auth.Issue(ctx, "did:example:alice", typ, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, typ, st.Token.TokenType)
	}

	st, err := f.auth.Issue(ctx, "did:example:alice", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, st.Token.TokenType)

	for _, typ := range []string{"admin", "refresh", "ACCESS"} {
		_, err := f.auth.Issue(ctx, "did:example:alice", typ, time.Minute)
		assert.ErrorIs(t, err, ErrInvalidTokenType, "type %q", typ)
	}
}

// TestPurpose: Validates that sub-second lifetimes are rejected.
// Scope: Unit Test
// Expected: ErrInvalidTTL since expiry must follow issuance.
func TestAuthority_Issue_SubSecondTTL(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.Issue(context.Background(), "did:example:alice", TypeAccess, 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

// TestPurpose: Validates structural failures.
// Scope: Unit Test
// Expected: Non-JWT input fails with ErrMalformed, never ErrInvalidSignature.
func TestAuthority_Verify_Malformed(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{"", "not-a-jwt", "a.b.c", "eyJhbGciOiJIUzI1NiJ9..sig"} {
		_, err := f.auth.Verify(context.Background(), raw)
		assert.ErrorIs(t, err, ErrMalformed, "raw %q", raw)
	}
}

// TestPurpose: Validates rejection of tampered and foreign tokens.
// Scope: Unit Test
// Expected: ErrInvalidSignature and an auth_failed audit event.
func TestAuthority_Verify_InvalidSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.issue(t, time.Hour)

	parts := strings.Split(st.Raw, ".")
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"did": "did:example:mallory", "type": TypeAccess, "jti": "forged",
		"exp": epoch.Add(time.Hour).Unix(), "iat": epoch.Unix(),
	}).SignedString([]byte("not-the-server-secret-not-the-server"))
	require.NoError(t, err)

	tampered := parts[0] + "." + strings.Split(forged, ".")[1] + "." + parts[2]
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"did": "did:example:alice", "jti": "x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for _, raw := range []string{forged, tampered, unsigned} {
		_, err := f.auth.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}
	assert.Contains(t, f.audit.types(), audit.TypeAuthFailed)
}

// TestPurpose: Validates expiry boundary handling.
// Scope: Unit Test
// Expected: Valid one second before exp; ErrExpired at exactly exp.
func TestAuthority_Verify_ExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	st := f.issue(t, time.Minute)

	f.clock.Advance(59 * time.Second)
	_, err := f.auth.Verify(context.Background(), st.Raw)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.auth.Verify(context.Background(), st.Raw)
	assert.ErrorIs(t, err, ErrExpired)
}

// TestPurpose: Validates multi-generation verification.
// Scope: Unit Test
// Expected: Tokens signed by retained generations verify; new tokens use the new generation.
func TestAuthority_Verify_PreviousGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.issue(t, 24*time.Hour)

	f.rotate(t)
	f.rotate(t)

	_, err := f.auth.Verify(ctx, old.Raw)
	require.NoError(t, err)

	fresh := f.issue(t, time.Hour)
	assert.Equal(t, uint64(2), fresh.Generation)
	_, err = f.auth.Verify(ctx, fresh.Raw)
	require.NoError(t, err)
}

// TestPurpose: Validates rotation, expiry and eviction interplay.
// Scope: Unit Test
// Expected: A 30m token is expired at 3h30m; a long-lived G0 token fails with ErrInvalidSignature after the 4th rotation.
func TestAuthority_RotationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t0 := f.issue(t, 30*time.Minute)
	longLived := f.issue(t, 100*time.Hour)
	require.Equal(t, uint64(0), t0.Generation)

	for i := 1; i <= 3; i++ {
		f.clock.Set(epoch.Add(time.Duration(i) * time.Hour))
		f.rotate(t)
	}

	f.clock.Set(epoch.Add(3*time.Hour + 30*time.Minute))
	_, err := f.auth.Verify(ctx, t0.Raw)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = f.auth.Verify(ctx, longLived.Raw)
	require.NoError(t, err, "G0 is still retained after three rotations")

	f.clock.Set(epoch.Add(4 * time.Hour))
	f.rotate(t)

	_, err = f.auth.Verify(ctx, longLived.Raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = f.auth.Verify(ctx, t0.Raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

// TestPurpose: Validates blacklisting an unexpired token.
// Scope: Unit Test
// Expected: ErrRevoked even though now < exp, before and after expiry.
func TestAuthority_Blacklist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.issue(t, 30*time.Minute)

	f.registry.Blacklist(st.Token.JTI)
	_, err := f.auth.Verify(ctx, st.Raw)
	assert.ErrorIs(t, err, ErrRevoked)

	f.clock.Advance(time.Hour)
	f.registry.Cleanup()
	_, err = f.auth.Verify(ctx, st.Raw)
	assert.ErrorIs(t, err, ErrRevoked)
}

// TestPurpose: Validates revocation through the authority.
// Scope: Unit Test
// Expected: ErrRevoked until expiry, ErrExpired afterwards; forged tokens never reach the registry.
func TestAuthority_Revoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.issue(t, 30*time.Minute)

	revoked, err := f.auth.Revoke(ctx, st.Raw)
	require.NoError(t, err)
	assert.Equal(t, st.Token.JTI, revoked.JTI)

	_, err = f.auth.Verify(ctx, st.Raw)
	assert.ErrorIs(t, err, ErrRevoked)

	f.clock.Advance(30 * time.Minute)
	assert.Equal(t, 1, f.registry.Cleanup())
	_, err = f.auth.Verify(ctx, st.Raw)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = f.auth.Revoke(ctx, "a.b.c")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, 0, f.registry.Stats().Revoked)
}

// TestPurpose: Validates that rotation leaves revocations in force.
// Scope: Unit Test
// Expected: A revoked token signed by a retained generation stays rejected after rotation.
func TestAuthority_Revoke_SurvivesRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.issue(t, time.Hour)

	_, err := f.auth.Blacklist(ctx, st.Raw)
	require.NoError(t, err)
	f.rotate(t)

	_, err = f.auth.Verify(ctx, st.Raw)
	assert.ErrorIs(t, err, ErrRevoked)
	assert.Contains(t, f.audit.types(), audit.TypeTokenBlacklisted)
}

// TestPurpose: Validates unverified decoding.
// Scope: Unit Test
// Expected: Metadata is returned for foreign tokens; structural failures are ErrMalformed.
func TestAuthority_DecodeUnverified(t *testing.T) {
	f := newFixture(t)
	st := f.issue(t, time.Hour)

	other := newFixture(t)
	foreign := other.issue(t, time.Hour)

	got, err := f.auth.DecodeUnverified(foreign.Raw)
	require.NoError(t, err)
	assert.Equal(t, foreign.Token.JTI, got.JTI)

	got, err = f.auth.DecodeUnverified(st.Raw)
	require.NoError(t, err)
	assert.Equal(t, "did:example:alice", got.SubjectID)

	_, err = f.auth.DecodeUnverified("garbage")
	assert.ErrorIs(t, err, ErrMalformed)
}

// TestPurpose: Validates the token-info report.
// Scope: Unit Test
// Expected: Flags reflect signature, expiry and registry state.
func TestAuthority_Inspect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.issue(t, 30*time.Minute)

	f.clock.Advance(10 * time.Minute)
	in, err := f.auth.Inspect(ctx, st.Raw)
	require.NoError(t, err)
	assert.True(t, in.SignatureValid)
	assert.False(t, in.IsExpired)
	assert.False(t, in.IsRevoked)
	assert.Equal(t, int64(20*60), in.TimeUntilExp)

	f.registry.Blacklist(st.Token.JTI)
	f.clock.Advance(time.Hour)
	in, err = f.auth.Inspect(ctx, st.Raw)
	require.NoError(t, err)
	assert.True(t, in.IsExpired)
	assert.True(t, in.IsBlacklisted)
	assert.Zero(t, in.TimeUntilExp)
}

// TestPurpose: Validates the error code mapping.
// Scope: Unit Test
// Expected: Each failure kind has a distinct code.
func TestCode(t *testing.T) {
	codes := map[string]struct{}{}
	for _, err := range []error{ErrInvalidSubject, ErrMalformed, ErrInvalidSignature, ErrExpired, ErrRevoked, ErrInvalidTokenType} {
		codes[Code(err)] = struct{}{}
	}
	assert.Len(t, codes, 6)
	assert.Equal(t, "internal_error", Code(assert.AnError))
}

// TestPurpose: Validates concurrent verification during rotation.
// Scope: Concurrency Test
// Expected: A token within retention never fails while rotations run.
func TestAuthority_ConcurrentVerifyRotate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.issue(t, time.Hour)

	var wg sync.WaitGroup
	errs := make(chan error, 400)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := f.auth.Verify(ctx, st.Raw); err != nil {
					errs <- err
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		f.rotate(t)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected verification failure: %v", err)
	}
}

// TestPurpose: Validates that revocations and blacklistings are both counted once per token.
// Scope: Unit Test
// Expected: Repeating Revoke or Blacklist for the same token does not increase the counters.
func TestAuthority_RevocationMetrics(t *testing.T) {
	ctx := context.Background()
	m, err := metrics.New(ctx, metrics.Config{Enabled: true}, "horizon-test")
	require.NoError(t, err)
	defer m.Shutdown(ctx)
	c, err := metrics.NewCredentials(m)
	require.NoError(t, err)

	f := newFixture(t)
	f.auth.metrics = c

	revoked := f.issue(t, 30*time.Minute)
	blacklisted := f.issue(t, 30*time.Minute)
	for i := 0; i < 2; i++ {
		_, err = f.auth.Revoke(ctx, revoked.Raw)
		require.NoError(t, err)
		_, err = f.auth.Blacklist(ctx, blacklisted.Raw)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Regexp(t, `horizon_revocations_total\{kind="revoked"[^}]*\} 1\n`, string(body))
	assert.Regexp(t, `horizon_revocations_total\{kind="blacklisted"[^}]*\} 1\n`, string(body))
}
