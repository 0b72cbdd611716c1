package rotation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/clock"
	"github.com/eventhorizon/horizon/internal/keys"
	"github.com/eventhorizon/horizon/internal/revocation"
)

// flakyRotator fails while failing is set
type flakyRotator struct {
	store    *keys.Store
	failing  atomic.Bool
	attempts atomic.Int32
}

func (r *flakyRotator) Rotate() (keys.SigningKey, error) {
	r.attempts.Add(1)
	if r.failing.Load() {
		return keys.SigningKey{}, keys.ErrRandomSource
	}
	return r.store.Rotate()
}

type countingCleaner struct {
	calls atomic.Int32
}

func (c *countingCleaner) Cleanup() int {
	c.calls.Add(1)
	return 0
}

type recordingAudit struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
}

func (r *recordingAudit) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func newStore(t *testing.T) *keys.Store {
	t.Helper()
	s, err := keys.NewStore(keys.Config{MaxPreviousKeys: 3, RotationInterval: time.Hour})
	require.NoError(t, err)
	return s
}

// TestPurpose: Validates configuration checks.
// Scope: Unit Test
// Expected: Missing collaborators or intervals fail with ErrInvalidConfig.
func TestNewScheduler_InvalidConfig(t *testing.T) {
	_, err := NewScheduler(Config{RotationInterval: time.Hour})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewScheduler(Config{Keys: newStore(t), Revocations: &countingCleaner{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestPurpose: Validates that both loops run and stop cleanly.
// Scope: Unit Test
// Expected: Rotations and sweeps happen on their intervals; no goroutine outlives Stop.
func TestScheduler_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newStore(t)
	cleaner := &countingCleaner{}
	s, err := NewScheduler(Config{
		Keys:             store,
		Revocations:      cleaner,
		RotationInterval: 10 * time.Millisecond,
		CleanupInterval:  5 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	assert.Eventually(t, func() bool {
		return store.Current().Generation() >= 2 && cleaner.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()

	generation := store.Current().Generation()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, generation, store.Current().Generation(), "no rotation after Stop")
}

// TestPurpose: Validates that cancelling the parent context ends the loops.
// Scope: Unit Test
// Expected: Stop returns promptly and no goroutine leaks.
func TestScheduler_ContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := NewScheduler(Config{
		Keys:             newStore(t),
		Revocations:      &countingCleaner{},
		RotationInterval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	s.Stop()
}

// TestPurpose: Validates failure handling during rotation.
// Scope: Unit Test
// Expected: The loop keeps running, the previous key stays current, and the next tick succeeds.
func TestScheduler_RotationFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newStore(t)
	before := store.Current()
	rotator := &flakyRotator{store: store}
	rotator.failing.Store(true)
	rec := &recordingAudit{}

	s, err := NewScheduler(Config{
		Keys:             rotator,
		Revocations:      &countingCleaner{},
		RotationInterval: 5 * time.Millisecond,
		Audit:            rec,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return rotator.attempts.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, before.Fingerprint(), store.Current().Fingerprint())
	assert.True(t, rec.has(audit.TypeSecretRotationFailed))

	rotator.failing.Store(false)
	assert.Eventually(t, func() bool { return store.Current().Generation() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, rec.has(audit.TypeSecretRotated))
}

// TestPurpose: Validates the sweep against a real registry.
// Scope: Unit Test
// Expected: CleanupNow purges expired revocations and keeps blacklist entries.
func TestScheduler_CleanupNow(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	registry := revocation.NewRegistry(clk)
	registry.Revoke("a", clk.Now().Add(time.Minute))
	registry.Revoke("b", clk.Now().Add(time.Hour))
	registry.Blacklist("c")

	s, err := NewScheduler(Config{Keys: newStore(t), Revocations: registry, RotationInterval: time.Hour})
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	s.CleanupNow(context.Background())

	assert.Equal(t, revocation.Stats{Revoked: 1, Blacklisted: 1}, registry.Stats())
}

// TestPurpose: Validates a single failed rotation.
// Scope: Unit Test
// Expected: RotateNow returns normally and the key store is unchanged.
func TestScheduler_RotateNow_Failure(t *testing.T) {
	store := newStore(t)
	rotator := &flakyRotator{store: store}
	rotator.failing.Store(true)

	s, err := NewScheduler(Config{Keys: rotator, Revocations: &countingCleaner{}, RotationInterval: time.Hour})
	require.NoError(t, err)

	s.RotateNow(context.Background())
	assert.Equal(t, uint64(0), store.Current().Generation())
	assert.Equal(t, int32(1), rotator.attempts.Load())
}
