// Copyright 2026 The Event Horizon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rotation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/keys"
	"github.com/eventhorizon/horizon/internal/observability/logger"
	"github.com/eventhorizon/horizon/internal/observability/metrics"
)

// DefaultCleanupInterval is the default time between revocation sweeps
const DefaultCleanupInterval = 5 * time.Minute

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrInvalidConfig  = errors.New("invalid scheduler configuration")
)

// Rotator replaces the current signing key
type Rotator interface {
	Rotate() (keys.SigningKey, error)
}

// Cleaner purges expired revocation entries
type Cleaner interface {
	Cleanup() int
}

// Config holds scheduler configuration
type Config struct {
	Keys             Rotator
	Revocations      Cleaner
	RotationInterval time.Duration
	CleanupInterval  time.Duration
	Audit            audit.Logger
	Metrics          *metrics.Credentials
	Logger           *slog.Logger
}

// Scheduler runs key rotation and revocation cleanup on fixed intervals.
// Start and Stop bracket its lifetime; nothing runs outside them.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewScheduler validates cfg and creates a stopped scheduler
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Keys == nil || cfg.Revocations == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("keys and revocations are required"))
	}
	if cfg.RotationInterval <= 0 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("rotation interval must be positive"))
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Scheduler{cfg: cfg, logger: l.With(logger.Component("rotation"))}, nil
}

// Start launches the rotation and cleanup loops.
// The loops end when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.every(ctx, s.cfg.RotationInterval, s.RotateNow)
		return nil
	})
	g.Go(func() error {
		s.every(ctx, s.cfg.CleanupInterval, s.CleanupNow)
		return nil
	})

	s.cancel = cancel
	s.group = g

	s.logger.InfoContext(ctx, "credential scheduler started",
		slog.Duration("rotation_interval", s.cfg.RotationInterval),
		slog.Duration("cleanup_interval", s.cfg.CleanupInterval),
	)
	return nil
}

// Stop cancels both loops and waits for them to return. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if g == nil {
		return
	}
	cancel()
	_ = g.Wait()
	s.logger.Info("credential scheduler stopped")
}

// RotateNow performs one rotation. A failure keeps the previous key in force.
func (s *Scheduler) RotateNow(ctx context.Context) {
	key, err := s.cfg.Keys.Rotate()
	if err != nil {
		s.logger.ErrorContext(ctx, "key rotation failed, previous key stays in force",
			logger.Operation("rotate"),
			logger.Error(err),
		)
		s.cfg.Metrics.Rotation(ctx, metrics.ResultFailure)
		s.record(ctx, audit.Event{
			Type:     audit.TypeSecretRotationFailed,
			Resource: "signing_key",
			Metadata: map[string]any{"error": err.Error()},
		})
		return
	}

	s.logger.InfoContext(ctx, "signing key rotated",
		logger.Generation(key.Generation()),
		logger.KeyFingerprint(key.Fingerprint()),
	)
	s.cfg.Metrics.Rotation(ctx, metrics.ResultSuccess)
	s.record(ctx, audit.Event{
		Type:     audit.TypeSecretRotated,
		Resource: "signing_key",
		Metadata: map[string]any{
			"generation":  key.Generation(),
			"fingerprint": key.Fingerprint(),
		},
		Timestamp: key.CreatedAt(),
	})
}

// CleanupNow purges expired revocations once
func (s *Scheduler) CleanupNow(ctx context.Context) {
	n := s.cfg.Revocations.Cleanup()
	s.cfg.Metrics.Purged(ctx, n)
	if n > 0 {
		s.logger.DebugContext(ctx, "expired revocations purged", slog.Int("count", n))
	}
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Scheduler) record(ctx context.Context, event audit.Event) {
	if s.cfg.Audit != nil {
		s.cfg.Audit.Log(ctx, event)
	}
}
