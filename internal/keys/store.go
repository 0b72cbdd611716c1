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

package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/eventhorizon/horizon/internal/clock"
)

// Domain errors
var (
	ErrInvalidConfig = errors.New("invalid key store configuration")
	ErrRandomSource  = errors.New("random source failure")
)

const (
	// SecretSize is the length of every generated secret in bytes (256 bits)
	SecretSize = 32

	// DefaultMaxPreviousKeys is the default retained history length
	DefaultMaxPreviousKeys = 3

	// DefaultRotationInterval is the default time between rotations
	DefaultRotationInterval = 24 * time.Hour

	challengeKeyInfo  = "horizon challenge v1"
	fingerprintLength = 16
)

// SigningKey is one generation of secret key material.
// It is immutable once created; accessors hand out copies.
type SigningKey struct {
	secret       []byte
	challengeKey []byte
	fingerprint  string
	generation   uint64
	createdAt    time.Time
}

// Generation returns the monotonically increasing sequence number
func (k SigningKey) Generation() uint64 {
	return k.generation
}

// CreatedAt returns when the key was generated
func (k SigningKey) CreatedAt() time.Time {
	return k.createdAt
}

// Fingerprint returns a short SHA-256 prefix identifying the secret
func (k SigningKey) Fingerprint() string {
	return k.fingerprint
}

// Secret returns a copy of the token signing secret.
// In-process signers only; never serialize it.
func (k SigningKey) Secret() []byte {
	return append([]byte(nil), k.secret...)
}

// ChallengeKey returns a copy of the HMAC key for signature challenges,
// derived from the secret with HKDF-SHA256.
func (k SigningKey) ChallengeKey() []byte {
	return append([]byte(nil), k.challengeKey...)
}

// IsZero reports whether k holds no key material
func (k SigningKey) IsZero() bool {
	return len(k.secret) == 0
}

// String never prints key material
func (k SigningKey) String() string {
	return fmt.Sprintf("generation=%d fingerprint=%s", k.generation, k.fingerprint)
}

// GoString never prints key material
func (k SigningKey) GoString() string {
	return "keys.SigningKey{" + k.String() + "}"
}

// Info is a read-only summary of the store, safe to expose.
// RotationIntervalHours is rounded up so sub-hour intervals never read as zero.
type Info struct {
	CurrentKeyFingerprint string    `json:"current_key_fingerprint"`
	Generation            uint64    `json:"generation"`
	LastRotation          time.Time `json:"last_rotation"`
	NextRotation          time.Time `json:"next_rotation"`
	RotationIntervalHours int       `json:"rotation_interval_hours"`
	RotationIntervalSecs  int64     `json:"rotation_interval_seconds"`
	PreviousKeysCount     int       `json:"previous_keys_count"`
	TotalKeysManaged      int       `json:"total_keys_managed"`
}

// Config holds key store configuration
type Config struct {
	MaxPreviousKeys  int
	RotationInterval time.Duration
	Random           io.Reader   // defaults to crypto/rand
	Clock            clock.Clock // defaults to the system clock
}

// Store holds the current signing key and a bounded history of superseded keys.
// current and history are replaced together under the write lock.
type Store struct {
	mu       sync.RWMutex
	current  SigningKey
	history  []SigningKey // newest first, never contains current
	rotating sync.Mutex

	maxPrevious int
	interval    time.Duration
	random      io.Reader
	clock       clock.Clock
}

// NewStore creates a store holding a freshly generated generation 0 key
func NewStore(cfg Config) (*Store, error) {
	if cfg.MaxPreviousKeys < 0 {
		return nil, fmt.Errorf("%w: max previous keys must not be negative", ErrInvalidConfig)
	}
	if cfg.RotationInterval <= 0 {
		return nil, fmt.Errorf("%w: rotation interval must be positive", ErrInvalidConfig)
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	s := &Store{
		maxPrevious: cfg.MaxPreviousKeys,
		interval:    cfg.RotationInterval,
		random:      cfg.Random,
		clock:       cfg.Clock,
	}

	initial, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate initial signing key: %w", err)
	}
	initial.createdAt = s.clock.Now()
	s.current = initial

	return s, nil
}

// Current returns the key new credentials are signed with
func (s *Store) Current() SigningKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// VerificationKeys returns the current key followed by the history, newest first.
// The slice is a snapshot owned by the caller.
func (s *Store) VerificationKeys() []SigningKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SigningKey, 0, len(s.history)+1)
	out = append(out, s.current)
	out = append(out, s.history...)
	return out
}

// Rotate generates a new current key and pushes the previous one onto the history,
// evicting the oldest generation once the history exceeds its bound.
// On failure the store is left unchanged.
func (s *Store) Rotate() (SigningKey, error) {
	// serializes rotations so generation ids stay contiguous
	s.rotating.Lock()
	defer s.rotating.Unlock()

	next, err := s.generate()
	if err != nil {
		return SigningKey{}, fmt.Errorf("failed to rotate signing key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next.generation = s.current.generation + 1
	next.createdAt = s.clock.Now()

	history := make([]SigningKey, 0, s.maxPrevious+1)
	history = append(history, s.current)
	history = append(history, s.history...)
	if len(history) > s.maxPrevious {
		history = history[:s.maxPrevious]
	}

	s.current = next
	s.history = history

	return next, nil
}

// Info returns a summary without any key material
func (s *Store) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Info{
		CurrentKeyFingerprint: s.current.fingerprint,
		Generation:            s.current.generation,
		LastRotation:          s.current.createdAt,
		NextRotation:          s.current.createdAt.Add(s.interval),
		RotationIntervalHours: int((s.interval + time.Hour - 1) / time.Hour),
		RotationIntervalSecs:  int64(s.interval / time.Second),
		PreviousKeysCount:     len(s.history),
		TotalKeysManaged:      len(s.history) + 1,
	}
}

func (s *Store) generate() (SigningKey, error) {
	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(s.random, secret); err != nil {
		return SigningKey{}, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}

	challengeKey := make([]byte, SecretSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(challengeKeyInfo)), challengeKey); err != nil {
		return SigningKey{}, fmt.Errorf("failed to derive challenge key: %w", err)
	}

	return SigningKey{
		secret:       secret,
		challengeKey: challengeKey,
		fingerprint:  Fingerprint(secret),
	}, nil
}

// Fingerprint returns the first 16 hex characters of the SHA-256 of secret
func Fingerprint(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}
