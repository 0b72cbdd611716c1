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

package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/validation"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/clock"
	"github.com/eventhorizon/horizon/internal/identity"
	"github.com/eventhorizon/horizon/internal/observability/logger"
)

// MaxPublicKeySize bounds the stored public key encoding
const MaxPublicKeySize = 8192

// Domain errors
var (
	ErrNotFound         = errors.New("public key not found")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// PublicKey is the encryption key a subject published for its peers
type PublicKey struct {
	DID       string    `json:"did"`
	PublicKey string    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"last_updated"`
}

// Repository persists public keys by DID
type Repository interface {
	// Upsert stores key, replacing any previous key for the same DID
	Upsert(ctx context.Context, key *PublicKey) error
	Get(ctx context.Context, did string) (*PublicKey, error)
	Delete(ctx context.Context, did string) error
}

// Service manages the public-key directory
type Service struct {
	repo  Repository
	audit audit.Logger
	clock clock.Clock
}

// NewService creates a directory service
func NewService(repo Repository, auditLogger audit.Logger, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, audit: auditLogger, clock: clk}
}

// Exchange publishes publicKey for did
func (s *Service) Exchange(ctx context.Context, did, publicKey string) (*PublicKey, error) {
	if err := identity.ValidateDID(did); err != nil {
		return nil, err
	}
	publicKey = strings.TrimSpace(publicKey)
	if err := validation.Validate(publicKey,
		validation.Required,
		validation.Length(1, MaxPublicKeySize),
	); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPublicKey, err.Error())
	}

	now := s.clock.Now()
	key := &PublicKey{DID: did, PublicKey: publicKey, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.Upsert(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to store public key: %w", err)
	}

	slog.InfoContext(ctx, "public key exchanged", logger.DID(did))
	s.log(ctx, audit.Event{
		Type:     audit.TypeKeyExchanged,
		ActorID:  did,
		Resource: did,
	})
	return key, nil
}

// Get returns the public key registered for did
func (s *Service) Get(ctx context.Context, did string) (*PublicKey, error) {
	if err := identity.ValidateDID(did); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, did)
}

// Revoke removes the public key registered for did
func (s *Service) Revoke(ctx context.Context, did string) error {
	if err := identity.ValidateDID(did); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, did); err != nil {
		return err
	}

	slog.InfoContext(ctx, "public key revoked", logger.DID(did))
	s.log(ctx, audit.Event{
		Type:     audit.TypeKeyRevoked,
		ActorID:  did,
		Resource: did,
	})
	return nil
}

func (s *Service) log(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.Timestamp = s.clock.Now()
	s.audit.Log(ctx, event)
}
