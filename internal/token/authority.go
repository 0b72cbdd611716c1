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

package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/clock"
	"github.com/eventhorizon/horizon/internal/identity"
	"github.com/eventhorizon/horizon/internal/keys"
	"github.com/eventhorizon/horizon/internal/observability/logger"
	"github.com/eventhorizon/horizon/internal/observability/metrics"
)

// DefaultTTL is the lifetime of tokens issued without an explicit ttl
const DefaultTTL = 30 * time.Minute

// KeySource provides signing and verification key material
type KeySource interface {
	Current() keys.SigningKey
	VerificationKeys() []keys.SigningKey
}

// Revocations tracks rejected token identifiers
type Revocations interface {
	Revoke(jti string, expiresAt time.Time) bool
	Blacklist(jti string) bool
	IsRevoked(jti string) bool
	IsBlacklisted(jti string) bool
}

// Config holds the Authority dependencies
type Config struct {
	Keys        KeySource
	Revocations Revocations
	DefaultTTL  time.Duration
	Clock       clock.Clock
	Audit       audit.Logger
	Metrics     *metrics.Credentials
}

// Authority issues and verifies signed tokens
type Authority struct {
	keys        KeySource
	revocations Revocations
	defaultTTL  time.Duration
	clock       clock.Clock
	audit       audit.Logger
	metrics     *metrics.Credentials
	parser      *jwt.Parser
}

// NewAuthority creates a token authority
func NewAuthority(cfg Config) (*Authority, error) {
	if cfg.Keys == nil || cfg.Revocations == nil {
		return nil, errors.New("token authority requires a key source and a revocation registry")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	return &Authority{
		keys:        cfg.Keys,
		revocations: cfg.Revocations,
		defaultTTL:  cfg.DefaultTTL,
		clock:       cfg.Clock,
		audit:       cfg.Audit,
		metrics:     cfg.Metrics,
		// Expiry is checked against the injected clock after the revocation lookups
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue signs a new token for subjectID with the current key.
// A non-positive ttl uses the configured default.
func (a *Authority) Issue(ctx context.Context, subjectID, tokenType string, ttl time.Duration) (*SignedToken, error) {
	if err := identity.ValidateDID(subjectID); err != nil {
		return nil, err
	}
	if tokenType == "" {
		tokenType = TypeAccess
	}
	if !ValidType(tokenType) {
		return nil, ErrInvalidTokenType
	}
	if ttl <= 0 {
		ttl = a.defaultTTL
	}

	// NumericDate has second precision
	issuedAt := a.clock.Now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl).Truncate(time.Second)
	if !expiresAt.After(issuedAt) {
		return nil, ErrInvalidTTL
	}

	jti, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token id: %w", err)
	}

	claims := &Claims{
		DID:  subjectID,
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	key := a.keys.Current()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	a.metrics.TokenIssued(ctx, tokenType)
	a.log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  subjectID,
		Resource: claims.ID,
		Metadata: map[string]any{
			"type":       tokenType,
			"generation": key.Generation(),
			"expires_at": expiresAt,
		},
	})

	return &SignedToken{
		Raw:        raw,
		Token:      claims.token(),
		Generation: key.Generation(),
	}, nil
}

// Verify authenticates raw and returns its metadata.
// Checks run in order: signature, blacklist, expiry, revocation.
func (a *Authority) Verify(ctx context.Context, raw string) (*Token, error) {
	claims, err := a.authenticate(raw)
	if err != nil {
		a.reject(ctx, raw, err)
		return nil, err
	}

	t := claims.token()
	if a.revocations.IsBlacklisted(t.JTI) {
		a.reject(ctx, raw, ErrRevoked)
		return nil, ErrRevoked
	}
	if t.IsExpired(a.clock.Now()) {
		a.metrics.Verification(ctx, "token", "token_expired")
		return nil, ErrExpired
	}
	if a.revocations.IsRevoked(t.JTI) {
		a.reject(ctx, raw, ErrRevoked)
		return nil, ErrRevoked
	}

	a.metrics.Verification(ctx, "token", metrics.ResultSuccess)
	return &t, nil
}

// DecodeUnverified extracts token metadata without checking the signature.
// The result must never be used for authorization.
func (a *Authority) DecodeUnverified(raw string) (*Token, error) {
	claims := &Claims{}
	if _, _, err := a.parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	t := claims.token()
	return &t, nil
}

// Revoke rejects a validly signed token until it expires.
// Expired tokens are accepted and need no entry.
func (a *Authority) Revoke(ctx context.Context, raw string) (*Token, error) {
	claims, err := a.authenticate(raw)
	if err != nil {
		return nil, err
	}

	t := claims.token()
	if a.revocations.Revoke(t.JTI, t.ExpiresAt) {
		a.metrics.Revoked(ctx)
	}
	a.log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		ActorID:  t.SubjectID,
		Resource: t.JTI,
		Metadata: map[string]any{"expires_at": t.ExpiresAt},
	})
	return &t, nil
}

// Blacklist permanently rejects a validly signed token
func (a *Authority) Blacklist(ctx context.Context, raw string) (*Token, error) {
	claims, err := a.authenticate(raw)
	if err != nil {
		return nil, err
	}

	t := claims.token()
	if a.revocations.Blacklist(t.JTI) {
		a.metrics.Blacklisted(ctx)
	}
	a.log(ctx, audit.Event{
		Type:     audit.TypeTokenBlacklisted,
		ActorID:  t.SubjectID,
		Resource: t.JTI,
	})
	return &t, nil
}

// Inspect reports the state of raw without authorizing it
func (a *Authority) Inspect(ctx context.Context, raw string) (*Inspection, error) {
	t, err := a.DecodeUnverified(raw)
	if err != nil {
		return nil, err
	}

	_, authErr := a.authenticate(raw)
	now := a.clock.Now()

	in := &Inspection{
		Token:          *t,
		SignatureValid: authErr == nil,
		IsExpired:      t.IsExpired(now),
		IsRevoked:      a.revocations.IsRevoked(t.JTI),
		IsBlacklisted:  a.revocations.IsBlacklisted(t.JTI),
	}
	if !in.IsExpired {
		in.TimeUntilExp = int64(t.ExpiresAt.Sub(now) / time.Second)
	}
	return in, nil
}

// authenticate checks the signature against every retained key, newest first
func (a *Authority) authenticate(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMalformed
	}
	if _, _, err := a.parser.ParseUnverified(raw, &Claims{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for _, key := range a.keys.VerificationKeys() {
		claims := &Claims{}
		_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key.Secret(), nil
		})
		if err == nil {
			if claims.ID == "" || claims.ExpiresAt == nil || claims.DID == "" {
				return nil, fmt.Errorf("%w: missing required claims", ErrMalformed)
			}
			return claims, nil
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return nil, ErrInvalidSignature
}

func (a *Authority) reject(ctx context.Context, raw string, err error) {
	a.metrics.Verification(ctx, "token", Code(err))
	if !errors.Is(err, ErrInvalidSignature) && !errors.Is(err, ErrRevoked) {
		return
	}

	// Claims are unverified here and only identify the presenter for investigation
	attrs := []any{logger.Component("token"), logger.ErrorType(Code(err)), logger.Error(err)}
	subject := ""
	if t, decodeErr := a.DecodeUnverified(raw); decodeErr == nil {
		subject = t.SubjectID
		attrs = append(attrs, logger.DID(t.SubjectID), logger.JTI(t.JTI))
	}
	slog.WarnContext(ctx, "token rejected", attrs...)

	a.log(ctx, audit.Event{
		Type:     audit.TypeAuthFailed,
		ActorID:  subject,
		Resource: "token",
		Metadata: map[string]any{"reason": Code(err)},
	})
}

func (a *Authority) log(ctx context.Context, event audit.Event) {
	if a.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = a.clock.Now()
	}
	a.audit.Log(ctx, event)
}

// Code returns the stable error code for a token failure
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSubject):
		return "invalid_subject"
	case errors.Is(err, ErrMalformed):
		return "malformed_token"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpired):
		return "token_expired"
	case errors.Is(err, ErrRevoked):
		return "token_revoked"
	case errors.Is(err, ErrInvalidTokenType):
		return "invalid_token_type"
	default:
		return "internal_error"
	}
}
