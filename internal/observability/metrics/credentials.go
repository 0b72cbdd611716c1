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

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Revocation kinds
const (
	KindRevoked     = "revoked"
	KindBlacklisted = "blacklisted"
)

// Credentials records credential lifecycle events.
// A nil *Credentials records nothing.
type Credentials struct {
	tokensIssued  metric.Int64Counter
	verifications metric.Int64Counter
	rotations     metric.Int64Counter
	revocations   metric.Int64Counter
	purged        metric.Int64Counter
}

// NewCredentials creates the credential instruments on m
func NewCredentials(m *Meter) (*Credentials, error) {
	issued, err := m.CreateCounter("horizon_tokens_issued_total", "Tokens issued by type")
	if err != nil {
		return nil, err
	}
	verifications, err := m.CreateCounter("horizon_verifications_total", "Credential verifications by method and result")
	if err != nil {
		return nil, err
	}
	rotations, err := m.CreateCounter("horizon_key_rotations_total", "Signing key rotations by result")
	if err != nil {
		return nil, err
	}
	revocations, err := m.CreateCounter("horizon_revocations_total", "Tokens newly revoked or blacklisted by kind")
	if err != nil {
		return nil, err
	}
	purged, err := m.CreateCounter("horizon_revocations_purged_total", "Expired revocation entries removed by cleanup")
	if err != nil {
		return nil, err
	}

	return &Credentials{
		tokensIssued:  issued,
		verifications: verifications,
		rotations:     rotations,
		revocations:   revocations,
		purged:        purged,
	}, nil
}

// TokenIssued counts one issued token
func (c *Credentials) TokenIssued(ctx context.Context, tokenType string) {
	if c == nil {
		return
	}
	c.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("token_type", tokenType)))
}

// Verification counts one verification; method is "token" or "challenge", result is "success" or an error code
func (c *Credentials) Verification(ctx context.Context, method, result string) {
	if c == nil {
		return
	}
	c.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("result", result),
	))
}

// Rotation counts one rotation attempt
func (c *Credentials) Rotation(ctx context.Context, result string) {
	if c == nil {
		return
	}
	c.rotations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Revoked counts a new expiry-bounded revocation
func (c *Credentials) Revoked(ctx context.Context) {
	c.revoke(ctx, KindRevoked)
}

// Blacklisted counts a new permanent blacklist entry
func (c *Credentials) Blacklisted(ctx context.Context) {
	c.revoke(ctx, KindBlacklisted)
}

func (c *Credentials) revoke(ctx context.Context, kind string) {
	if c == nil {
		return
	}
	c.revocations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Purged counts revocation entries removed by cleanup
func (c *Credentials) Purged(ctx context.Context, n int) {
	if c == nil || n == 0 {
		return
	}
	c.purged.Add(ctx, int64(n))
}

// ObserveRevocations reports the identifiers currently held by the registry on every collection
func ObserveRevocations(m *Meter, stats func() (revoked, blacklisted int)) error {
	_, err := m.CreateObservableGauge("horizon_revocations_tracked", "Revocation entries currently held by kind",
		func(_ context.Context, o metric.Int64Observer) error {
			revoked, blacklisted := stats()
			o.Observe(int64(revoked), metric.WithAttributes(attribute.String("kind", KindRevoked)))
			o.Observe(int64(blacklisted), metric.WithAttributes(attribute.String("kind", KindBlacklisted)))
			return nil
		},
	)
	return err
}
