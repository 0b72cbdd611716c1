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
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eventhorizon/horizon/internal/identity"
)

// Domain errors
var (
	ErrInvalidSubject   = identity.ErrInvalidSubject
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
	ErrRevoked          = errors.New("token revoked")
	ErrInvalidTTL       = errors.New("token lifetime must be at least one second")
	ErrInvalidTokenType = errors.New("unsupported token type")
)

// Token types
const (
	TypeAccess    = "access"
	TypeWebSocket = "websocket_access"
)

// ValidType reports whether tokenType can be issued
func ValidType(tokenType string) bool {
	return tokenType == TypeAccess || tokenType == TypeWebSocket
}

// Claims is the signed JWT payload
type Claims struct {
	DID  string `json:"did"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Token is the decoded metadata of a credential
type Token struct {
	SubjectID string    `json:"did"`
	TokenType string    `json:"token_type"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	JTI       string    `json:"jti"`
}

// IsExpired reports whether the token has expired at now
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// SignedToken is an issued credential and its metadata
type SignedToken struct {
	Raw        string
	Token      Token
	Generation uint64
}

// Inspection reports token metadata for introspection endpoints.
// It is never an authorization decision.
type Inspection struct {
	Token
	SignatureValid bool  `json:"signature_valid"`
	IsExpired      bool  `json:"is_expired"`
	IsRevoked      bool  `json:"is_revoked"`
	IsBlacklisted  bool  `json:"is_blacklisted"`
	TimeUntilExp   int64 `json:"time_until_exp"`
}

func (c *Claims) token() Token {
	t := Token{
		SubjectID: c.DID,
		TokenType: c.Type,
		JTI:       c.ID,
	}
	if t.SubjectID == "" {
		t.SubjectID = c.Subject
	}
	if c.IssuedAt != nil {
		t.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		t.ExpiresAt = c.ExpiresAt.Time
	}
	return t
}
