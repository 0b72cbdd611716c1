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

package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eventhorizon/horizon/internal/challenge"
	"github.com/eventhorizon/horizon/internal/directory"
	"github.com/eventhorizon/horizon/internal/identity"
	"github.com/eventhorizon/horizon/internal/observability/logger"
	"github.com/eventhorizon/horizon/internal/token"
)

// Error codes returned in the "error" field
const (
	CodeInvalidSubject   = "invalid_subject"
	CodeMalformedToken   = "malformed_token"
	CodeInvalidSignature = "invalid_signature"
	CodeTokenExpired     = "token_expired"
	CodeChallengeExpired = "challenge_expired"
	CodeTokenRevoked     = "token_revoked"
	CodeInvalidTokenType = "invalid_token_type"
	CodeSubjectMismatch  = "subject_mismatch"
	CodeKeyNotFound      = "key_not_found"
	CodeInvalidPublicKey = "invalid_public_key"
	CodeInvalidRequest   = "invalid_request"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal_error"
)

// statusFor maps a domain error to its HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrInvalidSubject):
		return http.StatusBadRequest, CodeInvalidSubject
	case errors.Is(err, token.ErrMalformed):
		return http.StatusBadRequest, CodeMalformedToken
	case errors.Is(err, token.ErrInvalidTTL):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, token.ErrInvalidTokenType):
		return http.StatusBadRequest, CodeInvalidTokenType
	case errors.Is(err, token.ErrInvalidSignature), errors.Is(err, challenge.ErrInvalidSignature):
		return http.StatusUnauthorized, CodeInvalidSignature
	case errors.Is(err, token.ErrExpired):
		return http.StatusUnauthorized, CodeTokenExpired
	case errors.Is(err, challenge.ErrExpiredChallenge):
		return http.StatusUnauthorized, CodeChallengeExpired
	case errors.Is(err, token.ErrRevoked):
		return http.StatusUnauthorized, CodeTokenRevoked
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound, CodeKeyNotFound
	case errors.Is(err, directory.ErrInvalidPublicKey):
		return http.StatusBadRequest, CodeInvalidPublicKey
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondDomainError writes the mapped status for err.
// Internal failures are logged and never echoed to the client.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", logger.Path(r.URL.Path), logger.Error(err))
		respondError(w, status, code, "internal server error")
		return
	}
	respondError(w, status, code, err.Error())
}
