package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/identity"
	"github.com/eventhorizon/horizon/internal/observability/tracing"
	"github.com/eventhorizon/horizon/internal/token"
)

// maxBodySize bounds request bodies on credential endpoints
const maxBodySize = 64 << 10

// ExchangeKeyRequest publishes a subject's public key
type ExchangeKeyRequest struct {
	DID       string `json:"did" example:"did:example:alice"`
	PublicKey string `json:"public_key" example:"MCowBQYDK2VwAyEA..."`
}

// IssueTokenRequest selects the token type; an empty body issues an access token
type IssueTokenRequest struct {
	TokenType string `json:"token_type,omitempty" example:"access"`
}

// TokenRequest carries a raw token for inspection or revocation
type TokenRequest struct {
	Token string `json:"token"`
}

// ExchangeKey handles public key publication
// @Summary Exchange public key
// @Tags Keys
// @Accept json
// @Produce json
// @Param request body ExchangeKeyRequest true "Public key"
// @Success 200 {object} map[string]any
// @Failure 400 {object} errorResponse
// @Router /keys/exchange [post]
func (h *Handler) ExchangeKey(w http.ResponseWriter, r *http.Request) {
	var req ExchangeKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}

	key, err := h.directory.Exchange(r.Context(), req.DID, req.PublicKey)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "public key saved",
		"did":       key.DID,
		"timestamp": key.UpdatedAt.UTC(),
	})
}

// GetPublicKey returns the public key published by a subject
// @Summary Get public key
// @Tags Keys
// @Produce json
// @Param did path string true "Subject DID"
// @Success 200 {object} directory.PublicKey
// @Failure 404 {object} errorResponse
// @Router /keys/{did} [get]
func (h *Handler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.directory.Get(r.Context(), chi.URLParam(r, "did"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, key)
}

// RevokePublicKey removes a subject's public key
// @Summary Revoke public key
// @Tags Keys
// @Produce json
// @Param did path string true "Subject DID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} errorResponse
// @Router /keys/{did} [delete]
func (h *Handler) RevokePublicKey(w http.ResponseWriter, r *http.Request) {
	did := chi.URLParam(r, "did")
	if err := h.directory.Revoke(r.Context(), did); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "public key revoked",
		"did":       did,
		"timestamp": h.clock.Now().UTC(),
	})
}

// IssueToken signs a token for the subject
// @Summary Issue token
// @Tags Credentials
// @Accept json
// @Produce json
// @Param did path string true "Subject DID"
// @Param request body IssueTokenRequest false "Token type"
// @Success 200 {object} map[string]any
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /keys/{did}/token [post]
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	did := chi.URLParam(r, "did")

	var req IssueTokenRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "token.issue", attribute.String("did", did))
	st, err := h.tokens.Issue(ctx, did, req.TokenType, h.tokenTTL)
	tracing.End(span, err)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": st.Raw,
		"token_type":   "bearer",
		"type":         st.Token.TokenType,
		"expires_in":   int64(st.Token.ExpiresAt.Sub(st.Token.IssuedAt).Seconds()),
		"expires_at":   st.Token.ExpiresAt.UTC(),
		"jti":          st.Token.JTI,
		"did":          did,
	})
}

// IssueSignature produces a challenge signature for the subject
// @Summary Issue challenge signature
// @Tags Credentials
// @Produce json
// @Param did path string true "Subject DID"
// @Success 200 {object} challenge.Signature
// @Failure 404 {object} errorResponse
// @Router /keys/{did}/signature [post]
func (h *Handler) IssueSignature(w http.ResponseWriter, r *http.Request) {
	did := chi.URLParam(r, "did")

	sig, err := h.challenges.Sign(did)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"signature":  sig.Signature,
		"timestamp":  sig.Timestamp,
		"expires_in": sig.ExpiresIn,
		"did":        did,
	})
}

// TokenInfo reports the state of a token owned by the subject
// @Summary Token info
// @Tags Credentials
// @Accept json
// @Produce json
// @Param did path string true "Subject DID"
// @Param request body TokenRequest true "Token"
// @Success 200 {object} token.Inspection
// @Failure 400 {object} errorResponse
// @Router /keys/{did}/token-info [post]
func (h *Handler) TokenInfo(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.ownedToken(w, r)
	if !ok {
		return
	}

	info, err := h.tokens.Inspect(r.Context(), raw)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// RevokeToken rejects a token until it expires
// @Summary Revoke token
// @Tags Credentials
// @Accept json
// @Produce json
// @Param did path string true "Subject DID"
// @Param request body TokenRequest true "Token"
// @Success 200 {object} map[string]any
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /keys/{did}/revoke-token [post]
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	h.rejectToken(w, r, "token.revoke", h.tokens.Revoke, "token revoked")
}

// BlacklistToken permanently rejects a token
// @Summary Blacklist token
// @Tags Credentials
// @Accept json
// @Produce json
// @Param did path string true "Subject DID"
// @Param request body TokenRequest true "Token"
// @Success 200 {object} map[string]any
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /keys/{did}/blacklist-token [post]
func (h *Handler) BlacklistToken(w http.ResponseWriter, r *http.Request) {
	h.rejectToken(w, r, "token.blacklist", h.tokens.Blacklist, "token blacklisted")
}

func (h *Handler) rejectToken(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	reject func(ctx context.Context, raw string) (*token.Token, error),
	message string,
) {
	raw, ok := h.ownedToken(w, r)
	if !ok {
		return
	}

	ctx, span := h.tracer.Start(r.Context(), operation)
	t, err := reject(ctx, raw)
	tracing.End(span, err)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   message,
		"did":       t.SubjectID,
		"jti":       t.JTI,
		"timestamp": h.clock.Now().UTC(),
	})
}

// ownedToken reads the token from the body or the token query parameter
// and checks that its claimed subject matches the path.
// The signature is checked by the operation that follows.
func (h *Handler) ownedToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TokenRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return "", false
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}

	t, err := h.tokens.DecodeUnverified(req.Token)
	if err != nil {
		respondDomainError(w, r, err)
		return "", false
	}
	if t.SubjectID != chi.URLParam(r, "did") {
		respondError(w, http.StatusForbidden, CodeSubjectMismatch, "token does not belong to this subject")
		return "", false
	}
	return req.Token, true
}

// RegisteredSubject rejects credential requests for subjects without a published public key
func (h *Handler) RegisteredSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		did := chi.URLParam(r, "did")
		if err := identity.ValidateDID(did); err != nil {
			respondDomainError(w, r, err)
			return
		}
		if h.requireRegisteredKey {
			if _, err := h.directory.Get(r.Context(), did); err != nil {
				respondDomainError(w, r, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) audit(r *http.Request, event audit.Event) {
	event.IPAddress = getIPAddress(r)
	event.UserAgent = r.UserAgent()
	event.Timestamp = h.clock.Now()
	h.auditLogger.Log(r.Context(), event)
}
