package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/identity"
	"github.com/eventhorizon/horizon/internal/observability/logger"
	"github.com/eventhorizon/horizon/internal/observability/tracing"
)

// Authentication methods accepted by the connection handshake
const (
	MethodToken     = "token"
	MethodSignature = "signature"
)

// Connect authenticates a real-time connection handshake.
// The subject proves itself with either a token it owns or a fresh challenge signature.
// @Summary Connection handshake
// @Tags Connect
// @Produce json
// @Param did path string true "Subject DID"
// @Param token query string false "Token issued to the subject"
// @Param signature query string false "Hex HMAC-SHA256 over did:timestamp"
// @Param timestamp query int false "Unix seconds the signature was made at"
// @Success 200 {object} map[string]any
// @Failure 401 {object} errorResponse
// @Router /connect/{did} [get]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	did := chi.URLParam(r, "did")
	if err := identity.ValidateDID(did); err != nil {
		respondDomainError(w, r, err)
		return
	}

	q := r.URL.Query()
	ctx, span := h.tracer.Start(r.Context(), "connect.authenticate", attribute.String("did", did))

	var (
		method string
		err    error
	)
	switch {
	case q.Get("token") != "":
		method = MethodToken
		t, verifyErr := h.tokens.Verify(ctx, q.Get("token"))
		if verifyErr != nil {
			err = verifyErr
			break
		}
		if t.SubjectID != did {
			tracing.End(span, nil)
			respondError(w, http.StatusForbidden, CodeSubjectMismatch, "token does not belong to this subject")
			return
		}
	case q.Get("signature") != "":
		method = MethodSignature
		ts, parseErr := strconv.ParseInt(q.Get("timestamp"), 10, 64)
		if parseErr != nil {
			tracing.End(span, nil)
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "timestamp must be unix seconds")
			return
		}
		err = h.challenges.Verify(ctx, did, q.Get("signature"), ts)
	default:
		tracing.End(span, nil)
		respondError(w, http.StatusUnauthorized, CodeInvalidRequest, "token or signature is required")
		return
	}
	tracing.End(span, err)

	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "connection authenticated", logger.DID(did), logger.AuthMethod(method))
	h.audit(r, audit.Event{
		Type:     audit.TypeAuthSucceeded,
		ActorID:  did,
		Resource: "connection",
		Metadata: map[string]any{"method": method},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "authenticated",
		"did":    did,
		"method": method,
	})
}

// Me returns the subject of the bearer token
// @Summary Current subject
// @Tags Connect
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Failure 401 {object} errorResponse
// @Router /me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"did":        GetSubjectID(r.Context()),
		"jti":        GetTokenID(r.Context()),
		"expires_at": GetTokenExpiry(r.Context()).UTC(),
	})
}
