// @title Event Horizon API
// @version 1.0.0
// @description Credential service for an end-to-end encrypted messenger

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/challenge"
	"github.com/eventhorizon/horizon/internal/clock"
	"github.com/eventhorizon/horizon/internal/directory"
	"github.com/eventhorizon/horizon/internal/keys"
	"github.com/eventhorizon/horizon/internal/observability/tracing"
	"github.com/eventhorizon/horizon/internal/token"
)

// KeyInfo reports signing key rotation state without exposing key material
type KeyInfo interface {
	Info() keys.Info
}

// Dependencies holds the services behind the HTTP surface
type Dependencies struct {
	Tokens     *token.Authority
	Challenges *challenge.Authenticator
	Directory  *directory.Service
	Keys       KeyInfo
	Audit      audit.Logger
	Tracer     *tracing.Tracer
	Clock      clock.Clock

	// RequireRegisteredKey restricts credential endpoints to subjects with a published public key
	RequireRegisteredKey bool
	// TokenTTL is reported as expires_in for issued tokens
	TokenTTL time.Duration
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tokens               *token.Authority
	challenges           *challenge.Authenticator
	directory            *directory.Service
	keys                 KeyInfo
	auditLogger          audit.Logger
	tracer               *tracing.Tracer
	clock                clock.Clock
	requireRegisteredKey bool
	tokenTTL             time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		tokens:               deps.Tokens,
		challenges:           deps.Challenges,
		directory:            deps.Directory,
		keys:                 deps.Keys,
		auditLogger:          deps.Audit,
		tracer:               deps.Tracer,
		clock:                deps.Clock,
		requireRegisteredKey: deps.RequireRegisteredKey,
		tokenTTL:             deps.TokenTTL,
	}
	if h.tracer == nil {
		h.tracer = tracing.Noop()
	}
	if h.clock == nil {
		h.clock = clock.System{}
	}
	if h.auditLogger == nil {
		h.auditLogger = audit.NewSlogLogger()
	}
	if h.tokenTTL <= 0 {
		h.tokenTTL = token.DefaultTTL
	}
	return h
}

// NewRouter creates a new HTTP router.
// metricsHandler is mounted on /metrics when non-nil.
func NewRouter(h *Handler, rateLimiter *RateLimiter, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/keys", func(r chi.Router) {
			r.Post("/exchange", h.ExchangeKey)
			r.Get("/key-rotation/info", h.KeyRotationInfo)

			r.Route("/{did}", func(r chi.Router) {
				r.Get("/", h.GetPublicKey)
				r.Delete("/", h.RevokePublicKey)

				r.Group(func(r chi.Router) {
					r.Use(h.RegisteredSubject)
					r.Post("/token", h.IssueToken)
					r.Post("/signature", h.IssueSignature)
					r.Post("/token-info", h.TokenInfo)
					r.Post("/revoke-token", h.RevokeToken)
					r.Post("/blacklist-token", h.BlacklistToken)
				})
			})
		})

		r.Get("/connect/{did}", h.Connect)

		r.Group(func(r chi.Router) {
			r.Use(h.BearerAuth)
			r.Get("/me", h.Me)
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"service":    "horizon",
		"generation": h.keys.Info().Generation,
		"timestamp":  h.clock.Now().UTC(),
	})
}

// KeyRotationInfo reports the signing key rotation schedule
// @Summary Key rotation info
// @Description Rotation is automatic; this endpoint is read-only and never exposes key material
// @Tags Keys
// @Produce json
// @Success 200 {object} map[string]any
// @Router /keys/key-rotation/info [get]
func (h *Handler) KeyRotationInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"key_rotation": h.keys.Info(),
		"timestamp":    h.clock.Now().UTC(),
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
