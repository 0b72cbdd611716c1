package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	transportHTTP "github.com/eventhorizon/horizon/internal/transport/http"
)

// TestPurpose: Validates the route table.
// Scope: Unit Test
// Expected: Every credential endpoint is routed; unknown paths and methods are not.
func TestRouter_Routes(t *testing.T) {
	// Matched routes are never served, so nil dependencies are safe
	h := &transportHTTP.Handler{}

	tests := []struct {
		name        string
		path        string
		method      string
		expectFound bool
	}{
		{"Health", "/health", "GET", true},
		{"Metrics disabled", "/metrics", "GET", false},
		{"Key exchange", "/api/v1/keys/exchange", "POST", true},
		{"Rotation info", "/api/v1/keys/key-rotation/info", "GET", true},
		{"Get public key", "/api/v1/keys/did:example:alice", "GET", true},
		{"Delete public key", "/api/v1/keys/did:example:alice", "DELETE", true},
		{"Issue token", "/api/v1/keys/did:example:alice/token", "POST", true},
		{"Issue signature", "/api/v1/keys/did:example:alice/signature", "POST", true},
		{"Token info", "/api/v1/keys/did:example:alice/token-info", "POST", true},
		{"Revoke token", "/api/v1/keys/did:example:alice/revoke-token", "POST", true},
		{"Blacklist token", "/api/v1/keys/did:example:alice/blacklist-token", "POST", true},
		{"Connect", "/api/v1/connect/did:example:alice", "GET", true},
		{"Me", "/api/v1/me", "GET", true},
		{"No manual rotation", "/api/v1/keys/rotate", "POST", false},
		{"Token via GET", "/api/v1/keys/did:example:alice/token", "GET", false},
	}

	rl := transportHTTP.NewRateLimiter(100, 100)
	defer rl.Close()
	r := transportHTTP.NewRouter(h, rl, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)

			if tt.expectFound {
				rctx := chi.NewRouteContext()
				assert.True(t, r.Match(rctx, req.Method, req.URL.Path), "Route %s %s SHOULD exist", tt.method, tt.path)
				return
			}

			// Mounted subrouters match any method on their prefix, so absence is checked by serving
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, rec.Code,
				"Route %s %s SHOULD NOT exist", tt.method, tt.path)
		})
	}
}
