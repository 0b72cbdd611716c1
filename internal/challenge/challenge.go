package challenge

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/clock"
	"github.com/eventhorizon/horizon/internal/identity"
	"github.com/eventhorizon/horizon/internal/keys"
	"github.com/eventhorizon/horizon/internal/observability/logger"
	"github.com/eventhorizon/horizon/internal/observability/metrics"
)

// DefaultWindow is the accepted distance between a challenge timestamp and now
const DefaultWindow = 300 * time.Second

var (
	ErrInvalidSubject   = identity.ErrInvalidSubject
	ErrExpiredChallenge = errors.New("challenge timestamp outside the accepted window")
	ErrInvalidSignature = errors.New("invalid challenge signature")
)

// KeySource provides the challenge keys of every retained generation
type KeySource interface {
	Current() keys.SigningKey
	VerificationKeys() []keys.SigningKey
}

// Signature is a server-issued challenge response
type Signature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	ExpiresIn int64  `json:"expires_in"`
}

// Config holds Authenticator dependencies
type Config struct {
	Keys    KeySource
	Window  time.Duration
	Clock   clock.Clock
	Audit   audit.Logger
	Metrics *metrics.Credentials
}

// Authenticator verifies HMAC signatures over "<did>:<unix-seconds>".
// Replays inside the window are accepted.
type Authenticator struct {
	keys    KeySource
	window  time.Duration
	clock   clock.Clock
	audit   audit.Logger
	metrics *metrics.Credentials
}

// NewAuthenticator creates a challenge authenticator
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Keys == nil {
		return nil, errors.New("challenge authenticator requires a key source")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	return &Authenticator{
		keys:    cfg.Keys,
		window:  cfg.Window,
		clock:   cfg.Clock,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
	}, nil
}

// Sign produces a signature for subjectID at the current time with the current generation
func (a *Authenticator) Sign(subjectID string) (*Signature, error) {
	if err := identity.ValidateDID(subjectID); err != nil {
		return nil, err
	}
	ts := a.clock.Now().Unix()
	mac := compute(a.keys.Current().ChallengeKey(), subjectID, ts)
	return &Signature{
		Signature: hex.EncodeToString(mac),
		Timestamp: ts,
		ExpiresIn: int64(a.window / time.Second),
	}, nil
}

// Verify checks signatureHex against every retained generation, newest first
func (a *Authenticator) Verify(ctx context.Context, subjectID, signatureHex string, timestamp int64) error {
	err := a.verify(subjectID, signatureHex, timestamp)
	if err == nil {
		a.metrics.Verification(ctx, "challenge", metrics.ResultSuccess)
		return nil
	}

	a.metrics.Verification(ctx, "challenge", Code(err))
	if errors.Is(err, ErrInvalidSignature) {
		slog.WarnContext(ctx, "challenge signature rejected",
			logger.Component("challenge"),
			logger.DID(subjectID),
		)
		if a.audit != nil {
			a.audit.Log(ctx, audit.Event{
				Type:      audit.TypeAuthFailed,
				ActorID:   subjectID,
				Resource:  "challenge",
				Metadata:  map[string]any{"reason": Code(err)},
				Timestamp: a.clock.Now(),
			})
		}
	}
	return err
}

func (a *Authenticator) verify(subjectID, signatureHex string, timestamp int64) error {
	if err := identity.ValidateDID(subjectID); err != nil {
		return err
	}

	// The window is checked before any MAC is computed.
	// Bounds are in whole seconds so far-off timestamps cannot overflow the comparison.
	now, w := a.clock.Now().Unix(), int64(a.window/time.Second)
	if timestamp < now-w || timestamp > now+w {
		return ErrExpiredChallenge
	}

	presented, err := hex.DecodeString(signatureHex)
	if err != nil || len(presented) != sha256.Size {
		return ErrInvalidSignature
	}

	for _, key := range a.keys.VerificationKeys() {
		if hmac.Equal(compute(key.ChallengeKey(), subjectID, timestamp), presented) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Message returns the signed challenge payload
func Message(subjectID string, timestamp int64) []byte {
	return []byte(subjectID + ":" + strconv.FormatInt(timestamp, 10))
}

// Compute returns the hex HMAC-SHA256 of the challenge message under key
func Compute(key []byte, subjectID string, timestamp int64) string {
	return hex.EncodeToString(compute(key, subjectID, timestamp))
}

func compute(key []byte, subjectID string, timestamp int64) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(Message(subjectID, timestamp))
	return mac.Sum(nil)
}

// Code returns the stable error code for a challenge failure
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSubject):
		return "invalid_subject"
	case errors.Is(err, ErrExpiredChallenge):
		return "challenge_expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "internal_error"
	}
}
