package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
	"github.com/metalhouse/fleshrecord/internal/userstore"
)

// Guard validates per-user bearer tokens on inbound API requests. It fails
// closed: a missing header, malformed header, unknown user, unconfigured
// token, or mismatch all reject; only the exact (user, token) pair passes.
type Guard struct {
	store userstore.Store
	log   *zap.Logger
}

// NewGuard creates a guard over the user store.
func NewGuard(store userstore.Store, log *zap.Logger) *Guard {
	return &Guard{store: store, log: log}
}

// Authenticate checks the X-User-ID and Authorization headers and returns
// the authenticated user's profile. Failures are *domain.AuthError (or the
// store's lookup error for unknown/broken users).
func (g *Guard) Authenticate(r *http.Request) (*domain.UserProfile, error) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return nil, &domain.AuthError{Reason: "X-User-ID header is required"}
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		g.log.Warn("request without authorization header", zap.String("user", userID))
		return nil, &domain.AuthError{Reason: "Authorization header is required"}
	}
	token, ok := ExtractBearer(header)
	if !ok {
		g.log.Warn("malformed authorization header", zap.String("user", userID))
		return nil, &domain.AuthError{Reason: "invalid Authorization header format, expected: Bearer <token>"}
	}

	profile, err := g.store.Get(userID)
	if err != nil {
		return nil, err
	}
	if profile.APIToken == "" {
		g.log.Warn("user has no api token configured", zap.String("user", userID))
		return nil, &domain.AuthError{Reason: "invalid API token", Forbidden: true}
	}
	if subtle.ConstantTimeCompare([]byte(profile.APIToken), []byte(token)) != 1 {
		g.log.Warn("api token mismatch", zap.String("user", userID))
		return nil, &domain.AuthError{Reason: "invalid API token", Forbidden: true}
	}
	return profile, nil
}

// ExtractBearer pulls the token out of an "Authorization: Bearer <token>"
// header value. The scheme match is case-insensitive.
func ExtractBearer(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// GenerateToken returns n cryptographically random bytes hex-encoded.
// Tokens are generated here and by the CLI; the request path never mints
// token material.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
