// Package auth issues and verifies session tokens and resolves them to
// application users.
package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/keywordpilot/backend/internal/models"
	"github.com/keywordpilot/backend/internal/store"
)

// DefaultSessionTTL is how long an issued session token stays valid.
const DefaultSessionTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("auth: invalid session token")

// UserStore is the user lookup the middleware needs.
type UserStore interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
}

type contextKey int

const userKey contextKey = iota

// Sessions verifies HMAC-signed session tokens and attaches the matching
// user to the request context.
type Sessions struct {
	secret []byte
	users  UserStore
}

func NewSessions(secret string, users UserStore) *Sessions {
	return &Sessions{secret: []byte(secret), users: users}
}

// IssueToken mints a session token for an external identity.
func (s *Sessions) IssueToken(externalID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   externalID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// parseToken validates the signature and expiry and returns the subject.
func (s *Sessions) parseToken(tokenString string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.NewValidationError("unexpected signing method", jwt.ValidationErrorSignatureInvalid)
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// resolveRequest extracts the bearer token and looks up the user. Returns
// nil with no error when the request carries no token at all.
func (s *Sessions) resolveRequest(r *http.Request) (*models.User, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, nil
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, ErrInvalidToken
	}
	externalID, err := s.parseToken(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByExternalID(r.Context(), externalID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// Require rejects requests without a valid session. Used on endpoints
// where an anonymous caller has nothing meaningful to see.
func (s *Sessions) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); ok {
			// Already resolved by an outer Optional middleware.
			next.ServeHTTP(w, r)
			return
		}
		user, err := s.resolveRequest(r)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) {
				log.Printf("Auth: resolve session: %v", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			http.Error(w, "Authorization header missing or invalid", http.StatusUnauthorized)
			return
		}
		if user == nil {
			http.Error(w, "Authorization header missing or invalid", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Optional attaches the user when a valid session is present and passes
// the request through otherwise. Feature endpoints use this: an anonymous
// caller still reaches the permission check, which denies with a reason
// the client can render.
func (s *Sessions) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.resolveRequest(r)
		if err != nil || user == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

// UserIDFromContext returns the authenticated user's id, or 0 for
// anonymous requests.
func UserIDFromContext(ctx context.Context) int64 {
	if user, ok := UserFromContext(ctx); ok {
		return user.ID
	}
	return 0
}
