/*
auth.go - Bearer token authentication

PURPOSE:
  Every /api route except /api/health requires an HS256 JWT carrying the
  user id and tenant id. The middleware resolves the token to the active
  directory user and stores it on the request context; handlers read it
  with currentUser and pass it to the services as the actor.

  Tokens are issued by the identity provider in production. IssueToken
  exists for the demo seed and tests.

SEE ALSO:
  - server.go: Where the middleware is mounted
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/recognition-engine/engine"
)

const tokenIssuer = "recognition-engine"

// Claims is the token payload.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the given user.
func IssueToken(secret, userID, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies the signature and expiry and returns the claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, errors.New("token is missing user or tenant")
	}
	return claims, nil
}

type ctxKey struct{}

// Authenticate resolves the bearer token to an active user.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		claims, err := ParseToken(strings.TrimSpace(raw), h.Secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", nil)
			return
		}
		user, err := h.Store.GetUser(r.Context(), claims.TenantID, claims.UserID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if user == nil || !user.IsActive {
			writeError(w, http.StatusUnauthorized, "Unknown or inactive user", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, *user)))
	})
}

// currentUser returns the authenticated actor. Only valid behind Authenticate.
func currentUser(r *http.Request) engine.User {
	u, _ := r.Context().Value(ctxKey{}).(engine.User)
	return u
}
