package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"inventory-ledger/internal/core"
)

type sessionKey struct{}

// sessionFromContext returns the session stored by RequireAuth, or nil.
func sessionFromContext(ctx context.Context) *core.Session {
	v, _ := ctx.Value(sessionKey{}).(*core.Session)
	return v
}

// Claims is the bearer token payload issued by the authentication service.
type Claims struct {
	UserID      int    `json:"user_id"`
	CompanyID   int    `json:"company_id"`
	WarehouseID *int   `json:"warehouse_id,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for c, valid for ttl. Used by tooling and tests;
// in production tokens come from the authentication service.
func SignToken(secret string, c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func (h *Handler) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID <= 0 || claims.CompanyID <= 0 {
		return nil, fmt.Errorf("token missing user or company")
	}
	return claims, nil
}

// RequireAuth validates the Authorization: Bearer token and injects the caller's
// core.Session into the request context. Returns 401 if the token is absent or invalid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		claims, err := h.parseToken(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, "invalid or expired token", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, &core.Session{
			ActorID:     claims.UserID,
			CompanyID:   claims.CompanyID,
			WarehouseID: claims.WarehouseID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
