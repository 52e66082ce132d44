// Package auth resolves request principals from bearer tokens. The core
// services never authenticate; they receive the resolved principal
// explicitly.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/tablebook/internal/reservation/domain"
)

// Principal is the validated caller identity threaded into core calls.
// Contact carries the registered phone number used to match reservation
// holders.
type Principal struct {
	UserID  string
	Role    domain.Role
	Contact string
}

// Claims extends the registered claims with the role and contact the core
// operations need.
type Claims struct {
	Role    string `json:"role"`
	Contact string `json:"contact"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens for authenticated accounts.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  domain.Clock
}

// NewIssuer constructs a token issuer.
func NewIssuer(secret string, ttl time.Duration, clock domain.Clock) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Token issues a signed token for the account.
func (i *Issuer) Token(account domain.Account) (string, error) {
	now := i.clock.Now()
	claims := Claims{
		Role:    string(account.Role),
		Contact: account.PhoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Middleware validates bearer tokens and injects the principal into the
// request context. When roles are given, the principal's role must be one of
// them.
func Middleware(secret string, roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromHeader(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			principal := Principal{
				UserID:  claims.Subject,
				Role:    domain.Role(claims.Role),
				Contact: claims.Contact,
			}
			if len(allowed) > 0 {
				if _, ok := allowed[principal.Role]; !ok {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}
			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext retrieves the principal set by Middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(Principal)
	return principal, ok
}

type principalKey struct{}

func tokenFromHeader(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
