package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignInPath is where unauthenticated clients are sent.
const SignInPath = "/auth?mode=login"

// SessionClaims are the claims carried by a signed-in user's session token.
type SessionClaims struct {
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

type userKey string

const (
	userIDKey userKey = "user_id"
)

// SignSession issues an HS256 session token for userID valid for ttl.
func SignSession(secret, userID string, ttl time.Duration, extra SessionClaims) (string, error) {
	now := time.Now()
	claims := extra
	claims.Subject = userID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifySession parses token, checks the HS256 signature and expiry, and
// requires a subject.
func VerifySession(secret, token string) (*SessionClaims, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return &claims, nil
}

// AuthJWT rejects requests without a valid bearer session with 401 and a
// redirect hint to the sign-in page.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthenticated(w, "missing authorization")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthenticated(w, "invalid authorization")
				return
			}
			claims, err := VerifySession(secret, strings.TrimSpace(parts[1]))
			if err != nil {
				msg := "invalid session"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "session expired"
				}
				unauthenticated(w, msg)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			if claims.Locale != "" {
				ctx = context.WithValue(ctx, LocaleKey, claims.Locale)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthenticated(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", SignInPath)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    map[string]string{"code": "unauthenticated", "message": msg},
		"redirect": SignInPath,
	})
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}
