package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthJWT(t *testing.T) {
	const secret = "test-secret"
	valid, err := SignSession(secret, "user-1", time.Hour, SessionClaims{Locale: "es"})
	if err != nil {
		t.Fatalf("SignSession error: %v", err)
	}
	expired, _ := SignSession(secret, "user-1", -time.Minute, SessionClaims{})
	otherKey, _ := SignSession("other", "user-1", time.Hour, SessionClaims{})
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))

	tests := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{name: "valid", header: "Bearer " + valid, status: http.StatusOK},
		{name: "missing", status: http.StatusUnauthorized, msg: "missing authorization"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, msg: "invalid authorization"},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized, msg: "session expired"},
		{name: "bad signature", header: "Bearer " + otherKey, status: http.StatusUnauthorized, msg: "invalid session"},
		{name: "no subject", header: "Bearer " + noSub, status: http.StatusUnauthorized, msg: "invalid session"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotUser, gotLocale string
			h := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = UserIDFromContext(r.Context())
				gotLocale = LocaleFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/v1/videos", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusOK {
				if gotUser != "user-1" || gotLocale != "es" {
					t.Fatalf("context user=%q locale=%q", gotUser, gotLocale)
				}
				return
			}
			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
				Redirect string `json:"redirect"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error.Code != "unauthenticated" || body.Error.Message != tc.msg || body.Redirect != SignInPath {
				t.Fatalf("body = %+v", body)
			}
			if rec.Header().Get("Location") != SignInPath {
				t.Fatalf("Location = %q", rec.Header().Get("Location"))
			}
		})
	}
}
