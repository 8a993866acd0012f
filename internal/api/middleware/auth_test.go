package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID  = "test-key-cm"
	testIssuer = "https://idp.test/realms/feirinha"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, testIssuer, []string{"feirinha-admins"}, testLogger())
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func userClaims(sub string, groups []string, expired bool) jwt.MapClaims {
	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}
	c := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": "gerente",
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	if len(groups) > 0 {
		c["groups"] = groups
	}
	return c
}

// protected chains JWT validation and the admin check.
func protected(auth *JWTAuth) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return auth.Middleware()(RequireAdmin("checkin:read")(ok))
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/registrations", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth_AdminUser(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	var got *AuthClaims
	h := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := serve(h, signToken(t, key, userClaims("user-1", []string{"feirinha-admins"}, false)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil {
		t.Fatal("no claims in context")
	}
	if got.Subject != "user-1" || got.SubjectType != SubjectTypeUser {
		t.Errorf("claims = %+v", got)
	}
	if !got.IsAdmin() {
		t.Error("expected admin role from group membership")
	}
}

func TestJWTAuth_RejectsBadTokens(t *testing.T) {
	key := generateTestKey(t)
	other := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	h := protected(auth)

	wrongIssuer := userClaims("user-1", []string{"feirinha-admins"}, false)
	wrongIssuer["iss"] = "https://elsewhere.test"

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"expired", signToken(t, key, userClaims("user-1", []string{"feirinha-admins"}, true))},
		{"foreign key", signToken(t, other, userClaims("user-1", []string{"feirinha-admins"}, false))},
		{"wrong issuer", signToken(t, key, wrongIssuer)},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(h, tt.token); rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestJWTAuth_BasicSchemeRejected(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))
	req := httptest.NewRequest(http.MethodGet, "/registrations", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	protected(auth).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	key := generateTestKey(t)
	h := protected(newTestJWTAuth(t, key))

	realmAdmin := userClaims("user-2", nil, false)
	realmAdmin["realm_access"] = map[string]any{"roles": []string{"admin"}}

	sa := func(scope string) jwt.MapClaims {
		return jwt.MapClaims{
			"sub":       "sa-1",
			"client_id": "reports",
			"scope":     scope,
			"iss":       testIssuer,
			"exp":       jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	}

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   int
	}{
		{"admin group", userClaims("user-1", []string{"feirinha-admins"}, false), http.StatusOK},
		{"realm role", realmAdmin, http.StatusOK},
		{"plain user", userClaims("user-3", []string{"staff"}, false), http.StatusForbidden},
		{"service account with scope", sa("openid checkin:read"), http.StatusOK},
		{"service account without scope", sa("openid"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(h, signToken(t, key, tt.claims)); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAdmin_NoClaims(t *testing.T) {
	h := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	if rec := serve(h, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	jwks := buildJWKSetJSON(&key.PublicKey, testKeyID)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty":
			_, _ = w.Write([]byte(`{"keys":[]}`))
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write(jwks)
		}
	}))
	defer srv.Close()

	tests := []struct {
		path string
		want string
	}{
		{"/certs", "ok"},
		{"/empty", "degraded"},
		{"/down", "fail"},
	}
	for _, tt := range tests {
		c, err := NewJWKSReadinessChecker(srv.URL+tt.path, "", time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if status, msg := c.CheckReady(); status != tt.want {
			t.Errorf("%s: status = %q (%s), want %q", tt.path, status, msg, tt.want)
		}
	}
}
