// auth.go protects the administrative endpoints (the registrations
// listing) with JWTs issued by an OIDC provider. Signatures are checked
// against the provider's JWKS; group membership or a service-account
// scope grants the admin role.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/feirinha/checkin-module/internal/api/errors"
)

type contextKey string

const (
	// ContextKeyClaims holds the *AuthClaims of an authenticated request.
	ContextKeyClaims contextKey = "jwt_claims"
)

// SubjectType tells users apart from service accounts.
type SubjectType string

const (
	SubjectTypeUser SubjectType = "user"
	SubjectTypeSA   SubjectType = "service_account"
)

// RoleAdmin is the only role the module knows about.
const RoleAdmin = "admin"

// AuthClaims are the claims extracted from a validated token.
type AuthClaims struct {
	Subject           string
	SubjectType       SubjectType
	PreferredUsername string
	Email             string

	// Roles come from realm_access.roles, Groups from the groups claim.
	Roles  []string
	Groups []string
	// EffectiveRole is RoleAdmin or "".
	EffectiveRole string

	// Scopes and ClientID are set for service accounts.
	Scopes   []string
	ClientID string
}

// IsAdmin reports whether the subject holds the admin role.
func (c *AuthClaims) IsAdmin() bool {
	return c.EffectiveRole == RoleAdmin
}

// HasScope reports whether scope was granted.
func (c *AuthClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

type oidcClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	Email             string       `json:"email"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
	Scope             string       `json:"scope,omitempty"`
	ClientID          string       `json:"client_id,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth validates bearer tokens against a JWKS.
type JWTAuth struct {
	jwks        keyfunc.Keyfunc
	logger      *slog.Logger
	adminGroups []string
	issuer      string
	leeway      time.Duration
}

// NewJWTAuth builds the middleware with keys fetched from jwksURL and
// refreshed in the background. The service starts even when the
// provider is not reachable yet.
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	adminGroups []string,
	clientTimeout time.Duration,
	refreshInterval time.Duration,
	leeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	httpClient := &http.Client{Timeout: clientTimeout}
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, clientTimeout)
		if err != nil {
			return nil, fmt.Errorf("load CA certificate %s: %w", caCertPath, err)
		}
		logger.Info("CA certificate added for JWKS requests",
			slog.String("ca_cert", caCertPath),
		)
	}

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("JWKS refresh failed",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}

	a := NewJWTAuthWithKeyfunc(k, issuer, adminGroups, logger)
	a.leeway = leeway
	return a, nil
}

// NewJWTAuthWithKeyfunc builds the middleware around a ready keyfunc.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, adminGroups []string, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:        kf,
		logger:      logger.With(slog.String("component", "jwt_auth")),
		adminGroups: adminGroups,
		issuer:      issuer,
	}
}

func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	pool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}, nil
}

// Middleware validates the bearer token (RS256) and stores the claims
// in the request context.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "missing Authorization header")
				return
			}

			scheme, tokenString, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") {
				apierrors.Unauthorized(w, "invalid Authorization header: expected Bearer <token>")
				return
			}
			if tokenString == "" {
				apierrors.Unauthorized(w, "empty bearer token")
				return
			}

			raw := &oidcClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.leeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT validation failed",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "invalid or expired token")
				return
			}

			if sub, err := raw.GetSubject(); err != nil || sub == "" {
				apierrors.Unauthorized(w, "token has no sub")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, j.buildAuthClaims(raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (j *JWTAuth) buildAuthClaims(raw *oidcClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
		Email:             raw.Email,
	}

	// Service accounts carry client_id and scope.
	if raw.ClientID != "" && raw.Scope != "" {
		claims.SubjectType = SubjectTypeSA
		claims.ClientID = raw.ClientID
		claims.Scopes = strings.Fields(raw.Scope)
		return claims
	}

	claims.SubjectType = SubjectTypeUser
	if raw.RealmAccess != nil {
		claims.Roles = raw.RealmAccess.Roles
	}
	claims.Groups = raw.Groups

	switch {
	case slices.ContainsFunc(claims.Groups, func(g string) bool { return slices.Contains(j.adminGroups, g) }):
		claims.EffectiveRole = RoleAdmin
	case slices.Contains(claims.Roles, RoleAdmin):
		claims.EffectiveRole = RoleAdmin
	}
	return claims
}

// RequireAdmin lets through admin users and service accounts holding one
// of scopes. It must run after JWTAuth.Middleware.
func RequireAdmin(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "no claims in request context")
				return
			}

			switch claims.SubjectType {
			case SubjectTypeUser:
				if claims.IsAdmin() {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.Forbidden(w, "admin role required")
			case SubjectTypeSA:
				if slices.ContainsFunc(scopes, claims.HasScope) {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.Forbidden(w, "scope required: "+strings.Join(scopes, " or "))
			default:
				apierrors.Forbidden(w, "unknown subject type")
			}
		})
	}
}

// ClaimsFromContext returns the claims of the request, or nil.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// JWKSReadinessChecker probes the identity provider's JWKS endpoint.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker creates the checker.
func NewJWKSReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*JWKSReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("load CA for readiness checker: %w", err)
		}
	}
	return &JWKSReadinessChecker{jwksURL: jwksURL, client: client}, nil
}

const statusFail = "fail"

// CheckReady fetches the JWKS and counts its keys.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "build request: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // URL comes from configuration
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS returned status %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: invalid JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: no keys"
	}
	return "ok", fmt.Sprintf("JWKS reachable, %d keys", len(jwksResp.Keys))
}
