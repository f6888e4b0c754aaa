package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/auth"
	"github.com/barberflow/barberflow/libs/httpx"
)

// identityHeaders are set by the gateway only; client copies are dropped.
var identityHeaders = []string{"X-User-Id", "X-Tenant-Id", "X-Tenant-Slug", "X-Role"}

type tokenVerifier struct {
	secret string
	jwks   *auth.JWKSClient
}

func newTokenVerifier(secret, jwksURL string, jwksTTL time.Duration) *tokenVerifier {
	v := &tokenVerifier{secret: secret}
	if jwksURL != "" {
		v.jwks = auth.NewJWKSClient(jwksURL, jwksTTL)
	}
	return v
}

// Verify accepts RS256 tokens with a kid known to the JWKS endpoint and falls
// back to HS256.
func (v *tokenVerifier) Verify(token string) (*auth.Claims, error) {
	if v.jwks != nil {
		header, err := auth.ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := v.jwks.Get(header.Kid)
			if err != nil {
				return nil, auth.ErrInvalidToken
			}
			return auth.VerifyRS256(token, pub)
		}
	}
	return auth.ParseAndVerifyHS256(token, v.secret)
}

// requestToken reads the Bearer header. Browsers cannot set headers on a
// websocket handshake, so upgrades may pass access_token in the query.
func requestToken(r *http.Request) string {
	if token := httpx.BearerToken(r); token != "" {
		return token
	}
	if httpx.IsWebSocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	return ""
}

func requireAuth(next http.Handler, verifier *tokenVerifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range identityHeaders {
			r.Header.Del(h)
		}

		token := requestToken(r)
		if token == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if r.URL.Query().Has("access_token") {
			q := r.URL.Query()
			q.Del("access_token")
			r.URL.RawQuery = q.Encode()
		}
		r.Header.Set("X-User-Id", claims.Sub)
		r.Header.Set("X-Role", claims.Role)
		if claims.TenantID != "" {
			r.Header.Set("X-Tenant-Id", claims.TenantID)
			r.Header.Set("X-Tenant-Slug", claims.Slug)
		}
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Role")
		if _, ok := allowed[role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
