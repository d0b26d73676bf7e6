package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

type contextKey string

const (
	authMethodContextKey  contextKey = "auth_method"
	authSubjectContextKey contextKey = "auth_subject"
)

func getAuthMethodFromContext(ctx context.Context) string {
	method, _ := ctx.Value(authMethodContextKey).(string)
	return method
}

func getAuthSubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(authSubjectContextKey).(string)
	return subject
}

const stateTTL = 10 * time.Minute

// AuthMiddleware validates bearer tokens on the HTTP transports. With
// an OIDC issuer configured it verifies ID tokens against the issuer's
// keys and serves the OAuth2 code flow on /callback; otherwise it
// accepts HS256 JWTs signed with the shared secret. Stdio mode never
// passes through here.
type AuthMiddleware struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	sharedSecret []byte
	logger       *log.Logger

	stateMutex    sync.Mutex
	pendingStates map[string]time.Time
}

// NewAuthMiddleware builds the middleware from config. OIDC discovery
// runs here, so an unreachable issuer fails server startup.
func NewAuthMiddleware(ctx context.Context, cfg *types.Config) (*AuthMiddleware, error) {
	m := &AuthMiddleware{
		logger:        log.New(os.Stdout, "[auth] ", log.LstdFlags),
		pendingStates: make(map[string]time.Time),
	}

	if cfg.OIDCIssuer != "" {
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover OIDC issuer %s: %w", cfg.OIDCIssuer, err)
		}
		m.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
		m.oauth2Config = &oauth2.Config{
			ClientID:    cfg.OIDCClientID,
			Endpoint:    provider.Endpoint(),
			RedirectURL: fmt.Sprintf("http://%s:%d/callback", cfg.MCPServerHost, cfg.MCPServerPort),
			Scopes:      []string{oidc.ScopeOpenID, "profile", "email"},
		}
		m.logger.Printf("OIDC verification enabled issuer=%s", cfg.OIDCIssuer)
		return m, nil
	}

	if cfg.MCPAuthSharedSecret == "" {
		return nil, fmt.Errorf("auth enabled but neither OIDC_ISSUER nor MCP_AUTH_SHARED_SECRET is set")
	}
	m.sharedSecret = []byte(cfg.MCPAuthSharedSecret)
	m.logger.Printf("shared secret verification enabled")
	return m, nil
}

// Mode names the active verification mode.
func (m *AuthMiddleware) Mode() string {
	if m.verifier != nil {
		return "oidc"
	}
	return "shared_secret"
}

// Middleware enforces bearer auth on everything except the health
// check and the OAuth2 callback.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/callback" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			m.sendAuthenticationRequired(w, r)
			return
		}

		subject, err := m.validateToken(r.Context(), token)
		if err != nil {
			m.logger.Printf("token rejected: %v", err)
			m.sendAuthenticationRequired(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), authMethodContextKey, m.Mode())
		ctx = context.WithValue(ctx, authSubjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken pulls the token from the Authorization header,
// falling back to the token query parameter for SSE clients that
// cannot set headers.
func extractBearerToken(r *http.Request) string {
	const bearerPrefix = "Bearer "
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, bearerPrefix) {
		return authHeader[len(bearerPrefix):]
	}
	return r.URL.Query().Get("token")
}

// validateToken verifies the token in the active mode and returns the
// token subject.
func (m *AuthMiddleware) validateToken(ctx context.Context, token string) (string, error) {
	if m.verifier != nil {
		idToken, err := m.verifier.Verify(ctx, token)
		if err != nil {
			return "", fmt.Errorf("failed to verify ID token: %w", err)
		}
		return idToken.Subject, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.sharedSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse JWT: %w", err)
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("failed to extract subject: %w", err)
	}
	return subject, nil
}

// sendAuthenticationRequired answers 401 with a JSON-RPC error. In
// OIDC mode the error data carries a ready-to-open auth URL.
func (m *AuthMiddleware) sendAuthenticationRequired(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	errorData := map[string]interface{}{}
	if m.oauth2Config != nil {
		errorData["auth_url"] = m.configForRequest(r).AuthCodeURL(m.registerState(), oauth2.AccessTypeOffline)
	}
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    -32001,
			"message": "Authentication required",
			"data":    errorData,
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		m.logger.Printf("failed to encode auth response: %v", err)
	}
}

// HandleCallback finishes the OAuth2 code flow: exchange the code,
// verify the ID token, and show it to the user for client setup.
func (m *AuthMiddleware) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if m.oauth2Config == nil {
		http.Error(w, "OAuth2 callback not configured", http.StatusNotFound)
		return
	}

	state := r.URL.Query().Get("state")
	if !m.consumeState(state) {
		http.Error(w, "Invalid or expired state", http.StatusBadRequest)
		return
	}
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, fmt.Sprintf("Authentication failed: %s", errMsg), http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "No authorization code", http.StatusBadRequest)
		return
	}

	token, err := m.configForRequest(r).Exchange(r.Context(), code)
	if err != nil {
		m.logger.Printf("code exchange failed: %v", err)
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "No ID token in response", http.StatusInternalServerError)
		return
	}
	if _, err := m.verifier.Verify(r.Context(), rawIDToken); err != nil {
		m.logger.Printf("ID token verification failed: %v", err)
		http.Error(w, "Token verification failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><meta charset="utf-8" /><title>Authentication Successful</title></head>
<body>
    <h1>Authentication Successful</h1>
    <p>Configure your MCP client with the following header:</p>
    <pre><code>Authorization: Bearer %s</code></pre>
    <p>This token is sensitive. Do not share it with anyone.</p>
</body>
</html>
`, rawIDToken); err != nil {
		m.logger.Printf("failed to write callback response: %v", err)
	}
}

// configForRequest copies the OAuth2 config with the redirect URL
// rebound to the host the client actually reached, so the callback
// matches the auth request behind proxies.
func (m *AuthMiddleware) configForRequest(r *http.Request) *oauth2.Config {
	cfg := *m.oauth2Config
	cfg.RedirectURL = fmt.Sprintf("%s://%s/callback", requestScheme(r), requestHost(r))
	return &cfg
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func requestHost(r *http.Request) string {
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		return host
	}
	return r.Host
}

// registerState creates a CSRF state for one auth URL and prunes
// expired entries.
func (m *AuthMiddleware) registerState() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		m.logger.Printf("failed to generate random state: %v", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	cutoff := time.Now().Add(-stateTTL)
	for s, created := range m.pendingStates {
		if created.Before(cutoff) {
			delete(m.pendingStates, s)
		}
	}
	m.pendingStates[state] = time.Now()
	return state
}

// consumeState validates and removes a pending state.
func (m *AuthMiddleware) consumeState(state string) bool {
	if state == "" {
		return false
	}
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	created, ok := m.pendingStates[state]
	if !ok {
		return false
	}
	delete(m.pendingStates, state)
	return time.Since(created) <= stateTTL
}
