// Package hostctx carries the component context (the selected agent and
// asset) from the host to the functions server as a signed JWT.
package hostctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fruitsalade/docconnector/internal/protocol"
)

type contextKey string

const claimsContextKey contextKey = "component_context"

// ErrMissingToken is returned when a request carries no context token.
var ErrMissingToken = errors.New("missing component context token")

// Resource is an agent or asset as the host describes it.
type Resource struct {
	ID               string            `json:"id,omitempty"`
	Name             string            `json:"name"`
	CustomProperties map[string]string `json:"custom_properties,omitempty"`
}

// Claims is the payload of a component context token.
type Claims struct {
	Agent *Resource `json:"agent,omitempty"`
	Asset *Resource `json:"asset,omitempty"`
	jwt.RegisteredClaims
}

// Lookup returns the resource for a selector ("Agent" or "Asset").
func (c *Claims) Lookup(selector string) *Resource {
	switch selector {
	case protocol.SelectorAgent:
		return c.Agent
	case protocol.SelectorAsset:
		return c.Asset
	}
	return nil
}

// AgentOrAsset returns the asset when one is selected, else the agent.
func (c *Claims) AgentOrAsset() *Resource {
	if c.Asset != nil {
		return c.Asset
	}
	return c.Agent
}

// Signer mints and verifies HS256 context tokens.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer using a shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Mint signs a token for the given agent and asset. A zero ttl mints a
// token without expiry.
func (s *Signer) Mint(agent, asset *Resource, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Agent: agent,
		Asset: asset,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "docconnector-host",
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign context token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a context token.
func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify context token: %w", err)
	}
	return claims, nil
}

// Middleware rejects requests without a valid context token and stores the
// verified claims in the request context.
func (s *Signer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.Verify(extractToken(r))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{
				Error: err.Error(),
				Code:  http.StatusUnauthorized,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), claims)))
	})
}

// NewContext returns a context carrying claims.
func NewContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// FromContext returns the claims stored by Middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
