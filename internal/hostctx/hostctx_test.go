package hostctx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fruitsalade/docconnector/internal/protocol"
)

func TestMintVerify(t *testing.T) {
	s := NewSigner("secret")
	agent := &Resource{ID: "a1", Name: "Gateway 12"}
	asset := &Resource{Name: "Press 4", CustomProperties: map[string]string{"serial": "P-0042"}}

	token, err := s.Mint(agent, asset, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Lookup(protocol.SelectorAgent).Name != "Gateway 12" {
		t.Errorf("unexpected agent %+v", claims.Agent)
	}
	if got := claims.AgentOrAsset().CustomProperties["serial"]; got != "P-0042" {
		t.Errorf("expected asset serial P-0042, got %q", got)
	}
	if claims.Lookup("Device") != nil {
		t.Error("unknown selector should resolve to nil")
	}
}

func TestAgentOrAssetFallsBackToAgent(t *testing.T) {
	c := &Claims{Agent: &Resource{Name: "Gateway"}}
	if c.AgentOrAsset().Name != "Gateway" {
		t.Errorf("expected agent fallback, got %+v", c.AgentOrAsset())
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewSigner("one").Mint(&Resource{Name: "x"}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewSigner("two").Verify(token); err == nil {
		t.Fatal("expected verification failure with a different secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	claims := Claims{
		Agent: &Resource{Name: "x"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewSigner("secret").Verify(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestMintWithoutTTLHasNoExpiry(t *testing.T) {
	s := NewSigner("secret")
	token, err := s.Mint(&Resource{Name: "x"}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Errorf("expected no expiry, got %v", claims.ExpiresAt)
	}
}

func TestVerifyEmpty(t *testing.T) {
	if _, err := NewSigner("secret").Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	s := NewSigner("secret")
	var seen *Claims
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/functions/get_files", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, _ := s.Mint(&Resource{Name: "Gateway"}, nil, time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/functions/get_files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if seen == nil || seen.Agent.Name != "Gateway" {
		t.Errorf("claims not propagated: %+v", seen)
	}
}
