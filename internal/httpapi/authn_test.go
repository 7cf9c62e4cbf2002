package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"driftregistry.org/internal/audit"
	"driftregistry.org/internal/authz"
)

// newSecuredAPI builds a server with a signing secret configured, so bearer
// tokens are enforced.
func newSecuredAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	store := authz.NewStore()
	if err := authz.SeedDefaults(context.Background(), store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sink := audit.NewMemorySink()
	svc := authz.NewService(store)
	api := New(svc, store, sink, ReadyProbe{}, "test")

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		store:   store,
		sink:    sink,
	}
}

func bearerFor(t *testing.T, subject string, roles []string) map[string]string {
	t.Helper()
	token, err := GenerateToken(subject, roles, 15*time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAuthnRequiredOnProtectedPaths(t *testing.T) {
	api := newSecuredAPI(t)

	resp := api.post("/v1/organizations", map[string]any{"name": "acme"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", resp.StatusCode)
	}

	resp = api.post("/v1/organizations", map[string]any{"name": "acme"},
		map[string]string{"Authorization": "Bearer garbage"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalid token status = %d", resp.StatusCode)
	}

	// Health stays public.
	resp = api.get("/healthz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestAdminRoleRequiredForMutations(t *testing.T) {
	api := newSecuredAPI(t)

	headers := bearerFor(t, "ops", []string{"viewer"})
	resp := api.post("/v1/organizations", map[string]any{"name": "acme"}, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d", resp.StatusCode)
	}

	headers = bearerFor(t, "ops", []string{"admin"})
	resp = api.post("/v1/organizations", map[string]any{"name": "acme"}, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin status = %d", resp.StatusCode)
	}
}

func TestAuthorizeEndpointNeedsOnlyAuthentication(t *testing.T) {
	api := newSecuredAPI(t)

	headers := bearerFor(t, "registry-frontend", []string{"service"})
	resp := api.post("/v1/authorize", map[string]any{
		"subject":       "nobody",
		"resource_type": "repository",
		"resource":      "acme/api",
		"action":        "pull",
	}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	dec := decode[authz.Decision](t, resp)
	if dec.Allow {
		t.Fatalf("unknown subject allowed")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken("ops", []string{"Admin", "admin", "Viewer"}, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ops" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles not deduplicated: %v", claims.Roles)
	}

	if _, err := ParseAndValidate("not-a-token"); err == nil {
		t.Fatalf("garbage token accepted")
	}
	if _, err := GenerateToken("", nil, time.Minute); err == nil {
		t.Fatalf("empty subject accepted")
	}
	if _, err := GenerateToken("ops", nil, 0); err == nil {
		t.Fatalf("zero ttl accepted")
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken(""); err == nil {
		t.Fatalf("empty header accepted")
	}
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatalf("wrong scheme accepted")
	}
	token, err := extractBearerToken("Bearer abc.def.ghi")
	if err != nil || token != "abc.def.ghi" {
		t.Fatalf("token = %q, err = %v", token, err)
	}
	if token, _ := extractBearerToken("bearer xyz"); token != "xyz" {
		t.Fatalf("scheme should be case-insensitive, got %q", token)
	}
}
