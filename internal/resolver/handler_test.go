package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

type capabilityStub struct {
	perms map[int64][]catalog.Permission
	allow map[string]bool
}

func (s *capabilityStub) EffectivePermissions(ctx context.Context, userID int64) ([]catalog.Permission, error) {
	return s.perms[userID], nil
}

func (s *capabilityStub) CanPerform(ctx context.Context, userID int64, action, subject string) (bool, error) {
	return s.allow[subject+":"+action], nil
}

func newCapabilityServer(t *testing.T, stub *capabilityStub, observe DecisionObserver) *httptest.Server {
	t.Helper()
	if stub.perms == nil {
		stub.perms = map[int64][]catalog.Permission{}
	}
	// The querying actor holds the wildcard so the route guard passes.
	stub.perms[999] = []catalog.Permission{{ID: 1, Code: "*"}}
	handler := NewHandler(nil, stub, Middleware{Source: stub}, observe)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), 999)))
		})
	})
	r.Route("/api/v1", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestEffectivePermissionsEndpointCarriesFullEntity(t *testing.T) {
	resourceID := int64(3)
	stub := &capabilityStub{perms: map[int64][]catalog.Permission{
		5: {{ID: 11, Code: "reports:read", Name: "View reports", Description: "Read access to report pages", ResourceID: &resourceID}},
	}}
	srv := newCapabilityServer(t, stub, nil)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/users/5/permissions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []struct {
		ID          int64  `json:"id"`
		Code        string `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description"`
		ResourceID  *int64 `json:"resource_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "reports:read", out[0].Code)
	assert.Equal(t, "Read access to report pages", out[0].Description)
	require.NotNil(t, out[0].ResourceID)
	assert.Equal(t, resourceID, *out[0].ResourceID)
}

func TestCanPerformEndpoint(t *testing.T) {
	stub := &capabilityStub{allow: map[string]bool{"reports:read": true}}
	var observed []bool
	srv := newCapabilityServer(t, stub, func(allowed bool) { observed = append(observed, allowed) })

	resp, err := srv.Client().Get(srv.URL + "/api/v1/users/5/can?action=read&subject=reports")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out canResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Allowed)

	resp, err = srv.Client().Get(srv.URL + "/api/v1/users/5/can?action=write&subject=reports")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []bool{true, false}, observed)
}

func TestCanPerformEndpointRequiresQueryParams(t *testing.T) {
	srv := newCapabilityServer(t, &capabilityStub{}, nil)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/users/5/can?action=read")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/api/v1/users/abc/can?action=read&subject=reports")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
