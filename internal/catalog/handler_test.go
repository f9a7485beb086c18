package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemmy-platform/hemmy-authz/internal/resolver"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

type actorPermissions map[int64][]Permission

func (a actorPermissions) EffectivePermissions(ctx context.Context, userID int64) ([]Permission, error) {
	return a[userID], nil
}

const (
	adminActor  = int64(900)
	viewerActor = int64(901)
)

func newActorServer(t *testing.T, repo *mockRepository, actorID int64) *httptest.Server {
	t.Helper()
	source := actorPermissions{
		adminActor:  {{ID: 1000, Code: "*"}},
		viewerActor: {{ID: 1001, Code: shared.PermRolesView}},
	}
	authz := resolver.Middleware{Source: source}
	handler := NewHandler(nil, NewService(repo, nil, nil), authz, nil)

	r := chi.NewRouter()
	if actorID > 0 {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actorID)))
			})
		})
	}
	r.Route("/api/v1", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCreateRoleEndpoint(t *testing.T) {
	repo := newMockRepository()
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/roles", `{"code":"EDITOR","name":"Editor"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out roleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "EDITOR", out.Code)
	assert.False(t, out.IsSystem)

	resp = doJSON(t, srv, http.MethodPost, "/api/v1/roles", `{"code":"EDITOR","name":"Again"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateRoleEndpointValidatesBody(t *testing.T) {
	repo := newMockRepository()
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/roles", `{"name":"No code"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/api/v1/roles", `{broken`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateProtectedRoleEndpointForbidden(t *testing.T) {
	repo := newMockRepository()
	repo.roles[1] = Role{ID: 1, Code: "SUPERADMIN", Name: "Super Administrator", IsSystem: true}
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPatch, "/api/v1/roles/1", `{"name":"Renamed"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodDelete, "/api/v1/roles/1", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUpdateRoleCodeEndpointInvalid(t *testing.T) {
	repo := newMockRepository()
	repo.roles[1] = Role{ID: 1, Code: "EDITOR", Name: "Editor"}
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPatch, "/api/v1/roles/1", `{"code":"WRITER"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetRoleEndpoint(t *testing.T) {
	repo := newMockRepository()
	repo.roles[1] = Role{ID: 1, Code: "EDITOR", Name: "Editor"}
	srv := newActorServer(t, repo, viewerActor)

	resp := doJSON(t, srv, http.MethodGet, "/api/v1/roles/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/roles/99", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/roles/abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCreateWildcardPermissionEndpointForbidden(t *testing.T) {
	repo := newMockRepository()
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/permissions", `{"code":"*","name":"Everything"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestViewerCannotMutate(t *testing.T) {
	repo := newMockRepository()
	srv := newActorServer(t, repo, viewerActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/roles", `{"code":"OPS","name":"Operations"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAnonymousIsRejected(t *testing.T) {
	repo := newMockRepository()
	srv := newActorServer(t, repo, 0)

	resp := doJSON(t, srv, http.MethodGet, "/api/v1/roles", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteResourceEndpointDetachesPermissions(t *testing.T) {
	repo := newMockRepository()
	resourceID := int64(1)
	repo.resources[1] = Resource{ID: 1, RouteCode: "reports", Name: "Reports"}
	repo.permissions[7] = Permission{ID: 7, Code: "reports:read", Name: "View reports", ResourceID: &resourceID}
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodDelete, "/api/v1/resources/1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/permissions/7", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var perm permissionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&perm))
	assert.Nil(t, perm.ResourceID)
}
