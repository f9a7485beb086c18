package ledger

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

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/resolver"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

type actorPermissions map[int64][]catalog.Permission

func (a actorPermissions) EffectivePermissions(ctx context.Context, userID int64) ([]catalog.Permission, error) {
	return a[userID], nil
}

const (
	adminActor  = int64(900)
	viewerActor = int64(901)
)

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

// newActorServer mounts the handler behind a middleware that injects the
// actor the way the app layer does after authentication.
func newActorServer(t *testing.T, repo *mockRepository, actorID int64) *httptest.Server {
	t.Helper()
	source := actorPermissions{
		adminActor:  {{ID: 1000, Code: "*"}},
		viewerActor: {{ID: 1001, Code: shared.PermAssignmentsView}},
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

func TestAssignPermissionEndpoint(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/role-permissions", `{"role_id":2,"permission_id":11}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out rolePermissionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(2), out.RoleID)
	assert.Equal(t, int64(11), out.PermissionID)
}

func TestAssignPermissionEndpointConflict(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	repo.rolePermissions[50] = RolePermission{ID: 50, RoleID: 2, PermissionID: 11}
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/role-permissions", `{"role_id":2,"permission_id":11}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAssignWildcardEndpointForbidden(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/role-permissions", `{"role_id":2,"permission_id":10}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAssignPermissionEndpointUnknownRole(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/role-permissions", `{"role_id":99,"permission_id":11}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAssignPermissionEndpointValidatesBody(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/role-permissions", `{"role_id":0,"permission_id":11}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRevokePermissionEndpoint(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	repo.rolePermissions[50] = RolePermission{ID: 50, RoleID: 2, PermissionID: 11}
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodDelete, "/api/v1/role-permissions/50", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodDelete, "/api/v1/role-permissions/50", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAssignRoleEndpoint(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	srv := newActorServer(t, repo, adminActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/user-roles", `{"user_id":101,"role_id":2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/api/v1/user-roles", `{"user_id":101,"role_id":2}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWriteEndpointsRequireEditPermission(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	srv := newActorServer(t, repo, viewerActor)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/user-roles", `{"user_id":101,"role_id":2}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReadEndpointsAllowViewer(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	repo.userRoles[60] = UserRole{ID: 60, UserID: 101, RoleID: 2}
	srv := newActorServer(t, repo, viewerActor)

	resp := doJSON(t, srv, http.MethodGet, "/api/v1/users/101/roles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var roles []roleItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roles))
	require.Len(t, roles, 1)
	assert.Equal(t, "EDITOR", roles[0].Code)
}

func TestEndpointsRejectAnonymous(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	srv := newActorServer(t, repo, 0)

	resp := doJSON(t, srv, http.MethodGet, "/api/v1/users/101/roles", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
