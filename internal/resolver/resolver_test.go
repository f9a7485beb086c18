package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

type stubLedger struct {
	rolesByUser map[int64][]catalog.Role
	permsByRole map[int64][]catalog.Permission
	rolesErr    error
	permsErr    error

	permListCalls int
}

func (s *stubLedger) ListRolesForUser(ctx context.Context, userID int64) ([]catalog.Role, error) {
	if s.rolesErr != nil {
		return nil, s.rolesErr
	}
	return s.rolesByUser[userID], nil
}

func (s *stubLedger) ListPermissionsForRole(ctx context.Context, roleID int64) ([]catalog.Permission, error) {
	s.permListCalls++
	if s.permsErr != nil {
		return nil, s.permsErr
	}
	return s.permsByRole[roleID], nil
}

var (
	permRead  = catalog.Permission{ID: 1, Code: "reports:read"}
	permWrite = catalog.Permission{ID: 2, Code: "reports:write"}
	permBill  = catalog.Permission{ID: 3, Code: "billing:read"}
	permStar  = catalog.Permission{ID: 4, Code: "*"}
)

func TestEffectivePermissionsUnionsRoles(t *testing.T) {
	ledger := &stubLedger{
		rolesByUser: map[int64][]catalog.Role{
			7: {{ID: 1, Code: "VIEWER"}, {ID: 2, Code: "BILLING"}},
		},
		permsByRole: map[int64][]catalog.Permission{
			1: {permRead, permWrite},
			2: {permRead, permBill},
		},
	}
	r := New(ledger, nil)

	perms, err := r.EffectivePermissions(context.Background(), 7)
	require.NoError(t, err)
	// permRead appears in both roles; the result carries it once, in first
	// appearance order.
	assert.Equal(t, []catalog.Permission{permRead, permWrite, permBill}, perms)
}

func TestEffectivePermissionsNoRoles(t *testing.T) {
	ledger := &stubLedger{rolesByUser: map[int64][]catalog.Role{}}
	r := New(ledger, nil)

	perms, err := r.EffectivePermissions(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, perms)
	assert.Zero(t, ledger.permListCalls)
}

func TestEffectivePermissionsPropagatesErrors(t *testing.T) {
	boom := errors.New("ledger unavailable")
	r := New(&stubLedger{rolesErr: boom}, nil)
	_, err := r.EffectivePermissions(context.Background(), 7)
	assert.ErrorIs(t, err, boom)

	r = New(&stubLedger{
		rolesByUser: map[int64][]catalog.Role{7: {{ID: 1}}},
		permsErr:    boom,
	}, nil)
	_, err = r.EffectivePermissions(context.Background(), 7)
	assert.ErrorIs(t, err, boom)
}

func TestCanPerformWildcardShortCircuits(t *testing.T) {
	ledger := &stubLedger{
		rolesByUser: map[int64][]catalog.Role{7: {{ID: 1, Code: "SUPERADMIN"}}},
		permsByRole: map[int64][]catalog.Permission{1: {permStar}},
	}
	// A matcher that rejects everything proves the wildcard path never
	// consults it.
	r := New(ledger, func(catalog.Permission, string, string) bool { return false })

	ok, err := r.CanPerform(context.Background(), 7, "purge", "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanPerformUsesMatcher(t *testing.T) {
	ledger := &stubLedger{
		rolesByUser: map[int64][]catalog.Role{7: {{ID: 1, Code: "VIEWER"}}},
		permsByRole: map[int64][]catalog.Permission{1: {permRead}},
	}
	r := New(ledger, nil)

	ok, err := r.CanPerform(context.Background(), 7, "read", "reports")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanPerform(context.Background(), 7, "write", "reports")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.CanPerform(context.Background(), 7, "read", "billing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultMatcher(t *testing.T) {
	cases := []struct {
		name    string
		code    string
		action  string
		subject string
		want    bool
	}{
		{"exact", "reports:read", "read", "reports", true},
		{"action mismatch", "reports:read", "write", "reports", false},
		{"subject mismatch", "reports:read", "read", "billing", false},
		{"subject wildcard action", "reports:*", "export", "reports", true},
		{"case folded", "Reports:Read", "read", "REPORTS", true},
		{"bare wildcard does not match here", "*", "read", "reports", false},
		{"no separator", "reports", "read", "reports", false},
		{"prefix only", "reports:read", "read", "rep", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DefaultMatcher(catalog.Permission{Code: tc.code}, tc.action, tc.subject)
			assert.Equal(t, tc.want, got)
		})
	}
}

// Case folding happens on every request goroutine, both in DefaultMatcher and
// in the route-guard code sets, so it must hold up under parallel callers.
func TestCaseFoldingIsConcurrencySafe(t *testing.T) {
	source := &stubSource{perms: map[int64][]catalog.Permission{
		7: {{ID: 1, Code: "Roles:Read"}},
	}}
	guard := Middleware{Source: source}.RequireAny("roles:read")

	var wrong atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if !DefaultMatcher(permRead, "READ", "Reports") {
					wrong.Add(1)
				}
				if DefaultMatcher(permBill, "read", "reports") {
					wrong.Add(1)
				}
				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				req = req.WithContext(shared.ContextWithActor(req.Context(), 7))
				rec := httptest.NewRecorder()
				guard(okHandler()).ServeHTTP(rec, req)
				if rec.Code != http.StatusOK {
					wrong.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, wrong.Load())
}
