package resolver

import (
	"context"
	"net/http"

	"log/slog"

	"github.com/hemmy-platform/hemmy-authz/internal/authz"
	"github.com/hemmy-platform/hemmy-authz/internal/guard"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// PermissionSource yields a user's effective permission set. Both Resolver
// and CachedResolver satisfy it.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]authz.Permission, error)
}

// Middleware guards HTTP routes with permission requirements. The service
// protects its own admin API with the same resolver it exposes to callers.
type Middleware struct {
	Source PermissionSource
	Logger *slog.Logger
}

// RequireAny ensures the current actor holds at least one of the required
// permission codes. The wildcard satisfies every requirement.
func (m Middleware) RequireAny(codes ...string) func(http.Handler) http.Handler {
	normalized := normalizeCodes(codes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.granted(w, r)
			if !ok {
				return
			}
			if hasAny(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current actor holds all required permission codes.
func (m Middleware) RequireAll(codes ...string) func(http.Handler) http.Handler {
	normalized := normalizeCodes(codes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.granted(w, r)
			if !ok {
				return
			}
			if hasAll(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func (m Middleware) granted(w http.ResponseWriter, r *http.Request) ([]authz.Permission, bool) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return nil, false
	}
	perms, err := m.Source.EffectivePermissions(r.Context(), actorID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("resolve actor permissions", slog.Any("error", err))
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return perms, true
}

func normalizeCodes(codes []string) []string {
	unique := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = foldCase(code)
		if code == "" {
			continue
		}
		unique[code] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for code := range unique {
		normalized = append(normalized, code)
	}
	return normalized
}

func codeSet(granted []authz.Permission) (map[string]struct{}, bool) {
	set := make(map[string]struct{}, len(granted))
	for _, perm := range granted {
		if guard.IsWildcardPermission(perm) {
			return nil, true
		}
		set[foldCase(perm.Code)] = struct{}{}
	}
	return set, false
}

func hasAny(granted []authz.Permission, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set, wildcard := codeSet(granted)
	if wildcard {
		return true
	}
	for _, code := range required {
		if _, ok := set[code]; ok {
			return true
		}
	}
	return false
}

func hasAll(granted []authz.Permission, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set, wildcard := codeSet(granted)
	if wildcard {
		return true
	}
	for _, code := range required {
		if _, ok := set[code]; !ok {
			return false
		}
	}
	return true
}
