package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/platform/httpx"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// RouteGuard supplies the permission middleware protecting the assignment
// routes. resolver.Middleware satisfies it; the handler only depends on the
// guard shape, not on the resolver package.
type RouteGuard interface {
	RequireAny(codes ...string) func(http.Handler) http.Handler
	RequireAll(codes ...string) func(http.Handler) http.Handler
}

// Handler exposes the assignment API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	authz       RouteGuard
	idempotency *shared.IdempotencyStore
	validator   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz RouteGuard, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		authz:       authz,
		idempotency: idempotency,
		validator:   validator.New(),
	}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermAssignmentsView))
		r.Get("/roles/{roleID}/permissions", h.listPermissionsForRole)
		r.Get("/users/{userID}/roles", h.listRolesForUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(shared.PermAssignmentsEdit))
		r.Post("/role-permissions", h.assignPermissionToRole)
		r.Delete("/role-permissions/{rolePermissionID}", h.revokePermissionFromRole)
		r.Post("/user-roles", h.assignRoleToUser)
		r.Delete("/user-roles/{userRoleID}", h.revokeRoleFromUser)
	})
}

type rolePermissionResponse struct {
	ID           int64 `json:"id"`
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
}

type userRoleResponse struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
}

type assignPermissionRequest struct {
	RoleID       int64 `json:"role_id" validate:"required,gt=0"`
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
}

func (h *Handler) assignPermissionToRole(w http.ResponseWriter, r *http.Request) {
	if !h.checkIdempotency(w, r) {
		return
	}
	var req assignPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	rp, err := h.service.AssignPermissionToRole(r.Context(), req.RoleID, req.PermissionID)
	if err != nil {
		h.fail(w, "assign permission to role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rolePermissionResponse{ID: rp.ID, RoleID: rp.RoleID, PermissionID: rp.PermissionID})
}

func (h *Handler) revokePermissionFromRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "rolePermissionID")
	if !ok {
		return
	}
	if err := h.service.RevokePermissionFromRole(r.Context(), id); err != nil {
		h.fail(w, "revoke permission from role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) assignRoleToUser(w http.ResponseWriter, r *http.Request) {
	if !h.checkIdempotency(w, r) {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	ur, err := h.service.AssignRoleToUser(r.Context(), req.UserID, req.RoleID)
	if err != nil {
		h.fail(w, "assign role to user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, userRoleResponse{ID: ur.ID, UserID: ur.UserID, RoleID: ur.RoleID})
}

func (h *Handler) revokeRoleFromUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "userRoleID")
	if !ok {
		return
	}
	if err := h.service.RevokeRoleFromUser(r.Context(), id); err != nil {
		h.fail(w, "revoke role from user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type permissionItem struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ResourceID  *int64 `json:"resource_id,omitempty"`
}

func toPermissionItems(perms []catalog.Permission) []permissionItem {
	out := make([]permissionItem, 0, len(perms))
	for _, perm := range perms {
		out = append(out, permissionItem{ID: perm.ID, Code: perm.Code, Name: perm.Name, Description: perm.Description, ResourceID: perm.ResourceID})
	}
	return out
}

func (h *Handler) listPermissionsForRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	perms, err := h.service.ListPermissionsForRole(r.Context(), roleID)
	if err != nil {
		h.fail(w, "list permissions for role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionItems(perms))
}

type roleItem struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsSystem    bool   `json:"is_system"`
}

func (h *Handler) listRolesForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roles, err := h.service.ListRolesForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, "list roles for user", err)
		return
	}
	out := make([]roleItem, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleItem{ID: role.ID, Code: role.Code, Name: role.Name, Description: role.Description, IsSystem: role.IsSystem})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Request", "invalid "+param)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) checkIdempotency(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idempotency == nil {
		return true
	}
	if _, err := uuid.Parse(key); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Request", "idempotency key must be a UUID")
		return false
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, "ledger"); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
