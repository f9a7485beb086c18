package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hemmy-platform/hemmy-authz/internal/platform/httpx"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// RouteGuard supplies the permission middleware protecting the catalog
// routes. resolver.Middleware satisfies it; the handler only depends on the
// guard shape, not on the resolver package.
type RouteGuard interface {
	RequireAny(codes ...string) func(http.Handler) http.Handler
	RequireAll(codes ...string) func(http.Handler) http.Handler
}

// Handler exposes the catalog CRUD API.
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

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermRolesView))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(shared.PermRolesEdit))
		r.Post("/roles", h.createRole)
		r.Patch("/roles/{roleID}", h.updateRole)
		r.Delete("/roles/{roleID}", h.deleteRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermPermissionsView))
		r.Get("/permissions", h.listPermissions)
		r.Get("/permissions/{permissionID}", h.getPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(shared.PermPermissionsEdit))
		r.Post("/permissions", h.createPermission)
		r.Patch("/permissions/{permissionID}", h.updatePermission)
		r.Delete("/permissions/{permissionID}", h.deletePermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermResourcesView))
		r.Get("/resources", h.listResources)
		r.Get("/resources/{resourceID}", h.getResource)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(shared.PermResourcesEdit))
		r.Post("/resources", h.createResource)
		r.Patch("/resources/{resourceID}", h.updateResource)
		r.Delete("/resources/{resourceID}", h.deleteResource)
	})
}

type roleResponse struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsSystem    bool   `json:"is_system"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{ID: role.ID, Code: role.Code, Name: role.Name, Description: role.Description, IsSystem: role.IsSystem}
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ResourceID  *int64 `json:"resource_id,omitempty"`
}

func toPermissionResponse(perm Permission) permissionResponse {
	return permissionResponse{ID: perm.ID, Code: perm.Code, Name: perm.Name, Description: perm.Description, ResourceID: perm.ResourceID}
}

type resourceResponse struct {
	ID          int64  `json:"id"`
	RouteCode   string `json:"route_code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OrderIndex  int32  `json:"order_index"`
	IsActive    bool   `json:"is_active"`
}

func toResourceResponse(res Resource) resourceResponse {
	return resourceResponse{ID: res.ID, RouteCode: res.RouteCode, Name: res.Name, Description: res.Description, OrderIndex: res.OrderIndex, IsActive: res.IsActive}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

type createRoleRequest struct {
	Code        string `json:"code" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if !h.checkIdempotency(w, r, "catalog") {
		return
	}
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), CreateRoleInput{Code: req.Code, Name: req.Name, Description: req.Description})
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

type updateRoleRequest struct {
	Code        *string `json:"code" validate:"omitempty,max=100"`
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, RolePatch{Code: req.Code, Name: req.Name, Description: req.Description})
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, perm := range perms {
		out = append(out, toPermissionResponse(perm))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		h.fail(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(perm))
}

type createPermissionRequest struct {
	Code        string `json:"code" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
	ResourceID  *int64 `json:"resource_id"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	if !h.checkIdempotency(w, r, "catalog") {
		return
	}
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), CreatePermissionInput{Code: req.Code, Name: req.Name, Description: req.Description, ResourceID: req.ResourceID})
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(perm))
}

type updatePermissionRequest struct {
	Code            *string `json:"code" validate:"omitempty,max=100"`
	Name            *string `json:"name" validate:"omitempty,max=100"`
	Description     *string `json:"description" validate:"omitempty,max=255"`
	ResourceID      *int64  `json:"resource_id"`
	ClearResourceID bool    `json:"clear_resource_id"`
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	var req updatePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), id, PermissionPatch{
		Code:            req.Code,
		Name:            req.Name,
		Description:     req.Description,
		ResourceID:      req.ResourceID,
		ClearResourceID: req.ClearResourceID,
	})
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(perm))
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.service.ListResources(r.Context())
	if err != nil {
		h.fail(w, "list resources", err)
		return
	}
	out := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		out = append(out, toResourceResponse(res))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "resourceID")
	if !ok {
		return
	}
	res, err := h.service.GetResource(r.Context(), id)
	if err != nil {
		h.fail(w, "get resource", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResourceResponse(res))
}

type createResourceRequest struct {
	RouteCode   string `json:"route_code" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
	OrderIndex  int32  `json:"order_index"`
	IsActive    *bool  `json:"is_active"`
}

func (h *Handler) createResource(w http.ResponseWriter, r *http.Request) {
	if !h.checkIdempotency(w, r, "catalog") {
		return
	}
	var req createResourceRequest
	if !h.decode(w, r, &req) {
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	res, err := h.service.CreateResource(r.Context(), CreateResourceInput{
		RouteCode:   req.RouteCode,
		Name:        req.Name,
		Description: req.Description,
		OrderIndex:  req.OrderIndex,
		IsActive:    isActive,
	})
	if err != nil {
		h.fail(w, "create resource", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResourceResponse(res))
}

type updateResourceRequest struct {
	RouteCode   *string `json:"route_code" validate:"omitempty,max=100"`
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=255"`
	OrderIndex  *int32  `json:"order_index"`
	IsActive    *bool   `json:"is_active"`
}

func (h *Handler) updateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "resourceID")
	if !ok {
		return
	}
	var req updateResourceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.UpdateResource(r.Context(), id, ResourcePatch{
		RouteCode:   req.RouteCode,
		Name:        req.Name,
		Description: req.Description,
		OrderIndex:  req.OrderIndex,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.fail(w, "update resource", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResourceResponse(res))
}

func (h *Handler) deleteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "resourceID")
	if !ok {
		return
	}
	if err := h.service.DeleteResource(r.Context(), id); err != nil {
		h.fail(w, "delete resource", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

// checkIdempotency honors the optional Idempotency-Key header on mutations.
func (h *Handler) checkIdempotency(w http.ResponseWriter, r *http.Request, module string) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idempotency == nil {
		return true
	}
	if _, err := uuid.Parse(key); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Request", "idempotency key must be a UUID")
		return false
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
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
