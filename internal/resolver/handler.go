package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hemmy-platform/hemmy-authz/internal/platform/httpx"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// CapabilitySource answers both resolver queries. Resolver and
// CachedResolver satisfy it.
type CapabilitySource interface {
	PermissionSource
	CanPerform(ctx context.Context, userID int64, action, subject string) (bool, error)
}

// DecisionObserver receives the outcome of every capability decision,
// typically feeding a metrics counter.
type DecisionObserver func(allowed bool)

// Handler exposes the capability query API.
type Handler struct {
	logger  *slog.Logger
	source  CapabilitySource
	authz   Middleware
	observe DecisionObserver
}

// NewHandler builds Handler instance. observe may be nil.
func NewHandler(logger *slog.Logger, source CapabilitySource, authz Middleware, observe DecisionObserver) *Handler {
	return &Handler{logger: logger, source: source, authz: authz, observe: observe}
}

// MountRoutes registers resolver routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermAssignmentsView))
		r.Get("/users/{userID}/permissions", h.effectivePermissions)
		r.Get("/users/{userID}/can", h.canPerform)
	})
}

type effectivePermission struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ResourceID  *int64 `json:"resource_id,omitempty"`
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	perms, err := h.source.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.fail(w, "effective permissions", err)
		return
	}
	out := make([]effectivePermission, 0, len(perms))
	for _, perm := range perms {
		out = append(out, effectivePermission{ID: perm.ID, Code: perm.Code, Name: perm.Name, Description: perm.Description, ResourceID: perm.ResourceID})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type canResponse struct {
	Allowed bool   `json:"allowed"`
	Action  string `json:"action"`
	Subject string `json:"subject"`
}

func (h *Handler) canPerform(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if action == "" || subject == "" {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Request", "action and subject query parameters required")
		return
	}
	allowed, err := h.source.CanPerform(r.Context(), userID, action, subject)
	if err != nil {
		h.fail(w, "can perform", err)
		return
	}
	if h.observe != nil {
		h.observe(allowed)
	}
	httpx.JSON(w, http.StatusOK, canResponse{Allowed: allowed, Action: action, Subject: subject})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Request", "invalid userID")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

var (
	_ CapabilitySource = (*Resolver)(nil)
	_ CapabilitySource = (*CachedResolver)(nil)
)
