package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-auth/aegis/internal/platform/httpx"
)

// Handler manages role and privilege administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authorize Authorizer
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authorize Authorizer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		authorize: authorize,
		validator: validator.New(),
	}
}

// MountRoutes registers administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authorize.RequireAnyPrivilege("roles.view", "roles.manage"))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}", h.showRole)
		r.Get("/privileges", h.listPrivileges)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authorize.RequireAllPrivileges("roles.manage"))
		r.Post("/roles", h.createRole)
		r.Put("/roles/{roleID}", h.updateRole)
		r.Delete("/roles/{roleID}", h.deleteRole)
		r.Delete("/roles", h.flushRoles)
		r.Post("/roles/{roleID}/privileges/{privilegeID}", h.attachPrivilege)
		r.Delete("/roles/{roleID}/privileges/{privilegeID}", h.detachPrivilege)
		r.Post("/privileges", h.createPrivilege)
		r.Put("/privileges/{privilegeID}", h.updatePrivilege)
		r.Delete("/privileges/{privilegeID}", h.deletePrivilege)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authorize.RequireAllPrivileges("users.manage"))
		r.Post("/users/{userID}/roles/{roleID}", h.assignRole)
		r.Delete("/users/{userID}/roles/{roleID}", h.removeRole)
	})
}

type roleForm struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

type privilegeForm struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeRoleForm(w, r)
	if !ok {
		return
	}
	role, err := h.service.CreateRole(r.Context(), form.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	form, ok := h.decodeRoleForm(w, r)
	if !ok {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, form.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cascade := r.URL.Query().Get("cascade") == "true"
	if err := h.service.DeleteRole(r.Context(), id, cascade); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) flushRoles(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		httpx.Problem(w, http.StatusBadRequest, "Confirmation Required", "flush requires confirm=true")
		return
	}
	if err := h.service.FlushRoles(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPrivileges(w http.ResponseWriter, r *http.Request) {
	privs, err := h.service.ListPrivileges(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"privileges": privs})
}

func (h *Handler) createPrivilege(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodePrivilegeForm(w, r)
	if !ok {
		return
	}
	priv, err := h.service.CreatePrivilege(r.Context(), form.Name, form.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, priv)
}

func (h *Handler) updatePrivilege(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "privilegeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	form, ok := h.decodePrivilegeForm(w, r)
	if !ok {
		return
	}
	priv, err := h.service.UpdatePrivilege(r.Context(), id, form.Name, form.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, priv)
}

func (h *Handler) deletePrivilege(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "privilegeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePrivilege(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) attachPrivilege(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	privilegeID, err := pathID(r, "privilegeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AttachPrivilege(r.Context(), roleID, privilegeID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachPrivilege(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	privilegeID, err := pathID(r, "privilegeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DetachPrivilege(r.Context(), roleID, privilegeID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeRoleForm(w http.ResponseWriter, r *http.Request) (roleForm, bool) {
	var form roleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return form, false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return form, false
	}
	return form, true
}

func (h *Handler) decodePrivilegeForm(w http.ResponseWriter, r *http.Request) (privilegeForm, bool) {
	var form privilegeForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return form, false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return form, false
	}
	return form, true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, httpx.ErrValidation
	}
	return id, nil
}
