package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-auth/aegis/internal/guard"
	"github.com/aegis-auth/aegis/internal/platform/httpx"
	"github.com/aegis-auth/aegis/internal/shared"
)

// Registrar creates accounts for the registration endpoint.
type Registrar interface {
	Register(ctx context.Context, provider, email, username, password string) (int64, error)
}

// Verifier drives the email verification flow.
type Verifier interface {
	Begin(ctx context.Context, userID int64, email string) error
	Confirm(ctx context.Context, token string) error
}

// PasswordResetter drives the forgot-password flow. Begin must succeed for
// unknown emails so responses cannot be used to probe which accounts exist.
type PasswordResetter interface {
	Begin(ctx context.Context, provider, email string) error
	Reset(ctx context.Context, token, password string) error
}

// RoleGranter assigns the default role to fresh registrations.
type RoleGranter interface {
	AssignRoleBySlug(ctx context.Context, userID int64, slug string) error
}

// LoginRecorder observes login outcomes per guard.
type LoginRecorder interface {
	RecordLogin(guard, outcome string)
}

// HandlerConfig tunes the auth endpoints.
type HandlerConfig struct {
	// Throttle is the per-IP login attempt budget per minute.
	Throttle int
	// DefaultRoleSlug is granted to every fresh registration.
	DefaultRoleSlug string
	// CheckVerified queues a verification email on registration.
	CheckVerified bool
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	factory   *Factory
	guards    *guard.Resolver
	registrar Registrar
	verifier  Verifier
	resetter  PasswordResetter
	granter   RoleGranter
	metrics   LoginRecorder
	cfg       HandlerConfig
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. verifier, resetter, granter and
// metrics may be nil.
func NewHandler(logger *slog.Logger, factory *Factory, guards *guard.Resolver, registrar Registrar, verifier Verifier, resetter PasswordResetter, granter RoleGranter, metrics LoginRecorder, cfg HandlerConfig) *Handler {
	if cfg.Throttle <= 0 {
		cfg.Throttle = 6
	}
	return &Handler{
		logger:    logger,
		factory:   factory,
		guards:    guards,
		registrar: registrar,
		verifier:  verifier,
		resetter:  resetter,
		granter:   granter,
		metrics:   metrics,
		cfg:       cfg,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(h.cfg.Throttle, time.Minute))
		r.Post("/login", h.login)
		r.Post("/forgot-password", h.forgotPassword)
	})
	r.Post("/register", h.register)
	r.Post("/refresh", h.refresh)
	r.Post("/reset-password", h.resetPassword)
	r.Get("/verify-email", h.verifyEmail)
	r.Group(func(r chi.Router) {
		r.Use(Middleware{Factory: h.factory, Logger: h.logger}.Verify)
		r.Post("/logout", h.logout)
		r.Get("/me", h.me)
	})
}

type loginRequest struct {
	Identity string `json:"identity" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"omitempty,min=3,max=60"`
	Password string `json:"password" validate:"required,min=8"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	guardName, _ := guard.FromContext(r.Context())
	driver, err := h.factory.Driver(guardName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := driver.Login(r.Context(), Credentials{Identity: req.Identity, Password: req.Password})
	if err != nil {
		h.recordLogin(guardName, loginOutcome(err))
		h.logger.Info("login rejected", slog.String("guard", guardName), slog.String("reason", loginOutcome(err)))
		httpx.RespondError(w, err)
		return
	}
	h.recordLogin(guardName, "success")
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	guardName, _ := guard.FromContext(r.Context())
	provider, err := h.guards.Config().UserSpace(guardName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID, err := h.registrar.Register(r.Context(), provider, req.Email, req.Username, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.granter != nil && h.cfg.DefaultRoleSlug != "" {
		if err := h.granter.AssignRoleBySlug(r.Context(), userID, h.cfg.DefaultRoleSlug); err != nil {
			h.logger.Error("default role assignment failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	if h.verifier != nil && h.cfg.CheckVerified {
		if err := h.verifier.Begin(r.Context(), userID, req.Email); err != nil {
			h.logger.Error("verification email failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": userID})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		httpx.RespondError(w, shared.ErrTokenInvalid)
		return
	}
	guardName, _ := guard.FromContext(r.Context())
	driver, err := h.factory.Driver(guardName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var principal *shared.Principal
	if rv, ok := driver.(RefreshValidator); ok {
		principal, err = rv.ValidateRefresh(r.Context(), token)
	} else {
		principal, err = driver.ValidateToken(r.Context(), token)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := driver.Refresh(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	driver, err := h.factory.Driver(principal.Guard)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := driver.Logout(r.Context(), principal); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id": principal.UserID,
		"guard":   principal.Guard,
		"roles":   principal.Roles,
	})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if h.resetter == nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	guardName, _ := guard.FromContext(r.Context())
	provider, err := h.guards.Config().UserSpace(guardName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.resetter.Begin(r.Context(), provider, req.Email); err != nil {
		httpx.RespondError(w, err)
		return
	}
	// Same response whether or not the account exists.
	httpx.JSON(w, http.StatusAccepted, map[string]any{"sent": true})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	if h.resetter == nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.resetter.Reset(r.Context(), req.Token, req.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reset": true})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "token is required")
		return
	}
	if err := h.verifier.Confirm(r.Context(), token); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) recordLogin(guardName, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordLogin(guardName, outcome)
	}
}

func loginOutcome(err error) string {
	var suspended *shared.AccountSuspendedError
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, shared.ErrAccountUnverified):
		return "unverified"
	case errors.As(err, &suspended):
		return "suspended"
	default:
		return "error"
	}
}
