// Package console implements the console's own HTTP surface: the auth
// endpoints the login page talks to, the session presentation for the header
// menu, and the guarded pages proxied from the platform API.
package console

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/shaadicards/console/internal/authz"
	"github.com/shaadicards/console/internal/perms"
	"github.com/shaadicards/console/internal/platform/httpx"
	"github.com/shaadicards/console/internal/session"
	"github.com/shaadicards/console/internal/upstream"
)

// Handler wires the console's HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	api       *upstream.Client
	perms     *perms.Refresher
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, api *upstream.Client, refresher *perms.Refresher) *Handler {
	return &Handler{
		logger:    logger,
		api:       api,
		perms:     refresher,
		validator: validator.New(),
	}
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Actor    string `json:"actor" validate:"omitempty,oneof=admin employee"`
}

type loginResult struct {
	Success  bool   `json:"success"`
	Redirect string `json:"redirect,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HandleLogin authenticates one actor against the platform. On success the
// response carries the actor's home path; the durable record for the other
// actor class is gone by then.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.JSON(w, http.StatusBadRequest, loginResult{Error: "invalid request body"})
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.JSON(w, http.StatusBadRequest, loginResult{Error: "email and password are required"})
		return
	}

	st := session.StateFromContext(r.Context())
	if st == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	actor := authz.ParseActor(form.Actor)
	if err := st.Login(r.Context(), actor, form.Email, form.Password); err != nil {
		status := http.StatusBadGateway
		var authErr *upstream.AuthError
		if errors.As(err, &authErr) && authErr.Status != 0 {
			status = authErr.Status
		}
		message := "Login failed"
		if errors.As(err, &authErr) && authErr.Message != "" {
			message = authErr.Message
		}
		if h.logger != nil {
			h.logger.Warn("login rejected", slog.String("actor", string(actor)), slog.Any("error", err))
		}
		httpx.JSON(w, status, loginResult{Error: message})
		return
	}

	// Token change: start revalidating the employee's permission list now so
	// the first guarded page does not pay the fetch latency.
	if actor == authz.ActorEmployee {
		emp := st.Employee
		h.perms.Track(emp.Token, emp.Permissions())
	}

	httpx.JSON(w, http.StatusOK, loginResult{Success: true, Redirect: st.PendingRedirect()})
}

type logoutForm struct {
	Actor string `json:"actor"`
}

// HandleLogout tears down the requested actor's session (admin when the body
// names none, matching the admin context's ownership of the shared flow).
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	st := session.StateFromContext(r.Context())
	if st == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	var form logoutForm
	_ = httpx.DecodeJSON(r, &form)
	actor := authz.ParseActor(form.Actor)

	tok := st.Token(actor)
	// Admin logout tears down the employee session too; drop its tracked
	// permission list along with the record.
	var empTok string
	if actor == authz.ActorAdmin {
		empTok = st.Token(authz.ActorEmployee)
	}
	if err := st.Logout(r.Context(), actor); err != nil {
		if h.logger != nil {
			h.logger.Error("logout", slog.String("actor", string(actor)), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if tok != "" {
		h.perms.Forget(tok)
	}
	if empTok != "" && empTok != tok {
		h.perms.Forget(empTok)
	}

	httpx.JSON(w, http.StatusOK, loginResult{Success: true, Redirect: st.PendingRedirect()})
}

type sessionView struct {
	Actor        string       `json:"actor"`
	Ready        bool         `json:"ready"`
	ID           string       `json:"id,omitempty"`
	Email        string       `json:"email,omitempty"`
	Name         string       `json:"name,omitempty"`
	Designation  string       `json:"designation,omitempty"`
	Permissions  []string     `json:"permissions,omitempty"`
	Roles        []authz.Role `json:"roles,omitempty"`
	IsSuperAdmin bool         `json:"isSuperAdmin"`
}

// HandleSession renders the effective actor for the current view: which
// profile to show in the header. It never decides API authorization.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	st := session.StateFromContext(r.Context())
	if st == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	active := st.Active(r.URL.Query().Get("path"))
	if active == nil || active.Identity == nil {
		httpx.JSON(w, http.StatusOK, sessionView{Actor: "none", Ready: st.Ready()})
		return
	}

	id := active.Identity
	designation := id.RoleKey
	if designation == "" {
		designation = string(active.Actor)
	}
	httpx.JSON(w, http.StatusOK, sessionView{
		Actor:        string(active.Actor),
		Ready:        st.Ready(),
		ID:           id.ID,
		Email:        id.Email,
		Name:         id.DisplayName,
		Designation:  designation,
		Permissions:  active.Permissions(),
		Roles:        id.Roles,
		IsSuperAdmin: active.IsSuperAdmin(),
	})
}

// HandleLoginInfo tells the login page which sessions already exist.
func (h *Handler) HandleLoginInfo(w http.ResponseWriter, r *http.Request) {
	st := session.StateFromContext(r.Context())
	if st == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"ready":    st.Ready(),
		"admin":    st.Admin.Token != "",
		"employee": st.Employee.Token != "",
	})
}
