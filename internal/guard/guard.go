// Package guard gates console routes on the visitor's actor sessions and
// permissions. Denial is navigation, not an error: an unauthenticated visitor
// goes to the login view, an authenticated but under-privileged employee goes
// to the employee home.
package guard

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/shaadicards/console/internal/authz"
	"github.com/shaadicards/console/internal/perms"
	"github.com/shaadicards/console/internal/platform/httpx"
	"github.com/shaadicards/console/internal/session"
)

// Middleware wires the console's route guards.
type Middleware struct {
	Perms  *perms.Refresher
	Logger *slog.Logger
}

// Gate requires that the visitor satisfies at least one of the given
// permissions. Any authenticated admin bypasses the check entirely. An
// employee's decision waits for the pending permission revalidation instead
// of denying on a half-loaded list.
func (m Middleware) Gate(need ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, ok := m.state(w, r)
			if !ok {
				return
			}
			if st.Admin.Token != "" {
				next.ServeHTTP(w, r)
				return
			}

			emp := st.Employee
			if emp.Token == "" {
				redirectToLogin(w, r)
				return
			}

			m.Perms.Track(emp.Token, emp.Permissions())
			if err := m.Perms.Wait(r.Context(), emp.Token); err != nil {
				// Client went away while we were waiting.
				return
			}

			if len(need) == 0 || m.Perms.CanAny(emp.Identity, emp.Token, need...) {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, authz.ActorEmployee.Home(), http.StatusSeeOther)
		})
	}
}

// AdminOnly admits admins, sends employees to their own area, and everyone
// else to login. It decides only after both actor bootstraps have completed.
func (m Middleware) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, ok := m.state(w, r)
		if !ok {
			return
		}
		switch {
		case st.Admin.Token != "":
			next.ServeHTTP(w, r)
		case st.Employee.Token != "":
			http.Redirect(w, r, authz.ActorEmployee.Home(), http.StatusSeeOther)
		default:
			redirectToLogin(w, r)
		}
	})
}

// EmployeeOnly admits visitors holding an employee session.
func (m Middleware) EmployeeOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, ok := m.state(w, r)
		if !ok {
			return
		}
		if st.Employee.Token != "" {
			next.ServeHTTP(w, r)
			return
		}
		redirectToLogin(w, r)
	})
}

// RedirectByActor sends the visitor to whichever area their session belongs
// to: admin first, then employee, then login.
func RedirectByActor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := session.StateFromContext(r.Context())
		switch {
		case st == nil:
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		case st.Admin.Token != "":
			http.Redirect(w, r, authz.ActorAdmin.Home(), http.StatusSeeOther)
		case st.Employee.Token != "":
			http.Redirect(w, r, authz.ActorEmployee.Home(), http.StatusSeeOther)
		default:
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		}
	}
}

// state fetches the bootstrapped visitor state. Guards never decide on an
// unready state: redirecting before bootstrap completes would bounce a
// visitor whose credentials simply had not loaded yet.
func (m Middleware) state(w http.ResponseWriter, r *http.Request) (*session.State, bool) {
	st := session.StateFromContext(r.Context())
	if st == nil || !st.Ready() {
		if m.Logger != nil {
			m.Logger.Error("guard reached without bootstrapped session", slog.String("path", r.URL.Path))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return nil, false
	}
	return st, true
}

// redirectToLogin preserves the attempted location for post-login return.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login"
	if path := r.URL.Path; path != "" && path != "/" {
		target += "?from=" + url.QueryEscape(path)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
