package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/shaadicards/console/internal/console"
	"github.com/shaadicards/console/internal/guard"
	"github.com/shaadicards/console/internal/observability"
	"github.com/shaadicards/console/internal/session"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Sessions *session.Manager
	Console  *console.Handler
	Guards   guard.Middleware
	Metrics  *observability.Metrics
}

// NewRouter assembles the console routes. The admin and employee areas carry
// the same requirement strings the platform's permission records use; the
// admin gate wrappers are effective for employees only, since any
// authenticated admin bypasses permission checks.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Sessions: p.Sessions, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Sessions: p.Sessions}))

		r.Get("/", guard.RedirectByActor())
		r.Get("/session", p.Console.HandleSession)
		r.Get("/login", p.Console.HandleLoginInfo)

		loginLimit, loginWindow := 10, p.Config.LoginRateWindow
		if p.Config.LoginRateLimit > 0 {
			loginLimit = p.Config.LoginRateLimit
		}
		if loginWindow <= 0 {
			loginWindow = time.Minute
		}
		r.With(httprate.Limit(loginLimit, loginWindow, httprate.WithKeyFuncs(httprate.KeyByIP))).
			Post("/login", p.Console.HandleLogin)
		r.Post("/logout", p.Console.HandleLogout)

		gk := p.Guards
		r.Route("/admin", func(r chi.Router) {
			r.Use(gk.AdminOnly)
			r.Get("/", p.Console.Page("/api/admin/dashboard"))
			r.With(gk.Gate("products.read")).Get("/products", p.Console.Page("/api/admin/products"))
			r.With(gk.Gate("orders.read")).Get("/orders", p.Console.Page("/api/admin/orders"))
			r.With(gk.Gate("coupons.read")).Get("/coupons", p.Console.Page("/api/admin/coupons"))
			r.With(gk.Gate("customers.read")).Get("/customers", p.Console.Page("/api/admin/customers"))
			r.With(gk.Gate("employees.read")).Get("/employees", p.Console.Page("/api/admin/employees"))
			r.With(gk.Gate("roles.read")).Get("/roles", p.Console.Page("/api/admin/roles"))
			r.With(gk.Gate("payroll.read")).Get("/payroll", p.Console.Page("/api/admin/payroll"))
		})

		r.Route("/app", func(r chi.Router) {
			r.Use(gk.EmployeeOnly)
			r.Get("/", p.Console.HandleSession)
			r.With(gk.Gate("products.read")).Get("/products", p.Console.Page("/api/employee/products"))
			r.With(gk.Gate("orders.read")).Get("/orders", p.Console.Page("/api/employee/orders"))
			r.With(gk.Gate("coupons.read")).Get("/coupons", p.Console.Page("/api/employee/coupons"))
			r.With(gk.Gate("customers.read")).Get("/customers", p.Console.Page("/api/employee/customers"))
			r.With(gk.Gate("payroll.read")).Get("/payroll", p.Console.Page("/api/employee/payroll"))
		})
	})

	return r
}
