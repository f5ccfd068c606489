package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shaadicards/console/internal/authz"
)

// PageSession is the slice of console-session behaviour the transport needs:
// reading the two actor tokens, tearing one down, and recording a navigation
// decision for the current page. The session package implements it.
type PageSession interface {
	Token(actor authz.Actor) string
	Invalidate(ctx context.Context, actor authz.Actor) error
	NavigateTo(path string)
	Path() string
}

// Recorder receives auth-related transport events. *observability.Metrics
// satisfies it; a nil Recorder is valid.
type Recorder interface {
	SessionInvalidated(actor, cause string)
	UpstreamRequest(actor string, status int)
}

type sessionContextKey struct{}

// WithSession attaches the page session to a request context so the
// transport can resolve tokens and apply auth side effects.
func WithSession(ctx context.Context, ps PageSession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, ps)
}

func sessionFrom(ctx context.Context) PageSession {
	ps, _ := ctx.Value(sessionContextKey{}).(PageSession)
	return ps
}

// Transport attaches the resolved actor's bearer token to every outgoing API
// call and reacts to 401/403 responses by invalidating the corresponding
// actor session. It is the only place that decides which token a request
// carries; the active-actor view used for presentation plays no part here.
type Transport struct {
	base    http.RoundTripper
	logger  *slog.Logger
	metrics Recorder
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger, metrics Recorder) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, logger: logger, metrics: metrics}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	ps := sessionFrom(ctx)
	path := req.URL.Path

	adminAPI := strings.Contains(path, "/api/admin/")
	employeeAPI := strings.Contains(path, "/api/employee/")
	protected := adminAPI || employeeAPI

	var actor authz.Actor
	var tok string
	switch {
	case ps == nil:
		// No page context: send the request untouched.
	case adminAPI:
		actor, tok = authz.ActorAdmin, ps.Token(authz.ActorAdmin)
	case employeeAPI:
		actor, tok = authz.ActorEmployee, ps.Token(authz.ActorEmployee)
	default:
		actor, tok = fallbackActor(ps)
	}

	req = req.Clone(ctx)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	res, err := t.base.RoundTrip(req)
	if err != nil || res == nil {
		return res, err
	}
	if t.metrics != nil {
		t.metrics.UpstreamRequest(string(actor), res.StatusCode)
	}
	if ps != nil {
		t.observe(ctx, ps, res.StatusCode, path, actor, protected)
	}
	return res, nil
}

// observe applies the session side effects of an auth failure before the
// response propagates to the caller.
func (t *Transport) observe(ctx context.Context, ps PageSession, status int, path string, actor authz.Actor, protected bool) {
	switch status {
	case http.StatusUnauthorized:
		if !protected {
			return
		}
		if err := ps.Invalidate(ctx, actor); err != nil && t.logger != nil {
			t.logger.Error("invalidate session", slog.String("actor", string(actor)), slog.Any("error", err))
		}
		if t.metrics != nil {
			t.metrics.SessionInvalidated(string(actor), "unauthorized")
		}
		// Redirect only when the failing actor owns the current view, and
		// never for the login call itself.
		if actor.OwnsPath(ps.Path()) && !strings.Contains(path, AuthPath) {
			ps.NavigateTo("/login")
		}
	case http.StatusForbidden:
		// A 403 on an admin API while viewing the admin area with only an
		// employee token is a misrouted employee user. Nudge them to their
		// own area; the server stays the authority on authorization.
		if actor == authz.ActorAdmin && strings.HasPrefix(ps.Path(), "/admin") {
			if ps.Token(authz.ActorAdmin) == "" && ps.Token(authz.ActorEmployee) != "" {
				ps.NavigateTo("/app")
			}
		}
	}
}

// fallbackActor mirrors the active-actor priority for calls outside both API
// namespaces: prefer the actor owning the current view, then admin, then
// employee by availability.
func fallbackActor(ps PageSession) (authz.Actor, string) {
	admin := ps.Token(authz.ActorAdmin)
	employee := ps.Token(authz.ActorEmployee)
	preferEmployee := strings.HasPrefix(ps.Path(), "/app")
	if preferEmployee {
		if employee != "" {
			return authz.ActorEmployee, employee
		}
		if admin != "" {
			return authz.ActorAdmin, admin
		}
	} else {
		if admin != "" {
			return authz.ActorAdmin, admin
		}
		if employee != "" {
			return authz.ActorEmployee, employee
		}
	}
	return "", ""
}
