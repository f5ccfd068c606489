// Package session owns the console's two actor sessions (admin, employee):
// their durable records, the bootstrap/login/logout lifecycle, and the
// active-actor view the UI surface presents. At most one durable session
// survives any fresh login; the transport layer, not this package, decides
// which token an API call carries.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shaadicards/console/internal/authz"
	"github.com/shaadicards/console/internal/token"
	"github.com/shaadicards/console/internal/upstream"
)

// ErrInvalidLoginResponse means the authorization endpoint answered 2xx but
// no token or identity could be extracted from the payload.
var ErrInvalidLoginResponse = errors.New("session: invalid login response")

// AuthClient is the slice of the upstream client that login needs.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*upstream.LoginPayload, error)
}

// ActorSession binds one actor class to at most one {token, identity} pair.
// Token and Identity are either both set or both empty after any operation.
type ActorSession struct {
	Actor    authz.Actor
	Token    string
	Identity *authz.Identity
	Ready    bool

	slots Slots
}

// Bootstrap loads the actor's durable record. An expired, malformed, or
// incomplete record is purged and the session stays empty. The session is
// ready when this returns, whatever the outcome, and calling it again
// without a storage change yields the same state.
func (s *ActorSession) Bootstrap(ctx context.Context) error {
	defer func() { s.Ready = true }()

	data, err := s.slots.Read(ctx, s.Actor)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		s.Token, s.Identity = "", nil
		return nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Token == "" || token.IsExpired(rec.Token) {
		s.Token, s.Identity = "", nil
		return s.slots.Clear(ctx, s.Actor)
	}

	id := rec.identity(s.Actor)
	if id == nil {
		id = decodeIdentity(rec.Token, s.Actor)
	}
	if id == nil {
		s.Token, s.Identity = "", nil
		return s.slots.Clear(ctx, s.Actor)
	}

	s.Token, s.Identity = rec.Token, id
	return nil
}

// Can reports whether this session's identity satisfies perm.
func (s *ActorSession) Can(perm string) bool {
	return authz.Has(s.Identity, perm)
}

// CanAny reports whether the identity satisfies at least one requirement.
func (s *ActorSession) CanAny(perms ...string) bool {
	return authz.HasAny(s.Identity, perms...)
}

// IsSuperAdmin reports whether the identity is a super admin.
func (s *ActorSession) IsSuperAdmin() bool {
	return authz.IsSuper(s.Identity)
}

// Permissions returns the identity's raw permission list for display.
func (s *ActorSession) Permissions() []string {
	if s.Identity == nil {
		return nil
	}
	return s.Identity.Permissions
}

// State is one console visitor's complete session picture: both actor
// sessions plus the navigation decision accumulated during the current page
// request. It implements upstream.PageSession.
type State struct {
	Admin    *ActorSession
	Employee *ActorSession

	auth    AuthClient
	path    string
	pending string
}

// NewState wires a state over the given durable slots.
func NewState(slots Slots, auth AuthClient) *State {
	return &State{
		Admin:    &ActorSession{Actor: authz.ActorAdmin, slots: slots},
		Employee: &ActorSession{Actor: authz.ActorEmployee, slots: slots},
		auth:     auth,
	}
}

// Session returns the store for the given actor class.
func (st *State) Session(actor authz.Actor) *ActorSession {
	if actor == authz.ActorEmployee {
		return st.Employee
	}
	return st.Admin
}

// Bootstrap loads both actor sessions from durable storage.
func (st *State) Bootstrap(ctx context.Context) error {
	if err := st.Admin.Bootstrap(ctx); err != nil {
		return err
	}
	return st.Employee.Bootstrap(ctx)
}

// Ready reports whether both bootstraps have completed. Guards must not make
// redirect decisions before this is true.
func (st *State) Ready() bool {
	return st.Admin.Ready && st.Employee.Ready
}

// SetPath records the console path the current request is for.
func (st *State) SetPath(path string) {
	st.path = path
}

// Path returns the current console view path.
func (st *State) Path() string {
	return st.path
}

// Token returns the given actor's bearer token, empty when logged out.
func (st *State) Token(actor authz.Actor) string {
	return st.Session(actor).Token
}

// NavigateTo records a navigation decision for the current page. The last
// writer wins; handlers apply it as a redirect once the page work is done.
func (st *State) NavigateTo(path string) {
	st.pending = path
}

// PendingRedirect returns the recorded navigation target, if any.
func (st *State) PendingRedirect() string {
	return st.pending
}

// Login authenticates one actor against the platform and persists the
// resulting session. A successful login clears the other actor's durable
// record: only one durable session survives. The error carries the upstream
// message when the server rejected the credentials.
func (st *State) Login(ctx context.Context, actor authz.Actor, email, password string) error {
	payload, err := st.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}

	tok := payload.BearerToken()
	id := payload.IdentityFor(actor)
	if id == nil && tok != "" {
		id = decodeIdentity(tok, actor)
	}
	if tok == "" || id == nil {
		return ErrInvalidLoginResponse
	}

	target := st.Session(actor)
	data, err := json.Marshal(newRecord(actor, tok, id))
	if err != nil {
		return err
	}
	// Clear the other slot before persisting the new one, so a storage
	// failure part way through can never leave both records behind.
	if err := target.slots.Clear(ctx, actor.Other()); err != nil {
		return err
	}
	if err := target.slots.Write(ctx, actor, data); err != nil {
		return err
	}

	target.Token, target.Identity = tok, id
	target.Ready = true
	st.NavigateTo(actor.Home())
	return nil
}

// Logout tears down one actor's session. Admin logout also clears the
// employee record: the admin context owns the shared return-to-login flow.
func (st *State) Logout(ctx context.Context, actor authz.Actor) error {
	target := st.Session(actor)
	if actor == authz.ActorAdmin {
		if err := target.slots.Clear(ctx, authz.ActorEmployee); err != nil {
			return err
		}
	}
	if err := target.slots.Clear(ctx, actor); err != nil {
		return err
	}
	target.Token, target.Identity = "", nil
	st.NavigateTo("/login")
	return nil
}

// Invalidate clears one actor's session without navigating; the transport
// layer decides whether the current view warrants a redirect.
func (st *State) Invalidate(ctx context.Context, actor authz.Actor) error {
	target := st.Session(actor)
	target.Token, target.Identity = "", nil
	return target.slots.Clear(ctx, actor)
}

// Active picks the actor session whose identity the current view presents.
// Path-scoped precedence keeps a stale admin token from masking an active
// employee session inside the employee area, and vice versa. Returns nil
// when nobody is logged in. This choice is presentation only; it never
// authorizes an API call.
func (st *State) Active(path string) *ActorSession {
	switch {
	case strings.HasPrefix(path, "/app") && st.Employee.Token != "":
		return st.Employee
	case strings.HasPrefix(path, "/admin") && st.Admin.Token != "":
		return st.Admin
	case st.Admin.Token != "":
		return st.Admin
	case st.Employee.Token != "":
		return st.Employee
	}
	return nil
}

// decodeIdentity decodes a token's embedded identity, defaulting the role
// key to the actor class when the claims omit it.
func decodeIdentity(tok string, actor authz.Actor) *authz.Identity {
	id := token.Decode(tok)
	if id != nil && id.RoleKey == "" {
		id.RoleKey = string(actor)
	}
	return id
}
