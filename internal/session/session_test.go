package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/shaadicards/console/internal/authz"
	"github.com/shaadicards/console/internal/session"
	"github.com/shaadicards/console/internal/upstream"
)

type memSlots struct {
	data map[authz.Actor][]byte
}

func newMemSlots() *memSlots {
	return &memSlots{data: make(map[authz.Actor][]byte)}
}

func (m *memSlots) Read(_ context.Context, actor authz.Actor) ([]byte, error) {
	return m.data[actor], nil
}

func (m *memSlots) Write(_ context.Context, actor authz.Actor, data []byte) error {
	m.data[actor] = data
	return nil
}

func (m *memSlots) Clear(_ context.Context, actor authz.Actor) error {
	delete(m.data, actor)
	return nil
}

// faultySlots fails Clear for one actor, passing everything else through.
type faultySlots struct {
	*memSlots
	failClear authz.Actor
}

func (f *faultySlots) Clear(ctx context.Context, actor authz.Actor) error {
	if actor == f.failClear {
		return errors.New("redis: connection lost")
	}
	return f.memSlots.Clear(ctx, actor)
}

type stubAuth struct {
	payload *upstream.LoginPayload
	err     error
}

func (s *stubAuth) Login(context.Context, string, string) (*upstream.LoginPayload, error) {
	return s.payload, s.err
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestBootstrapEmptyStorage(t *testing.T) {
	st := session.NewState(newMemSlots(), &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !st.Ready() {
		t.Fatalf("state should be ready after bootstrap")
	}
	if st.Admin.Token != "" || st.Admin.Identity != nil {
		t.Fatalf("admin session should be empty")
	}
	if st.Employee.Token != "" || st.Employee.Identity != nil {
		t.Fatalf("employee session should be empty")
	}
}

func TestBootstrapValidRecord(t *testing.T) {
	slots := newMemSlots()
	tok := signed(t, jwt.MapClaims{"sub": "5", "role": "manager", "perms": []any{"orders.read"}})
	rec, _ := json.Marshal(map[string]any{
		"token": tok,
		"user":  map[string]any{"id": "5", "email": "m@x.test", "role": "manager"},
	})
	slots.data[authz.ActorAdmin] = rec

	st := session.NewState(slots, &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if st.Admin.Token != tok {
		t.Fatalf("stored token should survive bootstrap")
	}
	if st.Admin.Identity == nil || st.Admin.Identity.Email != "m@x.test" {
		t.Fatalf("stored identity should win over the decoded one, got %+v", st.Admin.Identity)
	}
}

func TestBootstrapExpiredTokenPurges(t *testing.T) {
	slots := newMemSlots()
	expired := signed(t, jwt.MapClaims{"sub": "5", "exp": time.Now().Add(-time.Second).Unix()})
	rec, _ := json.Marshal(map[string]any{"token": expired})
	slots.data[authz.ActorAdmin] = rec

	st := session.NewState(slots, &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if st.Admin.Token != "" || st.Admin.Identity != nil {
		t.Fatalf("expired session must bootstrap empty")
	}
	if !st.Admin.Ready {
		t.Fatalf("session must be ready even after a purge")
	}
	if _, ok := slots.data[authz.ActorAdmin]; ok {
		t.Fatalf("expired durable record must be cleared")
	}
}

func TestBootstrapMalformedRecordPurges(t *testing.T) {
	slots := newMemSlots()
	slots.data[authz.ActorEmployee] = []byte("{not json")

	st := session.NewState(slots, &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if st.Employee.Token != "" {
		t.Fatalf("malformed record must bootstrap empty")
	}
	if _, ok := slots.data[authz.ActorEmployee]; ok {
		t.Fatalf("malformed durable record must be cleared")
	}
}

func TestBootstrapDecodesIdentityWhenMissing(t *testing.T) {
	slots := newMemSlots()
	tok := signed(t, jwt.MapClaims{"sub": "9", "perms": []any{"orders.read"}})
	rec, _ := json.Marshal(map[string]any{"token": tok})
	slots.data[authz.ActorEmployee] = rec

	st := session.NewState(slots, &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	id := st.Employee.Identity
	if id == nil || id.ID != "9" {
		t.Fatalf("identity should be re-decoded from the token, got %+v", id)
	}
	if id.RoleKey != "employee" {
		t.Fatalf("decoded identity should default its role to the actor, got %q", id.RoleKey)
	}
}

func TestBootstrapAcceptsUserSpellingInEmployeeSlot(t *testing.T) {
	slots := newMemSlots()
	tok := signed(t, jwt.MapClaims{"sub": "3"})
	rec, _ := json.Marshal(map[string]any{
		"token": tok,
		"user":  map[string]any{"id": "3", "name": "Ravi"},
	})
	slots.data[authz.ActorEmployee] = rec

	st := session.NewState(slots, &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if st.Employee.Identity == nil || st.Employee.Identity.DisplayName != "Ravi" {
		t.Fatalf("older records keyed by \"user\" must still load, got %+v", st.Employee.Identity)
	}
}

func TestBootstrapIdempotent(t *testing.T) {
	slots := newMemSlots()
	tok := signed(t, jwt.MapClaims{"sub": "5", "role": "manager"})
	rec, _ := json.Marshal(map[string]any{"token": tok})
	slots.data[authz.ActorAdmin] = rec

	st := session.NewState(slots, &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	firstToken, firstID := st.Admin.Token, st.Admin.Identity

	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if st.Admin.Token != firstToken {
		t.Fatalf("second bootstrap changed the token")
	}
	if st.Admin.Identity == nil || firstID == nil || st.Admin.Identity.ID != firstID.ID {
		t.Fatalf("second bootstrap changed the identity")
	}
}

func TestLoginPersistsAndClearsOtherActor(t *testing.T) {
	slots := newMemSlots()
	slots.data[authz.ActorAdmin] = []byte(`{"token":"stale-admin"}`)

	tok := signed(t, jwt.MapClaims{"sub": "21", "perms": []any{"orders.read"}})
	auth := &stubAuth{payload: &upstream.LoginPayload{
		Token:    tok,
		Employee: &authz.Identity{ID: "21", Email: "staff@x.test", Permissions: []string{"orders.read"}},
	}}

	st := session.NewState(slots, auth)
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := st.Login(context.Background(), authz.ActorEmployee, "staff@x.test", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, ok := slots.data[authz.ActorAdmin]; ok {
		t.Fatalf("employee login must clear the admin durable record")
	}
	raw, ok := slots.data[authz.ActorEmployee]
	if !ok {
		t.Fatalf("employee durable record must be written")
	}
	var stored map[string]json.RawMessage
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("stored record should be JSON: %v", err)
	}
	if _, ok := stored["employee"]; !ok {
		t.Fatalf("employee record should keep its identity under \"employee\"")
	}
	if st.Employee.Token != tok {
		t.Fatalf("in-memory token not updated")
	}
	if st.PendingRedirect() != "/app" {
		t.Fatalf("login should navigate to the employee home, got %q", st.PendingRedirect())
	}
	if !st.Employee.Can("orders.read") || st.Employee.Can("products.read") {
		t.Fatalf("capability surface should reflect the granted permissions")
	}
}

func TestLoginClearFailureWritesNothing(t *testing.T) {
	inner := newMemSlots()
	staleTok := signed(t, jwt.MapClaims{"sub": "9", "role": "admin"})
	staleRec, _ := json.Marshal(map[string]any{"token": staleTok})
	inner.data[authz.ActorAdmin] = staleRec
	slots := &faultySlots{memSlots: inner, failClear: authz.ActorAdmin}

	tok := signed(t, jwt.MapClaims{"sub": "21"})
	auth := &stubAuth{payload: &upstream.LoginPayload{
		Token:    tok,
		Employee: &authz.Identity{ID: "21"},
	}}

	st := session.NewState(slots, auth)
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := st.Login(context.Background(), authz.ActorEmployee, "staff@x.test", "pw"); err == nil {
		t.Fatalf("expected the storage failure to surface")
	}
	if _, ok := inner.data[authz.ActorEmployee]; ok {
		t.Fatalf("a failed login must not persist the new record alongside the old one")
	}
	if st.Employee.Token != "" {
		t.Fatalf("a failed login must not update in-memory state")
	}
}

func TestLoginTokenFieldFallback(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"sub": "7", "role": "admin"})
	auth := &stubAuth{payload: &upstream.LoginPayload{AccessToken: tok}}

	st := session.NewState(newMemSlots(), auth)
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := st.Login(context.Background(), authz.ActorAdmin, "a@x.test", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if st.Admin.Identity == nil || st.Admin.Identity.ID != "7" {
		t.Fatalf("identity should fall back to decoding the token, got %+v", st.Admin.Identity)
	}
	if st.PendingRedirect() != "/admin" {
		t.Fatalf("admin login should navigate to /admin")
	}
}

func TestLoginInvalidResponse(t *testing.T) {
	st := session.NewState(newMemSlots(), &stubAuth{payload: &upstream.LoginPayload{}})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	err := st.Login(context.Background(), authz.ActorAdmin, "a@x.test", "pw")
	if !errors.Is(err, session.ErrInvalidLoginResponse) {
		t.Fatalf("expected ErrInvalidLoginResponse, got %v", err)
	}
	if st.Admin.Token != "" {
		t.Fatalf("failed login must not leave partial state")
	}
}

func TestLoginUpstreamErrorPropagates(t *testing.T) {
	authErr := &upstream.AuthError{Status: 401, Message: "Email atau password salah"}
	st := session.NewState(newMemSlots(), &stubAuth{err: authErr})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	err := st.Login(context.Background(), authz.ActorAdmin, "a@x.test", "pw")
	var got *upstream.AuthError
	if !errors.As(err, &got) || got.Message != authErr.Message {
		t.Fatalf("upstream error message should surface, got %v", err)
	}
}

func TestLogoutAdminClearsBothSlots(t *testing.T) {
	slots := newMemSlots()
	slots.data[authz.ActorAdmin] = []byte(`{"token":"a"}`)
	slots.data[authz.ActorEmployee] = []byte(`{"token":"e"}`)

	st := session.NewState(slots, &stubAuth{})
	if err := st.Logout(context.Background(), authz.ActorAdmin); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(slots.data) != 0 {
		t.Fatalf("admin logout clears both durable slots, left %v", slots.data)
	}
	if st.PendingRedirect() != "/login" {
		t.Fatalf("logout should navigate to login")
	}
}

func TestLogoutEmployeeKeepsAdminSlot(t *testing.T) {
	slots := newMemSlots()
	slots.data[authz.ActorAdmin] = []byte(`{"token":"a"}`)
	slots.data[authz.ActorEmployee] = []byte(`{"token":"e"}`)

	st := session.NewState(slots, &stubAuth{})
	if err := st.Logout(context.Background(), authz.ActorEmployee); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := slots.data[authz.ActorAdmin]; !ok {
		t.Fatalf("employee logout must not touch the admin slot")
	}
	if _, ok := slots.data[authz.ActorEmployee]; ok {
		t.Fatalf("employee slot should be cleared")
	}
}

func TestInvalidateScopedToActor(t *testing.T) {
	slots := newMemSlots()
	adminTok := signed(t, jwt.MapClaims{"sub": "1", "role": "admin"})
	empTok := signed(t, jwt.MapClaims{"sub": "2", "role": "employee"})
	recA, _ := json.Marshal(map[string]any{"token": adminTok})
	recE, _ := json.Marshal(map[string]any{"token": empTok})
	slots.data[authz.ActorAdmin] = recA
	slots.data[authz.ActorEmployee] = recE

	st := session.NewState(slots, &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := st.Invalidate(context.Background(), authz.ActorAdmin); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if st.Admin.Token != "" || st.Admin.Identity != nil {
		t.Fatalf("admin session should be cleared")
	}
	if st.Employee.Token != empTok {
		t.Fatalf("employee session must be untouched by an admin invalidation")
	}
	if st.PendingRedirect() != "" {
		t.Fatalf("invalidation alone must not navigate")
	}
}

func TestActiveActorPriority(t *testing.T) {
	slots := newMemSlots()
	st := session.NewState(slots, &stubAuth{})
	if err := st.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if st.Active("/login") != nil {
		t.Fatalf("no tokens means no active actor")
	}

	st.Admin.Token = "a"
	st.Employee.Token = "e"
	if got := st.Active("/app/orders"); got != st.Employee {
		t.Fatalf("employee area prefers the employee session")
	}
	if got := st.Active("/admin/orders"); got != st.Admin {
		t.Fatalf("admin area prefers the admin session")
	}
	if got := st.Active("/login"); got != st.Admin {
		t.Fatalf("neutral paths fall back to admin first")
	}

	st.Admin.Token = ""
	if got := st.Active("/login"); got != st.Employee {
		t.Fatalf("neutral paths fall back to employee when no admin token")
	}
}

func TestManagerLoadRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	manager := session.NewManager(client, "console_session", time.Hour, false, &stubAuth{})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	st, cookie, err := manager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatalf("a fresh visitor should get a cookie")
	}
	if !st.Ready() {
		t.Fatalf("loaded state should be ready")
	}

	// Seed a durable admin record for that visitor and load again.
	tok := signed(t, jwt.MapClaims{"sub": "11", "role": "admin"})
	rec, _ := json.Marshal(map[string]any{"token": tok})
	if err := mr.Set("console:"+cookie.Value+":adminAuth", string(rec)); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	again := httptest.NewRequest(http.MethodGet, "/admin", nil)
	again.AddCookie(&http.Cookie{Name: "console_session", Value: cookie.Value})
	st2, cookie2, err := manager.Load(context.Background(), again)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if cookie2.Value != cookie.Value {
		t.Fatalf("returning visitor should keep their cookie")
	}
	if st2.Admin.Token != tok {
		t.Fatalf("stored admin session should bootstrap from redis")
	}
}
