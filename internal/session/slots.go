package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaadicards/console/internal/authz"
)

// Slots is the durable storage behind one console visitor: two independent
// records, one per actor class. Writes are last-writer-wins; the only
// cross-slot mutation is the explicit clear on login and admin logout.
type Slots interface {
	Read(ctx context.Context, actor authz.Actor) ([]byte, error)
	Write(ctx context.Context, actor authz.Actor, data []byte) error
	Clear(ctx context.Context, actor authz.Actor) error
}

func slotName(actor authz.Actor) string {
	if actor == authz.ActorEmployee {
		return "employeeAuth"
	}
	return "adminAuth"
}

// redisSlots keeps both actor slots under the visitor's ID.
type redisSlots struct {
	client *redis.Client
	id     string
	ttl    time.Duration
}

func (s *redisSlots) key(actor authz.Actor) string {
	return "console:" + s.id + ":" + slotName(actor)
}

func (s *redisSlots) Read(ctx context.Context, actor authz.Actor) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(actor)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *redisSlots) Write(ctx context.Context, actor authz.Actor, data []byte) error {
	return s.client.Set(ctx, s.key(actor), data, s.ttl).Err()
}

func (s *redisSlots) Clear(ctx context.Context, actor authz.Actor) error {
	if err := s.client.Del(ctx, s.key(actor)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Manager identifies console visitors by cookie and hands out their
// bootstrapped session state.
type Manager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	auth       AuthClient
}

// NewManager constructs a Manager.
func NewManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool, auth AuthClient) *Manager {
	return &Manager{client: client, cookieName: cookieName, ttl: ttl, secure: secure, auth: auth}
}

// CookieName returns the cookie identifier used for visitors.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Load resolves the visitor from the request cookie (minting an ID when
// absent), bootstraps both actor sessions from their durable slots, and
// returns the state together with the cookie to set on the response.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*State, *http.Cookie, error) {
	var id string
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		id = cookie.Value
	} else {
		id = uuid.NewString()
	}

	st := NewState(&redisSlots{client: m.client, id: id, ttl: m.ttl}, m.auth)
	if err := st.Bootstrap(ctx); err != nil {
		return nil, nil, err
	}

	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(m.ttl),
	}
	return st, cookie, nil
}
