package authz

import (
	"encoding/json"
	"strings"
)

// Actor identifies one of the two credential classes the console manages.
type Actor string

const (
	ActorAdmin    Actor = "admin"
	ActorEmployee Actor = "employee"
)

// Other returns the opposite actor class.
func (a Actor) Other() Actor {
	if a == ActorAdmin {
		return ActorEmployee
	}
	return ActorAdmin
}

// Home returns the actor's landing path inside the console.
func (a Actor) Home() string {
	switch a {
	case ActorAdmin:
		return "/admin"
	case ActorEmployee:
		return "/app"
	}
	return "/login"
}

// OwnsPath reports whether the given console path lies inside the actor's area.
func (a Actor) OwnsPath(path string) bool {
	switch a {
	case ActorAdmin:
		return strings.HasPrefix(path, "/admin")
	case ActorEmployee:
		return strings.HasPrefix(path, "/app")
	}
	return false
}

// ParseActor maps a request value onto an actor class, defaulting to admin.
func ParseActor(v string) Actor {
	if strings.EqualFold(strings.TrimSpace(v), string(ActorEmployee)) {
		return ActorEmployee
	}
	return ActorAdmin
}

// Identity describes one authenticated principal as the platform reports it:
// either embedded in a bearer token's claims or returned alongside the token
// by the login endpoint.
type Identity struct {
	ID          string   `json:"id,omitempty"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"name,omitempty"`
	RoleKey     string   `json:"role,omitempty"`
	Roles       []Role   `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Super       bool     `json:"is_super,omitempty"`
}

// UnmarshalJSON accepts the several field spellings the platform uses for the
// same data: "sub" or "id", "role" or "type", "perms" or "permissions",
// "is_super" or "is_super_admin". Numeric IDs are converted to strings.
func (id *Identity) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sub         json.RawMessage `json:"sub"`
		ID          json.RawMessage `json:"id"`
		Email       string          `json:"email"`
		Name        string          `json:"name"`
		Role        string          `json:"role"`
		Type        string          `json:"type"`
		RoleKey     string          `json:"role_key"`
		Roles       []Role          `json:"roles"`
		Perms       []string        `json:"perms"`
		Permissions []string        `json:"permissions"`
		Super       bool            `json:"is_super"`
		SuperAdmin  bool            `json:"is_super_admin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id.ID = flexString(raw.Sub)
	if id.ID == "" {
		id.ID = flexString(raw.ID)
	}
	id.Email = raw.Email
	id.DisplayName = raw.Name
	id.RoleKey = firstNonEmpty(raw.RoleKey, raw.Role, raw.Type)
	id.Roles = raw.Roles
	id.Permissions = raw.Perms
	if len(id.Permissions) == 0 {
		id.Permissions = raw.Permissions
	}
	id.Super = raw.Super || raw.SuperAdmin
	return nil
}

// Role is a single role descriptor. The platform sends roles either as bare
// strings or as objects whose identifying field varies by endpoint.
type Role struct {
	Key        string `json:"key,omitempty"`
	Slug       string `json:"slug,omitempty"`
	Name       string `json:"name,omitempty"`
	Title      string `json:"title,omitempty"`
	RoleName   string `json:"role,omitempty"`
	Super      bool   `json:"is_super,omitempty"`
	SuperAdmin bool   `json:"is_super_admin,omitempty"`
}

// UnmarshalJSON handles both shapes; a bare string lands in Name.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Role{Name: s}
		return nil
	}
	type plain Role
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = Role(obj)
	return nil
}

// Label returns the role's identifying string, whichever field carries it.
func (r Role) Label() string {
	return firstNonEmpty(r.Key, r.Slug, r.Name, r.Title, r.RoleName)
}

func flexString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
