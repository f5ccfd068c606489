// Package token reads the claims embedded in the platform's bearer tokens.
// The console never verifies signatures: the upstream API is the authority on
// token validity, and every protected call is revalidated server side. The
// claims are only used to seed identity and permission state client side.
package token

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shaadicards/console/internal/authz"
)

var parser = jwt.NewParser()

// Decode extracts the identity from a bearer token's claims. It returns nil
// on any malformed input; nothing escapes this boundary as a panic or error.
func Decode(tok string) *authz.Identity {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return nil
	}
	id := &authz.Identity{
		ID:          stringClaim(claims, "sub", "id"),
		Email:       stringClaim(claims, "email"),
		DisplayName: stringClaim(claims, "name"),
		RoleKey:     stringClaim(claims, "role", "type"),
		Roles:       rolesClaim(claims),
		Permissions: listClaim(claims, "perms", "permissions"),
		Super:       boolClaim(claims, "is_super", "is_super_admin"),
	}
	return id
}

// IsExpired reports whether the token's exp claim lies in the past. A token
// that cannot be parsed counts as expired; a readable token without an exp
// claim does not.
func IsExpired(tok string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	if exp == nil {
		return false
	}
	return !exp.Time.After(time.Now())
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func boolClaim(claims jwt.MapClaims, keys ...string) bool {
	for _, k := range keys {
		if v, ok := claims[k].(bool); ok && v {
			return true
		}
	}
	return false
}

func listClaim(claims jwt.MapClaims, keys ...string) []string {
	for _, k := range keys {
		raw, ok := claims[k].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func rolesClaim(claims jwt.MapClaims) []authz.Role {
	raw, ok := claims["roles"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var roles []authz.Role
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil
	}
	return roles
}
