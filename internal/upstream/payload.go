package upstream

import "github.com/shaadicards/console/internal/authz"

// LoginPayload is the authorization endpoint's success response. The platform
// has used several field names for the token and the identity object over
// time; the accessors apply the documented fallback order.
type LoginPayload struct {
	Token        string          `json:"token"`
	AccessToken  string          `json:"accessToken"`
	JWT          string          `json:"jwt"`
	AccessSnake  string          `json:"access_token"`
	User         *authz.Identity `json:"user"`
	Admin        *authz.Identity `json:"admin"`
	Employee     *authz.Identity `json:"employee"`
}

// BearerToken returns the first token field present, in priority order.
func (p *LoginPayload) BearerToken() string {
	for _, t := range []string{p.Token, p.AccessToken, p.JWT, p.AccessSnake} {
		if t != "" {
			return t
		}
	}
	return ""
}

// IdentityFor picks the identity object for the actor logging in. The actor's
// own field wins; the generic "user" field and the other actor's field are
// fallbacks, matching how the shared login endpoint labels its responses.
func (p *LoginPayload) IdentityFor(actor authz.Actor) *authz.Identity {
	var ordered []*authz.Identity
	if actor == authz.ActorEmployee {
		ordered = []*authz.Identity{p.Employee, p.User, p.Admin}
	} else {
		ordered = []*authz.Identity{p.User, p.Admin, p.Employee}
	}
	for _, id := range ordered {
		if id != nil {
			return id
		}
	}
	return nil
}

// AuthError is a rejected or failed login. Message carries the upstream
// error string when the server supplied one; callers fall back to a generic
// failure message otherwise.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "login failed"
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
