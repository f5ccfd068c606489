package session

import "github.com/shaadicards/console/internal/authz"

// record is the durable blob stored in one actor slot. The identity lives
// under "user" for admins and "employee" for employees; reads accept either
// spelling because older records mixed them.
type record struct {
	Token    string          `json:"token"`
	User     *authz.Identity `json:"user,omitempty"`
	Employee *authz.Identity `json:"employee,omitempty"`
}

func newRecord(actor authz.Actor, tok string, id *authz.Identity) record {
	if actor == authz.ActorEmployee {
		return record{Token: tok, Employee: id}
	}
	return record{Token: tok, User: id}
}

func (r record) identity(actor authz.Actor) *authz.Identity {
	if actor == authz.ActorEmployee {
		if r.Employee != nil {
			return r.Employee
		}
		return r.User
	}
	if r.User != nil {
		return r.User
	}
	return r.Employee
}
