// Package domain holds value types shared across modules.
package domain

// Role is the coarse account role carried by the session token.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
)

// Valid reports whether the role is one of the defined values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleAgent:
		return true
	}
	return false
}

// ActorContext identifies the already-authenticated caller of a request.
// It is produced by the session middleware and threaded explicitly into every
// core call; the core never authenticates credentials itself and never reads
// ambient session state.
type ActorContext struct {
	ActorID int64
	Role    Role
	ScopeID int64
}

// IsZero reports whether no actor was attached to the request.
func (a ActorContext) IsZero() bool { return a.ActorID == 0 }
