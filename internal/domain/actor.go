package domain

// ActorRole differentiates the callers allowed to touch tickets.
type ActorRole string

const (
	ActorRoleGuest   ActorRole = "GUEST"
	ActorRoleStaff   ActorRole = "STAFF"
	ActorRoleManager ActorRole = "MANAGER"
	ActorRoleSystem  ActorRole = "SYSTEM"
)

// Valid reports whether r is a known role.
func (r ActorRole) Valid() bool {
	switch r {
	case ActorRoleGuest, ActorRoleStaff, ActorRoleManager, ActorRoleSystem:
		return true
	}
	return false
}

// Actor identifies who requested an operation.
type Actor struct {
	ID   string
	Role ActorRole
}

// SystemActor is used for derived operations such as automatic escalation.
func SystemActor(name string) Actor {
	return Actor{ID: "system:" + name, Role: ActorRoleSystem}
}
