package domain

// PermissionLevel orders the privilege an agent holds inside the help desk.
type PermissionLevel int

const (
	PermissionNone PermissionLevel = iota
	PermissionSupport
	PermissionAdmin
)

// Allows reports whether p satisfies the required level.
func (p PermissionLevel) Allows(required PermissionLevel) bool {
	return p >= required
}

func (p PermissionLevel) String() string {
	switch p {
	case PermissionSupport:
		return "support"
	case PermissionAdmin:
		return "admin"
	default:
		return "none"
	}
}
