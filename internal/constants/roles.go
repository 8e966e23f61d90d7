package constants

// Platform roles.
const (
	Admin    = "admin"
	Operator = "operator"
	Investor = "investor"
	Driver   = "driver"
)

// ValidRoles is the set of allowed values for the user role column.
var ValidRoles = []string{Investor, Driver, Operator, Admin}

// IsValidRole returns true if role is one of the allowed values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
