package permission

import (
	"errors"
	"strings"
)

// ErrUnknownRole is returned when a role name does not map to a known role.
var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of identity classes a principal can authenticate as.
// The zero value is not a valid role.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleCustodian
	RoleReceiver
	RoleWhistleblower
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleCustodian:
		return "custodian"
	case RoleReceiver:
		return "receiver"
	case RoleWhistleblower:
		return "whistleblower"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCustodian, RoleReceiver, RoleWhistleblower:
		return true
	default:
		return false
	}
}

// Staff reports whether r authenticates with username and password (or auth
// token) rather than with a receipt.
func (r Role) Staff() bool {
	switch r {
	case RoleAdmin, RoleCustodian, RoleReceiver:
		return true
	case RoleWhistleblower:
		return false
	default:
		return false
	}
}

// ParseRole maps a wire name to a Role.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "admin":
		return RoleAdmin, nil
	case "custodian":
		return RoleCustodian, nil
	case "receiver":
		return RoleReceiver, nil
	case "whistleblower":
		return RoleWhistleblower, nil
	default:
		return 0, ErrUnknownRole
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
