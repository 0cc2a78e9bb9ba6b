package permission

// Capability is a bit position inside a Mask64.
type Capability uint8

const (
	CapManageTenant Capability = iota
	CapManageUsers
	CapReadTips
	CapGrantIdentityAccess
	CapAccessOwnTip
	CapChangePassword

	capabilityCount
)

var capabilityNames = [capabilityCount]string{
	CapManageTenant:        "manage_tenant",
	CapManageUsers:         "manage_users",
	CapReadTips:            "read_tips",
	CapGrantIdentityAccess: "grant_identity_access",
	CapAccessOwnTip:        "access_own_tip",
	CapChangePassword:      "change_password",
}

func (c Capability) String() string {
	if c >= capabilityCount {
		return "unknown"
	}
	return capabilityNames[c]
}

type Mask64 uint64

func (m Mask64) Has(c Capability) bool {
	if c >= 64 {
		return false
	}
	return m&(1<<c) != 0
}

func (m *Mask64) Set(c Capability) {
	if c >= 64 {
		return
	}
	*m |= 1 << c
}

func (m *Mask64) Clear(c Capability) {
	if c >= 64 {
		return
	}
	*m &^= 1 << c
}

func (m Mask64) Raw() uint64 {
	return uint64(m)
}

// Names lists the capabilities set in m in bit order.
func (m Mask64) Names() []string {
	out := make([]string, 0, capabilityCount)
	for c := Capability(0); c < capabilityCount; c++ {
		if m.Has(c) {
			out = append(out, c.String())
		}
	}
	return out
}

// CapabilitiesFor returns the fixed capability set granted to role.
func CapabilitiesFor(role Role) Mask64 {
	var m Mask64
	switch role {
	case RoleAdmin:
		m.Set(CapManageTenant)
		m.Set(CapManageUsers)
		m.Set(CapChangePassword)
	case RoleCustodian:
		m.Set(CapGrantIdentityAccess)
		m.Set(CapChangePassword)
	case RoleReceiver:
		m.Set(CapReadTips)
		m.Set(CapChangePassword)
	case RoleWhistleblower:
		m.Set(CapAccessOwnTip)
	}
	return m
}
