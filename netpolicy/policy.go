package netpolicy

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/MrEthical07/tipgate/permission"
)

var (
	// ErrNetworkRequired denies a role that may only log in over the
	// anonymity network.
	ErrNetworkRequired = errors.New("anonymity network required")
	// ErrOriginNotAllowed denies a client address outside the allow-list.
	ErrOriginNotAllowed = errors.New("client origin not allowed")
	// ErrInvalidAllowList reports an allow-list that does not parse.
	ErrInvalidAllowList = errors.New("invalid ip allow-list")
)

// RoleAccess holds, per role, whether login over the clear network is
// permitted. A false flag means the role must come through the anonymity
// network.
type RoleAccess struct {
	Admin         bool `yaml:"admin"`
	Custodian     bool `yaml:"custodian"`
	Receiver      bool `yaml:"receiver"`
	Whistleblower bool `yaml:"whistleblower"`
}

// Allows reports the clear-network flag for role. Unknown roles are denied.
func (a RoleAccess) Allows(role permission.Role) bool {
	switch role {
	case permission.RoleAdmin:
		return a.Admin
	case permission.RoleCustodian:
		return a.Custodian
	case permission.RoleReceiver:
		return a.Receiver
	case permission.RoleWhistleblower:
		return a.Whistleblower
	default:
		return false
	}
}

// Policy is the per-tenant network configuration.
type Policy struct {
	WebAccess       RoleAccess `yaml:"web_access"`
	IPFilterEnabled bool       `yaml:"ip_filter_enabled"`
	// IPAllowList is kept in its stored comma-separated form and parsed on
	// each check.
	IPAllowList string `yaml:"ip_allow_list"`
}

// Origin describes where a login attempt comes from.
type Origin struct {
	Tor      bool
	ClientIP string
}

// AuthorizeOrigin applies the rules for authenticated (staff) principals, in
// order:
//
//  1. clear-network client and the role's web-access flag is off: ErrNetworkRequired
//  2. IP filtering on: loopback passes, otherwise the client must match a
//     range in the allow-list or ErrOriginNotAllowed is returned.
//
// A list that fails to parse returns an error wrapping ErrInvalidAllowList.
func (p Policy) AuthorizeOrigin(role permission.Role, origin Origin) error {
	if !origin.Tor && !p.WebAccess.Allows(role) {
		return ErrNetworkRequired
	}
	if !p.IPFilterEnabled {
		return nil
	}

	list, err := ParseAllowList(p.IPAllowList)
	if err != nil {
		return err
	}

	addr, err := netip.ParseAddr(origin.ClientIP)
	if err != nil {
		return fmt.Errorf("%w: unparseable client address", ErrOriginNotAllowed)
	}
	addr = addr.WithZone("").Unmap()
	if addr.IsLoopback() || list.Contains(addr) {
		return nil
	}
	return ErrOriginNotAllowed
}

// AuthorizeReceipt applies the whistleblower rule: only the whistleblower
// web-access flag is consulted. The IP allow-list never applies to receipts.
func (p Policy) AuthorizeReceipt(origin Origin) error {
	if !origin.Tor && !p.WebAccess.Whistleblower {
		return ErrNetworkRequired
	}
	return nil
}
