package netpolicy

import (
	"fmt"
	"net/netip"
	"strings"
)

// AllowList is a parsed set of network ranges.
type AllowList []netip.Prefix

// ParseAllowList parses a comma-separated list of addresses and CIDR ranges.
// An entry containing "/" must be a canonical network (no host bits set); a
// bare address becomes a single-host range (/32 or /128). Blank entries are
// skipped. Any invalid entry fails the whole list.
func ParseAllowList(csv string) (AllowList, error) {
	var out AllowList
	for _, raw := range strings.Split(csv, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAllowList, entry, err)
			}
			if p != p.Masked() {
				return nil, fmt.Errorf("%w: %q has host bits set", ErrInvalidAllowList, entry)
			}
			out = append(out, unmapPrefix(p))
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAllowList, entry, err)
		}
		if addr.Zone() != "" {
			return nil, fmt.Errorf("%w: %q has a zone", ErrInvalidAllowList, entry)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// ValidateAllowList reports whether csv parses. Configuration writers call it
// so a malformed list is rejected before any login depends on it.
func ValidateAllowList(csv string) error {
	_, err := ParseAllowList(csv)
	return err
}

// Contains reports whether addr falls in any range of the list.
func (l AllowList) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range l {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// String renders the list back in canonical comma-separated form.
func (l AllowList) String() string {
	parts := make([]string, len(l))
	for i, p := range l {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

func unmapPrefix(p netip.Prefix) netip.Prefix {
	addr := p.Addr()
	if !addr.Is4In6() {
		return p
	}
	bits := p.Bits() - 96
	if bits < 0 {
		bits = 0
	}
	return netip.PrefixFrom(addr.Unmap(), bits).Masked()
}
