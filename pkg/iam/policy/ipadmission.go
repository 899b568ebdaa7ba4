package policy

import "net"

// AdmitIP evaluates ip against p's static deny/allow CIDR lists only — the
// dynamic auto-ban table is checked separately via AutoBanStore, since it
// requires the store round-trip Engine.CheckIP wraps.
func AdmitIP(ip string, p IPPolicy) IPAdmission {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return IPAdmission{Allowed: false, Reason: "ip address could not be parsed"}
	}

	for _, cidr := range p.DenyCIDRs {
		if matches(parsed, cidr) {
			return IPAdmission{Allowed: false, Reason: "ip address is in the deny list"}
		}
	}

	if len(p.AllowCIDRs) > 0 {
		inAllowList := false
		for _, cidr := range p.AllowCIDRs {
			if matches(parsed, cidr) {
				inAllowList = true
				break
			}
		}
		if !inAllowList && p.AllowListExclusive {
			return IPAdmission{Allowed: false, Reason: "ip address is not in the allow list"}
		}
	}

	return IPAdmission{Allowed: true}
}

func matches(ip net.IP, cidr string) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		// A single bare IP (no prefix) is also accepted, per operators
		// commonly writing "1.2.3.4" instead of "1.2.3.4/32".
		if single := net.ParseIP(cidr); single != nil {
			return single.Equal(ip)
		}
		return false
	}
	return network.Contains(ip)
}
