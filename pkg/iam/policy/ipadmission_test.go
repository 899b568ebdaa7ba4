package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmitIPDenyList(t *testing.T) {
	p := IPPolicy{DenyCIDRs: []string{"10.0.0.0/8", "192.168.1.0/24"}}

	assert.False(t, AdmitIP("10.1.2.3", p).Allowed)
	assert.False(t, AdmitIP("192.168.1.77", p).Allowed)
	assert.True(t, AdmitIP("192.168.2.1", p).Allowed)
	assert.True(t, AdmitIP("8.8.8.8", p).Allowed)
}

func TestAdmitIPExclusiveAllowList(t *testing.T) {
	p := IPPolicy{AllowCIDRs: []string{"203.0.113.0/24"}, AllowListExclusive: true}

	assert.True(t, AdmitIP("203.0.113.9", p).Allowed)
	assert.False(t, AdmitIP("198.51.100.1", p).Allowed)
}

func TestAdmitIPNonExclusiveAllowListAdmitsOthers(t *testing.T) {
	p := IPPolicy{AllowCIDRs: []string{"203.0.113.0/24"}}

	assert.True(t, AdmitIP("198.51.100.1", p).Allowed)
}

func TestAdmitIPDenyWinsOverAllow(t *testing.T) {
	p := IPPolicy{
		DenyCIDRs:          []string{"203.0.113.7/32"},
		AllowCIDRs:         []string{"203.0.113.0/24"},
		AllowListExclusive: true,
	}

	assert.False(t, AdmitIP("203.0.113.7", p).Allowed)
	assert.True(t, AdmitIP("203.0.113.8", p).Allowed)
}

func TestAdmitIPBareAddressEntries(t *testing.T) {
	p := IPPolicy{DenyCIDRs: []string{"1.2.3.4"}}

	assert.False(t, AdmitIP("1.2.3.4", p).Allowed)
	assert.True(t, AdmitIP("1.2.3.5", p).Allowed)
}

func TestAdmitIPRejectsUnparsable(t *testing.T) {
	assert.False(t, AdmitIP("not-an-ip", IPPolicy{}).Allowed)
}

func TestAdmitIPIPv6(t *testing.T) {
	p := IPPolicy{DenyCIDRs: []string{"2001:db8::/32"}}

	assert.False(t, AdmitIP("2001:db8::1", p).Allowed)
	assert.True(t, AdmitIP("2001:db9::1", p).Allowed)
}
