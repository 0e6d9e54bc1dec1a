package discovery

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBroadcastAddress(t *testing.T) {
	ip := net.ParseIP("192.168.1.42").To4()
	mask := net.CIDRMask(24, 32)
	got := GetBroadcastAddress(ip, mask)
	assert.Equal(t, "192.168.1.255", got.String())
}

func TestGetNetworkAddress(t *testing.T) {
	ip := net.ParseIP("192.168.1.42").To4()
	mask := net.CIDRMask(24, 32)
	got := GetNetworkAddress(ip, mask)
	assert.Equal(t, "192.168.1.0", got.String())
}

func TestGetBroadcastAddressSmallerSubnet(t *testing.T) {
	ip := net.ParseIP("10.0.5.200").To4()
	mask := net.CIDRMask(28, 32) // 16 addresses
	got := GetBroadcastAddress(ip, mask)
	assert.Equal(t, "10.0.5.207", got.String())
}
