package discovery

import (
	"encoding/binary"
	"net"
)

// GetNetworkAddress computes the network address of ip/mask via raw 32-bit
// integer math (ip & mask), not byte-wise XOR.
func GetNetworkAddress(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil || len(mask) != 4 {
		return nil
	}
	ipInt := binary.BigEndian.Uint32(ip4)
	maskInt := binary.BigEndian.Uint32(mask)
	out := make(net.IP, 4)
	binary.BigEndian.PutUint32(out, ipInt&maskInt)
	return out
}

// GetBroadcastAddress computes the broadcast address of ip/mask via raw
// 32-bit integer math: (ip & mask) | ^mask.
func GetBroadcastAddress(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil || len(mask) != 4 {
		return nil
	}
	ipInt := binary.BigEndian.Uint32(ip4)
	maskInt := binary.BigEndian.Uint32(mask)
	out := make(net.IP, 4)
	binary.BigEndian.PutUint32(out, (ipInt&maskInt)|^maskInt)
	return out
}

// broadcastAddresses enumerates the IPv4 broadcast address of every
// non-loopback, up interface on the host.
func broadcastAddresses() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ipNet.IP.To4() == nil {
				continue
			}
			bcast := GetBroadcastAddress(ipNet.IP, ipNet.Mask)
			if bcast != nil {
				out = append(out, bcast)
			}
		}
	}
	return out, nil
}
