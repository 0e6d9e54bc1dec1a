// Package discovery implements the UDP broadcast probe used to find scan
// heads on the network: a fixed binary probe naming the client's API
// version, broadcast on every non-loopback IPv4 interface, with replies
// collected over a fixed window.
package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/logging"
	"github.com/scanhead-sdk/scanhead-go/internal/version"
)

// DeviceState mirrors the coarse lifecycle state a reply reports.
type DeviceState int

const (
	StateIdle DeviceState = iota
	StateReady
	StateScanning
)

// DiscoveredDevice is one probe reply.
type DiscoveredDevice struct {
	Serial     uint32
	IPServer   net.IP
	IPClient   net.IP
	ProductType uint16
	Version    version.Semantic
	LinkSpeed  uint32
	State      DeviceState
}

// Compatible reports whether the device's API major version matches the
// client's.
func (d DiscoveredDevice) Compatible() bool { return version.IsCompatibleWith(d.Version) }

// RebootResolver is an optional adapter for resolving a scan head's current
// address after it reboots (e.g. via mDNS). A Prober stores the resolver it
// is given, but Discover does not call it.
type RebootResolver interface {
	Resolve(ctx context.Context, serial uint32) (net.IP, error)
}

// noopResolver always fails, the default when no RebootResolver is wired.
type noopResolver struct{}

func (noopResolver) Resolve(context.Context, uint32) (net.IP, error) {
	return nil, fmt.Errorf("no reboot resolver configured")
}

// Prober broadcasts probes and collects replies.
type Prober struct {
	window   time.Duration
	resolver RebootResolver
}

// NewProber returns a Prober using tuning's discovery window. A nil resolver
// is replaced by noopResolver.
func NewProber(tuning *config.TuningConfig, resolver RebootResolver) *Prober {
	if resolver == nil {
		resolver = noopResolver{}
	}
	return &Prober{window: tuning.GetDiscoveryWindow(), resolver: resolver}
}

// buildProbe packs the client's API version into the fixed probe payload.
func buildProbe() []byte {
	buf := make([]byte, 6)
	binary.BigEndian.PutUint16(buf[0:2], version.Client.Major)
	binary.BigEndian.PutUint16(buf[2:4], version.Client.Minor)
	binary.BigEndian.PutUint16(buf[4:6], version.Client.Patch)
	return buf
}

// Discover broadcasts a probe on every non-loopback IPv4 interface and
// collects replies for the configured window. Each round gets its own
// correlation id, logged against every broadcast and reply so concurrent
// discovery rounds can be told apart in the debug log.
func (p *Prober) Discover(ctx context.Context) ([]DiscoveredDevice, error) {
	roundID := uuid.New().String()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("discovery listen: %w", err)
	}
	defer conn.Close()
	if err := setBroadcast(conn); err != nil {
		return nil, fmt.Errorf("discovery: enabling broadcast: %w", err)
	}

	probe := buildProbe()
	broadcasts, err := broadcastAddresses()
	if err != nil {
		return nil, err
	}
	for _, addr := range broadcasts {
		dst := &net.UDPAddr{IP: addr, Port: config.DiscoveryPort}
		if _, err := conn.WriteToUDP(probe, dst); err != nil {
			logging.Debugf("discovery[%s]: broadcast to %s failed: %v", roundID, dst, err)
		}
	}

	deadline := time.Now().Add(p.window)
	conn.SetReadDeadline(deadline)

	var devices []DiscoveredDevice
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			break // deadline exceeded or socket closed
		}
		if d, ok := parseReply(buf[:n]); ok {
			devices = append(devices, d)
		}
	}
	logging.Debugf("discovery[%s]: %d replies", roundID, len(devices))
	return devices, nil
}

// setBroadcast enables SO_BROADCAST on conn's underlying file descriptor.
// Without it, sendto(2) to a broadcast destination fails EACCES/EPERM on
// Linux; net.UDPConn has no portable SetBroadcast, so this drops to the
// raw syscall the way a C client would call setsockopt directly.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// CompatibleDevices filters devices down to those whose API major version
// matches the client's.
func CompatibleDevices(devices []DiscoveredDevice) []DiscoveredDevice {
	return lo.Filter(devices, func(d DiscoveredDevice, _ int) bool { return d.Compatible() })
}

func parseReply(buf []byte) (DiscoveredDevice, bool) {
	const minLen = 4 + 4 + 4 + 2 + 6 + 4 + 1
	if len(buf) < minLen {
		return DiscoveredDevice{}, false
	}
	off := 0
	serial := binary.BigEndian.Uint32(buf[off:])
	off += 4
	ipServer := net.IPv4(buf[off], buf[off+1], buf[off+2], buf[off+3])
	off += 4
	ipClient := net.IPv4(buf[off], buf[off+1], buf[off+2], buf[off+3])
	off += 4
	productType := binary.BigEndian.Uint16(buf[off:])
	off += 2
	major := binary.BigEndian.Uint16(buf[off:])
	minor := binary.BigEndian.Uint16(buf[off+2:])
	patch := binary.BigEndian.Uint16(buf[off+4:])
	off += 6
	linkSpeed := binary.BigEndian.Uint32(buf[off:])
	off += 4
	state := DeviceState(buf[off])

	return DiscoveredDevice{
		Serial:      serial,
		IPServer:    ipServer,
		IPClient:    ipClient,
		ProductType: productType,
		Version:     version.Semantic{Major: major, Minor: minor, Patch: patch},
		LinkSpeed:   linkSpeed,
		State:       state,
	}, true
}
