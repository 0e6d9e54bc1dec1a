// Package version carries the client API version and the compatibility rule
// used to decide whether a discovered scan head can be driven by this
// client.
package version

import "fmt"

// Build metadata, set at link time via -ldflags the same way the original
// velocity.report binaries stamp Version/GitSHA/BuildTime.
var (
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// Semantic is a {major, minor, patch} version triple as carried on the wire
// by discovery replies and heartbeat/status responses.
type Semantic struct {
	Major uint16
	Minor uint16
	Patch uint16
}

func (v Semantic) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Client is the API version this build of the client implements. Discovery
// probes advertise it; ScanSystem.Connect rejects scan heads whose major
// version differs.
var Client = Semantic{Major: 16, Minor: 3, Patch: 0}

// IsCompatibleWith reports whether a scan head advertising version v may be
// driven by the client: the major versions must match exactly.
func IsCompatibleWith(v Semantic) bool {
	return v.Major == Client.Major
}

// SupportsHeartbeat reports whether firmware version v is new enough to use
// the TCP-socket-timeout heartbeat rather than the legacy KeepAlive
// fallback. Firmware >= 16.3.0 supports heartbeat.
func SupportsHeartbeat(v Semantic) bool {
	if v.Major != 16 {
		return v.Major > 16
	}
	if v.Minor != 3 {
		return v.Minor > 3
	}
	return v.Patch >= 0
}
