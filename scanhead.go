// Package scanhead is the public client runtime for discovering, connecting
// to, and streaming profile data from networked laser-triangulation scan
// heads. It is a thin facade over the internal packages that do the actual
// wire work; most of the interesting types here are aliases so callers never
// need to import anything under internal/.
package scanhead

import (
	"context"
	"time"

	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/discovery"
	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/phase"
	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
	"github.com/scanhead-sdk/scanhead-go/internal/scansync"
	"github.com/scanhead-sdk/scanhead-go/internal/session"
	"github.com/scanhead-sdk/scanhead-go/internal/system"
)

// Core data types, aliased so callers never import internal/model directly.
type (
	ScanHeadID        = model.ScanHeadID
	SerialNumber      = model.SerialNumber
	CameraLaserPair   = model.CameraLaserPair
	DataFormat        = model.DataFormat
	Profile           = model.Profile
	Frame             = model.Frame
	CableOrientation  = model.CableOrientation
	ConfigurableOptions = model.ConfigurableOptions
	ScanMode          = model.ScanMode
	HeadConfig        = model.HeadConfig
	DirtyFlags        = model.DirtyFlags
	ExclusionMask     = model.ExclusionMask
	Vertex            = model.Vertex
	ScanWindow        = model.ScanWindow
	BrightnessCorrection = model.BrightnessCorrection
	ScanSyncMapping   = model.ScanSyncMapping
	Primary           = model.Primary
	PhaseElement      = model.PhaseElement
	Phase             = model.Phase
	PhaseTable        = model.PhaseTable

	DiscoveredDevice = discovery.DiscoveredDevice
	TuningConfig     = config.TuningConfig

	State = session.State
)

// Option represents an optional per-head configuration override.
type Option[T any] = model.Option[T]

// Data format, scan mode, and session state constants re-exported at the
// package level.
const (
	DataFormatXYBrightnessFull = model.DataFormatXYBrightnessFull

	ModeProfile = model.ModeProfile
	ModeFrame   = model.ModeFrame

	PrimaryCamera = model.PrimaryCamera
	PrimaryLaser  = model.PrimaryLaser

	StateDisconnected  = session.StateDisconnected
	StateConnecting    = session.StateConnecting
	StateConnectedIdle = session.StateConnectedIdle
	StateScanning      = session.StateScanning
)

// Some and None build an Option, as used by PhaseElement.OverrideConfig for
// optional per-element overrides.
func Some[T any](v T) Option[T] { return model.Some(v) }
func None[T any]() Option[T]    { return model.None[T]() }

// LoadTuningConfig reads ambient tuning knobs (timeouts, queue depths,
// discovery window, phase-compiler limits) from a JSON file. A nil
// *TuningConfig is valid everywhere in this package and means "use the
// built-in defaults".
func LoadTuningConfig(path string) (*TuningConfig, error) { return config.LoadTuningConfig(path) }

// PhaseBuilder assembles a PhaseTable one phase and element at a time,
// enforcing the exclusivity and max-configuration-group rules a scan system
// needs before it can compute a minimum scan period.
type PhaseBuilder struct{ b *phase.Builder }

// NewPhaseBuilder returns a PhaseBuilder bounded by maxConfigurationGroups
// simultaneous camera/laser pairs per scan head.
func NewPhaseBuilder(maxConfigurationGroups int) *PhaseBuilder {
	return &PhaseBuilder{b: phase.NewBuilder(maxConfigurationGroups)}
}

// AddPhase starts a new phase; subsequent AddPhaseElement calls add to it.
func (pb *PhaseBuilder) AddPhase() { pb.b.AddPhase() }

// AddPhaseElement adds one camera/laser exposure to the current phase.
func (pb *PhaseBuilder) AddPhaseElement(el PhaseElement) error { return pb.b.AddPhaseElement(el) }

// Heads returns every scan head id registered across the table so far.
func (pb *PhaseBuilder) Heads() []ScanHeadID { return pb.b.Heads() }

// Table returns the assembled PhaseTable.
func (pb *PhaseBuilder) Table() PhaseTable { return pb.b.Table() }

// Prober broadcasts discovery probes on the network and collects replies
// from scan heads that answer within the configured discovery window.
type Prober struct{ p *discovery.Prober }

// NewProber returns a Prober. resolver may be nil; the Prober stores it, but
// Discover does not call it.
func NewProber(tuning *TuningConfig, resolver discovery.RebootResolver) *Prober {
	return &Prober{p: discovery.NewProber(tuning, resolver)}
}

// Discover runs one broadcast/collect round and returns every device that
// replied before ctx or the discovery window expired.
func (d *Prober) Discover(ctx context.Context) ([]DiscoveredDevice, error) { return d.p.Discover(ctx) }

// CompatibleDevices filters devices down to those whose reported API major
// version is compatible with this client.
func CompatibleDevices(devices []DiscoveredDevice) []DiscoveredDevice {
	return discovery.CompatibleDevices(devices)
}

// ScanSyncReceiver listens for ScanSync broadcast beacons and tracks which
// unit is "main" for start-time coordination across scan heads.
type ScanSyncReceiver struct{ r *scansync.Receiver }

// NewScanSyncReceiver returns a receiver that has not yet started listening;
// call Run in a goroutine to begin.
func NewScanSyncReceiver(tuning *TuningConfig) *ScanSyncReceiver {
	return &ScanSyncReceiver{r: scansync.NewReceiver(tuning)}
}

// Run listens for beacons until ctx is cancelled or the socket fails.
func (r *ScanSyncReceiver) Run(ctx context.Context) error { return r.r.Run(ctx) }

// StartTimeNs returns the main ScanSync unit's latest encoder timestamp plus
// the start offset, or 0 if no beacon has been seen yet.
func (r *ScanSyncReceiver) StartTimeNs() int64 { return r.r.StartTimeNs() }

// ScanSystem is the top-level handle for driving one or more scan heads: it
// owns every connected session, the shared phase table, and the
// profile/frame delivery queues.
type ScanSystem struct{ s *system.System }

// NewScanSystem returns an empty ScanSystem. syncReceiver may be nil if no
// ScanSync units are present; StartScanning then starts immediately unless
// ConfigurableOptions.StartScanningTimeNs is set explicitly.
func NewScanSystem(tuning *TuningConfig, syncReceiver *ScanSyncReceiver) *ScanSystem {
	var r *scansync.Receiver
	if syncReceiver != nil {
		r = syncReceiver.r
	}
	return &ScanSystem{s: system.New(tuning, r)}
}

// SetDiscovered records the serials a discovery round returned. Once
// called, CreateScanHead rejects any serial that round didn't return.
func (s *ScanSystem) SetDiscovered(devices []DiscoveredDevice) { s.s.SetDiscovered(devices) }

// CreateScanHead registers a session for a discovered (or manually
// addressed) scan head. Registering the same id twice is an error, and so
// is a serial absent from the most recent SetDiscovered call, if any.
func (s *ScanSystem) CreateScanHead(id ScanHeadID, serial SerialNumber, host string) error {
	_, err := s.s.CreateScanHead(id, serial, host)
	return err
}

// Connect dials and handshakes every registered scan head in parallel,
// bounding the whole round by timeout.
func (s *ScanSystem) Connect(ctx context.Context, timeout time.Duration) error {
	return s.s.Connect(ctx, timeout)
}

// SetPhaseTable validates and installs the phase table every scan head will
// be configured against.
func (s *ScanSystem) SetPhaseTable(table PhaseTable) error { return s.s.SetPhaseTable(table) }

// GetMinScanPeriod returns the compiled minimum scan period, in
// microseconds, for the currently installed phase table.
func (s *ScanSystem) GetMinScanPeriod() int64 { return s.s.GetMinScanPeriod() }

// StartScanning configures every scan head and transitions them all to
// Scanning in parallel, coordinated by the ScanSync start time when one is
// available.
func (s *ScanSystem) StartScanning(ctx context.Context, opts ConfigurableOptions) error {
	return s.s.StartScanning(ctx, opts)
}

// StopScanning transitions every scan head back to idle in parallel.
func (s *ScanSystem) StopScanning(ctx context.Context) error { return s.s.StopScanning(ctx) }

// Disconnect tears down every scan head's connection in parallel.
func (s *ScanSystem) Disconnect(ctx context.Context) error { return s.s.Disconnect(ctx) }

// TakeProfile blocks for the next assembled profile from one scan head.
func (s *ScanSystem) TakeProfile(ctx context.Context, head ScanHeadID, timeout time.Duration) (*Profile, error) {
	return s.s.TakeProfile(ctx, head, timeout)
}

// TakeFrame blocks until one synchronized frame across all active heads is
// ready, ctx is cancelled, or timeout elapses. Only meaningful when scanning
// in frame mode.
func (s *ScanSystem) TakeFrame(ctx context.Context, timeout time.Duration) (*Frame, error) {
	return s.s.TakeFrame(ctx, timeout)
}

// ApplyWindow validates a scan window polygon and sends it to one scan head.
// The head's session state is not checked before sending.
func (s *ScanSystem) ApplyWindow(head ScanHeadID, w ScanWindow) error {
	sess, err := s.head(head)
	if err != nil {
		return err
	}
	return sess.ApplyWindow(w)
}

// ApplyExclusionMask installs a pixel exclusion mask on one scan head.
func (s *ScanSystem) ApplyExclusionMask(head ScanHeadID, m ExclusionMask) error {
	sess, err := s.head(head)
	if err != nil {
		return err
	}
	return sess.ApplyExclusionMask(m)
}

// ApplyBrightnessCorrection installs a brightness correction curve on one
// scan head.
func (s *ScanSystem) ApplyBrightnessCorrection(head ScanHeadID, c BrightnessCorrection) error {
	sess, err := s.head(head)
	if err != nil {
		return err
	}
	return sess.ApplyBrightnessCorrection(c)
}

// ApplyScanSyncMapping assigns a ScanSync unit to an encoder id on one scan
// head.
func (s *ScanSystem) ApplyScanSyncMapping(head ScanHeadID, m ScanSyncMapping) error {
	sess, err := s.head(head)
	if err != nil {
		return err
	}
	return sess.ApplyScanSyncMapping(m)
}

// SetCableOrientation records which way one scan head's cable is mounted on
// its session. Profile data and frame slot order are not changed by it.
func (s *ScanSystem) SetCableOrientation(head ScanHeadID, o CableOrientation) error {
	sess, err := s.head(head)
	if err != nil {
		return err
	}
	sess.SetCableOrientation(o)
	return nil
}

func (s *ScanSystem) head(id ScanHeadID) (*session.Session, error) {
	sess, ok := s.s.Session(id)
	if !ok {
		return nil, scanerr.Wrap(scanerr.State, scanerr.ErrUnknownScanHead, "scan head %d", id)
	}
	return sess, nil
}
