// Package model holds the data types shared across the client: profiles,
// frames, phase tables, and per-head configuration. It has no outward
// dependency on any other internal package so every layer (assembler,
// frame, phase, session, system) can depend on it without cycles; the root
// facade package re-exports these as its public API.
package model

import "math"

// ScanHeadID is a small per-system integer identifying a scan head.
type ScanHeadID uint16

// SerialNumber is the scan head's unique 32-bit factory serial.
type SerialNumber uint32

// CameraLaserPair is an unordered (camera_port, laser_port) tuple; every
// physical exposure is described by one pair.
type CameraLaserPair struct {
	CameraPort uint8
	LaserPort  uint8
}

// Source packs (scan_head_id, camera_port, laser_port) the way the wire
// header does, so profiles and frame slots key identically to datagrams.
func Source(head ScanHeadID, pair CameraLaserPair) uint32 {
	return uint32(head)<<3 | uint32(pair.CameraPort)<<2 | uint32(pair.LaserPort)
}

// DataFormat selects which content types and stride a profile carries.
type DataFormat int

const (
	DataFormatXYBrightnessFull DataFormat = iota
	DataFormatXYBrightnessHalf
	DataFormatXYBrightnessQuarter
	DataFormatXYFull
	DataFormatXYHalf
	DataFormatXYQuarter
	DataFormatSubpixel
	DataFormatSubpixelBrightnessFull
)

// Stride returns the column stride implied by a Half/Quarter format.
func (f DataFormat) Stride() int {
	switch f {
	case DataFormatXYBrightnessHalf, DataFormatXYHalf:
		return 2
	case DataFormatXYBrightnessQuarter, DataFormatXYQuarter:
		return 4
	default:
		return 1
	}
}

// Invalid wire sentinels, per content type.
const (
	WireInvalidXY       = math.MinInt16
	WireInvalidSubpixel = math.MaxInt16
)

// InvalidXY converts a raw wire XY sample to its public representation:
// NaN for the sentinel, otherwise the value unchanged.
func InvalidXY(raw int16) float64 {
	if raw == WireInvalidXY {
		return math.NaN()
	}
	return float64(raw)
}

// InvalidBrightness converts a raw wire brightness sample; 0 already is the
// public invalid sentinel, so no conversion is needed beyond widening.
func InvalidBrightness(raw uint8) uint8 { return raw }

// SubpixelToCoordinate converts a raw subpixel row value to a coordinate
// the way the wire format's "row raw / 32.0" rule specifies.
func SubpixelToCoordinate(raw int16) float64 {
	if raw == WireInvalidSubpixel {
		return math.NaN()
	}
	return float64(raw) / 32.0
}

// Profile is an immutable, completed laser line cross-section.
type Profile struct {
	ScanHeadID     ScanHeadID
	Pair           CameraLaserPair
	TimestampNs    uint64
	Sequence       uint32
	Encoders       map[uint8]int64
	XMm            []float64
	YMm            []float64
	Brightness     []uint8
	SubpixelMm     []float64
	LaserOnTimeUs  uint16
	ExposureTimeUs uint16
	StartColumn    uint16
	EndColumn      uint16
	Incomplete     bool
}

// SourceKey returns the packed (head, camera, laser) composite key.
func (p *Profile) SourceKey() uint32 { return Source(p.ScanHeadID, p.Pair) }

// Frame is the tuple of the oldest profile from every active slot sharing
// one sequence number.
type Frame struct {
	Sequence uint32
	Profiles map[ScanHeadID]map[CameraLaserPair]*Profile
	// SlotOrder lists, per head, the canonical iteration order of its
	// slots — reversed relative to insertion order when that head's cable
	// is downstream.
	SlotOrder  map[ScanHeadID][]CameraLaserPair
	Incomplete bool
}

// CableOrientation controls slot ordering within an assembled frame.
type CableOrientation int

const (
	CableUpstream CableOrientation = iota
	CableIsDownstream
)

// ConfigurableOptions are the scan-wide options consumed by the core.
type ConfigurableOptions struct {
	PeriodUs           uint32
	DataFormat         DataFormat
	Mode               ScanMode
	IdlePeriodUs       uint32
	StartScanningTimeNs int64 // 0 = derive from ScanSync; non-zero is used as given
}

// ScanMode selects profile-mode or frame-mode delivery.
type ScanMode int

const (
	ModeProfile ScanMode = iota
	ModeFrame
)

// HeadConfig is the per-head configuration negotiated at connect time.
type HeadConfig struct {
	MinLaserOnTimeUs        uint32
	DefaultLaserOnTimeUs    uint32
	MaxLaserOnTimeUs        uint32
	MinCameraExposureTimeUs uint32
	DefaultCameraExposureTimeUs uint32
	MaxCameraExposureTimeUs uint32
	LaserDetectionThreshold uint32
	SaturationThreshold     uint32
	SaturationPercent       uint32
	IdleScanPeriodUs        uint32
	MinimumEncoderTravel    uint32
	MinScanPeriodNs         int64
}

// DirtyFlags tracks which per-head settings must be resent before scanning
// may start.
type DirtyFlags struct {
	Window               bool
	ExclusionMask        bool
	BrightnessCorrection bool
	Configuration        bool
	ScanSyncMapping      bool
}

// Any reports whether at least one flag is set.
func (d DirtyFlags) Any() bool {
	return d.Window || d.ExclusionMask || d.BrightnessCorrection || d.Configuration || d.ScanSyncMapping
}

// ExclusionMask is a height x width bitmap over sensor pixels; 1 excludes.
type ExclusionMask struct {
	Height int
	Width  int
	Bits   []bool // row-major, len == Height*Width
}

// Set marks pixel (row, col) excluded.
func (m *ExclusionMask) Set(row, col int) {
	if m.Bits == nil {
		m.Bits = make([]bool, m.Height*m.Width)
	}
	m.Bits[row*m.Width+col] = true
}

// Excluded reports whether pixel (row, col) is excluded.
func (m *ExclusionMask) Excluded(row, col int) bool {
	if m.Bits == nil {
		return false
	}
	return m.Bits[row*m.Width+col]
}

// BrightnessCorrection adjusts a scan head's brightness response curve.
type BrightnessCorrection struct {
	Offset          int32
	ScaleFactorLow  float64
	ScaleFactorHigh float64
}

// ScanSyncMapping assigns one ScanSync unit, identified by its serial
// number, to an encoder id the core addresses it by (Main, Aux1, ...).
type ScanSyncMapping struct {
	ScanSyncSerial uint32
	EncoderID      uint32
}
