package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig holds the tunable runtime knobs that are not wire-protocol
// constants: timeouts, queue capacities, and the phase-compiler's scheduling
// constants. Fields are optional pointers so a partial JSON overlay leaves
// the rest at their documented defaults — the same pattern as the teacher's
// internal/config/tuning.go.
type TuningConfig struct {
	ConnectTimeoutMs      *int64 `json:"connect_timeout_ms,omitempty"`
	HeartbeatIntervalMs   *int64 `json:"heartbeat_interval_ms,omitempty"`
	HeartbeatTimeoutMs    *int64 `json:"heartbeat_timeout_ms,omitempty"`
	KeepAliveIntervalMs   *int64 `json:"keep_alive_interval_ms,omitempty"`
	KeepAliveTimeoutMs    *int64 `json:"keep_alive_timeout_ms,omitempty"`
	DiscoveryWindowMs     *int64 `json:"discovery_window_ms,omitempty"`

	ProfileQueueCapacity *int `json:"profile_queue_capacity,omitempty"`
	FrameSlotCapacity    *int `json:"frame_slot_capacity,omitempty"`
	FrameThreshold       *int `json:"frame_threshold,omitempty"`

	MinScanPeriodPerElementUs *int64 `json:"min_scan_period_per_element_us,omitempty"`
	MaxConfigurationGroups    *int   `json:"max_configuration_groups,omitempty"`
	MaxElementsPerHead        *int   `json:"max_elements_per_head,omitempty"`

	RowTimeNs              *int64 `json:"row_time_ns,omitempty"`
	OverheadRows           *int64 `json:"overhead_rows,omitempty"`
	SafetyMarginRows       *int64 `json:"safety_margin_rows,omitempty"`
	CameraStartEarlyOffsetNs *int64 `json:"camera_start_early_offset_ns,omitempty"`

	ScanSyncStartOffsetNs *int64 `json:"scan_sync_start_offset_ns,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields nil; every Get*
// accessor falls back to its documented default.
func EmptyTuningConfig() *TuningConfig { return &TuningConfig{} }

// LoadTuningConfig loads a TuningConfig overlay from a JSON file, validating
// the path the way the teacher's LoadTuningConfig does (extension check,
// 1MB size cap).
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set fields hold sane values.
func (c *TuningConfig) Validate() error {
	if c.ProfileQueueCapacity != nil && *c.ProfileQueueCapacity <= 0 {
		return fmt.Errorf("profile_queue_capacity must be positive, got %d", *c.ProfileQueueCapacity)
	}
	if c.FrameSlotCapacity != nil && *c.FrameSlotCapacity <= 0 {
		return fmt.Errorf("frame_slot_capacity must be positive, got %d", *c.FrameSlotCapacity)
	}
	if c.MaxElementsPerHead != nil && *c.MaxElementsPerHead <= 0 {
		return fmt.Errorf("max_elements_per_head must be positive, got %d", *c.MaxElementsPerHead)
	}
	return nil
}

func (c *TuningConfig) GetConnectTimeout() time.Duration {
	if c == nil || c.ConnectTimeoutMs == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.ConnectTimeoutMs) * time.Millisecond
}

func (c *TuningConfig) GetHeartbeatInterval() time.Duration {
	if c == nil || c.HeartbeatIntervalMs == nil {
		return 250 * time.Millisecond
	}
	return time.Duration(*c.HeartbeatIntervalMs) * time.Millisecond
}

// GetHeartbeatTimeout returns the TCP socket send/recv deadline used as the
// heartbeat failure detector.
func (c *TuningConfig) GetHeartbeatTimeout() time.Duration {
	if c == nil || c.HeartbeatTimeoutMs == nil {
		return 2200 * time.Millisecond
	}
	return time.Duration(*c.HeartbeatTimeoutMs) * time.Millisecond
}

func (c *TuningConfig) GetKeepAliveInterval() time.Duration {
	if c == nil || c.KeepAliveIntervalMs == nil {
		return 1000 * time.Millisecond
	}
	return time.Duration(*c.KeepAliveIntervalMs) * time.Millisecond
}

func (c *TuningConfig) GetKeepAliveTimeout() time.Duration {
	if c == nil || c.KeepAliveTimeoutMs == nil {
		return 3000 * time.Millisecond
	}
	return time.Duration(*c.KeepAliveTimeoutMs) * time.Millisecond
}

func (c *TuningConfig) GetDiscoveryWindow() time.Duration {
	if c == nil || c.DiscoveryWindowMs == nil {
		return 200 * time.Millisecond
	}
	return time.Duration(*c.DiscoveryWindowMs) * time.Millisecond
}

func (c *TuningConfig) GetProfileQueueCapacity() int {
	if c == nil || c.ProfileQueueCapacity == nil {
		return 100
	}
	return *c.ProfileQueueCapacity
}

// GetFrameSlotCapacity returns the per-(head,camera,laser) frame-slot
// overflow capacity.
func (c *TuningConfig) GetFrameSlotCapacity() int {
	if c == nil || c.FrameSlotCapacity == nil {
		return 1000
	}
	return *c.FrameSlotCapacity
}

// GetFrameThreshold returns the forced-take frame size.
func (c *TuningConfig) GetFrameThreshold() int {
	if c == nil || c.FrameThreshold == nil {
		return 50
	}
	return *c.FrameThreshold
}

func (c *TuningConfig) GetMinScanPeriodPerElementUs() int64 {
	if c == nil || c.MinScanPeriodPerElementUs == nil {
		return 250
	}
	return *c.MinScanPeriodPerElementUs
}

func (c *TuningConfig) GetMaxConfigurationGroups() int {
	if c == nil || c.MaxConfigurationGroups == nil {
		return 8
	}
	return *c.MaxConfigurationGroups
}

func (c *TuningConfig) GetMaxElementsPerHead() int {
	if c == nil || c.MaxElementsPerHead == nil {
		return 8
	}
	return *c.MaxElementsPerHead
}

func (c *TuningConfig) GetRowTimeNs() int64 {
	if c == nil || c.RowTimeNs == nil {
		return 3210
	}
	return *c.RowTimeNs
}

func (c *TuningConfig) GetOverheadRows() int64 {
	if c == nil || c.OverheadRows == nil {
		return 42
	}
	return *c.OverheadRows
}

func (c *TuningConfig) GetSafetyMarginRows() int64 {
	if c == nil || c.SafetyMarginRows == nil {
		return 3
	}
	return *c.SafetyMarginRows
}

// GetFrameOverheadTimeNs returns frame_overhead_time_ns = RowTimeNs * (4 +
// OverheadRows + SafetyMarginRows).
func (c *TuningConfig) GetFrameOverheadTimeNs() int64 {
	return c.GetRowTimeNs() * (4 + c.GetOverheadRows() + c.GetSafetyMarginRows())
}

// GetCameraStartEarlyOffsetNs returns the camera-start early-offset, added
// once to the first phase's duration.
func (c *TuningConfig) GetCameraStartEarlyOffsetNs() int64 {
	if c == nil || c.CameraStartEarlyOffsetNs == nil {
		return 9500
	}
	return *c.CameraStartEarlyOffsetNs
}

// GetScanSyncStartOffsetNs returns the firmware-rollover-avoidance offset
// applied to the adopted ScanSync start time.
func (c *TuningConfig) GetScanSyncStartOffsetNs() int64 {
	if c == nil || c.ScanSyncStartOffsetNs == nil {
		return 22_000_000
	}
	return *c.ScanSyncStartOffsetNs
}
