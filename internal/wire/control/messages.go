package control

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
)

// ConnectionType distinguishes a control-only probe from a full connect.
type ConnectionType uint32

const (
	ConnectionNormal ConnectionType = iota
	ConnectionStatusOnly
)

// ConnectMsg is sent on the control stream immediately after both the
// control and data sockets complete.
type ConnectMsg struct {
	ConnectionType ConnectionType
	ScanHeadID     uint32
	Serial         uint32
}

func (m ConnectMsg) Encode() []byte {
	var buf []byte
	buf = appendVarintField(buf, 1, uint64(m.ConnectionType))
	buf = appendVarintField(buf, 2, uint64(m.ScanHeadID))
	buf = appendVarintField(buf, 3, uint64(m.Serial))
	return buf
}

func DecodeConnectMsg(payload []byte) (ConnectMsg, error) {
	var m ConnectMsg
	return m, walkFields(payload, func(num int32, typ protowire.Type, buf []byte) (int, error) {
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "ConnectMsg field %d", num)
		}
		switch num {
		case 1:
			m.ConnectionType = ConnectionType(v)
		case 2:
			m.ScanHeadID = uint32(v)
		case 3:
			m.Serial = uint32(v)
		}
		return n, nil
	})
}

// ScanStartMsg carries the coordinated scan start time.
type ScanStartMsg struct {
	StartTimeNs int64
}

func (m ScanStartMsg) Encode() []byte {
	var buf []byte
	buf = appendVarintField(buf, 1, uint64(m.StartTimeNs))
	return buf
}

func DecodeScanStartMsg(payload []byte) (ScanStartMsg, error) {
	var m ScanStartMsg
	return m, walkFields(payload, func(num int32, typ protowire.Type, buf []byte) (int, error) {
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "ScanStartMsg field %d", num)
		}
		if num == 1 {
			m.StartTimeNs = int64(v)
		}
		return n, nil
	})
}

// ScanConfigurationMsg mirrors the negotiated ConfigurableOptions.
type ScanConfigurationMsg struct {
	PeriodUs    uint32
	DataFormat  uint32
	Mode        uint32
	IdlePeriodUs uint32
}

func (m ScanConfigurationMsg) Encode() []byte {
	var buf []byte
	buf = appendVarintField(buf, 1, uint64(m.PeriodUs))
	buf = appendVarintField(buf, 2, uint64(m.DataFormat))
	buf = appendVarintField(buf, 3, uint64(m.Mode))
	buf = appendVarintField(buf, 4, uint64(m.IdlePeriodUs))
	return buf
}

func DecodeScanConfigurationMsg(payload []byte) (ScanConfigurationMsg, error) {
	var m ScanConfigurationMsg
	return m, walkFields(payload, func(num int32, typ protowire.Type, buf []byte) (int, error) {
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "ScanConfigurationMsg field %d", num)
		}
		switch num {
		case 1:
			m.PeriodUs = uint32(v)
		case 2:
			m.DataFormat = uint32(v)
		case 3:
			m.Mode = uint32(v)
		case 4:
			m.IdlePeriodUs = uint32(v)
		}
		return n, nil
	})
}

// HeartBeatMsg and KeepAliveMsg carry no fields; their presence is the
// message.
type HeartBeatMsg struct{}

func (HeartBeatMsg) Encode() []byte { return nil }

type KeepAliveMsg struct{}

func (KeepAliveMsg) Encode() []byte { return nil }

// StatusResponseMsg carries the fields the session caches after status
// request/response round trips.
type StatusResponseMsg struct {
	DetectedCameras  uint32 // bitmask
	MinScanPeriodUs  uint32
	FirmwareMajor    uint32
	FirmwareMinor    uint32
	FirmwarePatch    uint32
}

func (m StatusResponseMsg) Encode() []byte {
	var buf []byte
	buf = appendVarintField(buf, 1, uint64(m.DetectedCameras))
	buf = appendVarintField(buf, 2, uint64(m.MinScanPeriodUs))
	buf = appendVarintField(buf, 3, uint64(m.FirmwareMajor))
	buf = appendVarintField(buf, 4, uint64(m.FirmwareMinor))
	buf = appendVarintField(buf, 5, uint64(m.FirmwarePatch))
	return buf
}

func DecodeStatusResponseMsg(payload []byte) (StatusResponseMsg, error) {
	var m StatusResponseMsg
	return m, walkFields(payload, func(num int32, typ protowire.Type, buf []byte) (int, error) {
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "StatusResponseMsg field %d", num)
		}
		switch num {
		case 1:
			m.DetectedCameras = uint32(v)
		case 2:
			m.MinScanPeriodUs = uint32(v)
		case 3:
			m.FirmwareMajor = uint32(v)
		case 4:
			m.FirmwareMinor = uint32(v)
		case 5:
			m.FirmwarePatch = uint32(v)
		}
		return n, nil
	})
}

// WindowMsg carries a ScanWindow as a flattened list of (x,y) mill-coordinate
// vertices; convexity/clockwise validation lives with the window type
// itself, not this codec.
type WindowMsg struct {
	VerticesXMm []float64
	VerticesYMm []float64
}

func (m WindowMsg) Encode() []byte {
	var buf []byte
	for _, x := range m.VerticesXMm {
		buf = protowire.AppendTag(buf, 1, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, doubleBits(x))
	}
	for _, y := range m.VerticesYMm {
		buf = protowire.AppendTag(buf, 2, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, doubleBits(y))
	}
	return buf
}

func DecodeWindowMsg(payload []byte) (WindowMsg, error) {
	var m WindowMsg
	err := walkFields(payload, func(num int32, typ protowire.Type, buf []byte) (int, error) {
		v, n := protowire.ConsumeFixed64(buf)
		if n < 0 {
			return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "WindowMsg field %d", num)
		}
		switch num {
		case 1:
			m.VerticesXMm = append(m.VerticesXMm, doubleFromBits(v))
		case 2:
			m.VerticesYMm = append(m.VerticesYMm, doubleFromBits(v))
		}
		return n, nil
	})
	return m, err
}

// ExclusionMaskMsg carries a raw packed bitmap.
type ExclusionMaskMsg struct {
	Height uint32
	Width  uint32
	Bits   []byte
}

func (m ExclusionMaskMsg) Encode() []byte {
	var buf []byte
	buf = appendVarintField(buf, 1, uint64(m.Height))
	buf = appendVarintField(buf, 2, uint64(m.Width))
	buf = protowire.AppendTag(buf, 3, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.Bits)
	return buf
}

func DecodeExclusionMaskMsg(payload []byte) (ExclusionMaskMsg, error) {
	var m ExclusionMaskMsg
	err := walkFields(payload, func(num int32, typ protowire.Type, buf []byte) (int, error) {
		if typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "ExclusionMaskMsg field %d", num)
			}
			if num == 3 {
				m.Bits = v
			}
			return n, nil
		}
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "ExclusionMaskMsg field %d", num)
		}
		switch num {
		case 1:
			m.Height = uint32(v)
		case 2:
			m.Width = uint32(v)
		}
		return n, nil
	})
	return m, err
}

// BrightnessCorrectionMsg adjusts a scan head's brightness response curve:
// a fixed integer offset plus low/high scale factors applied either side
// of the saturation threshold.
type BrightnessCorrectionMsg struct {
	Offset          int32
	ScaleFactorLow  float64
	ScaleFactorHigh float64
}

func (m BrightnessCorrectionMsg) Encode() []byte {
	var buf []byte
	buf = appendVarintField(buf, 1, uint64(uint32(m.Offset)))
	buf = protowire.AppendTag(buf, 2, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, doubleBits(m.ScaleFactorLow))
	buf = protowire.AppendTag(buf, 3, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, doubleBits(m.ScaleFactorHigh))
	return buf
}

func DecodeBrightnessCorrectionMsg(payload []byte) (BrightnessCorrectionMsg, error) {
	var m BrightnessCorrectionMsg
	err := walkFields(payload, func(num int32, typ protowire.Type, buf []byte) (int, error) {
		if typ == protowire.Fixed64Type {
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "BrightnessCorrectionMsg field %d", num)
			}
			switch num {
			case 2:
				m.ScaleFactorLow = doubleFromBits(v)
			case 3:
				m.ScaleFactorHigh = doubleFromBits(v)
			}
			return n, nil
		}
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "BrightnessCorrectionMsg field %d", num)
		}
		if num == 1 {
			m.Offset = int32(uint32(v))
		}
		return n, nil
	})
	return m, err
}

// ScanSyncMappingMsg assigns a ScanSync unit's serial number to an encoder
// id (Main, Aux1, ...).
type ScanSyncMappingMsg struct {
	ScanSyncSerial uint32
	EncoderID      uint32
}

func (m ScanSyncMappingMsg) Encode() []byte {
	var buf []byte
	buf = appendVarintField(buf, 1, uint64(m.ScanSyncSerial))
	buf = appendVarintField(buf, 2, uint64(m.EncoderID))
	return buf
}

func DecodeScanSyncMappingMsg(payload []byte) (ScanSyncMappingMsg, error) {
	var m ScanSyncMappingMsg
	err := walkFields(payload, func(num int32, typ protowire.Type, buf []byte) (int, error) {
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "ScanSyncMappingMsg field %d", num)
		}
		switch num {
		case 1:
			m.ScanSyncSerial = uint32(v)
		case 2:
			m.EncoderID = uint32(v)
		}
		return n, nil
	})
	return m, err
}
