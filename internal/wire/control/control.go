// Package control implements the TCP control-message envelope as a tagged
// binary union encoded with raw protobuf wire-format primitives
// (google.golang.org/protobuf/encoding/protowire) rather than generated
// Flatbuffer or protoc-gen-go bindings — the message set is small and fixed,
// so hand-written field numbers are clearer than a build-time codegen step.
package control

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
)

// MessageType tags the outer envelope so a reader can dispatch before
// decoding the type-specific payload.
type MessageType uint32

const (
	MessageConnect MessageType = iota + 1
	MessageStatusRequest
	MessageStatusResponse
	MessageScanConfiguration
	MessageScanStart
	MessageScanStop
	MessageDisconnect
	MessageHeartBeat
	MessageKeepAlive
	MessageWindow
	MessageExclusionMask
	MessageBrightnessCorrection
	MessageScanSyncMapping
)

// envelope field numbers.
const (
	fieldType    = 1
	fieldPayload = 2
)

// Encode wraps a payload (already-encoded protowire bytes) in the envelope.
func Encode(t MessageType, payload []byte) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(t))
	buf = protowire.AppendTag(buf, fieldPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, payload)
	return buf
}

// Decode splits an envelope into its MessageType and raw payload bytes.
func Decode(buf []byte) (MessageType, []byte, error) {
	var t MessageType
	var payload []byte
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return 0, nil, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "control envelope tag")
		}
		buf = buf[n:]
		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return 0, nil, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "control envelope type")
			}
			t = MessageType(v)
			buf = buf[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return 0, nil, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "control envelope payload")
			}
			payload = v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return 0, nil, scanerr.Wrap(scanerr.Protocol, scanerr.ErrUnexpectedMessageType, "field %d", num)
			}
			buf = buf[n:]
		}
	}
	if t == 0 {
		return 0, nil, scanerr.Wrap(scanerr.Protocol, scanerr.ErrUnexpectedMessageType, "missing envelope type")
	}
	return t, payload, nil
}

// String renders a MessageType for logging.
func (t MessageType) String() string {
	names := map[MessageType]string{
		MessageConnect:              "Connect",
		MessageStatusRequest:        "StatusRequest",
		MessageStatusResponse:       "StatusResponse",
		MessageScanConfiguration:    "ScanConfiguration",
		MessageScanStart:            "ScanStart",
		MessageScanStop:             "ScanStop",
		MessageDisconnect:           "Disconnect",
		MessageHeartBeat:            "HeartBeat",
		MessageKeepAlive:            "KeepAlive",
		MessageWindow:               "Window",
		MessageExclusionMask:        "ExclusionMask",
		MessageBrightnessCorrection: "BrightnessCorrection",
		MessageScanSyncMapping:      "ScanSyncMapping",
	}
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("MessageType(%d)", t)
}
