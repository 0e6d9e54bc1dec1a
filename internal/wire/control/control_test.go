package control

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := ConnectMsg{ConnectionType: ConnectionNormal, ScanHeadID: 3, Serial: 12345}
	env := Encode(MessageConnect, msg.Encode())

	typ, payload, err := Decode(env)
	require.NoError(t, err)
	assert.Equal(t, MessageConnect, typ)

	got, err := DecodeConnectMsg(payload)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestScanStartRoundTrip(t *testing.T) {
	msg := ScanStartMsg{StartTimeNs: 1_700_000_000_000}
	env := Encode(MessageScanStart, msg.Encode())
	typ, payload, err := Decode(env)
	require.NoError(t, err)
	assert.Equal(t, MessageScanStart, typ)
	got, err := DecodeScanStartMsg(payload)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestScanConfigurationRoundTrip(t *testing.T) {
	msg := ScanConfigurationMsg{PeriodUs: 1000, DataFormat: 2, Mode: 1, IdlePeriodUs: 5000}
	payload := msg.Encode()
	got, err := DecodeScanConfigurationMsg(payload)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestWindowMsgRoundTrip(t *testing.T) {
	msg := WindowMsg{
		VerticesXMm: []float64{0, 10, 10, 0},
		VerticesYMm: []float64{0, 0, 10, 10},
	}
	payload := msg.Encode()
	got, err := DecodeWindowMsg(payload)
	require.NoError(t, err)
	assert.Equal(t, msg.VerticesXMm, got.VerticesXMm)
	assert.Equal(t, msg.VerticesYMm, got.VerticesYMm)
}

func TestExclusionMaskRoundTrip(t *testing.T) {
	msg := ExclusionMaskMsg{Height: 4, Width: 8, Bits: []byte{0xFF, 0x00, 0x0F, 0xF0}}
	payload := msg.Encode()
	got, err := DecodeExclusionMaskMsg(payload)
	require.NoError(t, err)
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("exclusion mask round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMissingEnvelopeType(t *testing.T) {
	_, _, err := Decode(nil)
	require.Error(t, err)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "Connect", MessageConnect.String())
	assert.Contains(t, MessageType(999).String(), "999")
}
