package assembler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/wire"
)

func buildDatagram(t *testing.T, h *wire.DataPacketHeader, samples [][2]int16, brightness []uint8) []byte {
	t.Helper()
	w := wire.NewWriter(2048)
	w.U16(wire.Magic)
	w.U16(h.ExposureTimeUs)
	w.U8(h.ScanHeadID)
	w.U8(h.CameraPort)
	w.U8(h.LaserPort)
	w.U8(h.Flags)
	w.U64(h.TimestampNs)
	w.U16(h.LaserOnTimeUs)
	w.U16(uint16(h.DataType))
	w.U16(h.DataLength)
	w.U8(h.NumberEncoders)
	w.U8(0)
	w.U32(h.DatagramPos)
	w.U32(h.NumberDatagrams)
	w.U16(h.StartColumn)
	w.U16(h.EndColumn)
	w.U32(h.SequenceNumber)
	for _, s := range h.Steps {
		w.U16(s)
	}
	for _, e := range h.EncoderValues {
		w.I64(e)
	}
	if h.DataType&wire.DataTypeXY != 0 {
		for _, s := range samples {
			w.I16(s[0])
			w.I16(s[1])
		}
	}
	if h.DataType&wire.DataTypeBrightness != 0 {
		for _, b := range brightness {
			w.U8(b)
		}
	}
	return w.Bytes()
}

func buildSubpixelDatagram(t *testing.T, h *wire.DataPacketHeader, rows []int16) []byte {
	t.Helper()
	w := wire.NewWriter(2048)
	w.U16(wire.Magic)
	w.U16(h.ExposureTimeUs)
	w.U8(h.ScanHeadID)
	w.U8(h.CameraPort)
	w.U8(h.LaserPort)
	w.U8(h.Flags)
	w.U64(h.TimestampNs)
	w.U16(h.LaserOnTimeUs)
	w.U16(uint16(h.DataType))
	w.U16(h.DataLength)
	w.U8(h.NumberEncoders)
	w.U8(0)
	w.U32(h.DatagramPos)
	w.U32(h.NumberDatagrams)
	w.U16(h.StartColumn)
	w.U16(h.EndColumn)
	w.U32(h.SequenceNumber)
	for _, s := range h.Steps {
		w.U16(s)
	}
	for _, e := range h.EncoderValues {
		w.I64(e)
	}
	for _, r := range rows {
		w.I16(r)
		w.U8(0) // reserved byte of the 3-byte compact subpixel sample
	}
	return w.Bytes()
}

// Scenario 1: single datagram, small XY+Brightness profile, step=1.
func TestAssemblerSingleDatagramCompletes(t *testing.T) {
	const numCols = 8
	samples := make([][2]int16, numCols)
	bright := make([]uint8, numCols)
	for i := range samples {
		samples[i] = [2]int16{int16(i * 10), int16(i * 20)}
		bright[i] = byte(i)
	}

	h := &wire.DataPacketHeader{
		ScanHeadID:      1,
		CameraPort:      0,
		LaserPort:       0,
		TimestampNs:     1000,
		DataType:        wire.DataTypeXY | wire.DataTypeBrightness,
		NumberDatagrams: 1,
		DatagramPos:     0,
		StartColumn:     0,
		EndColumn:       numCols - 1,
		SequenceNumber:  5,
		Steps:           []uint16{1, 1},
	}
	buf := buildDatagram(t, h, samples, bright)

	a := New()
	completed := a.Feed(buf)
	require.Len(t, completed, 1)
	p := completed[0]
	require.Len(t, p.XMm, numCols)
	for i := 0; i < numCols; i++ {
		assert.InDelta(t, float64(i*10), p.XMm[i], 1e-9)
		assert.InDelta(t, float64(i*20), p.YMm[i], 1e-9)
		assert.Equal(t, byte(i), p.Brightness[i])
	}
	assert.False(t, p.Incomplete)
}

// Scenario 2: four-way fragmentation, any interleaving completes the profile.
func TestAssemblerFourWayFragmentation(t *testing.T) {
	const numCols = 8 // step=1, num_datagrams=4 -> 2 vals per fragment
	const numDatagrams = 4

	a := New()
	order := []uint32{2, 0, 3, 1}
	var last []*wire.DataPacketHeader
	_ = last
	var completed []int

	for _, pos := range order {
		h := &wire.DataPacketHeader{
			ScanHeadID:      2,
			TimestampNs:     2000,
			DataType:        wire.DataTypeXY,
			NumberDatagrams: numDatagrams,
			DatagramPos:     pos,
			StartColumn:     0,
			EndColumn:       numCols - 1,
			Steps:           []uint16{1},
		}
		numVals := numCols / numDatagrams
		samples := make([][2]int16, numVals)
		for i := range samples {
			samples[i] = [2]int16{int16(pos), int16(i)}
		}
		buf := buildDatagram(t, h, samples, nil)
		done := a.Feed(buf)
		completed = append(completed, len(done))
	}

	total := 0
	for _, c := range completed {
		total += c
	}
	assert.Equal(t, 1, total, "exactly one profile should complete across all four fragments")
}

// Scenario 1b: same single-datagram case, but diffed against the whole
// expected Profile struct rather than field by field.
func TestAssemblerSingleDatagramMatchesExpectedProfile(t *testing.T) {
	const numCols = 4
	samples := [][2]int16{{0, 0}, {10, 20}, {20, 40}, {30, 60}}
	bright := []uint8{0, 1, 2, 3}

	h := &wire.DataPacketHeader{
		ScanHeadID:      1,
		CameraPort:      0,
		LaserPort:       0,
		TimestampNs:     1000,
		DataType:        wire.DataTypeXY | wire.DataTypeBrightness,
		NumberDatagrams: 1,
		DatagramPos:     0,
		StartColumn:     0,
		EndColumn:       numCols - 1,
		SequenceNumber:  5,
		Steps:           []uint16{1, 1},
	}
	buf := buildDatagram(t, h, samples, bright)

	a := New()
	completed := a.Feed(buf)
	require.Len(t, completed, 1)

	want := &model.Profile{
		ScanHeadID:     1,
		Pair:           model.CameraLaserPair{CameraPort: 0, LaserPort: 0},
		TimestampNs:    1000,
		Sequence:       5,
		Encoders:       map[uint8]int64{},
		XMm:            []float64{0, 10, 20, 30},
		YMm:            []float64{0, 20, 40, 60},
		Brightness:     []uint8{0, 1, 2, 3},
		StartColumn:    0,
		EndColumn:      numCols - 1,
		Incomplete:     false,
	}
	if diff := cmp.Diff(want, completed[0]); diff != "" {
		t.Errorf("assembled profile mismatch (-want +got):\n%s", diff)
	}
}

// Scenario: single datagram carrying DataTypeSubpixel, converted via the
// raw/32.0 rule into SubpixelMm.
func TestAssemblerScattersSubpixelSamples(t *testing.T) {
	const numCols = 4
	rows := []int16{0, 320, 640, 960}

	h := &wire.DataPacketHeader{
		ScanHeadID:      3,
		TimestampNs:     3000,
		DataType:        wire.DataTypeSubpixel,
		NumberDatagrams: 1,
		DatagramPos:     0,
		StartColumn:     0,
		EndColumn:       numCols - 1,
		Steps:           []uint16{1},
	}
	buf := buildSubpixelDatagram(t, h, rows)

	a := New()
	completed := a.Feed(buf)
	require.Len(t, completed, 1)
	p := completed[0]
	require.Len(t, p.SubpixelMm, numCols)
	for i, r := range rows {
		assert.InDelta(t, float64(r)/32.0, p.SubpixelMm[i], 1e-9)
	}
}

func TestAssemblerBadMagicCounted(t *testing.T) {
	a := New()
	got := a.Feed([]byte{0x00, 0x00, 0x01})
	assert.Nil(t, got)
	assert.Equal(t, uint64(1), a.BadPackets)
}

func TestAssemblerSourceChangeFlushesIncomplete(t *testing.T) {
	a := New()

	h1 := &wire.DataPacketHeader{
		ScanHeadID: 1, TimestampNs: 100, DataType: wire.DataTypeXY,
		NumberDatagrams: 2, DatagramPos: 0, StartColumn: 0, EndColumn: 3, Steps: []uint16{1},
	}
	buf1 := buildDatagram(t, h1, [][2]int16{{1, 1}, {2, 2}}, nil)
	done := a.Feed(buf1)
	assert.Empty(t, done)

	h2 := &wire.DataPacketHeader{
		ScanHeadID: 1, TimestampNs: 200, DataType: wire.DataTypeXY,
		NumberDatagrams: 2, DatagramPos: 0, StartColumn: 0, EndColumn: 3, Steps: []uint16{1},
	}
	buf2 := buildDatagram(t, h2, [][2]int16{{3, 3}, {4, 4}}, nil)
	done = a.Feed(buf2)
	require.Len(t, done, 1)
	assert.True(t, done[0].Incomplete)
	assert.Equal(t, uint64(1), a.IncompleteProfiles)
}
