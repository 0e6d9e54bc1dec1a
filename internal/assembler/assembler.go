// Package assembler reconstructs profiles from datagram fragments. One
// Assembler serves one scan-head session; fragments are grouped by
// (source, timestamp_ns) and scattered into a profile's destination arrays
// at the stride and base index the wire header's fragment layout implies.
package assembler

import (
	"math/bits"

	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/wire"
)

// Assembler reassembles datagrams belonging to one scan-head session into
// completed Profiles. Not safe for concurrent use; the data receive loop
// owns it exclusively.
type Assembler struct {
	current *inProgress

	BadPackets         uint64
	IncompleteProfiles uint64
}

type inProgress struct {
	profile  *model.Profile
	source   uint32
	ts       uint64
	received uint32 // bitset over datagram_position, up to 32 fragments
	total    uint32
}

// New returns an empty Assembler.
func New() *Assembler { return &Assembler{} }

// Feed processes one datagram, returning every profile this call completes
// (usually zero or one, occasionally two: the prior profile flushed
// incomplete because a new source/timestamp arrived, plus the new one if
// it happens to complete on its very first fragment). Malformed datagrams
// are counted and dropped; Feed never returns an error for them.
func (a *Assembler) Feed(buf []byte) []*model.Profile {
	h, err := wire.ParseHeader(buf)
	if err != nil {
		a.BadPackets++
		return nil
	}

	var completed []*model.Profile
	source := h.Source()

	if a.current == nil {
		a.current = a.startProfile(h)
	} else if a.current.source != source || a.current.ts != h.TimestampNs {
		flushed := a.current.profile
		flushed.Incomplete = true
		a.IncompleteProfiles++
		completed = append(completed, flushed)
		a.current = a.startProfile(h)
	}

	a.scatter(h, buf)

	a.current.received |= 1 << h.DatagramPos
	if allBitsSet(a.current.received, a.current.total) {
		completed = append(completed, a.current.profile)
		a.current = nil
	}

	return completed
}

func (a *Assembler) startProfile(h *wire.DataPacketHeader) *inProgress {
	numCols := h.NumColumns()
	p := &model.Profile{
		ScanHeadID:    model.ScanHeadID(h.ScanHeadID),
		Pair:          model.CameraLaserPair{CameraPort: h.CameraPort, LaserPort: h.LaserPort},
		TimestampNs:   h.TimestampNs,
		Sequence:      h.SequenceNumber,
		LaserOnTimeUs: h.LaserOnTimeUs,
		ExposureTimeUs: h.ExposureTimeUs,
		StartColumn:   h.StartColumn,
		EndColumn:     h.EndColumn,
		Encoders:      make(map[uint8]int64, len(h.EncoderValues)),
	}
	for i, v := range h.EncoderValues {
		p.Encoders[uint8(i)] = v
	}

	if h.DataType&wire.DataTypeXY != 0 {
		p.XMm = fillInvalid(make([]float64, numCols))
		p.YMm = fillInvalid(make([]float64, numCols))
	}
	if h.DataType&wire.DataTypeBrightness != 0 {
		p.Brightness = make([]uint8, numCols)
	}
	if h.DataType&wire.DataTypeSubpixel != 0 {
		p.SubpixelMm = fillInvalid(make([]float64, numCols))
	}

	return &inProgress{
		profile: p,
		source:  h.Source(),
		ts:      h.TimestampNs,
		total:   h.NumberDatagrams,
	}
}

func fillInvalid(dst []float64) []float64 {
	for i := range dst {
		dst[i] = model.InvalidXY(model.WireInvalidXY)
	}
	return dst
}

// scatter copies this fragment's samples into the profile's destination
// arrays at stride step: the k-th sample lands at index
// (datagram_position + k*number_datagrams) * step.
func (a *Assembler) scatter(h *wire.DataPacketHeader, buf []byte) {
	layouts := wire.ComputeFragmentLayouts(h)
	bitsSet := h.DataType.Bits()
	pos := int(h.DatagramPos)
	numDatagrams := int(h.NumberDatagrams)
	p := a.current.profile

	for i, dt := range bitsSet {
		layout := layouts[i]
		off := layout.OffsetInPacket
		for k := 0; k < layout.NumVals; k++ {
			idx := (pos + k*numDatagrams) * layout.Step
			switch dt {
			case wire.DataTypeXY:
				if off+4 > len(buf) || idx >= len(p.XMm) {
					return
				}
				x := int16(uint16(buf[off])<<8 | uint16(buf[off+1]))
				y := int16(uint16(buf[off+2])<<8 | uint16(buf[off+3]))
				p.XMm[idx] = model.InvalidXY(x)
				p.YMm[idx] = model.InvalidXY(y)
				off += 4
			case wire.DataTypeBrightness:
				if off+1 > len(buf) || idx >= len(p.Brightness) {
					return
				}
				p.Brightness[idx] = model.InvalidBrightness(buf[off])
				off++
			case wire.DataTypeSubpixel:
				if off+3 > len(buf) || idx >= len(p.SubpixelMm) {
					return
				}
				raw := int16(uint16(buf[off])<<8 | uint16(buf[off+1]))
				p.SubpixelMm[idx] = model.SubpixelToCoordinate(raw)
				off += 3
			default:
				off += sampleStride(dt)
			}
		}
	}
}

func sampleStride(dt wire.DataType) int {
	if dt == wire.DataTypeSubpixel {
		return 3
	}
	return 2
}

// allBitsSet reports whether bits 0..total-1 are all set in received.
func allBitsSet(received, total uint32) bool {
	if total == 0 {
		return true
	}
	want := uint32(1)<<total - 1
	return received&want == want && bits.OnesCount32(received&want) == int(total)
}
