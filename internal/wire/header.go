package wire

import "github.com/scanhead-sdk/scanhead-go/internal/scanerr"

// DataType is a bitset over content types carried in a data packet.
type DataType uint16

const (
	DataTypeXY          DataType = 1 << 0
	DataTypeBrightness  DataType = 1 << 1
	DataTypeSubpixel    DataType = 1 << 2
	DataTypeReserved3   DataType = 1 << 3
)

// orderedDataTypes lists content types in canonical low-bit-first iteration
// order; fragment offsets inside a packet depend on this order matching the
// order PacketAssembler scatters samples in.
var orderedDataTypes = []DataType{DataTypeXY, DataTypeBrightness, DataTypeSubpixel, DataTypeReserved3}

// Bits returns the set content types of dt in canonical order.
func (dt DataType) Bits() []DataType {
	var out []DataType
	for _, b := range orderedDataTypes {
		if dt&b != 0 {
			out = append(out, b)
		}
	}
	return out
}

// HeaderFixedSize is the byte length of the header up to and including
// sequence_number, before the variable step and encoder arrays.
const HeaderFixedSize = 40

// DataPacketHeader is the first 40+ bytes of every datagram.
type DataPacketHeader struct {
	ExposureTimeUs  uint16
	ScanHeadID      uint8
	CameraPort      uint8
	LaserPort       uint8
	Flags           uint8
	TimestampNs     uint64
	LaserOnTimeUs   uint16
	DataType        DataType
	DataLength      uint16
	NumberEncoders  uint8
	DatagramPos     uint32
	NumberDatagrams uint32
	StartColumn     uint16
	EndColumn       uint16
	SequenceNumber  uint32

	Steps         []uint16 // one per bit set in DataType, canonical order
	EncoderValues []int64

	// contentOffset is the byte offset where content payloads begin,
	// recorded by ParseHeader for ComputeFragmentLayouts.
	contentOffset int
}

// Source packs the (scan_head_id, camera_port, laser_port) composite key
// the way profiles and frame slots are addressed.
func (h *DataPacketHeader) Source() uint32 {
	return uint32(h.ScanHeadID)<<3 | uint32(h.CameraPort)<<2 | uint32(h.LaserPort)
}

// NumColumns returns the inclusive column count end-start+1.
func (h *DataPacketHeader) NumColumns() int {
	return int(h.EndColumn) - int(h.StartColumn) + 1
}

// ParseHeader decodes a DataPacketHeader (fixed part, step array, and
// encoder array) from the front of buf. It does not parse content payloads;
// callers use FragmentLayout for that.
func ParseHeader(buf []byte) (*DataPacketHeader, error) {
	r := NewReader(buf)

	magic, err := r.U16()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, scanerr.Wrap(scanerr.Protocol, scanerr.ErrBadMagic, "got 0x%04X", magic)
	}

	h := &DataPacketHeader{}
	var e error
	read := func(fn func() error) {
		if e != nil {
			return
		}
		e = fn()
	}

	read(func() (err error) { h.ExposureTimeUs, err = r.U16(); return })
	read(func() (err error) { h.ScanHeadID, err = r.U8(); return })
	read(func() (err error) { h.CameraPort, err = r.U8(); return })
	read(func() (err error) { h.LaserPort, err = r.U8(); return })
	read(func() (err error) { h.Flags, err = r.U8(); return })
	read(func() (err error) { h.TimestampNs, err = r.U64(); return })
	read(func() (err error) { h.LaserOnTimeUs, err = r.U16(); return })
	read(func() (err error) {
		v, err := r.U16()
		h.DataType = DataType(v)
		return err
	})
	read(func() (err error) { h.DataLength, err = r.U16(); return })
	read(func() (err error) { h.NumberEncoders, err = r.U8(); return })
	read(func() error { return r.Skip(1) }) // reserved
	read(func() (err error) {
		v, err := r.U32()
		h.DatagramPos = v
		return err
	})
	read(func() (err error) { h.NumberDatagrams, err = r.U32(); return })
	read(func() (err error) { h.StartColumn, err = r.U16(); return })
	read(func() (err error) { h.EndColumn, err = r.U16(); return })
	read(func() (err error) { h.SequenceNumber, err = r.U32(); return })
	if e != nil {
		return nil, e
	}

	bits := h.DataType.Bits()
	h.Steps = make([]uint16, len(bits))
	for i := range bits {
		v, err := r.U16()
		if err != nil {
			return nil, err
		}
		h.Steps[i] = v
	}

	h.EncoderValues = make([]int64, h.NumberEncoders)
	for i := 0; i < int(h.NumberEncoders); i++ {
		v, err := r.I64()
		if err != nil {
			return nil, err
		}
		h.EncoderValues[i] = v
	}

	h.contentOffset = r.Offset()
	return h, nil
}

// FragmentLayout describes where one content type's samples live within a
// single fragment (datagram), and how many values it carries.
type FragmentLayout struct {
	Step           int
	NumVals        int
	PayloadSize    int
	OffsetInPacket int
}

// ComputeFragmentLayouts returns, for a header describing one fragment out
// of numDatagrams, the layout of every content type it carries, in
// canonical data-type order. numCols is the full profile's column count
// (end_column - start_column + 1); datagramPos is this fragment's position.
func ComputeFragmentLayouts(h *DataPacketHeader) []FragmentLayout {
	numCols := h.NumColumns()
	numDatagrams := int(h.NumberDatagrams)
	pos := int(h.DatagramPos)

	bitsSet := h.DataType.Bits()
	layouts := make([]FragmentLayout, len(bitsSet))
	offset := h.contentOffset
	for i, dt := range bitsSet {
		step := int(h.Steps[i])
		if step <= 0 {
			step = 1
		}
		base := numCols / step
		numVals := base / numDatagrams
		remainder := base % numDatagrams
		if pos < remainder {
			numVals++
		}
		sampleSize := sampleSizeFor(dt)
		payload := numVals * sampleSize
		layouts[i] = FragmentLayout{
			Step:           step,
			NumVals:        numVals,
			PayloadSize:    payload,
			OffsetInPacket: offset,
		}
		offset += payload
	}
	return layouts
}

// sampleSizeFor returns the wire byte size of one sample of content type dt.
// XY is two int16 (x,y) = 4 bytes, Brightness is 1 byte, Subpixel is one
// int16 coordinate plus one reserved byte = 3 bytes in the compact encoding.
func sampleSizeFor(dt DataType) int {
	switch dt {
	case DataTypeXY:
		return 4
	case DataTypeBrightness:
		return 1
	case DataTypeSubpixel:
		return 3
	default:
		return 2
	}
}
