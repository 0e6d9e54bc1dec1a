// Package wire implements the big-endian binary codec shared by every
// datagram and control payload on the network: primitive pack/unpack with a
// running offset, and the fixed+variable layout of a data packet header.
package wire

import (
	"encoding/binary"
	"math/bits"

	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
)

// Magic is the 16-bit value that opens every datagram header.
const Magic = 0xFACD

// Reader unpacks big-endian primitives from a byte slice while tracking a
// running offset, the way extract.go walks a Pandar40P packet buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for sequential big-endian decoding.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Offset returns the reader's current position.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

// U8 reads one unsigned byte.
func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// U16 reads a big-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// U64 reads a big-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// I16 reads a big-endian int16.
func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

// I32 reads a big-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// I64 reads a big-endian int64.
func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// Skip advances the offset by n bytes without interpreting them.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

// Writer packs big-endian primitives into a growable byte slice.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity hint n.
func NewWriter(n int) *Writer { return &Writer{buf: make([]byte, 0, n)} }

func (w *Writer) U8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) U16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *Writer) U32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *Writer) U64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *Writer) I16(v int16)  { w.U16(uint16(v)) }
func (w *Writer) I32(v int32)  { w.U32(uint32(v)) }
func (w *Writer) I64(v int64)  { w.U64(uint64(v)) }

// Bytes returns the packed buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// PopCount returns the number of set bits, used to size the per-content-type
// step array that follows the fixed header.
func PopCount(v uint16) int { return bits.OnesCount16(v) }
