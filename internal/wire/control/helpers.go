package control

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendVarintField(buf []byte, num protowire.Number, v uint64) []byte {
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	buf = protowire.AppendVarint(buf, v)
	return buf
}

// walkFields iterates every (field number, wire type, remaining-buffer)
// triple in payload, delegating consumption of the value to fn. fn returns
// the number of bytes it consumed (as reported by the matching
// protowire.Consume* call) or an error.
func walkFields(payload []byte, fn func(num int32, typ protowire.Type, buf []byte) (int, error)) error {
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return protowire.ParseError(n)
		}
		payload = payload[n:]
		consumed, err := fn(int32(num), typ, payload)
		if err != nil {
			return err
		}
		payload = payload[consumed:]
	}
	return nil
}

func doubleBits(f float64) uint64   { return math.Float64bits(f) }
func doubleFromBits(b uint64) float64 { return math.Float64frombits(b) }
