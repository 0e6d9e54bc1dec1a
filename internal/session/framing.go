// Package session implements ScanHeadSession: the per-scan-head connection
// state machine (Disconnected -> Connecting -> Connected(Idle) -> Scanning),
// its control-stream heartbeat/keepalive liveness detector, and the data
// receive loop that feeds a per-session Assembler.
package session

import (
	"encoding/binary"
	"net"

	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
)

func classifyReadErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return scanerr.Wrap(scanerr.Transport, scanerr.ErrTimeout, "%v", err)
	}
	return scanerr.Wrap(scanerr.Transport, scanerr.ErrPeerClosed, "%v", err)
}

// maxFrameBytes bounds a single length-prefixed frame so a corrupt or
// malicious length field can't trigger an unbounded allocation.
const maxFrameBytes = 16 << 20

// writeFrame writes payload on conn behind a 4-byte little-endian length
// prefix. Callers serialize writes on a socket through the session's send
// lock; writeFrame itself does no locking.
func writeFrame(conn net.Conn, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return scanerr.Wrap(scanerr.Transport, scanerr.ErrSocketError, "write frame length: %v", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := conn.Write(payload); err != nil {
		return scanerr.Wrap(scanerr.Transport, scanerr.ErrSocketError, "write frame payload: %v", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame from conn. A clean EOF on the
// length prefix is reported as ErrPeerClosed so callers can distinguish a
// graceful close from a mid-frame read error.
func readFrame(conn net.Conn) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "frame length %d exceeds max %d", n, maxFrameBytes)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := readFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			if total == 0 {
				return total, classifyReadErr(err)
			}
			return total, scanerr.Wrap(scanerr.Transport, scanerr.ErrSocketError, "short frame read: %v", err)
		}
	}
	return total, nil
}
