// Package scansync implements the ScanSyncReceiver: a UDP listener for
// encoder/time-sync beacons, one process-wide listener shared across every
// scan-head session.
package scansync

import (
	"context"
	"encoding/binary"
	"net"
	"sort"
	"sync"

	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/logging"
	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
)

// BeaconSize is the fixed 32-byte encoder beacon length.
const BeaconSize = 4 * 6 + 8

// Beacon is one decoded ScanSync encoder/time-sync beacon.
type Beacon struct {
	Serial        int32
	Sequence      int32
	EncoderTsSec  int32
	EncoderTsNs   int32
	LastTsSec     int32
	LastTsNs      int32
	EncoderValue  int64
}

// EncoderTimestampNs returns the beacon's encoder timestamp as nanoseconds
// since its epoch.
func (b Beacon) EncoderTimestampNs() int64 {
	return int64(b.EncoderTsSec)*1_000_000_000 + int64(b.EncoderTsNs)
}

func decodeBeacon(buf []byte) (Beacon, error) {
	if len(buf) != BeaconSize {
		return Beacon{}, scanerr.Wrap(scanerr.Protocol, scanerr.ErrTruncated, "beacon size %d, want %d", len(buf), BeaconSize)
	}
	be := binary.BigEndian
	return Beacon{
		Serial:       int32(be.Uint32(buf[0:])),
		Sequence:     int32(be.Uint32(buf[4:])),
		EncoderTsSec: int32(be.Uint32(buf[8:])),
		EncoderTsNs:  int32(be.Uint32(buf[12:])),
		LastTsSec:    int32(be.Uint32(buf[16:])),
		LastTsNs:     int32(be.Uint32(buf[20:])),
		EncoderValue: int64(be.Uint64(buf[24:])),
	}, nil
}

// Receiver listens for ScanSync beacons and maintains the latest beacon per
// serial.
type Receiver struct {
	mu     sync.RWMutex
	latest map[int32]Beacon
	tuning *config.TuningConfig
}

// NewReceiver returns an empty Receiver.
func NewReceiver(tuning *config.TuningConfig) *Receiver {
	return &Receiver{latest: make(map[int32]Beacon), tuning: tuning}
}

// Run listens on ScanSyncIngressPort until ctx is cancelled.
func (r *Receiver) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: config.ScanSyncIngressPort})
	if err != nil {
		return scanerr.Wrap(scanerr.Transport, scanerr.ErrSocketError, "scansync listen: %v", err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 128)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return scanerr.Wrap(scanerr.Transport, scanerr.ErrSocketError, "scansync read: %v", err)
		}
		b, err := decodeBeacon(buf[:n])
		if err != nil {
			logging.Debugf("scansync: dropping malformed beacon: %v", err)
			continue
		}
		r.mu.Lock()
		r.latest[b.Serial] = b
		r.mu.Unlock()
	}
}

// Latest returns the most recent beacon for serial, if any.
func (r *Receiver) Latest(serial int32) (Beacon, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.latest[serial]
	return b, ok
}

// Main returns the "main" ScanSync beacon by convention: the lowest serial
// currently known.
func (r *Receiver) Main() (Beacon, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.latest) == 0 {
		return Beacon{}, false
	}
	serials := make([]int32, 0, len(r.latest))
	for s := range r.latest {
		serials = append(serials, s)
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	return r.latest[serials[0]], true
}

// StartTimeNs computes the coordinated scan start time from the main
// ScanSync beacon: last_encoder_ts_ns + the firmware-rollover-avoidance
// offset, or 0 if no sync is present.
func (r *Receiver) StartTimeNs() int64 {
	b, ok := r.Main()
	if !ok {
		return 0
	}
	return b.EncoderTimestampNs() + r.tuning.GetScanSyncStartOffsetNs()
}
