package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
	"github.com/scanhead-sdk/scanhead-go/internal/wire/control"
)

func i64(v int64) *int64 { return &v }

// pipeDialer returns conns in the given order on successive calls, one per
// net.Pipe already connected to a fake-server goroutine.
func pipeDialer(conns ...net.Conn) Dialer {
	i := 0
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		c := conns[i]
		i++
		return c, nil
	}
}

// serveHandshake reads the Connect envelope off server and replies with a
// StatusResponse advertising the given firmware version.
func serveHandshake(t *testing.T, server net.Conn, major, minor, patch uint32) {
	t.Helper()
	buf, err := readFrame(server)
	require.NoError(t, err)
	mt, payload, err := control.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, control.MessageConnect, mt)
	_, err = control.DecodeConnectMsg(payload)
	require.NoError(t, err)

	status := control.StatusResponseMsg{
		DetectedCameras: 0x3,
		MinScanPeriodUs: 1000,
		FirmwareMajor:   major,
		FirmwareMinor:   minor,
		FirmwarePatch:   patch,
	}
	require.NoError(t, writeFrame(server, control.Encode(control.MessageStatusResponse, status.Encode())))
}

func TestConnectHandshakeReachesConnectedIdle(t *testing.T) {
	controlClient, controlServer := net.Pipe()
	dataClient, dataServer := net.Pipe()
	defer dataServer.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		serveHandshake(t, controlServer, 16, 3, 0)
		// swallow whatever the session sends next (heartbeats, disconnect)
		// until the test tears the pipe down.
		for {
			if _, err := readFrame(controlServer); err != nil {
				return
			}
		}
	}()

	s := New(model.ScanHeadID(1), model.SerialNumber(42), "ignored", config.EmptyTuningConfig(),
		WithDialer(pipeDialer(controlClient, dataClient)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, StateConnectedIdle, s.State())
	assert.True(t, s.Dirty().Any())

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.State())
	controlServer.Close()
	<-done
}

func TestConnectRejectsIncompatibleVersion(t *testing.T) {
	controlClient, controlServer := net.Pipe()
	dataClient, dataServer := net.Pipe()
	defer controlServer.Close()
	defer dataServer.Close()

	go serveHandshake(t, controlServer, 15, 9, 9)

	s := New(model.ScanHeadID(1), model.SerialNumber(42), "ignored", config.EmptyTuningConfig(),
		WithDialer(pipeDialer(controlClient, dataClient)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Connect(ctx)
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.Compatibility))
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectTwiceFails(t *testing.T) {
	s := New(model.ScanHeadID(1), model.SerialNumber(1), "ignored", config.EmptyTuningConfig())
	s.mu.Lock()
	s.state = StateConnectedIdle
	s.mu.Unlock()

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.State))
}

func TestHeartbeatTimeoutDrivesDisconnect(t *testing.T) {
	controlClient, controlServer := net.Pipe()
	dataClient, dataServer := net.Pipe()
	defer dataServer.Close()

	go func() {
		serveHandshake(t, controlServer, 16, 3, 0)
		// Never respond again; the session's read deadline must expire.
	}()

	tuning := &config.TuningConfig{HeartbeatTimeoutMs: i64(50), HeartbeatIntervalMs: i64(10)}
	s := New(model.ScanHeadID(1), model.SerialNumber(1), "ignored", tuning,
		WithDialer(pipeDialer(controlClient, dataClient)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	require.Eventually(t, func() bool {
		return s.State() == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	require.Error(t, s.LastError())
	controlServer.Close()
}

func TestStartScanningRejectsDirtyConfiguration(t *testing.T) {
	s := New(model.ScanHeadID(1), model.SerialNumber(1), "ignored", config.EmptyTuningConfig())
	s.mu.Lock()
	s.state = StateConnectedIdle
	s.dirty = model.DirtyFlags{Configuration: true}
	s.mu.Unlock()

	err := s.StartScanning(0)
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.State))
}

func TestStartScanningRequiresConnectedIdle(t *testing.T) {
	s := New(model.ScanHeadID(1), model.SerialNumber(1), "ignored", config.EmptyTuningConfig())
	err := s.StartScanning(0)
	require.Error(t, err)
}

func TestStopScanningRequiresScanningState(t *testing.T) {
	s := New(model.ScanHeadID(1), model.SerialNumber(1), "ignored", config.EmptyTuningConfig())
	err := s.StopScanning()
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.State))
}

func TestApplyWindowRejectsInvalidPolygon(t *testing.T) {
	s := New(model.ScanHeadID(1), model.SerialNumber(1), "ignored", config.EmptyTuningConfig())
	err := s.ApplyWindow(model.ScanWindow{Vertices: []model.Vertex{{XMm: 0, YMm: 0}, {XMm: 1, YMm: 1}}})
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.Argument))
}
