package system

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/discovery"
	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/phase"
	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
	"github.com/scanhead-sdk/scanhead-go/internal/session"
	"github.com/scanhead-sdk/scanhead-go/internal/wire/control"
)

func pipeDialer(conns ...net.Conn) session.Dialer {
	i := 0
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		c := conns[i]
		i++
		return c, nil
	}
}

func serveHandshake(t *testing.T, server net.Conn) {
	t.Helper()
	serveHandshakeWithCameras(t, server, 0)
}

func serveHandshakeWithCameras(t *testing.T, server net.Conn, detectedCameras uint32) {
	t.Helper()
	status := control.StatusResponseMsg{
		MinScanPeriodUs: 500, FirmwareMajor: 16, FirmwareMinor: 3, FirmwarePatch: 0,
		DetectedCameras: detectedCameras,
	}
	go func() {
		lenBuf := make([]byte, 4)
		if _, err := server.Read(lenBuf); err != nil {
			return
		}
		rest := make([]byte, binary.LittleEndian.Uint32(lenBuf))
		server.Read(rest)

		payload := control.Encode(control.MessageStatusResponse, status.Encode())
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(payload)))
		server.Write(lenBuf)
		server.Write(payload)

		for {
			if _, err := server.Read(lenBuf); err != nil {
				return
			}
		}
	}()
}

func TestCreateScanHeadRejectsDuplicate(t *testing.T) {
	sys := New(config.EmptyTuningConfig(), nil)
	_, err := sys.CreateScanHead(1, 100, "host")
	require.NoError(t, err)
	_, err = sys.CreateScanHead(1, 100, "host")
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.State))
}

func TestConnectFanOutReachesConnectedIdle(t *testing.T) {
	sys := New(config.EmptyTuningConfig(), nil)

	controlClient, controlServer := net.Pipe()
	dataClient, dataServer := net.Pipe()
	defer controlServer.Close()
	defer dataServer.Close()
	serveHandshake(t, controlServer)

	sess, err := sys.CreateScanHead(1, 1, "ignored", session.WithDialer(pipeDialer(controlClient, dataClient)))
	require.NoError(t, err)

	require.NoError(t, sys.Connect(context.Background(), time.Second))
	assert.Equal(t, session.StateConnectedIdle, sess.State())
}

func TestStartScanningRejectsPeriodBelowCompiledMinimum(t *testing.T) {
	sys := New(config.EmptyTuningConfig(), nil)

	b := phase.NewBuilder(8)
	b.AddPhase()
	require.NoError(t, b.AddPhaseElement(model.PhaseElement{
		ScanHeadID: 1,
		Pair:       model.CameraLaserPair{CameraPort: 0},
		OverrideConfig: model.Some(model.HeadConfig{DefaultLaserOnTimeUs: 500}),
	}))
	require.NoError(t, sys.SetPhaseTable(b.Table()))

	err := sys.StartScanning(context.Background(), model.ConfigurableOptions{PeriodUs: 1})
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.Argument))
}

func TestCreateScanHeadRejectsUndiscoveredSerial(t *testing.T) {
	sys := New(config.EmptyTuningConfig(), nil)
	sys.SetDiscovered([]discovery.DiscoveredDevice{{Serial: 100}})

	_, err := sys.CreateScanHead(1, 100, "host")
	require.NoError(t, err)

	_, err = sys.CreateScanHead(2, 200, "host")
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.State))
	assert.ErrorIs(t, err, scanerr.ErrNotDiscovered)
}

func TestTakeProfileRejectsUnknownScanHead(t *testing.T) {
	sys := New(config.EmptyTuningConfig(), nil)
	_, err := sys.TakeProfile(context.Background(), 9, time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, scanerr.ErrUnknownScanHead)
}

// TestConnectThenStartScanningSucceeds exercises the full path a caller
// that never touches Window/ExclusionMask/BrightnessCorrection/
// ScanSyncMapping actually takes: only Configuration should remain dirty
// after Connect, and StartScanning must not reject it.
func TestConnectThenStartScanningSucceeds(t *testing.T) {
	sys := New(config.EmptyTuningConfig(), nil)

	controlClient, controlServer := net.Pipe()
	dataClient, dataServer := net.Pipe()
	defer controlServer.Close()
	defer dataServer.Close()
	serveHandshake(t, controlServer)

	_, err := sys.CreateScanHead(1, 1, "ignored", session.WithDialer(pipeDialer(controlClient, dataClient)))
	require.NoError(t, err)
	require.NoError(t, sys.Connect(context.Background(), time.Second))

	b := phase.NewBuilder(8)
	b.AddPhase()
	require.NoError(t, b.AddPhaseElement(model.PhaseElement{
		ScanHeadID:     1,
		Pair:           model.CameraLaserPair{CameraPort: 0},
		OverrideConfig: model.Some(model.HeadConfig{DefaultLaserOnTimeUs: 500}),
	}))
	require.NoError(t, sys.SetPhaseTable(b.Table()))

	err = sys.StartScanning(context.Background(), model.ConfigurableOptions{PeriodUs: 100000})
	require.NoError(t, err)
}

func TestConnectRejectsMissingRequiredCamera(t *testing.T) {
	sys := New(config.EmptyTuningConfig(), nil)

	controlClient, controlServer := net.Pipe()
	dataClient, dataServer := net.Pipe()
	defer controlServer.Close()
	defer dataServer.Close()
	serveHandshakeWithCameras(t, controlServer, 0x1) // only camera port 0 detected

	_, err := sys.CreateScanHead(1, 1, "ignored", session.WithDialer(pipeDialer(controlClient, dataClient)))
	require.NoError(t, err)

	b := phase.NewBuilder(8)
	b.AddPhase()
	require.NoError(t, b.AddPhaseElement(model.PhaseElement{
		ScanHeadID: 1,
		Pair:       model.CameraLaserPair{CameraPort: 1}, // not detected
	}))
	require.NoError(t, sys.SetPhaseTable(b.Table()))

	err = sys.Connect(context.Background(), time.Second)
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.Compatibility))
	assert.ErrorIs(t, err, scanerr.ErrMissingCamera)
}

func TestTakeFrameTimesOutWithNoProfiles(t *testing.T) {
	sys := New(config.EmptyTuningConfig(), nil)
	_, err := sys.CreateScanHead(1, 1, "ignored")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sys.TakeFrame(ctx, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, scanerr.Is(err, scanerr.Transport))
}
