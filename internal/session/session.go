package session

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanhead-sdk/scanhead-go/internal/assembler"
	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/logging"
	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/queue"
	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
	"github.com/scanhead-sdk/scanhead-go/internal/timeutil"
	"github.com/scanhead-sdk/scanhead-go/internal/version"
	"github.com/scanhead-sdk/scanhead-go/internal/wire/control"
)

// State is one node of the session state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedIdle
	StateScanning
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedIdle:
		return "connected"
	case StateScanning:
		return "scanning"
	default:
		return "unknown"
	}
}

// Dialer opens a TCP connection; tests substitute it to hand back one side
// of a net.Pipe instead of dialing a real socket.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

func defaultDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// Session is one scan head's connection: control socket, data socket, the
// state machine guarding which operations are legal, and the liveness
// detector (heartbeat or legacy keepalive) that drives a connected session
// to Disconnected when the peer stops responding.
type Session struct {
	ScanHeadID model.ScanHeadID
	Serial     model.SerialNumber
	Host       string

	// CorrelationID tags every log line this session emits, so a
	// multi-head run's interleaved debug output can be told apart.
	CorrelationID string

	tuning *config.TuningConfig
	clock  timeutil.Clock
	dial   Dialer

	mu               sync.Mutex
	state            State
	dirty            model.DirtyFlags
	headConfig       model.HeadConfig
	firmware         version.Semantic
	cableOrientation model.CableOrientation
	detectedCameras  uint32
	lastErr          error

	controlConn net.Conn
	dataConn    net.Conn
	sendMu      sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	profiles  *queue.Overflow[*model.Profile]
	asm       *assembler.Assembler
	frameSink func(*model.Profile)
}

// SetFrameSink registers a callback that receives every completed profile
// in addition to it being queued for take_profile. ScanSystem wires this to
// its FrameQueueManager when the system is running in frame mode.
func (s *Session) SetFrameSink(fn func(*model.Profile)) {
	s.mu.Lock()
	s.frameSink = fn
	s.mu.Unlock()
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithClock overrides the session's time source, which drives the heartbeat
// and keep-alive send tickers. Heartbeat timeout detection is a socket read
// deadline on wall-clock time and does not use this clock.
func WithClock(c timeutil.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithDialer overrides how control/data sockets are opened.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// New returns a Disconnected Session for the given scan head.
func New(head model.ScanHeadID, serial model.SerialNumber, host string, tuning *config.TuningConfig, opts ...Option) *Session {
	s := &Session{
		ScanHeadID:    head,
		Serial:        serial,
		Host:          host,
		CorrelationID: uuid.New().String(),
		tuning:        tuning,
		clock:      timeutil.RealClock{},
		dial:       defaultDialer,
		profiles:   queue.New[*model.Profile](tuning.GetProfileQueueCapacity()),
		asm:        assembler.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error that caused the most recent transition to
// Disconnected, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// HeadConfig returns the per-head configuration cached from the connect
// handshake's status response.
func (s *Session) HeadConfig() model.HeadConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headConfig
}

// DetectedCameras returns the bitmask of camera ports the head reported as
// physically present in its status response.
func (s *Session) DetectedCameras() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectedCameras
}

// Dirty returns the currently-latched dirty flags.
func (s *Session) Dirty() model.DirtyFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// SetCableOrientation records which way this head's network cable runs.
// The value is only stored and read back by CableOrientation; it is not
// passed on to the frame manager.
func (s *Session) SetCableOrientation(o model.CableOrientation) {
	s.mu.Lock()
	s.cableOrientation = o
	s.mu.Unlock()
}

// CableOrientation returns the recorded cable orientation.
func (s *Session) CableOrientation() model.CableOrientation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cableOrientation
}

// Profiles returns the session's profile queue, consumed by take_profile.
func (s *Session) Profiles() *queue.Overflow[*model.Profile] {
	return s.profiles
}

// Connect dials the control and data sockets, performs the connect
// handshake, and starts the liveness detector and data receive loop.
// Connect fails with ErrAlreadyRegistered if the session is not currently
// Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return scanerr.Wrap(scanerr.State, scanerr.ErrAlreadyRegistered, "scan head %d", s.ScanHeadID)
	}
	s.state = StateConnecting
	s.lastErr = nil
	s.mu.Unlock()

	connectCtx, cancelDial := context.WithTimeout(ctx, s.tuning.GetConnectTimeout())
	defer cancelDial()

	controlAddr := net.JoinHostPort(s.Host, strconv.Itoa(config.ControlPort))
	dataAddr := net.JoinHostPort(s.Host, strconv.Itoa(config.DataPort))

	controlConn, err := s.dial(connectCtx, "tcp", controlAddr)
	if err != nil {
		return s.failConnect(scanerr.Wrap(scanerr.Transport, scanerr.ErrSocketError, "dial control: %v", err))
	}
	dataConn, err := s.dial(connectCtx, "tcp", dataAddr)
	if err != nil {
		controlConn.Close()
		return s.failConnect(scanerr.Wrap(scanerr.Transport, scanerr.ErrSocketError, "dial data: %v", err))
	}

	s.mu.Lock()
	s.controlConn = controlConn
	s.dataConn = dataConn
	s.mu.Unlock()

	connectMsg := control.ConnectMsg{
		ConnectionType: control.ConnectionNormal,
		ScanHeadID:     uint32(s.ScanHeadID),
		Serial:         uint32(s.Serial),
	}
	if err := s.sendControl(control.MessageConnect, connectMsg.Encode()); err != nil {
		return s.failConnect(err)
	}

	status, err := s.readStatusResponse()
	if err != nil {
		return s.failConnect(err)
	}

	firmware := version.Semantic{Major: uint16(status.FirmwareMajor), Minor: uint16(status.FirmwareMinor), Patch: uint16(status.FirmwarePatch)}
	if !version.IsCompatibleWith(firmware) {
		return s.failConnect(scanerr.Wrap(scanerr.Compatibility, scanerr.ErrVersionIncompatible, "scan head firmware %s, client %s", firmware, version.Client))
	}

	s.mu.Lock()
	s.firmware = firmware
	s.headConfig.MinScanPeriodNs = int64(status.MinScanPeriodUs) * 1000
	s.detectedCameras = status.DetectedCameras
	// Only Configuration must be resent before the first scan: it is
	// re-sent unconditionally every StartScanning (see System.StartScanning),
	// so clearing it immediately avoids requiring callers to touch window,
	// exclusion mask, brightness correction, or ScanSync mapping settings
	// they never intend to use. Those four only go dirty when a caller
	// actually applies one mid-session.
	s.dirty = model.DirtyFlags{Configuration: true}
	s.state = StateConnectedIdle
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go s.monitorControl(runCtx)
	go s.receiveData(runCtx)
	if version.SupportsHeartbeat(firmware) {
		s.wg.Add(1)
		go s.sendHeartbeats(runCtx)
	} else {
		s.wg.Add(1)
		go s.sendKeepAlives(runCtx)
	}

	return nil
}

func (s *Session) failConnect(err error) error {
	s.mu.Lock()
	s.state = StateDisconnected
	s.lastErr = err
	cc, dc := s.controlConn, s.dataConn
	s.controlConn, s.dataConn = nil, nil
	s.mu.Unlock()
	if cc != nil {
		cc.Close()
	}
	if dc != nil {
		dc.Close()
	}
	return err
}

func (s *Session) readStatusResponse() (control.StatusResponseMsg, error) {
	s.controlConn.SetReadDeadline(time.Now().Add(s.tuning.GetConnectTimeout()))
	defer s.controlConn.SetReadDeadline(time.Time{})

	buf, err := readFrame(s.controlConn)
	if err != nil {
		return control.StatusResponseMsg{}, err
	}
	t, payload, err := control.Decode(buf)
	if err != nil {
		return control.StatusResponseMsg{}, err
	}
	if t != control.MessageStatusResponse {
		return control.StatusResponseMsg{}, scanerr.Wrap(scanerr.Protocol, scanerr.ErrUnexpectedMessageType, "expected StatusResponse, got %s", t)
	}
	return control.DecodeStatusResponseMsg(payload)
}

// sendControl frames and writes an envelope on the control socket,
// serialized against heartbeat/keepalive senders via sendMu.
func (s *Session) sendControl(t control.MessageType, payload []byte) error {
	s.mu.Lock()
	conn := s.controlConn
	s.mu.Unlock()
	if conn == nil {
		return scanerr.Wrap(scanerr.State, scanerr.ErrNotConnected, "scan head %d", s.ScanHeadID)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return writeFrame(conn, control.Encode(t, payload))
}

// ApplyWindow validates and sends a scan window, clearing the Window dirty
// flag on success.
func (s *Session) ApplyWindow(w model.ScanWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	msg := control.WindowMsg{}
	for _, v := range w.Vertices {
		msg.VerticesXMm = append(msg.VerticesXMm, v.XMm)
		msg.VerticesYMm = append(msg.VerticesYMm, v.YMm)
	}
	if err := s.sendControl(control.MessageWindow, msg.Encode()); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty.Window = false
	s.mu.Unlock()
	return nil
}

// ApplyExclusionMask sends an exclusion mask, clearing its dirty flag.
func (s *Session) ApplyExclusionMask(m model.ExclusionMask) error {
	bits := make([]byte, (len(m.Bits)+7)/8)
	for i, b := range m.Bits {
		if b {
			bits[i/8] |= 1 << uint(i%8)
		}
	}
	msg := control.ExclusionMaskMsg{Height: uint32(m.Height), Width: uint32(m.Width), Bits: bits}
	if err := s.sendControl(control.MessageExclusionMask, msg.Encode()); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty.ExclusionMask = false
	s.mu.Unlock()
	return nil
}

// ApplyBrightnessCorrection sends a brightness correction curve, clearing
// its dirty flag.
func (s *Session) ApplyBrightnessCorrection(c model.BrightnessCorrection) error {
	msg := control.BrightnessCorrectionMsg{
		Offset:          c.Offset,
		ScaleFactorLow:  c.ScaleFactorLow,
		ScaleFactorHigh: c.ScaleFactorHigh,
	}
	if err := s.sendControl(control.MessageBrightnessCorrection, msg.Encode()); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty.BrightnessCorrection = false
	s.mu.Unlock()
	return nil
}

// ApplyScanSyncMapping sends a ScanSync unit-to-encoder-id mapping,
// clearing its dirty flag.
func (s *Session) ApplyScanSyncMapping(m model.ScanSyncMapping) error {
	msg := control.ScanSyncMappingMsg{ScanSyncSerial: m.ScanSyncSerial, EncoderID: m.EncoderID}
	if err := s.sendControl(control.MessageScanSyncMapping, msg.Encode()); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty.ScanSyncMapping = false
	s.mu.Unlock()
	return nil
}

// Configure sends the negotiated scan configuration, clearing its dirty
// flag.
func (s *Session) Configure(opts model.ConfigurableOptions) error {
	msg := control.ScanConfigurationMsg{
		PeriodUs:     opts.PeriodUs,
		DataFormat:   uint32(opts.DataFormat),
		Mode:         uint32(opts.Mode),
		IdlePeriodUs: opts.IdlePeriodUs,
	}
	if err := s.sendControl(control.MessageScanConfiguration, msg.Encode()); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty.Configuration = false
	s.mu.Unlock()
	return nil
}

// StartScanning transitions ConnectedIdle -> Scanning, failing with ErrDirty
// if any configuration has not yet been resent since it was marked dirty.
func (s *Session) StartScanning(startTimeNs int64) error {
	s.mu.Lock()
	if s.state != StateConnectedIdle {
		err := scanerr.Wrap(scanerr.State, scanerr.ErrNotConnected, "scan head %d in state %s", s.ScanHeadID, s.state)
		s.mu.Unlock()
		return err
	}
	if s.dirty.Any() {
		s.mu.Unlock()
		return scanerr.Wrap(scanerr.State, scanerr.ErrDirty, "scan head %d", s.ScanHeadID)
	}
	s.mu.Unlock()

	msg := control.ScanStartMsg{StartTimeNs: startTimeNs}
	if err := s.sendControl(control.MessageScanStart, msg.Encode()); err != nil {
		return err
	}

	s.profiles.Clear()
	s.profiles.ResetOverflow()

	s.mu.Lock()
	s.state = StateScanning
	s.mu.Unlock()
	return nil
}

// StopScanning transitions Scanning -> ConnectedIdle.
func (s *Session) StopScanning() error {
	s.mu.Lock()
	if s.state != StateScanning {
		err := scanerr.Wrap(scanerr.State, scanerr.ErrNotScanning, "scan head %d in state %s", s.ScanHeadID, s.state)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.sendControl(control.MessageScanStop, nil); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateConnectedIdle
	s.mu.Unlock()
	return nil
}

// Disconnect sends a best-effort Disconnect message, stops the background
// goroutines, and closes both sockets.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	conn := s.controlConn
	s.mu.Unlock()

	if conn != nil {
		_ = s.sendControl(control.MessageDisconnect, nil)
	}
	s.teardown(nil)
	return nil
}

// teardown is the single path to Disconnected: it cancels the background
// goroutines, closes both sockets, and records cause as LastError (nil for
// a caller-initiated Disconnect).
func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.lastErr = cause
	cancel := s.cancel
	cc, dc := s.controlConn, s.dataConn
	s.controlConn, s.dataConn = nil, nil
	s.mu.Unlock()

	if cause != nil {
		logging.Debugf("session[%s] head %d: disconnected: %v", s.CorrelationID, s.ScanHeadID, cause)
	}

	if cancel != nil {
		cancel()
	}
	if cc != nil {
		cc.Close()
	}
	if dc != nil {
		dc.Close()
	}
	s.wg.Wait()
}

// monitorControl owns the control socket's read deadline as the liveness
// detector: any successful read of a frame (heartbeat ack, status, or
// otherwise) pushes the deadline forward by the configured timeout. A
// deadline expiry or peer close drives the session to Disconnected.
func (s *Session) monitorControl(ctx context.Context) {
	defer s.wg.Done()
	timeout := s.livenessTimeout()

	for {
		s.mu.Lock()
		conn := s.controlConn
		s.mu.Unlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(timeout))

		buf, err := readFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			go s.teardown(err)
			return
		}
		if buf == nil {
			continue
		}
		t, payload, err := control.Decode(buf)
		if err != nil {
			logging.Debugf("session[%s] head %d: dropping malformed control frame: %v", s.CorrelationID, s.ScanHeadID, err)
			continue
		}
		if t == control.MessageStatusResponse {
			if status, err := control.DecodeStatusResponseMsg(payload); err == nil {
				s.mu.Lock()
				s.headConfig.MinScanPeriodNs = int64(status.MinScanPeriodUs) * 1000
				s.detectedCameras = status.DetectedCameras
				s.mu.Unlock()
			}
		}
	}
}

func (s *Session) livenessTimeout() time.Duration {
	s.mu.Lock()
	firmware := s.firmware
	s.mu.Unlock()
	if version.SupportsHeartbeat(firmware) {
		return s.tuning.GetHeartbeatTimeout()
	}
	return s.tuning.GetKeepAliveTimeout()
}

func (s *Session) sendHeartbeats(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.tuning.GetHeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := s.sendControl(control.MessageHeartBeat, nil); err != nil {
				go s.teardown(err)
				return
			}
		}
	}
}

func (s *Session) sendKeepAlives(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.tuning.GetKeepAliveInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := s.sendControl(control.MessageKeepAlive, nil); err != nil {
				go s.teardown(err)
				return
			}
		}
	}
}

// receiveData reads length-prefixed datagrams off the data socket, feeds
// them to the assembler, and pushes every completed profile onto the
// profile queue.
func (s *Session) receiveData(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		conn := s.dataConn
		s.mu.Unlock()
		if conn == nil {
			return
		}
		buf, err := readFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			go s.teardown(err)
			return
		}
		if buf == nil {
			continue
		}
		for _, p := range s.asm.Feed(buf) {
			s.profiles.TryPush(p)
			s.mu.Lock()
			sink := s.frameSink
			s.mu.Unlock()
			if sink != nil {
				sink(p)
			}
		}
	}
}

