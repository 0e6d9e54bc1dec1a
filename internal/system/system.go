// Package system implements ScanSystem: the orchestrator that owns every
// ScanHeadSession plus the shared ScanSync receiver and FrameQueueManager,
// and fans connect/configure/start/stop operations out across heads with a
// bounded worker pool.
package system

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond"

	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/discovery"
	"github.com/scanhead-sdk/scanhead-go/internal/frame"
	"github.com/scanhead-sdk/scanhead-go/internal/logging"
	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/phase"
	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
	"github.com/scanhead-sdk/scanhead-go/internal/scansync"
	"github.com/scanhead-sdk/scanhead-go/internal/session"
)

// System is the top-level handle a caller drives: it owns every connected
// scan head, the shared phase table, and the frame/profile delivery queues.
type System struct {
	mu         sync.Mutex
	sessions   map[model.ScanHeadID]*session.Session
	tuning     *config.TuningConfig
	sync       *scansync.Receiver
	frames     *frame.Manager
	table      model.PhaseTable
	mode       model.ScanMode
	discovered map[model.SerialNumber]bool
}

// New returns an empty System. syncReceiver may be nil if no ScanSync units
// are present on the network; StartScanning then falls back to a start
// time of 0 (start immediately) unless ConfigurableOptions.StartScanningTimeNs
// is set explicitly.
func New(tuning *config.TuningConfig, syncReceiver *scansync.Receiver) *System {
	s := &System{
		sessions: make(map[model.ScanHeadID]*session.Session),
		tuning:   tuning,
		sync:     syncReceiver,
	}
	s.frames = frame.NewManager(tuning, connChecker{s})
	return s
}

type connChecker struct{ s *System }

func (c connChecker) Connected(head model.ScanHeadID) bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	sess, ok := c.s.sessions[head]
	return ok && sess.State() != session.StateDisconnected
}

// SetDiscovered records the serials returned by a discovery round. Once
// called, CreateScanHead rejects any serial absent from the set with
// ErrNotDiscovered. Never calling it leaves CreateScanHead unrestricted,
// for callers that address scan heads by a known host without probing.
func (s *System) SetDiscovered(devices []discovery.DiscoveredDevice) {
	discovered := make(map[model.SerialNumber]bool, len(devices))
	for _, d := range devices {
		discovered[model.SerialNumber(d.Serial)] = true
	}
	s.mu.Lock()
	s.discovered = discovered
	s.mu.Unlock()
}

// CreateScanHead registers a new session for a discovered scan head.
// Registering the same id twice fails with ErrAlreadyRegistered; if
// SetDiscovered has been called, registering a serial that round didn't
// return fails with ErrNotDiscovered. opts are forwarded to session.New;
// production callers pass none and get the real dialer and clock, tests
// inject a fake Dialer over net.Pipe.
func (s *System) CreateScanHead(id model.ScanHeadID, serial model.SerialNumber, host string, opts ...session.Option) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return nil, scanerr.Wrap(scanerr.State, scanerr.ErrAlreadyRegistered, "scan head %d", id)
	}
	if s.discovered != nil && !s.discovered[serial] {
		return nil, scanerr.Wrap(scanerr.State, scanerr.ErrNotDiscovered, "serial %d", serial)
	}
	sess := session.New(id, serial, host, s.tuning, opts...)
	s.sessions[id] = sess
	return sess, nil
}

// Session returns the registered session for id, if any.
func (s *System) Session(id model.ScanHeadID) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *System) allSessions() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// fanOut runs fn over every session in a bounded worker pool, waits for all
// of them, and returns the first error encountered (if any), the way
// ScanSystem's connect/configure/start/stop operations need an all-or-error
// outcome rather than silently ignoring per-head failures.
func (s *System) fanOut(ctx context.Context, fn func(*session.Session) error) error {
	sessions := s.allSessions()
	if len(sessions) == 0 {
		return nil
	}

	pool := pond.New(len(sessions), 0, pond.MinWorkers(len(sessions)), pond.Context(ctx))

	var errMu sync.Mutex
	var firstErr error
	for _, sess := range sessions {
		sess := sess
		pool.Submit(func() {
			if err := fn(sess); err != nil {
				logging.Debugf("system: scan head %d operation failed: %v", sess.ScanHeadID, err)
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		})
	}
	pool.StopAndWait()
	return firstErr
}

// Connect dials and handshakes every registered session in parallel,
// bounding the whole round by timeout, then verifies each head actually
// detected every camera the installed phase table requires of it.
func (s *System) Connect(ctx context.Context, timeout time.Duration) error {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.fanOut(connectCtx, func(sess *session.Session) error {
		return sess.Connect(connectCtx)
	}); err != nil {
		return err
	}

	s.mu.Lock()
	table := s.table
	s.mu.Unlock()

	for _, sess := range s.allSessions() {
		required := table.RequiredCameraMask(sess.ScanHeadID)
		if required == 0 {
			continue
		}
		if detected := sess.DetectedCameras(); detected&required != required {
			return scanerr.Wrap(scanerr.Compatibility, scanerr.ErrMissingCamera,
				"scan head %d: phase table requires camera mask 0x%x, detected 0x%x", sess.ScanHeadID, required, detected)
		}
	}
	return nil
}

// SetPhaseTable validates and installs the scan system's phase table.
func (s *System) SetPhaseTable(table model.PhaseTable) error {
	if err := phase.Validate(table); err != nil {
		return err
	}
	s.mu.Lock()
	s.table = table
	s.mu.Unlock()
	return nil
}

type headLookup struct{ s *System }

func (h headLookup) MinScanPeriodNs(head model.ScanHeadID) int64 {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	sess, ok := h.s.sessions[head]
	if !ok {
		return 0
	}
	return sess.HeadConfig().MinScanPeriodNs
}

func (h headLookup) DefaultLaserOnTimeUs(head model.ScanHeadID) uint32 {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	sess, ok := h.s.sessions[head]
	if !ok {
		return 0
	}
	return sess.HeadConfig().DefaultLaserOnTimeUs
}

// GetMinScanPeriod returns the compiled minimum scan period (microseconds)
// for the currently installed phase table.
func (s *System) GetMinScanPeriod() int64 {
	s.mu.Lock()
	table := s.table
	s.mu.Unlock()
	c := phase.NewCompiler(table, headLookup{s}, s.tuning)
	return c.GetMinScanPeriod()
}

// StartScanning validates opts against the compiled phase table and every
// session's dirty/connected state, resolves the coordinated start time, and
// transitions every session to Scanning in parallel.
func (s *System) StartScanning(ctx context.Context, opts model.ConfigurableOptions) error {
	s.mu.Lock()
	table := s.table
	mode := opts.Mode
	s.mu.Unlock()

	if err := phase.Validate(table); err != nil {
		return err
	}

	minPeriodUs := s.GetMinScanPeriod()
	if int64(opts.PeriodUs) < minPeriodUs {
		return scanerr.Wrap(scanerr.Argument, scanerr.ErrOutOfRange,
			"period_us %d below compiled minimum %d", opts.PeriodUs, minPeriodUs)
	}

	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	startTimeNs := opts.StartScanningTimeNs
	if startTimeNs == 0 && s.sync != nil {
		startTimeNs = s.sync.StartTimeNs()
	}

	if mode == model.ModeFrame {
		s.frames.Reset()
		for _, sess := range s.allSessions() {
			sess.SetFrameSink(func(p *model.Profile) { s.frames.PushProfile(p, s.tuning) })
		}
	} else {
		for _, sess := range s.allSessions() {
			sess.SetFrameSink(nil)
		}
	}

	return s.fanOut(ctx, func(sess *session.Session) error {
		if err := sess.Configure(opts); err != nil {
			return err
		}
		return sess.StartScanning(startTimeNs)
	})
}

// StopScanning transitions every session back to ConnectedIdle in parallel.
func (s *System) StopScanning(ctx context.Context) error {
	return s.fanOut(ctx, func(sess *session.Session) error {
		return sess.StopScanning()
	})
}

// Disconnect disconnects every session in parallel.
func (s *System) Disconnect(ctx context.Context) error {
	return s.fanOut(ctx, func(sess *session.Session) error {
		return sess.Disconnect()
	})
}

// TakeProfile blocks for the next profile from one scan head's queue.
func (s *System) TakeProfile(ctx context.Context, head model.ScanHeadID, timeout time.Duration) (*model.Profile, error) {
	sess, ok := s.Session(head)
	if !ok {
		return nil, scanerr.Wrap(scanerr.State, scanerr.ErrUnknownScanHead, "scan head %d", head)
	}
	return sess.Profiles().Take(ctx, timeout)
}

// TakeFrame blocks until the FrameQueueManager can assemble the next frame,
// ctx is cancelled, or timeout elapses.
func (s *System) TakeFrame(ctx context.Context, timeout time.Duration) (*model.Frame, error) {
	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()

	for {
		f, ok, err := s.frames.TryTakeFrame()
		if err != nil {
			return nil, err
		}
		if ok {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return nil, scanerr.Wrap(scanerr.Transport, scanerr.ErrTimeout, "take_frame cancelled: %v", ctx.Err())
		case <-deadline:
			return nil, scanerr.Wrap(scanerr.Transport, scanerr.ErrTimeout, "take_frame timed out after %s", timeout)
		case <-poll.C:
		}
	}
}

