// Package frame implements FrameQueueManager: in frame scanning mode, it
// aggregates profiles from each scan head's (camera, laser) slots into
// sequence-ordered frames, tolerating bounded arrival reordering across
// heads.
package frame

import (
	"sync"

	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/queue"
	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
)

// slotKey identifies one (scan head, camera, laser) FIFO.
type slotKey struct {
	head model.ScanHeadID
	pair model.CameraLaserPair
}

// ConnectionChecker reports whether a scan head's session is still
// connected, used to gate the connection-health check: an empty slot whose
// owning session has dropped fails the whole manager rather than stalling.
type ConnectionChecker interface {
	Connected(head model.ScanHeadID) bool
}

// Manager assembles per-source profile slots into Frames.
type Manager struct {
	mu              sync.Mutex
	slots           map[slotKey]*queue.Overflow[*model.Profile]
	slotOrder       []slotKey // insertion order, per-head subsequence is the canonical base order
	downstream      map[model.ScanHeadID]bool
	currentSequence uint32
	threshold       int
	overflowed      bool
	checker         ConnectionChecker
}

// NewManager returns an empty Manager. threshold is FRAME_THRESHOLD: a slot
// reaching this size forces a frame take even if other slots lag behind.
func NewManager(tuning *config.TuningConfig, checker ConnectionChecker) *Manager {
	return &Manager{
		slots:      make(map[slotKey]*queue.Overflow[*model.Profile]),
		downstream: make(map[model.ScanHeadID]bool),
		threshold:  tuning.GetFrameThreshold(),
		checker:    checker,
	}
}

// SetCableOrientation records whether head's cable is downstream, reversing
// its slot order within assembled frames.
func (m *Manager) SetCableOrientation(head model.ScanHeadID, orientation model.CableOrientation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downstream[head] = orientation == model.CableIsDownstream
}

func (m *Manager) slotFor(head model.ScanHeadID, pair model.CameraLaserPair, tuning *config.TuningConfig) *queue.Overflow[*model.Profile] {
	key := slotKey{head: head, pair: pair}
	s, ok := m.slots[key]
	if !ok {
		s = queue.New[*model.Profile](tuning.GetFrameSlotCapacity())
		m.slots[key] = s
		m.slotOrder = append(m.slotOrder, key)
	}
	return s
}

// orderedSlotKeysForHead returns head's slot keys in canonical order,
// reversed when the head's cable is downstream.
func (m *Manager) orderedSlotKeysForHead(head model.ScanHeadID) []model.CameraLaserPair {
	var pairs []model.CameraLaserPair
	for _, key := range m.slotOrder {
		if key.head == head {
			pairs = append(pairs, key.pair)
		}
	}
	if m.downstream[head] {
		for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
			pairs[i], pairs[j] = pairs[j], pairs[i]
		}
	}
	return pairs
}

// PushProfile routes a completed profile to its (head, camera, laser) slot,
// dropping the oldest buffered profile and latching overflow if the slot is
// full.
func (m *Manager) PushProfile(p *model.Profile, tuning *config.TuningConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slotFor(p.ScanHeadID, p.Pair, tuning)
	before := s.Overflowed()
	s.TryPush(p)
	if !before && s.Overflowed() {
		m.overflowed = true
	}
}

// Reset clears every slot and the current sequence counter, called on
// start_scanning.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		s.Clear()
		s.ResetOverflow()
	}
	m.currentSequence = 0
	m.overflowed = false
}

// Overflowed reports whether any slot has dropped a profile since Reset.
func (m *Manager) Overflowed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overflowed
}

// TryTakeFrame attempts to assemble the next frame. It returns (nil, false)
// when no slot has reached the forced-take threshold and the minimum
// buffered sequence hasn't caught up to currentSequence yet.
func (m *Manager) TryTakeFrame() (*model.Frame, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.slots) == 0 {
		return nil, false, nil
	}

	minSeq := ^uint32(0)
	maxSize := 0
	for key, s := range m.slots {
		if p, ok := s.Peek(); ok {
			if p.Sequence < minSeq {
				minSeq = p.Sequence
			}
		} else if m.checker != nil && !m.checker.Connected(key.head) {
			return nil, false, scanerr.Wrap(scanerr.Transport, scanerr.ErrDisconnected,
				"scan head %d disconnected with an empty frame slot", key.head)
		}
		if l := s.Len(); l > maxSize {
			maxSize = l
		}
	}

	ready := minSeq >= m.currentSequence || maxSize >= m.threshold
	if !ready {
		return nil, false, nil
	}

	f := &model.Frame{
		Sequence:  m.currentSequence,
		Profiles:  make(map[model.ScanHeadID]map[model.CameraLaserPair]*model.Profile),
		SlotOrder: make(map[model.ScanHeadID][]model.CameraLaserPair),
	}

	for key, s := range m.slots {
		p, ok := s.Peek()
		if ok && p.Sequence == m.currentSequence {
			s.TryPop()
		} else {
			f.Incomplete = true
			p = nil
		}
		if p != nil {
			heads, ok := f.Profiles[key.head]
			if !ok {
				heads = make(map[model.CameraLaserPair]*model.Profile)
				f.Profiles[key.head] = heads
			}
			heads[key.pair] = p
		}
	}

	seenHead := make(map[model.ScanHeadID]bool)
	for _, key := range m.slotOrder {
		if seenHead[key.head] {
			continue
		}
		seenHead[key.head] = true
		f.SlotOrder[key.head] = m.orderedSlotKeysForHead(key.head)
	}

	m.currentSequence++
	return f, true, nil
}
