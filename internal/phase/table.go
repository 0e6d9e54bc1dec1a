// Package phase implements PhaseTable construction (with its add-time
// invariants) and the PhaseCompiler that turns a table into per-phase
// durations respecting min-scan-period and frame-overhead-time
// constraints.
package phase

import (
	"github.com/samber/lo"

	"github.com/scanhead-sdk/scanhead-go/internal/model"
	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
)

// Builder accumulates Phases and PhaseElements, enforcing the invariants
// that must hold at add time rather than at compile time.
type Builder struct {
	table       model.PhaseTable
	maxGroups   int
	headCounts  map[model.ScanHeadID]int
	headPrimary map[model.ScanHeadID]model.Primary
}

// NewBuilder returns a Builder that allows a scan head to appear at most
// maxConfigurationGroups times across the whole table.
func NewBuilder(maxConfigurationGroups int) *Builder {
	return &Builder{
		maxGroups:   maxConfigurationGroups,
		headCounts:  make(map[model.ScanHeadID]int),
		headPrimary: make(map[model.ScanHeadID]model.Primary),
	}
}

// AddPhase starts a new, empty Phase at the end of the table.
func (b *Builder) AddPhase() {
	b.table.Phases = append(b.table.Phases, model.Phase{})
}

// AddPhaseElement appends el to the most recently added phase.
func (b *Builder) AddPhaseElement(el model.PhaseElement) error {
	if len(b.table.Phases) == 0 {
		return scanerr.Wrap(scanerr.State, scanerr.ErrEmptyPhaseTable, "call AddPhase before AddPhaseElement")
	}
	cur := &b.table.Phases[len(b.table.Phases)-1]

	for _, existing := range cur.Elements {
		if existing.ScanHeadID == el.ScanHeadID && existing.Pair.CameraPort == el.Pair.CameraPort {
			return scanerr.Wrap(scanerr.State, scanerr.ErrDuplicatePhaseElement,
				"head %d camera %d already in this phase", el.ScanHeadID, el.Pair.CameraPort)
		}
	}

	if b.headCounts[el.ScanHeadID] >= b.maxGroups {
		return scanerr.Wrap(scanerr.Argument, scanerr.ErrOutOfRange,
			"head %d exceeds max_configuration_groups (%d)", el.ScanHeadID, b.maxGroups)
	}

	if existing, ok := b.headPrimary[el.ScanHeadID]; ok && existing != el.Primary {
		return scanerr.Wrap(scanerr.Argument, scanerr.ErrInvalidCamera,
			"head %d primary mismatch: registered %v, got %v", el.ScanHeadID, existing, el.Primary)
	}
	b.headPrimary[el.ScanHeadID] = el.Primary

	cur.Elements = append(cur.Elements, el)
	b.headCounts[el.ScanHeadID]++
	return nil
}

// Table returns the built PhaseTable. Every phase must be non-empty for it
// to be usable by StartScanning; that check happens at the orchestrator
// level since an empty phase is only an error in that context.
func (b *Builder) Table() model.PhaseTable { return b.table }

// Heads returns every scan head id registered in the table so far, in no
// particular order.
func (b *Builder) Heads() []model.ScanHeadID {
	return lo.Keys(b.headCounts)
}

// Validate reports ErrEmptyPhaseTable / ErrEmptyPhase if the table or any
// phase within it has no elements.
func Validate(t model.PhaseTable) error {
	if len(t.Phases) == 0 {
		return scanerr.Wrap(scanerr.State, scanerr.ErrEmptyPhaseTable, "")
	}
	for i, p := range t.Phases {
		if len(p.Elements) == 0 {
			return scanerr.Wrap(scanerr.State, scanerr.ErrEmptyPhase, "phase %d", i)
		}
	}
	return nil
}
