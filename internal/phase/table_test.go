package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhead-sdk/scanhead-go/internal/model"
)

func TestBuilderRejectsDuplicateElement(t *testing.T) {
	b := NewBuilder(8)
	b.AddPhase()
	require.NoError(t, b.AddPhaseElement(model.PhaseElement{ScanHeadID: 1, Pair: model.CameraLaserPair{CameraPort: 0}}))
	err := b.AddPhaseElement(model.PhaseElement{ScanHeadID: 1, Pair: model.CameraLaserPair{CameraPort: 0}})
	require.Error(t, err)
}

func TestBuilderRejectsExceedingMaxGroups(t *testing.T) {
	b := NewBuilder(1)
	b.AddPhase()
	require.NoError(t, b.AddPhaseElement(model.PhaseElement{ScanHeadID: 1, Pair: model.CameraLaserPair{CameraPort: 0}}))
	b.AddPhase()
	err := b.AddPhaseElement(model.PhaseElement{ScanHeadID: 1, Pair: model.CameraLaserPair{CameraPort: 1}})
	require.Error(t, err)
}

func TestBuilderRejectsPrimaryMismatch(t *testing.T) {
	b := NewBuilder(8)
	b.AddPhase()
	require.NoError(t, b.AddPhaseElement(model.PhaseElement{ScanHeadID: 1, Primary: model.PrimaryCamera, Pair: model.CameraLaserPair{CameraPort: 0}}))
	b.AddPhase()
	err := b.AddPhaseElement(model.PhaseElement{ScanHeadID: 1, Primary: model.PrimaryLaser, Pair: model.CameraLaserPair{CameraPort: 1}})
	require.Error(t, err)
}

func TestBuilderRequiresAddPhaseFirst(t *testing.T) {
	b := NewBuilder(8)
	err := b.AddPhaseElement(model.PhaseElement{ScanHeadID: 1})
	require.Error(t, err)
}

func TestValidateRejectsEmptyTable(t *testing.T) {
	assert.Error(t, Validate(model.PhaseTable{}))
}

func TestValidateRejectsEmptyPhase(t *testing.T) {
	assert.Error(t, Validate(model.PhaseTable{Phases: []model.Phase{{}}}))
}

func TestValidateAcceptsNonEmptyTable(t *testing.T) {
	table := model.PhaseTable{Phases: []model.Phase{{Elements: []model.PhaseElement{{ScanHeadID: 1}}}}}
	assert.NoError(t, Validate(table))
}

func TestBuilderHeadsTracksRegisteredScanHeads(t *testing.T) {
	b := NewBuilder(8)
	b.AddPhase()
	require.NoError(t, b.AddPhaseElement(model.PhaseElement{ScanHeadID: 1, Pair: model.CameraLaserPair{CameraPort: 0}}))
	require.NoError(t, b.AddPhaseElement(model.PhaseElement{ScanHeadID: 2, Pair: model.CameraLaserPair{CameraPort: 0}}))
	assert.ElementsMatch(t, []model.ScanHeadID{1, 2}, b.Heads())
}
