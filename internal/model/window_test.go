package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square returns a unit-orientation square. positive selects the vertex
// order that produces a positive shoelace sum (the orientation Validate
// accepts); the other order is its reverse.
func square(positive bool) *ScanWindow {
	if positive {
		return &ScanWindow{Vertices: []Vertex{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}
	}
	return &ScanWindow{Vertices: []Vertex{{0, 0}, {0, 10}, {10, 10}, {10, 0}}}
}

func TestValidateAcceptsCorrectOrientation(t *testing.T) {
	require.NoError(t, square(true).Validate())
}

func TestValidateRejectsTooFewVertices(t *testing.T) {
	w := &ScanWindow{Vertices: []Vertex{{0, 0}, {1, 1}}}
	assert.Error(t, w.Validate())
}

func TestValidateRejectsReversedOrientation(t *testing.T) {
	assert.Error(t, square(false).Validate())
}

func TestValidateRejectsNonConvex(t *testing.T) {
	w := &ScanWindow{Vertices: []Vertex{{0, 0}, {10, 0}, {10, 10}, {5, 5}, {0, 10}}}
	assert.Error(t, w.Validate())
}
