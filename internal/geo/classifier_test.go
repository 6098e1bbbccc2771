package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/sentinel-pipeline/internal/model"
)

func TestClassifyPrecision(t *testing.T) {
	assert.Equal(t, model.PrecisionHigh, ClassifyPrecision(20))
	assert.Equal(t, model.PrecisionMedium, ClassifyPrecision(150))
	assert.Equal(t, model.PrecisionCoarse, ClassifyPrecision(500))
	assert.Equal(t, model.PrecisionCoarse, ClassifyPrecision(200))
	assert.Equal(t, model.PrecisionHigh, ClassifyPrecision(49.9999))
}

func TestCellIDsDeterministic(t *testing.T) {
	a, err := CellIDs(18.4861, -69.9312)
	require.NoError(t, err)
	b, err := CellIDs(18.4861, -69.9312)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.R7)
	assert.NotEmpty(t, a.R9)
	assert.NotEmpty(t, a.R11)
}

func TestCellGeometryRoundTrip(t *testing.T) {
	cells, err := CellIDs(18.4861, -69.9312)
	require.NoError(t, err)

	polygon, centroid, err := CellGeometry(cells.R9)
	require.NoError(t, err)
	require.Len(t, polygon, 1)
	// Boundary ring is closed and hexagonal.
	assert.GreaterOrEqual(t, len(polygon[0]), 7)
	assert.Equal(t, polygon[0][0], polygon[0][len(polygon[0])-1])
	assert.InDelta(t, 18.4861, centroid[1], 0.05)
	assert.InDelta(t, -69.9312, centroid[0], 0.05)
}
