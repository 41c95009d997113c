package equating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tri-scoring/backend/internal/models"
)

func shifted(anchors map[int]models.ItemParameters, slope, intercept float64) []models.ItemParameters {
	out := []models.ItemParameters{}
	for _, p := range models.SortedParameters(anchors) {
		p.B = (p.B - intercept) / slope
		out = append(out, p)
	}
	return out
}

func TestEquateMultiple(t *testing.T) {
	e := NewEquator(nil, nil)
	ref := anchorSet(-1.5, -0.5, 0.5, 1.5)
	apps := []Application{
		{Name: "2023", Anchors: models.SortedParameters(ref)},
		{Name: "2024", Anchors: shifted(ref, 1.1, 0.2), Params: []models.ItemParameters{{ItemID: 40, A: 1, B: 0, C: 0.2}}},
		{Anchors: shifted(ref, 0.9, -0.1)},
	}

	res, err := e.EquateMultiple(apps)
	require.NoError(t, err)
	assert.Equal(t, "2023", res.ReferenceApplication)
	assert.True(t, res.Success)
	require.Contains(t, res.Transformations, "2024")
	require.Contains(t, res.Transformations, "application_2")

	assert.InDelta(t, 1.1, res.Transformations["2024"].Slope, 1e-9)
	assert.InDelta(t, 0.2, res.Transformations["2024"].Intercept, 1e-9)
	assert.InDelta(t, 0.2, res.TransformedParams["2024"][0].B, 1e-9)
	assert.InDelta(t, 0.9, res.Transformations["application_2"].Slope, 1e-9)
}

func TestEquateMultipleErrors(t *testing.T) {
	e := NewEquator(nil, nil)

	_, err := e.EquateMultiple([]Application{{Name: "only"}})
	assert.ErrorIs(t, err, ErrTooFewApplications)

	ref := anchorSet(-1, 0, 1)
	_, err = e.EquateMultiple([]Application{
		{Name: "ref", Anchors: models.SortedParameters(ref)},
		{Name: "thin", Anchors: models.SortedParameters(anchorSet(-1, 0))},
	})
	assert.ErrorIs(t, err, ErrInsufficientAnchors)
	assert.Contains(t, err.Error(), "application thin")
}

func TestCalculateQuality(t *testing.T) {
	oldParams := []models.ItemParameters{
		{ItemID: 1, A: 1.0, B: -1, C: 0.2},
		{ItemID: 2, A: 1.5, B: 0, C: 0.2},
		{ItemID: 3, A: 0.8, B: 1, C: 0.2},
	}
	tr := models.ScaleTransformation{Slope: 2, Intercept: 1, AScale: 0.5, RSquared: 0.9}
	// New parameters are old ones mapped forward, listed out of order plus an unmatched item.
	newParams := []models.ItemParameters{
		{ItemID: 3, A: 0.4, B: 3, C: 0.2},
		{ItemID: 1, A: 0.5, B: -1, C: 0.2},
		{ItemID: 2, A: 0.75, B: 1, C: 0.2},
		{ItemID: 7, A: 2, B: 2, C: 0.2},
	}

	q, err := CalculateQuality(oldParams, newParams, tr)
	require.NoError(t, err)
	assert.Equal(t, 3, q.MatchedItems)
	assert.InDelta(t, 1.0, q.Correlations["a"], 1e-9)
	assert.InDelta(t, 1.0, q.Correlations["b"], 1e-9)
	assert.NotContains(t, q.Correlations, "c", "constant column has no correlation")
	assert.InDelta(t, 1.0, q.OverallQuality, 1e-9)
	assert.InDelta(t, 0.0, q.MeanDifferences["b"], 1e-9)
	assert.Equal(t, 0.9, q.TransformationQuality)
	assert.False(t, math.IsNaN(q.OverallQuality))

	_, err = CalculateQuality(oldParams, newParams, models.ScaleTransformation{Slope: 0, AScale: 1})
	assert.ErrorIs(t, err, ErrNonInvertible)
}

func TestCalculateQualityNoOverlap(t *testing.T) {
	q, err := CalculateQuality(
		[]models.ItemParameters{{ItemID: 1, A: 1}},
		[]models.ItemParameters{{ItemID: 2, A: 1}},
		models.IdentityTransformation(),
	)
	require.NoError(t, err)
	assert.Zero(t, q.MatchedItems)
	assert.Empty(t, q.Correlations)
	assert.Zero(t, q.OverallQuality)
}
