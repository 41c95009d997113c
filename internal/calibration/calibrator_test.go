package calibration

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/tri-scoring/backend/internal/config"
	"github.com/tri-scoring/backend/internal/irt"
	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/models"
)

func newTestCalibrator() *Calibrator {
	est := irt.NewEstimator(irt.DefaultEstimatorConfig(), logger.Nop(), nil)
	return NewCalibrator(ConfigFrom(config.DefaultTRI()), est, logger.Nop(), nil)
}

func normalThetas(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func simulateRecords(rng *rand.Rand, thetas []float64, items []models.ItemParameters) []models.ResponseRecord {
	records := make([]models.ResponseRecord, 0, len(thetas)*len(items))
	for i, th := range thetas {
		sid := fmt.Sprintf("s%04d", i)
		for _, it := range items {
			correct := 0
			if rng.Float64() < irt.P3PL(th, it.A, it.B, it.C, irt.D) {
				correct = 1
			}
			records = append(records, models.ResponseRecord{StudentID: sid, ItemID: it.ItemID, Correct: correct})
		}
	}
	return records
}

func TestFitItemRecoversKnownParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	thetas := normalThetas(rng, 3000)
	truth := models.ItemParameters{ItemID: 1, A: 1.2, B: 0.5, C: 0.15}

	column := make([]float64, len(thetas))
	for i, th := range thetas {
		if rng.Float64() < irt.P3PL(th, truth.A, truth.B, truth.C, irt.D) {
			column[i] = 1
		}
	}

	fit := newTestCalibrator().fitItem(truth.ItemID, column, thetas, models.MethodML)
	require.Equal(t, models.FallbackNone, fit.Fallback)
	assert.InDelta(t, truth.B, fit.Params.B, 0.3)
	assert.InDelta(t, truth.A, fit.Params.A, 0.4)
	assert.InDelta(t, truth.C, fit.Params.C, 0.1)
	assert.Equal(t, models.RoleCalibrated, fit.Params.Role)
	assert.Equal(t, models.MethodML, fit.Params.Method)
	assert.Equal(t, 3000, fit.ValidResponses)
}

func TestCalibrateRelativeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	thetas := normalThetas(rng, 1500)

	var anchors []models.ItemParameters
	for i := 0; i < 30; i++ {
		anchors = append(anchors, models.ItemParameters{
			ItemID: 100 + i,
			A:      0.8 + 0.8*float64(i%5)/4,
			B:      -2 + 4*float64(i)/29,
			C:      0.15,
		})
	}
	fresh := []models.ItemParameters{
		{ItemID: 1, A: 1.2, B: -0.5, C: 0.15},
		{ItemID: 2, A: 1.2, B: 0.0, C: 0.15},
		{ItemID: 3, A: 1.2, B: 0.5, C: 0.15},
	}
	records := simulateRecords(rng, thetas, append(append([]models.ItemParameters(nil), anchors...), fresh...))

	res, err := newTestCalibrator().Calibrate(context.Background(), records, anchors, Options{Method: models.MethodML})
	require.NoError(t, err)
	assert.Equal(t, ModeRelativeToAnchors, res.Mode)
	require.Len(t, res.Parameters, 33)
	require.Len(t, res.Fits, 3)
	assert.Len(t, res.Thetas, 1500)

	for i, want := range fresh {
		got := res.Parameters[i]
		assert.Equal(t, want.ItemID, got.ItemID)
		assert.Equal(t, models.RoleCalibrated, got.Role)
		assert.InDelta(t, want.B, got.B, 0.3, "item %d", want.ItemID)
	}
}

func TestCalibrateAppendsAnchorsUnchanged(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	anchors := []models.ItemParameters{
		{ItemID: 7, A: 1.1, B: -1, C: 0.2},
		{ItemID: 8, A: 0.9, B: 0, C: 0.1},
		{ItemID: 9, A: 1.4, B: 1, C: 0.25},
		// Not administered: still part of the returned table.
		{ItemID: 50, A: 1, B: 2, C: 0.2},
	}
	items := append(append([]models.ItemParameters(nil), anchors[:3]...),
		models.ItemParameters{ItemID: 1, A: 1, B: 0, C: 0.2},
		models.ItemParameters{ItemID: 2, A: 1, B: 0.8, C: 0.2},
	)
	records := simulateRecords(rng, normalThetas(rng, 200), items)

	res, err := newTestCalibrator().Calibrate(context.Background(), records, anchors, Options{Method: models.MethodMLF})
	require.NoError(t, err)

	ids := make([]int, len(res.Parameters))
	for i, p := range res.Parameters {
		ids[i] = p.ItemID
	}
	assert.Equal(t, []int{1, 2, 7, 8, 9, 50}, ids)

	for _, p := range res.Parameters[2:] {
		want := models.ParameterMap(anchors)[p.ItemID]
		assert.Equal(t, models.RoleAnchor, p.Role)
		assert.Equal(t, want.A, p.A)
		assert.Equal(t, want.B, p.B)
		assert.Equal(t, want.C, p.C)
	}
	for _, p := range res.Parameters[:2] {
		assert.Equal(t, models.MethodMLF, p.Method)
	}
}

func TestCalibrateIndependentOrdersDifficulty(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var items []models.ItemParameters
	for i := 0; i < 10; i++ {
		items = append(items, models.ItemParameters{ItemID: i + 1, A: 1.3, B: -2 + 4*float64(i)/9, C: 0.1})
	}
	records := simulateRecords(rng, normalThetas(rng, 1000), items)

	res, err := newTestCalibrator().Calibrate(context.Background(), records, nil, Options{Method: models.MethodML})
	require.NoError(t, err)
	assert.Equal(t, ModeIndependent, res.Mode)
	assert.Empty(t, res.Thetas)
	require.Len(t, res.Parameters, 10)

	trueB := make([]float64, 10)
	gotB := make([]float64, 10)
	for i := range items {
		trueB[i] = items[i].B
		gotB[i] = res.Parameters[i].B
		assert.Equal(t, models.FallbackNone, res.Fits[i].Fallback)
	}
	assert.Greater(t, stat.Correlation(trueB, gotB, nil), 0.9)
	assert.Greater(t, gotB[9], gotB[0]+1)
}

func TestCalibrateIndependentRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	var items []models.ItemParameters
	for i := 0; i < 20; i++ {
		items = append(items, models.ItemParameters{ItemID: i + 1, A: 1.2, B: -1.2 + 2.4*float64(i)/19, C: 0.05})
	}
	records := simulateRecords(rng, normalThetas(rng, 2000), items)

	res, err := newTestCalibrator().Calibrate(context.Background(), records, nil, Options{Method: models.MethodML})
	require.NoError(t, err)
	require.Len(t, res.Parameters, len(items))
	for i, want := range items {
		got := res.Parameters[i]
		require.Equal(t, want.ItemID, got.ItemID)
		assert.Equal(t, models.FallbackNone, res.Fits[i].Fallback)
		assert.InDelta(t, want.B, got.B, 0.3, "item %d", want.ItemID)
	}
}

func TestCalibrateFewResponsesUsesDefaults(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	items := []models.ItemParameters{
		{ItemID: 1, A: 1, B: 0, C: 0.2},
		{ItemID: 2, A: 1, B: 0.5, C: 0.2},
	}
	records := simulateRecords(rng, normalThetas(rng, 40), items)
	// Item 3 is answered by nine students only, all correctly.
	for i := 0; i < 9; i++ {
		records = append(records, models.ResponseRecord{StudentID: fmt.Sprintf("s%04d", i), ItemID: 3, Correct: 1})
	}

	for _, method := range []models.Method{models.MethodML, models.MethodMLF} {
		res, err := newTestCalibrator().Calibrate(context.Background(), records, nil, Options{Method: method})
		require.NoError(t, err)

		fit := res.Fits[2]
		assert.Equal(t, 3, fit.Params.ItemID)
		assert.Equal(t, models.FallbackInsufficientResponses, fit.Fallback)
		assert.Equal(t, 9, fit.ValidResponses)
		assert.Equal(t, 1.0, fit.Params.A)
		assert.Equal(t, 0.0, fit.Params.B)
		assert.Equal(t, 0.2, fit.Params.C)
		assert.Contains(t, res.Warnings, "item 3: only 9 valid responses, using default parameters")
	}
}

func TestCalibrateMLFNarrowsGuessingFence(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	var records []models.ResponseRecord
	for i := 0; i < 15; i++ {
		sid := fmt.Sprintf("s%02d", i)
		correct := 1
		if i == 0 {
			correct = 0
		}
		records = append(records, models.ResponseRecord{StudentID: sid, ItemID: 1, Correct: correct})
		for item := 2; item <= 6; item++ {
			records = append(records, models.ResponseRecord{StudentID: sid, ItemID: item, Correct: rng.Intn(2)})
		}
	}

	res, err := newTestCalibrator().Calibrate(context.Background(), records, nil, Options{Method: models.MethodMLF})
	require.NoError(t, err)

	fit := res.Fits[0]
	require.Equal(t, 1, fit.Params.ItemID)
	assert.Equal(t, 15, fit.ValidResponses)
	assert.Equal(t, 0.05, fit.Bounds.Lo[paramC])
	assert.Equal(t, 0.15, fit.Bounds.Hi[paramC])
	assert.True(t, fit.Bounds.Contains(fit.Params), "params %+v outside %s", fit.Params, fit.Bounds)
	assert.Equal(t, Fences(15, 14.0/15.0), fit.Bounds)
}

func TestCalibrateRejects(t *testing.T) {
	c := newTestCalibrator()
	records := []models.ResponseRecord{{StudentID: "a", ItemID: 1, Correct: 1}}

	_, err := c.Calibrate(context.Background(), records, nil, Options{Method: "EAP"})
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = c.Calibrate(context.Background(), append(records, records[0]), nil, Options{})
	assert.ErrorIs(t, err, irt.ErrDuplicateResponse)

	var verr *models.ValidationError
	_, err = c.Calibrate(context.Background(), records, []models.ItemParameters{{ItemID: 1, A: -0.5, C: 0.2}}, Options{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "anchor parameters", verr.Subject)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rng := rand.New(rand.NewSource(1))
	many := simulateRecords(rng, normalThetas(rng, 20), []models.ItemParameters{{ItemID: 1, A: 1, C: 0.2}})
	_, err = c.Calibrate(ctx, many, nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
