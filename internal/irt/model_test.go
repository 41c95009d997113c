package irt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tri-scoring/backend/internal/models"
)

func TestP3PLKnownValues(t *testing.T) {
	tests := []struct {
		name              string
		theta, a, b, c, d float64
		want              float64
	}{
		{"midpoint without guessing", 0.7, 1, 0.7, 0, D, 0.5},
		{"midpoint with guessing", 0, 1, 0, 0.2, D, 0.6},
		{"midpoint other item", -1.3, 2.2, -1.3, 0.25, D, 0.625},
	}
	for _, tt := range tests {
		got := P3PL(tt.theta, tt.a, tt.b, tt.c, tt.d)
		assert.InDelta(t, tt.want, got, 1e-12, tt.name)
	}
}

func TestP3PLMonotoneAndBounded(t *testing.T) {
	items := []struct{ a, b, c float64 }{
		{0.3, -2, 0},
		{1, 0, 0.2},
		{2.5, 1.5, 0.35},
		{4.9, -0.5, 0.5},
	}
	for _, it := range items {
		prev := -1.0
		for theta := -6.0; theta <= 6.0; theta += 0.05 {
			p := P3PL(theta, it.a, it.b, it.c, D)
			if p < prev {
				t.Errorf("P3PL not monotone at theta=%f for %+v: %f < %f", theta, it, p, prev)
			}
			prev = p
			if p < math.Max(it.c, probFloor)-1e-12 || p > 1 {
				t.Errorf("P3PL(%f, %+v) = %f outside [c, 1]", theta, it, p)
			}
		}
	}
}

func TestP3PLClamped(t *testing.T) {
	assert.Equal(t, probCeil, P3PL(40, 5, -3, 0, D))
	assert.Equal(t, probFloor, P3PL(-40, 5, 3, 0, D))
}

func TestNegLogLikelihood(t *testing.T) {
	items := []models.ItemParameters{
		{ItemID: 1, A: 1, B: 0, C: 0},
		{ItemID: 2, A: 1, B: 0, C: 0},
		{ItemID: 3, A: 1, B: 0, C: 0},
	}

	// Every probability is 0.5 at theta=b, so each answered item contributes ln 2.
	got := NegLogLikelihood(0, []float64{1, 0, Missing}, items, nil, D)
	assert.InDelta(t, 2*math.Ln2, got, 1e-12)

	weighted := NegLogLikelihood(0, []float64{1, 0, Missing}, items, []float64{2, 1, 1}, D)
	assert.InDelta(t, 3*math.Ln2, weighted, 1e-12)

	bad := append([]models.ItemParameters(nil), items...)
	bad[1].A = 0
	assert.Equal(t, invalidObjective, NegLogLikelihood(0, []float64{1, 0, 1}, bad, nil, D))

	bad[1].A, bad[1].C = 1, 1.5
	assert.Equal(t, invalidObjective, NegLogLikelihood(0, []float64{1, 0, 1}, bad, nil, D))
}

func TestMinimizeBounded(t *testing.T) {
	x, fx, ok := minimizeBounded(func(x float64) float64 { return (x - 1.25) * (x - 1.25) }, -4, 4, 1e-8, 500)
	assert.True(t, ok)
	assert.InDelta(t, 1.25, x, 1e-5)
	assert.InDelta(t, 0, fx, 1e-9)

	// A monotone objective is driven to the bound.
	x, _, ok = minimizeBounded(func(x float64) float64 { return -x }, 0, 4, 1e-6, 500)
	assert.True(t, ok)
	assert.InDelta(t, 4, x, 1e-4)

	_, _, ok = minimizeBounded(func(x float64) float64 { return math.Sin(20 * x) }, -4, 4, 1e-12, 3)
	assert.False(t, ok)
}
