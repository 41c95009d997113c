package calibration

import (
	"fmt"
	"math"

	"github.com/tri-scoring/backend/internal/irt"
	"github.com/tri-scoring/backend/internal/models"
)

const (
	paramA = iota
	paramB
	paramC
	numParams
)

// Bounds holds the closed box [Lo, Hi] for (a, b, c).
type Bounds struct {
	Lo [numParams]float64 `json:"lo"`
	Hi [numParams]float64 `json:"hi"`
}

func (b Bounds) String() string {
	return fmt.Sprintf("a[%g,%g] b[%g,%g] c[%g,%g]",
		b.Lo[paramA], b.Hi[paramA], b.Lo[paramB], b.Hi[paramB], b.Lo[paramC], b.Hi[paramC])
}

// Clip projects x into the box.
func (b Bounds) Clip(x []float64) []float64 {
	out := make([]float64, numParams)
	for k := 0; k < numParams; k++ {
		out[k] = math.Min(math.Max(x[k], b.Lo[k]), b.Hi[k])
	}
	return out
}

func (b Bounds) Contains(p models.ItemParameters) bool {
	x := [numParams]float64{p.A, p.B, p.C}
	for k := 0; k < numParams; k++ {
		if x[k] < b.Lo[k] || x[k] > b.Hi[k] {
			return false
		}
	}
	return true
}

// MLBounds are the fixed bounds of plain maximum likelihood.
var MLBounds = Bounds{
	Lo: [numParams]float64{0.1, -3, 0},
	Hi: [numParams]float64{5, 3, 0.5},
}

// Fences returns the MLF bounds for an item with n valid responses and
// observed proportion correct p. Small samples get tighter fences; extreme
// proportions narrow the guessing fence.
func Fences(n int, p float64) Bounds {
	var f Bounds
	switch {
	case n < 30:
		f = Bounds{Lo: [numParams]float64{0.3, -2.5, 0}, Hi: [numParams]float64{3, 2.5, 0.35}}
	case n < 100:
		f = Bounds{Lo: [numParams]float64{0.2, -3, 0}, Hi: [numParams]float64{4, 3, 0.4}}
	default:
		f = Bounds{Lo: [numParams]float64{0.1, -3.5, 0}, Hi: [numParams]float64{5, 3.5, 0.5}}
	}
	switch {
	case p > 0.9:
		f.Lo[paramC], f.Hi[paramC] = 0.05, 0.15
	case p < 0.1:
		f.Lo[paramC], f.Hi[paramC] = 0, 0.1
	}
	return f
}

// fenceMargin is the share of a fence's width inside which the MLF penalty applies.
const fenceMargin = 0.2

// fencePenalty grows smoothly from 0 to weight as a parameter moves from
// 20% of the fence width away from an edge onto the edge.
func fencePenalty(x []float64, b Bounds, weight float64) float64 {
	var pen float64
	for k := 0; k < numParams; k++ {
		width := b.Hi[k] - b.Lo[k]
		if width <= 0 {
			continue
		}
		m := fenceMargin * width
		d := math.Min(x[k]-b.Lo[k], b.Hi[k]-x[k])
		if d < m {
			r := (m - d) / m
			pen += weight * r * r
		}
	}
	return pen
}

// itemNegLogLik is the negative log-likelihood of one item's answered
// responses given known abilities. Out-of-domain parameters yield 1e6.
func itemNegLogLik(x, thetas, responses []float64, d float64) float64 {
	a, b, c := x[paramA], x[paramB], x[paramC]
	if a <= 0 || c < 0 || c > 1 {
		return 1e6
	}
	var ll float64
	for i, y := range responses {
		p := irt.P3PL(thetas[i], a, b, c, d)
		ll += y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return -ll
}

// outOfBoundsWeight scales the quadratic cost of leaving the box, so the
// unconstrained simplex search is pulled back onto the projection.
const outOfBoundsWeight = 1e4

// objective is one item's function to minimise, parameterised by the
// estimation method (bounds and optional fence penalty).
type objective struct {
	thetas    []float64
	responses []float64
	d         float64
	bounds    Bounds
	penalty   float64 // 0 disables the fence penalty
}

func (o objective) value(x []float64) float64 {
	proj := o.bounds.Clip(x)
	v := itemNegLogLik(proj, o.thetas, o.responses, o.d)
	for k := 0; k < numParams; k++ {
		diff := x[k] - proj[k]
		v += outOfBoundsWeight * diff * diff
	}
	if o.penalty > 0 {
		v += fencePenalty(proj, o.bounds, o.penalty)
	}
	return v
}

// newObjective selects the bounds and penalty for method.
func newObjective(method models.Method, thetas, responses []float64, d, penaltyWeight float64) objective {
	o := objective{thetas: thetas, responses: responses, d: d}
	switch method {
	case models.MethodMLF:
		o.bounds = Fences(len(responses), mean(responses))
		o.penalty = penaltyWeight
	default:
		o.bounds = MLBounds
	}
	return o
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
