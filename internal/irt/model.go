package irt

import (
	"math"

	"github.com/tri-scoring/backend/internal/models"
)

// D is the standard logistic scaling constant that makes the logistic curve
// approximate the normal ogive.
const D = 1.7

const (
	probFloor = 1e-6
	probCeil  = 1 - 1e-6

	// invalidObjective is returned instead of a likelihood when an item's
	// parameters are out of domain.
	invalidObjective = 1e6
)

// P3PL returns the probability that a respondent with ability theta answers
// an item with discrimination a, difficulty b and guessing c correctly.
// The result is clamped to [1e-6, 1-1e-6] so log-likelihoods stay finite.
func P3PL(theta, a, b, c, d float64) float64 {
	p := c + (1-c)/(1+math.Exp(-d*a*(theta-b)))
	if p < probFloor {
		return probFloor
	}
	if p > probCeil {
		return probCeil
	}
	return p
}

// Missing marks an unanswered cell in a response vector.
var Missing = math.NaN()

func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

func validItem(p models.ItemParameters) bool {
	return p.A > 0 && p.C >= 0 && p.C <= 1 && !math.IsNaN(p.B) && !math.IsInf(p.B, 0)
}

// NegLogLikelihood sums the negative Bernoulli log-likelihood of the answered
// responses at theta. weights may be nil (all 1). Out-of-domain item
// parameters yield 1e6 rather than an error.
func NegLogLikelihood(theta float64, responses []float64, items []models.ItemParameters, weights []float64, d float64) float64 {
	var ll float64
	for i, y := range responses {
		if IsMissing(y) {
			continue
		}
		it := items[i]
		if !validItem(it) {
			return invalidObjective
		}
		p := P3PL(theta, it.A, it.B, it.C, d)
		term := y*math.Log(p) + (1-y)*math.Log(1-p)
		if weights != nil {
			term *= weights[i]
		}
		ll += term
	}
	return -ll
}
