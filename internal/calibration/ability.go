package calibration

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tri-scoring/backend/internal/irt"
)

// provisionalAbilities approximates each student's ability from their
// proportion correct: a smoothed logit (k+0.5)/(n+1) scaled by 1/d, then
// standardised to mean 0 and standard deviation 1 across students.
func provisionalAbilities(m *irt.ResponseMatrix, d float64) []float64 {
	thetas := make([]float64, m.NumStudents())
	for i := range thetas {
		n := m.AnsweredCount(i)
		k := m.CorrectCount(i)
		p := (float64(k) + 0.5) / (float64(n) + 1)
		thetas[i] = math.Log(p/(1-p)) / d
	}
	mu, sd := stat.MeanStdDev(thetas, nil)
	for i := range thetas {
		if sd > 0 && !math.IsNaN(sd) {
			thetas[i] = (thetas[i] - mu) / sd
		} else {
			thetas[i] = 0
		}
	}
	return thetas
}

// initialGuess is the closed-form starting point for an item with observed
// proportion correct p among students whose abilities average meanTheta:
// a=1, c=0.2 and b solving P(meanTheta) = p.
func initialGuess(p, meanTheta, d float64) []float64 {
	const a0, c0 = 1.0, 0.2
	s := (p - c0) / (1 - c0)
	s = math.Min(math.Max(s, 0.02), 0.98)
	b0 := meanTheta - math.Log(s/(1-s))/(d*a0)
	return []float64{a0, b0, c0}
}

// diverseStarts are the fixed restarts tried after the closed-form guess.
var diverseStarts = [][]float64{
	{0.5, -1, 0.1},
	{1.5, 1, 0.15},
	{2, 0, 0.25},
	{0.8, 0.5, 0.05},
}
