package calibration

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// fitOutcome is the best converged restart, or converged=false when none did.
type fitOutcome struct {
	x         []float64
	value     float64
	converged bool
	restarts  int
}

// minimize runs a Nelder-Mead search from every start (each clipped into the
// objective's bounds) and keeps the lowest converged objective value.
func minimize(o objective, starts [][]float64, maxIter int, tol float64) fitOutcome {
	best := fitOutcome{value: math.Inf(1)}
	for _, s := range starts {
		init := o.bounds.Clip(s)
		res, err := optimize.Minimize(
			optimize.Problem{Func: o.value},
			init,
			&optimize.Settings{
				MajorIterations: maxIter,
				Converger:       &optimize.FunctionConverge{Absolute: tol, Iterations: 50},
			},
			&optimize.NelderMead{SimplexSize: 0.25},
		)
		if err != nil || res == nil || !convergedStatus(res.Status) {
			continue
		}
		if math.IsNaN(res.F) || math.IsInf(res.F, 0) {
			continue
		}
		best.restarts++
		if res.F < best.value {
			best.x = o.bounds.Clip(res.X)
			best.value = res.F
			best.converged = true
		}
	}
	return best
}

func convergedStatus(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge, optimize.StepConvergence:
		return true
	}
	return false
}
