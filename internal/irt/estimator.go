package irt

import (
	"errors"
	"fmt"
	"math"

	"github.com/tri-scoring/backend/internal/config"
	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/metrics"
	"github.com/tri-scoring/backend/internal/models"
)

var ErrLengthMismatch = errors.New("response vector and item parameters differ in length")

// MinAnchors is the number of answered anchor items needed to place a
// respondent on the anchors' scale using anchors alone.
const MinAnchors = 3

const (
	anchorWeight = 2.0
	otherWeight  = 1.0
)

type EstimatorConfig struct {
	ThetaMin      float64
	ThetaMax      float64
	D             float64
	MaxIterations int
	Tolerance     float64
	// Probes are the restart points; each restart searches the window
	// [probe-ProbeRadius, probe+ProbeRadius] clipped to the bounds.
	Probes      []float64
	ProbeRadius float64
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfigFrom(config.DefaultTRI())
}

func EstimatorConfigFrom(c config.TRIConfig) EstimatorConfig {
	return EstimatorConfig{
		ThetaMin:      c.ThetaMin,
		ThetaMax:      c.ThetaMax,
		D:             c.Constant,
		MaxIterations: c.MaxIterations,
		Tolerance:     c.Tolerance,
		Probes:        []float64{-2, -1, 0, 1, 2},
		ProbeRadius:   2,
	}
}

// ThetaEstimate is the outcome of one respondent's estimation. When Fallback
// is not FallbackNone, Theta is the 0.0 default.
type ThetaEstimate struct {
	Theta       float64               `json:"theta"`
	NegLogLik   float64               `json:"neg_log_lik"`
	Converged   bool                  `json:"converged"`
	Fallback    models.FallbackReason `json:"fallback"`
	AnchorsUsed int                   `json:"anchors_used"`
}

type Estimator struct {
	cfg     EstimatorConfig
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewEstimator(cfg EstimatorConfig, log *logger.Logger, m *metrics.Metrics) *Estimator {
	if len(cfg.Probes) == 0 {
		cfg.Probes = []float64{0}
	}
	if cfg.ProbeRadius <= 0 {
		cfg.ProbeRadius = cfg.ThetaMax - cfg.ThetaMin
	}
	return &Estimator{cfg: cfg, log: logger.OrNop(log).With("component", "theta_estimator"), metrics: m}
}

func (e *Estimator) Config() EstimatorConfig {
	return e.cfg
}

// Constant returns the logistic scaling constant the estimator uses.
func (e *Estimator) Constant() float64 {
	return e.cfg.D
}

// Estimate returns the maximum-likelihood theta for one respondent over all
// answered items. responses holds 0, 1 or Missing per item.
func (e *Estimator) Estimate(responses []float64, items []models.ItemParameters) ThetaEstimate {
	return e.estimate(responses, items, nil)
}

// EstimateChecked is Estimate with a structural length check.
func (e *Estimator) EstimateChecked(responses []float64, items []models.ItemParameters) (ThetaEstimate, error) {
	if len(responses) != len(items) {
		return ThetaEstimate{}, fmt.Errorf("estimate theta: %w (%d responses, %d items)", ErrLengthMismatch, len(responses), len(items))
	}
	return e.Estimate(responses, items), nil
}

// EstimateAnchored prefers anchor items: with at least three answered
// anchors only anchors are used; with one or two, anchors get double weight;
// with none, every item counts equally.
func (e *Estimator) EstimateAnchored(responses []float64, items []models.ItemParameters) ThetaEstimate {
	anchors := answeredAnchors(responses, items)
	switch {
	case anchors >= MinAnchors:
		est := e.estimate(maskNonAnchors(responses, items), items, nil)
		est.AnchorsUsed = anchors
		return est
	case anchors > 0:
		weights := make([]float64, len(items))
		for i, it := range items {
			if it.IsAnchor() {
				weights[i] = anchorWeight
			} else {
				weights[i] = otherWeight
			}
		}
		est := e.estimate(responses, items, weights)
		est.AnchorsUsed = anchors
		return est
	default:
		return e.estimate(responses, items, nil)
	}
}

// EstimateFromAnchors uses anchor items only. Respondents with fewer than
// three answered anchors get theta 0.0 with FallbackInsufficientAnchors.
func (e *Estimator) EstimateFromAnchors(responses []float64, items []models.ItemParameters) ThetaEstimate {
	anchors := answeredAnchors(responses, items)
	if anchors < MinAnchors {
		e.metrics.ObserveTheta(string(models.FallbackInsufficientAnchors))
		return ThetaEstimate{Fallback: models.FallbackInsufficientAnchors, AnchorsUsed: anchors}
	}
	est := e.estimate(maskNonAnchors(responses, items), items, nil)
	est.AnchorsUsed = anchors
	return est
}

func (e *Estimator) estimate(responses []float64, items []models.ItemParameters, weights []float64) ThetaEstimate {
	answered := 0
	for _, y := range responses {
		if !IsMissing(y) {
			answered++
		}
	}
	if answered == 0 {
		e.metrics.ObserveTheta(string(models.FallbackInsufficientResponses))
		return ThetaEstimate{Fallback: models.FallbackInsufficientResponses}
	}

	objective := func(theta float64) float64 {
		return NegLogLikelihood(theta, responses, items, weights, e.cfg.D)
	}

	best := ThetaEstimate{NegLogLik: math.Inf(1)}
	for _, probe := range e.cfg.Probes {
		lo := math.Max(e.cfg.ThetaMin, probe-e.cfg.ProbeRadius)
		hi := math.Min(e.cfg.ThetaMax, probe+e.cfg.ProbeRadius)
		if hi-lo <= e.cfg.Tolerance {
			continue
		}
		x, fx, ok := minimizeBounded(objective, lo, hi, e.cfg.Tolerance, e.cfg.MaxIterations)
		if !ok || fx >= invalidObjective {
			e.log.Debug("theta restart did not converge", "probe", probe)
			continue
		}
		if fx < best.NegLogLik {
			best = ThetaEstimate{Theta: x, NegLogLik: fx, Converged: true, Fallback: models.FallbackNone}
		}
	}

	if !best.Converged {
		e.log.Warn("theta estimation failed on every restart, using 0.0", "answered", answered)
		e.metrics.ObserveTheta(string(models.FallbackNoConvergence))
		return ThetaEstimate{Fallback: models.FallbackNoConvergence}
	}
	e.metrics.ObserveTheta("converged")
	return best
}

func answeredAnchors(responses []float64, items []models.ItemParameters) int {
	n := 0
	for i, it := range items {
		if it.IsAnchor() && i < len(responses) && !IsMissing(responses[i]) {
			n++
		}
	}
	return n
}

func maskNonAnchors(responses []float64, items []models.ItemParameters) []float64 {
	out := make([]float64, len(responses))
	for i, y := range responses {
		if items[i].IsAnchor() {
			out[i] = y
		} else {
			out[i] = Missing
		}
	}
	return out
}
