package calibration

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/tri-scoring/backend/internal/config"
	"github.com/tri-scoring/backend/internal/irt"
	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/metrics"
	"github.com/tri-scoring/backend/internal/models"
)

var ErrUnknownMethod = errors.New("method must be ML or MLF")

// Mode is how student abilities are obtained before items are fit.
type Mode string

const (
	ModeIndependent       Mode = "independent"
	ModeRelativeToAnchors Mode = "relative_to_anchors"
)

type Config struct {
	D             float64
	MaxIterations int
	Tolerance     float64
	MinResponses  int
	PenaltyWeight float64
	Workers       int
}

func ConfigFrom(c config.TRIConfig) Config {
	return Config{
		D:             c.Constant,
		MaxIterations: c.MaxIterations,
		Tolerance:     c.Tolerance,
		MinResponses:  10,
		PenaltyWeight: 1.0,
		Workers:       c.Workers,
	}
}

type Options struct {
	Method models.Method
}

// ItemFit is one item's calibration outcome. Fallback is FallbackNone when
// the parameters come from a converged optimisation.
type ItemFit struct {
	Params         models.ItemParameters `json:"params"`
	NegLogLik      float64               `json:"neg_log_lik"`
	ValidResponses int                   `json:"valid_responses"`
	Fallback       models.FallbackReason `json:"fallback"`
	Bounds         Bounds                `json:"bounds"`
}

type StudentTheta struct {
	StudentID string            `json:"student_id"`
	Estimate  irt.ThetaEstimate `json:"estimate"`
}

type Result struct {
	Mode   Mode          `json:"mode"`
	Method models.Method `json:"method"`
	// Parameters lists calibrated items followed by the supplied anchors unchanged.
	Parameters []models.ItemParameters `json:"parameters"`
	Fits       []ItemFit               `json:"fits"`
	Thetas     []StudentTheta          `json:"thetas,omitempty"`
	Warnings   []string                `json:"warnings"`
}

type Calibrator struct {
	cfg       Config
	estimator *irt.Estimator
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewCalibrator(cfg Config, est *irt.Estimator, log *logger.Logger, m *metrics.Metrics) *Calibrator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MinResponses <= 0 {
		cfg.MinResponses = 10
	}
	return &Calibrator{
		cfg:       cfg,
		estimator: est,
		log:       logger.OrNop(log).With("component", "calibrator"),
		metrics:   m,
	}
}

// Calibrate estimates (a, b, c) for every item in records that is not an
// anchor. When any anchor appears in the responses, student abilities come
// from the anchors so the new items land on the anchors' scale.
func (c *Calibrator) Calibrate(ctx context.Context, records []models.ResponseRecord, anchors []models.ItemParameters, opts Options) (*Result, error) {
	if opts.Method == "" {
		opts.Method = models.MethodML
	}
	if !models.ValidMethods[opts.Method] {
		return nil, fmt.Errorf("calibrate: %w (got %q)", ErrUnknownMethod, opts.Method)
	}
	if err := Validate(anchors).Err("anchor parameters"); err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}
	defer c.metrics.Time("calibrate")()

	matrix, err := irt.NewResponseMatrix(records)
	if err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}

	anchorMap := models.ParameterMap(models.AsAnchors(anchors))
	anchorCols := make([]bool, matrix.NumItems())
	present := 0
	for j, id := range matrix.Items {
		if _, ok := anchorMap[id]; ok {
			anchorCols[j] = true
			present++
		}
	}

	result := &Result{Method: opts.Method, Warnings: []string{}}

	var thetas []float64
	if present > 0 {
		result.Mode = ModeRelativeToAnchors
		if present < irt.MinAnchors {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"only %d anchor items in the responses; students without %d answered anchors get theta 0.0",
				present, irt.MinAnchors))
		}
		thetas, result.Thetas, err = c.anchorAbilities(ctx, matrix, anchorMap)
		if err != nil {
			return nil, err
		}
		defaulted := 0
		for _, st := range result.Thetas {
			if st.Estimate.Fallback != models.FallbackNone {
				defaulted++
			}
		}
		if defaulted > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%d students had theta defaulted to 0.0", defaulted))
		}
	} else {
		result.Mode = ModeIndependent
		thetas = provisionalAbilities(matrix, c.cfg.D)
	}

	c.log.Info("calibration started",
		"mode", result.Mode, "method", opts.Method,
		"students", matrix.NumStudents(), "items", matrix.NumItems(), "anchors", present)

	fits := make([]ItemFit, matrix.NumItems())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for j := range matrix.Items {
		if anchorCols[j] {
			continue
		}
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fits[j] = c.fitItem(matrix.Items[j], matrix.Column(j), thetas, opts.Method)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}

	for j := range matrix.Items {
		if anchorCols[j] {
			continue
		}
		fit := fits[j]
		result.Fits = append(result.Fits, fit)
		result.Parameters = append(result.Parameters, fit.Params)
		switch fit.Fallback {
		case models.FallbackInsufficientResponses:
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"item %d: only %d valid responses, using default parameters", fit.Params.ItemID, fit.ValidResponses))
		case models.FallbackNoConvergence:
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"item %d: optimisation did not converge, using default parameters", fit.Params.ItemID))
		}
	}
	result.Parameters = append(result.Parameters, models.SortedParameters(anchorMap)...)

	c.log.Info("calibration finished", "items", len(result.Parameters), "warnings", len(result.Warnings))
	return result, nil
}

// anchorAbilities estimates every student's theta from anchor items only.
// All estimates are final before any item is fit.
func (c *Calibrator) anchorAbilities(ctx context.Context, m *irt.ResponseMatrix, anchors map[int]models.ItemParameters) ([]float64, []StudentTheta, error) {
	items, _ := m.ParametersFor(anchors)
	estimates := make([]StudentTheta, m.NumStudents())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, sid := range m.Students {
		i, sid := i, sid
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			estimates[i] = StudentTheta{StudentID: sid, Estimate: c.estimator.EstimateFromAnchors(m.Row(i), items)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("anchor abilities: %w", err)
	}

	thetas := make([]float64, len(estimates))
	for i, e := range estimates {
		thetas[i] = e.Estimate.Theta
	}
	return thetas, estimates, nil
}

// fitItem fits one item against known abilities, using only answered cells.
func (c *Calibrator) fitItem(itemID int, column, thetas []float64, method models.Method) ItemFit {
	var ys, ts []float64
	for i, y := range column {
		if irt.IsMissing(y) {
			continue
		}
		ys = append(ys, y)
		ts = append(ts, thetas[i])
	}

	fit := ItemFit{ValidResponses: len(ys)}
	if len(ys) < c.cfg.MinResponses {
		c.log.Warn("too few valid responses, using default parameters", "item_id", itemID, "valid", len(ys))
		c.metrics.ObserveItemFit(string(method), string(models.FallbackInsufficientResponses))
		fit.Params = defaultCalibrated(itemID, method)
		fit.Fallback = models.FallbackInsufficientResponses
		return fit
	}

	obj := newObjective(method, ts, ys, c.cfg.D, c.cfg.PenaltyWeight)
	fit.Bounds = obj.bounds
	starts := append([][]float64{initialGuess(mean(ys), stat.Mean(ts, nil), c.cfg.D)}, diverseStarts...)

	out := minimize(obj, starts, c.cfg.MaxIterations, c.cfg.Tolerance)
	if !out.converged {
		c.log.Warn("item optimisation failed on every start, using default parameters", "item_id", itemID, "method", method)
		c.metrics.ObserveItemFit(string(method), string(models.FallbackNoConvergence))
		fit.Params = defaultCalibrated(itemID, method)
		fit.Fallback = models.FallbackNoConvergence
		return fit
	}

	c.metrics.ObserveItemFit(string(method), "converged")
	fit.Params = models.ItemParameters{
		ItemID: itemID,
		A:      out.x[paramA],
		B:      out.x[paramB],
		C:      out.x[paramC],
		Role:   models.RoleCalibrated,
		Method: method,
	}
	fit.NegLogLik = itemNegLogLik(out.x, ts, ys, c.cfg.D)
	fit.Fallback = models.FallbackNone
	return fit
}

func defaultCalibrated(itemID int, method models.Method) models.ItemParameters {
	p := models.DefaultItem(itemID)
	p.Role = models.RoleCalibrated
	p.Method = method
	return p
}
