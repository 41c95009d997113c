package equating

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/metrics"
	"github.com/tri-scoring/backend/internal/models"
)

// MinCommonAnchors is the smallest anchor overlap a transformation is fit on.
const MinCommonAnchors = 3

var (
	ErrInsufficientAnchors = errors.New("at least 3 common anchor items are required for equating")
	ErrDegenerateAnchors   = errors.New("common anchors have identical difficulty on the new scale")
	ErrTooFewApplications  = errors.New("at least 2 applications are required for equating")
)

// Validation thresholds. Crossing any of them is a warning only.
const (
	minRSquared     = 0.8
	maxStdError     = 0.5
	minSlope        = 0.5
	maxSlope        = 2.0
	maxAbsIntercept = 3.0
)

// Result is one old/new equating.
type Result struct {
	Transformation    models.ScaleTransformation `json:"transformation"`
	TransformedParams []models.ItemParameters    `json:"transformed_params"`
	CommonAnchors     []int                      `json:"common_anchors"`
	Validation        models.ValidationResult    `json:"validation"`
	Quality           *Quality                   `json:"quality,omitempty"`
	Success           bool                       `json:"success"`
}

type Equator struct {
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewEquator(log *logger.Logger, m *metrics.Metrics) *Equator {
	return &Equator{log: logger.OrNop(log).With("component", "equator"), metrics: m}
}

// Equate fits the linear transformation that puts newAnchors on the scale of
// oldAnchors and applies it to newParams. oldParams is only used for the
// quality report and may be empty.
func (e *Equator) Equate(oldAnchors, newAnchors map[int]models.ItemParameters, oldParams, newParams []models.ItemParameters) (*Result, error) {
	defer e.metrics.Time("equate")()

	common := commonAnchors(oldAnchors, newAnchors)
	e.log.Info("common anchors found", "count", len(common))
	if len(common) < MinCommonAnchors {
		return nil, fmt.Errorf("equate scales: %w (found %d)", ErrInsufficientAnchors, len(common))
	}

	t, err := fitTransformation(oldAnchors, newAnchors, common)
	if err != nil {
		return nil, fmt.Errorf("equate scales: %w", err)
	}
	e.log.Info("transformation fitted",
		"slope", t.Slope, "intercept", t.Intercept, "a_scale", t.AScale, "r_squared", t.RSquared)

	res := &Result{
		Transformation:    t,
		TransformedParams: t.Apply(newParams),
		CommonAnchors:     common,
		Validation:        Validate(t, len(common)),
	}
	res.Success = res.Validation.Valid
	for _, w := range res.Validation.Warnings {
		e.log.Warn("equating warning", "warning", w)
	}

	if len(oldParams) > 0 && len(newParams) > 0 {
		q, err := CalculateQuality(oldParams, newParams, t)
		if err != nil {
			e.log.Warn("equating quality unavailable", "error", err)
		} else {
			res.Quality = &q
		}
	}
	return res, nil
}

// commonAnchors returns the item ids present in both anchor sets, ascending.
func commonAnchors(oldAnchors, newAnchors map[int]models.ItemParameters) []int {
	common := []int{}
	for id := range oldAnchors {
		if _, ok := newAnchors[id]; ok {
			common = append(common, id)
		}
	}
	sort.Ints(common)
	return common
}

// fitTransformation regresses old b on new b over the common anchors and
// takes the median old/new ratio of a as the discrimination scale.
func fitTransformation(oldAnchors, newAnchors map[int]models.ItemParameters, common []int) (models.ScaleTransformation, error) {
	oldB := make([]float64, len(common))
	newB := make([]float64, len(common))
	var ratios []float64
	for i, id := range common {
		o, n := oldAnchors[id], newAnchors[id]
		oldB[i], newB[i] = o.B, n.B
		if n.A > 0 && o.A > 0 {
			ratios = append(ratios, o.A/n.A)
		}
	}

	if stat.Variance(newB, nil) == 0 {
		return models.ScaleTransformation{}, ErrDegenerateAnchors
	}

	intercept, slope := stat.LinearRegression(newB, oldB, nil, false)
	var r2 float64
	if stat.Variance(oldB, nil) > 0 {
		r2 = stat.RSquared(newB, oldB, nil, intercept, slope)
	}

	aScale := 1.0
	if len(ratios) > 0 {
		aScale = median(ratios)
	}

	return models.ScaleTransformation{
		Slope:     slope,
		Intercept: intercept,
		AScale:    aScale,
		RSquared:  r2,
		StdError:  slopeStdError(newB, oldB, r2),
	}, nil
}

// slopeStdError is the standard error of an OLS slope:
// sqrt((1 - r²) · var(y) / var(x) / (n - 2)).
func slopeStdError(x, y []float64, r2 float64) float64 {
	df := float64(len(x) - 2)
	if df <= 0 {
		return 0
	}
	vx, vy := stat.Variance(x, nil), stat.Variance(y, nil)
	if vx == 0 {
		return 0
	}
	return math.Sqrt(math.Max(1-r2, 0) * vy / vx / df)
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Validate reports on a fitted transformation. Weak fits and extreme
// coefficients are warnings; the result stays valid.
func Validate(t models.ScaleTransformation, commonAnchors int) models.ValidationResult {
	v := models.NewValidationResult()
	if t.RSquared < minRSquared {
		v.AddWarning(fmt.Sprintf("low r_squared (%.3f), equating may be unstable", t.RSquared))
	}
	if t.StdError > maxStdError {
		v.AddWarning(fmt.Sprintf("high standard error (%.3f)", t.StdError))
	}
	if s := math.Abs(t.Slope); s < minSlope || s > maxSlope {
		v.AddWarning(fmt.Sprintf("extreme slope (%.3f)", t.Slope))
	}
	if math.Abs(t.Intercept) > maxAbsIntercept {
		v.AddWarning(fmt.Sprintf("extreme intercept (%.3f)", t.Intercept))
	}
	v.Metrics = map[string]float64{
		"r_squared":          t.RSquared,
		"std_error":          t.StdError,
		"num_common_anchors": float64(commonAnchors),
		"slope":              t.Slope,
		"intercept":          t.Intercept,
	}
	return v
}
