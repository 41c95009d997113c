package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tri-scoring/backend/internal/calibration"
	"github.com/tri-scoring/backend/internal/config"
	"github.com/tri-scoring/backend/internal/irt"
	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/metrics"
	"github.com/tri-scoring/backend/internal/models"
)

var ErrItemCountMismatch = errors.New("item parameters do not match the items in the responses")

// maxListedStudents caps the ids quoted in one fallback warning.
const maxListedStudents = 10

// Reporting-scale bounds applied by config.ClampRange.
const (
	ScoreMin = 0.0
	ScoreMax = 1000.0
)

type Config struct {
	Base    float64
	Scale   float64
	Clamp   config.ClampPolicy
	Workers int
}

func ConfigFrom(c config.TRIConfig) Config {
	return Config{Base: c.ScoreBase, Scale: c.ScoreScale, Clamp: c.ScoreClamp, Workers: c.Workers}
}

// Scorer turns a response table into per-student thetas and reporting-scale scores.
type Scorer struct {
	cfg       Config
	estimator *irt.Estimator
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewScorer(cfg Config, est *irt.Estimator, log *logger.Logger, m *metrics.Metrics) *Scorer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Clamp == "" {
		cfg.Clamp = config.ClampRange
	}
	return &Scorer{
		cfg:       cfg,
		estimator: est,
		log:       logger.OrNop(log).With("component", "scorer"),
		metrics:   m,
	}
}

// Score maps theta onto the reporting scale under the configured clamp policy.
func (s *Scorer) Score(theta float64) float64 {
	score := s.cfg.Base + s.cfg.Scale*theta
	switch s.cfg.Clamp {
	case config.ClampFloor:
		return math.Max(score, ScoreMin)
	case config.ClampRange:
		return math.Min(math.Max(score, ScoreMin), ScoreMax)
	default:
		return score
	}
}

// Result is the outcome of one Process call. Warnings name the students
// whose theta fell back to 0.0 instead of converging.
type Result struct {
	Students []models.StudentResult `json:"results"`
	Warnings []string               `json:"warnings"`
}

// Process estimates every student's theta. With params nil every item gets
// the default parameters; otherwise params must pass calibration.Validate and
// cover exactly the items that appear in records. Students are ordered by id.
func (s *Scorer) Process(ctx context.Context, records []models.ResponseRecord, params []models.ItemParameters) (*Result, error) {
	defer s.metrics.Time("score")()

	if params != nil {
		if err := calibration.Validate(params).Err("item parameters"); err != nil {
			return nil, fmt.Errorf("process responses: %w", err)
		}
	}

	matrix, err := irt.NewResponseMatrix(records)
	if err != nil {
		return nil, fmt.Errorf("process responses: %w", err)
	}

	items, err := s.itemTable(matrix, params)
	if err != nil {
		return nil, fmt.Errorf("process responses: %w", err)
	}
	anchored := false
	for _, it := range items {
		if it.IsAnchor() {
			anchored = true
			break
		}
	}

	s.log.Info("scoring started", "students", matrix.NumStudents(), "items", matrix.NumItems(), "anchored", anchored)

	results := make([]models.StudentResult, matrix.NumStudents())
	fallbacks := make([]models.FallbackReason, matrix.NumStudents())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, sid := range matrix.Students {
		i, sid := i, sid
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := matrix.Row(i)
			est, err := s.estimate(row, items, anchored)
			if err != nil {
				return err
			}
			if est.Fallback != models.FallbackNone {
				s.log.Debug("theta defaulted", "student_id", sid, "reason", est.Fallback)
			}
			fallbacks[i] = est.Fallback
			results[i] = models.StudentResult{
				StudentID:    sid,
				Theta:        math.Round(est.Theta*1000) / 1000,
				Score:        math.Round(s.Score(est.Theta)),
				CorrectCount: matrix.CorrectCount(i),
				TotalItems:   matrix.NumItems(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("process responses: %w", err)
	}

	warnings := fallbackWarnings(matrix.Students, fallbacks)
	for _, w := range warnings {
		s.log.Warn(w)
	}
	s.log.Info("scoring finished", "students", len(results), "warnings", len(warnings))
	return &Result{Students: results, Warnings: warnings}, nil
}

// fallbackWarnings groups defaulted students by reason, one warning per reason.
func fallbackWarnings(students []string, fallbacks []models.FallbackReason) []string {
	byReason := map[models.FallbackReason][]string{}
	for i, f := range fallbacks {
		if f != models.FallbackNone && f != "" {
			byReason[f] = append(byReason[f], students[i])
		}
	}
	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	warnings := []string{}
	for _, r := range reasons {
		ids := byReason[models.FallbackReason(r)]
		listed := fmt.Sprintf("%v", ids)
		if len(ids) > maxListedStudents {
			listed = fmt.Sprintf("%v and %d more", ids[:maxListedStudents], len(ids)-maxListedStudents)
		}
		warnings = append(warnings, fmt.Sprintf("%d students had theta defaulted to 0.0 (%s): %s", len(ids), r, listed))
	}
	return warnings
}

func (s *Scorer) estimate(row []float64, items []models.ItemParameters, anchored bool) (irt.ThetaEstimate, error) {
	if anchored {
		return s.estimator.EstimateAnchored(row, items), nil
	}
	return s.estimator.EstimateChecked(row, items)
}

// itemTable lines the parameters up with the matrix columns.
func (s *Scorer) itemTable(m *irt.ResponseMatrix, params []models.ItemParameters) ([]models.ItemParameters, error) {
	if params == nil {
		items := make([]models.ItemParameters, m.NumItems())
		for j, id := range m.Items {
			items[j] = models.DefaultItem(id)
		}
		return items, nil
	}
	byID := models.ParameterMap(params)
	items, missing := m.ParametersFor(byID)
	if len(missing) > 0 || len(byID) != m.NumItems() {
		return nil, fmt.Errorf("%w (%d parameter rows, %d items, missing %v)",
			ErrItemCountMismatch, len(byID), m.NumItems(), missing)
	}
	return items, nil
}
