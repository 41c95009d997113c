package executions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tri-scoring/backend/internal/calibration"
	"github.com/tri-scoring/backend/internal/equating"
	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/models"
	"github.com/tri-scoring/backend/internal/scoring"
)

const defaultDatasetName = "api upload"

type CalibrateResponse struct {
	ExecutionID    int64                   `json:"execution_id"`
	RunID          string                  `json:"run_id"`
	ParameterSetID *int64                  `json:"parameter_set_id,omitempty"`
	Mode           calibration.Mode        `json:"mode"`
	Method         models.Method           `json:"method"`
	Parameters     []models.ItemParameters `json:"parameters"`
	Fits           []calibration.ItemFit   `json:"fits"`
	Validation     models.ValidationResult `json:"validation"`
	Warnings       []string                `json:"warnings"`
}

type RecommendResponse struct {
	Recommendations []equating.Recommendation `json:"recommendations"`
}

// Service runs engine operations and records them as executions.
type Service struct {
	repo       Repository
	scorer     *scoring.Scorer
	calibrator *calibration.Calibrator
	equator    *equating.Equator
	log        *logger.Logger
}

func NewService(repo Repository, scorer *scoring.Scorer, calibrator *calibration.Calibrator, equator *equating.Equator, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		scorer:     scorer,
		calibrator: calibrator,
		equator:    equator,
		log:        logger.OrNop(log).With("component", "executions"),
	}
}

// ── Scoring ─────────────────────────────────────────────

// Score rejects invalid responses or parameters before anything is recorded.
// The parameter set is stored only once scoring has succeeded.
func (s *Service) Score(ctx context.Context, req models.ScoreRequest) (*models.ScoreResponse, error) {
	check := scoring.ValidateResponses(req.Responses)
	if err := check.Err("responses"); err != nil {
		return nil, err
	}
	var params []models.ItemParameters
	if len(req.Parameters) > 0 {
		params = req.Parameters
		if err := calibration.Validate(params).Err("item parameters"); err != nil {
			return nil, err
		}
	}

	exec, err := s.start(ctx, models.KindScore, req.DatasetName, nil)
	if err != nil {
		return nil, err
	}

	out, err := s.scorer.Process(ctx, req.Responses, params)
	if err != nil {
		return nil, s.fail(ctx, exec, err)
	}
	if params != nil {
		psID, err := s.repo.CreateParameterSet(ctx, datasetName(req.DatasetName)+" parameters", false, params)
		if err != nil {
			return nil, s.fail(ctx, exec, err)
		}
		exec.ParametersSetID = &psID
	}
	if err := s.repo.SaveResults(ctx, exec.ID, out.Students); err != nil {
		return nil, s.fail(ctx, exec, err)
	}
	if err := s.repo.FinishExecution(ctx, exec.ID, models.ExecutionCompleted, exec.ParametersSetID, nil); err != nil {
		return nil, err
	}

	s.log.Info("scoring execution completed", "execution_id", exec.ID, "students", len(out.Students), "warnings", len(out.Warnings))
	return &models.ScoreResponse{
		ExecutionID: exec.ID,
		RunID:       exec.RunID.String(),
		Results:     out.Students,
		Warnings:    append(check.Warnings, out.Warnings...),
	}, nil
}

// ── Calibration ─────────────────────────────────────────

// Calibrate fits item parameters and stores them as a parameter set when
// they pass validation. A response whose Validation is not valid is still
// returned so the caller can report the errors.
func (s *Service) Calibrate(ctx context.Context, req models.CalibrateRequest) (*CalibrateResponse, error) {
	method := req.Method
	if method == "" {
		method = models.MethodML
	}
	if err := calibration.Validate(req.Anchors).Err("anchor parameters"); err != nil {
		return nil, err
	}

	exec, err := s.start(ctx, models.KindCalibrate, req.DatasetName, &method)
	if err != nil {
		return nil, err
	}

	res, err := s.calibrator.Calibrate(ctx, req.Responses, req.Anchors, calibration.Options{Method: method})
	if err != nil {
		return nil, s.fail(ctx, exec, err)
	}

	resp := &CalibrateResponse{
		ExecutionID: exec.ID,
		RunID:       exec.RunID.String(),
		Mode:        res.Mode,
		Method:      res.Method,
		Parameters:  res.Parameters,
		Fits:        res.Fits,
		Validation:  calibration.Validate(res.Parameters),
		Warnings:    res.Warnings,
	}
	if !resp.Validation.Valid {
		notes := fmt.Sprintf("calibration failed validation: %v", resp.Validation.Errors)
		if err := s.repo.FinishExecution(ctx, exec.ID, models.ExecutionFailed, nil, &notes); err != nil {
			return nil, err
		}
		return resp, nil
	}

	psID, err := s.repo.CreateParameterSet(ctx, datasetName(req.DatasetName)+" calibration", false, res.Parameters)
	if err != nil {
		return nil, s.fail(ctx, exec, err)
	}
	resp.ParameterSetID = &psID
	if err := s.repo.FinishExecution(ctx, exec.ID, models.ExecutionCompleted, &psID, nil); err != nil {
		return nil, err
	}

	s.log.Info("calibration execution completed", "execution_id", exec.ID, "parameter_set_id", psID)
	return resp, nil
}

// ── Equating & Parameters ───────────────────────────────

func (s *Service) Equate(req models.EquateRequest) (*equating.Result, error) {
	return s.equator.Equate(
		models.ParameterMap(models.AsAnchors(req.OldAnchors)),
		models.ParameterMap(models.AsAnchors(req.NewAnchors)),
		req.OldParams, req.NewParams,
	)
}

func (s *Service) EquateMultiple(apps []equating.Application) (*equating.MultiResult, error) {
	return s.equator.EquateMultiple(apps)
}

func (s *Service) RecommendAnchors(req models.RecommendRequest) *RecommendResponse {
	return &RecommendResponse{
		Recommendations: s.equator.RecommendAnchors(models.ParameterMap(req.CurrentAnchors), req.Pool, req.Count),
	}
}

func (s *Service) ValidateParameters(params []models.ItemParameters) models.ValidationResult {
	return calibration.Validate(params)
}

// ── History ─────────────────────────────────────────────

func (s *Service) ListExecutions(ctx context.Context, limit, offset int) (*models.ExecutionList, error) {
	execs, err := s.repo.ListExecutions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return &models.ExecutionList{Executions: execs, Limit: limit, Offset: offset}, nil
}

func (s *Service) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	return s.repo.GetExecution(ctx, id)
}

// GetResults returns ErrNotFound when the execution has no stored results.
func (s *Service) GetResults(ctx context.Context, id int64) ([]models.StudentResult, error) {
	results, err := s.repo.ListResults(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results, nil
}

func (s *Service) GetParameterSet(ctx context.Context, id int64) (*models.ParameterSet, error) {
	return s.repo.GetParameterSet(ctx, id)
}

// ── Helpers ─────────────────────────────────────────────

func (s *Service) start(ctx context.Context, kind models.ExecutionKind, name string, method *models.Method) (*models.Execution, error) {
	dsID, err := s.repo.CreateDataset(ctx, datasetName(name))
	if err != nil {
		return nil, err
	}
	exec := &models.Execution{
		RunID:     uuid.New(),
		Kind:      kind,
		DatasetID: &dsID,
		Status:    models.ExecutionRunning,
	}
	if method != nil {
		m := string(*method)
		exec.Method = &m
	}
	if err := s.repo.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// fail marks exec failed and returns cause.
func (s *Service) fail(ctx context.Context, exec *models.Execution, cause error) error {
	notes := cause.Error()
	if err := s.repo.FinishExecution(ctx, exec.ID, models.ExecutionFailed, nil, &notes); err != nil {
		s.log.Error("failed to record execution failure", "execution_id", exec.ID, "error", err)
	}
	s.log.Warn("execution failed", "execution_id", exec.ID, "kind", exec.Kind, "error", cause)
	return cause
}

func datasetName(name string) string {
	if name == "" {
		return defaultDatasetName
	}
	return name
}
