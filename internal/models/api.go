package models

// ── Requests ────────────────────────────────────────────

type ScoreRequest struct {
	DatasetName string           `json:"dataset_name" validate:"omitempty,max=255"`
	Responses   []ResponseRecord `json:"responses" validate:"required,min=1,dive"`
	Parameters  []ItemParameters `json:"parameters,omitempty" validate:"omitempty,dive"`
}

type CalibrateRequest struct {
	DatasetName string           `json:"dataset_name" validate:"omitempty,max=255"`
	Responses   []ResponseRecord `json:"responses" validate:"required,min=1,dive"`
	Anchors     []ItemParameters `json:"anchors,omitempty" validate:"omitempty,dive"`
	Method      Method           `json:"method" validate:"omitempty,oneof=ML MLF"`
}

type EquateRequest struct {
	OldAnchors []ItemParameters `json:"old_anchors" validate:"required,min=1,dive"`
	NewAnchors []ItemParameters `json:"new_anchors" validate:"required,min=1,dive"`
	OldParams  []ItemParameters `json:"old_params,omitempty" validate:"omitempty,dive"`
	NewParams  []ItemParameters `json:"new_params" validate:"omitempty,dive"`
}

type RecommendRequest struct {
	CurrentAnchors []ItemParameters `json:"current_anchors" validate:"omitempty,dive"`
	Pool           []ItemParameters `json:"pool" validate:"required,min=1,dive"`
	Count          int              `json:"count" validate:"gte=0,lte=1000"`
}

type ValidateParametersRequest struct {
	Parameters []ItemParameters `json:"parameters" validate:"required,min=1,dive"`
}

// ── Responses ───────────────────────────────────────────

type ScoreResponse struct {
	ExecutionID int64           `json:"execution_id"`
	RunID       string          `json:"run_id"`
	Results     []StudentResult `json:"results"`
	Warnings    []string        `json:"warnings"`
}

type ErrorResponse struct {
	Error      string            `json:"error"`
	Details    []string          `json:"details,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
}
