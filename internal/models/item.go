package models

import (
	"fmt"
	"sort"
	"strings"
)

type Role string

const (
	RoleAnchor     Role = "anchor"
	RoleCalibrated Role = "calibrated"
)

// Method tags which estimation objective produced a calibrated item.
type Method string

const (
	MethodML  Method = "ML"
	MethodMLF Method = "MLF"
)

var ValidMethods = map[Method]bool{
	MethodML:  true,
	MethodMLF: true,
}

// Default parameters used whenever an item cannot be estimated.
const (
	DefaultA = 1.0
	DefaultB = 0.0
	DefaultC = 0.2
)

// FallbackReason tells a caller why an estimate is a default rather than a
// converged optimum.
type FallbackReason string

const (
	FallbackNone                  FallbackReason = "none"
	FallbackInsufficientResponses FallbackReason = "insufficient_responses"
	FallbackNoConvergence         FallbackReason = "no_convergence"
	FallbackInsufficientAnchors   FallbackReason = "insufficient_anchors"
)

type ResponseRecord struct {
	StudentID string `json:"student_id" validate:"required"`
	ItemID    int    `json:"item_id"`
	Correct   int    `json:"correct" validate:"oneof=0 1"`
}

type ItemParameters struct {
	ItemID int     `json:"item_id"`
	A      float64 `json:"a"`
	B      float64 `json:"b"`
	C      float64 `json:"c"`
	Role   Role    `json:"role,omitempty"`
	Method Method  `json:"method,omitempty"`
}

func DefaultItem(itemID int) ItemParameters {
	return ItemParameters{ItemID: itemID, A: DefaultA, B: DefaultB, C: DefaultC}
}

func (p ItemParameters) IsAnchor() bool {
	return p.Role == RoleAnchor
}

// ParameterMap indexes a parameter table by item id. Later rows win.
func ParameterMap(params []ItemParameters) map[int]ItemParameters {
	out := make(map[int]ItemParameters, len(params))
	for _, p := range params {
		out[p.ItemID] = p
	}
	return out
}

// SortedParameters returns the map's values ordered by item id.
func SortedParameters(m map[int]ItemParameters) []ItemParameters {
	out := make([]ItemParameters, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// AsAnchors returns a copy of params with every row tagged as an anchor.
func AsAnchors(params []ItemParameters) []ItemParameters {
	out := make([]ItemParameters, len(params))
	for i, p := range params {
		p.Role = RoleAnchor
		p.Method = ""
		out[i] = p
	}
	return out
}

type StudentResult struct {
	StudentID    string  `json:"student_id"`
	Theta        float64 `json:"theta"`
	Score        float64 `json:"score"`
	CorrectCount int     `json:"correct_count"`
	TotalItems   int     `json:"total_items"`
}

// ScaleTransformation maps parameters estimated on a new scale onto an old one.
type ScaleTransformation struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	AScale    float64 `json:"a_scale"`
	RSquared  float64 `json:"r_squared"`
	StdError  float64 `json:"std_error"`
}

func IdentityTransformation() ScaleTransformation {
	return ScaleTransformation{Slope: 1, Intercept: 0, AScale: 1, RSquared: 1}
}

// Apply returns a transformed copy of params: a *= AScale, b = b*Slope + Intercept.
// c does not drift between administrations and is left unchanged.
func (t ScaleTransformation) Apply(params []ItemParameters) []ItemParameters {
	out := make([]ItemParameters, len(params))
	for i, p := range params {
		p.A *= t.AScale
		p.B = p.B*t.Slope + t.Intercept
		out[i] = p
	}
	return out
}

// Inverse maps the old scale back onto the new one. Slope and AScale must be non-zero.
func (t ScaleTransformation) Inverse() ScaleTransformation {
	return ScaleTransformation{
		Slope:     1.0 / t.Slope,
		Intercept: -t.Intercept / t.Slope,
		AScale:    1.0 / t.AScale,
		RSquared:  t.RSquared,
		StdError:  t.StdError,
	}
}

type ValidationResult struct {
	Valid    bool               `json:"valid"`
	Errors   []string           `json:"errors"`
	Warnings []string           `json:"warnings"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

func NewValidationResult() ValidationResult {
	return ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}
}

func (v *ValidationResult) AddError(msg string) {
	v.Errors = append(v.Errors, msg)
	v.Valid = false
}

func (v *ValidationResult) AddWarning(msg string) {
	v.Warnings = append(v.Warnings, msg)
}

// Err returns a *ValidationError naming subject when v is not valid, nil otherwise.
func (v ValidationResult) Err(subject string) error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Subject: subject, Result: v}
}

// ValidationError rejects caller input that failed a validation pass.
type ValidationError struct {
	Subject string
	Result  ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Result.Errors, "; "))
}
