package equating

import (
	"fmt"

	"github.com/tri-scoring/backend/internal/models"
)

// Application is one administration's anchors and item parameters.
type Application struct {
	Name    string                  `json:"name"`
	Anchors []models.ItemParameters `json:"anchors" validate:"required,min=1,dive"`
	Params  []models.ItemParameters `json:"params" validate:"dive"`
}

type MultiResult struct {
	ReferenceApplication string                                `json:"reference_application"`
	Transformations      map[string]models.ScaleTransformation `json:"transformations"`
	TransformedParams    map[string][]models.ItemParameters    `json:"transformed_params"`
	Validations          map[string]models.ValidationResult    `json:"validations"`
	Success              bool                                  `json:"success"`
}

// EquateMultiple equates every application onto the first one. Success is
// the conjunction of the individual equatings.
func (e *Equator) EquateMultiple(apps []Application) (*MultiResult, error) {
	if len(apps) < 2 {
		return nil, fmt.Errorf("equate applications: %w (got %d)", ErrTooFewApplications, len(apps))
	}

	ref := apps[0]
	refName := applicationName(ref, 0)
	refAnchors := models.ParameterMap(ref.Anchors)

	out := &MultiResult{
		ReferenceApplication: refName,
		Transformations:      map[string]models.ScaleTransformation{},
		TransformedParams:    map[string][]models.ItemParameters{},
		Validations:          map[string]models.ValidationResult{},
		Success:              true,
	}
	for i, app := range apps[1:] {
		name := applicationName(app, i+1)
		e.log.Info("equating application onto reference", "application", name, "reference", refName)

		res, err := e.Equate(refAnchors, models.ParameterMap(app.Anchors), ref.Params, app.Params)
		if err != nil {
			return nil, fmt.Errorf("application %s: %w", name, err)
		}
		out.Transformations[name] = res.Transformation
		out.TransformedParams[name] = res.TransformedParams
		out.Validations[name] = res.Validation
		if !res.Success {
			e.log.Warn("equating failed for application", "application", name)
			out.Success = false
		}
	}
	return out, nil
}

func applicationName(app Application, i int) string {
	if app.Name != "" {
		return app.Name
	}
	return fmt.Sprintf("application_%d", i)
}
