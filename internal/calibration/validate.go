package calibration

import (
	"fmt"
	"math"

	"github.com/tri-scoring/backend/internal/models"
)

// Validate checks a parameter table. Non-positive a or c outside [0, 1] are
// errors; a > 10 or |b| > 5 are warnings only.
func Validate(params []models.ItemParameters) models.ValidationResult {
	v := models.NewValidationResult()

	var badA, badC, highA, extremeB []int
	for _, p := range params {
		if !(p.A > 0) {
			badA = append(badA, p.ItemID)
		}
		if !(p.C >= 0 && p.C <= 1) {
			badC = append(badC, p.ItemID)
		}
		if p.A > 10 {
			highA = append(highA, p.ItemID)
		}
		if math.Abs(p.B) > 5 {
			extremeB = append(extremeB, p.ItemID)
		}
	}

	if len(badA) > 0 {
		v.AddError(fmt.Sprintf("parameter 'a' must be positive (items %v)", badA))
	}
	if len(badC) > 0 {
		v.AddError(fmt.Sprintf("parameter 'c' must be between 0 and 1 (items %v)", badC))
	}
	if len(highA) > 0 {
		v.AddWarning(fmt.Sprintf("parameter 'a' is very high (items %v)", highA))
	}
	if len(extremeB) > 0 {
		v.AddWarning(fmt.Sprintf("parameter 'b' is extreme (items %v)", extremeB))
	}

	v.Metrics = map[string]float64{
		"items":     float64(len(params)),
		"invalid_a": float64(len(badA)),
		"invalid_c": float64(len(badC)),
		"high_a":    float64(len(highA)),
		"extreme_b": float64(len(extremeB)),
	}
	return v
}
