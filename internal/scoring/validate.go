package scoring

import (
	"fmt"

	"github.com/tri-scoring/backend/internal/models"
)

// Response table size limits outside which a warning is raised.
const (
	MinStudents = 10
	MaxStudents = 100000
	MinItems    = 5
	MaxItems    = 100
)

// ValidateResponses checks a response table before it is scored or
// calibrated. Structural problems are errors; unusual sizes and incomplete
// students are warnings.
func ValidateResponses(records []models.ResponseRecord) models.ValidationResult {
	v := models.NewValidationResult()
	if len(records) == 0 {
		v.AddError("response table is empty")
		return v
	}

	type key struct {
		student string
		item    int
	}
	seen := make(map[key]bool, len(records))
	perStudent := map[string]int{}
	items := map[int]bool{}
	var invalid, duplicates int
	for _, r := range records {
		if r.Correct != 0 && r.Correct != 1 {
			invalid++
		}
		k := key{r.StudentID, r.ItemID}
		if seen[k] {
			duplicates++
			continue
		}
		seen[k] = true
		perStudent[r.StudentID]++
		items[r.ItemID] = true
	}
	if invalid > 0 {
		v.AddError(fmt.Sprintf("%d responses have a value other than 0 or 1", invalid))
	}
	if duplicates > 0 {
		v.AddError(fmt.Sprintf("%d duplicate responses for the same student and item", duplicates))
	}

	numStudents, numItems := len(perStudent), len(items)
	switch {
	case numStudents < MinStudents:
		v.AddWarning(fmt.Sprintf("few students (%d)", numStudents))
	case numStudents > MaxStudents:
		v.AddWarning(fmt.Sprintf("many students (%d)", numStudents))
	}
	switch {
	case numItems < MinItems:
		v.AddWarning(fmt.Sprintf("few items (%d)", numItems))
	case numItems > MaxItems:
		v.AddWarning(fmt.Sprintf("many items (%d)", numItems))
	}

	incomplete := 0
	for _, n := range perStudent {
		if n != numItems {
			incomplete++
		}
	}
	if incomplete > 0 {
		v.AddWarning(fmt.Sprintf("%d students with incomplete responses", incomplete))
	}

	v.Metrics = map[string]float64{
		"total_students":      float64(numStudents),
		"total_items":         float64(numItems),
		"total_responses":     float64(len(records)),
		"incomplete_students": float64(incomplete),
		"completeness":        float64(len(seen)) / float64(numStudents*numItems),
	}
	return v
}
