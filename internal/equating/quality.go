package equating

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tri-scoring/backend/internal/models"
)

var ErrNonInvertible = errors.New("transformation with zero slope or a_scale cannot be inverted")

// Quality compares old parameters with the new ones mapped through the
// inverse transformation. Items are matched by id. A parameter whose
// correlation is undefined (fewer than two matches or a constant column)
// is left out of Correlations and of OverallQuality.
type Quality struct {
	Correlations          map[string]float64 `json:"correlations"`
	MeanDifferences       map[string]float64 `json:"mean_differences"`
	TransformationQuality float64            `json:"transformation_quality"`
	OverallQuality        float64            `json:"overall_quality"`
	MatchedItems          int                `json:"matched_items"`
}

func CalculateQuality(oldParams, newParams []models.ItemParameters, t models.ScaleTransformation) (Quality, error) {
	if t.Slope == 0 || t.AScale == 0 {
		return Quality{}, ErrNonInvertible
	}
	back := models.ParameterMap(t.Inverse().Apply(newParams))

	var olds, news [3][]float64
	for _, o := range oldParams {
		n, ok := back[o.ItemID]
		if !ok {
			continue
		}
		for k, pair := range [3][2]float64{{o.A, n.A}, {o.B, n.B}, {o.C, n.C}} {
			olds[k] = append(olds[k], pair[0])
			news[k] = append(news[k], pair[1])
		}
	}

	q := Quality{
		Correlations:          map[string]float64{},
		MeanDifferences:       map[string]float64{},
		TransformationQuality: t.RSquared,
		MatchedItems:          len(olds[0]),
	}
	if q.MatchedItems == 0 {
		return q, nil
	}

	var sum float64
	for k, name := range [3]string{"a", "b", "c"} {
		var diff float64
		for i := range olds[k] {
			diff += math.Abs(olds[k][i] - news[k][i])
		}
		q.MeanDifferences[name] = diff / float64(q.MatchedItems)

		if q.MatchedItems < 2 {
			continue
		}
		r := stat.Correlation(olds[k], news[k], nil)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		q.Correlations[name] = r
		sum += r
	}
	if len(q.Correlations) > 0 {
		q.OverallQuality = sum / float64(len(q.Correlations))
	}
	return q, nil
}
