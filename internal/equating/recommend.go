package equating

import (
	"math"
	"sort"

	"github.com/tri-scoring/backend/internal/models"
)

// DefaultAnchorCount is used when a recommendation asks for no specific count.
const DefaultAnchorCount = 10

type Recommendation struct {
	Item         models.ItemParameters `json:"item"`
	QualityScore float64               `json:"quality_score"`
}

// RecommendAnchors ranks pool items that are not already anchors by
// AnchorQuality and returns the best n. Ties go to the lower item id.
func (e *Equator) RecommendAnchors(current map[int]models.ItemParameters, pool []models.ItemParameters, n int) []Recommendation {
	if n <= 0 {
		n = DefaultAnchorCount
	}
	recs := []Recommendation{}
	for _, p := range pool {
		if _, ok := current[p.ItemID]; ok {
			continue
		}
		recs = append(recs, Recommendation{Item: p, QualityScore: AnchorQuality(p)})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].QualityScore != recs[j].QualityScore {
			return recs[i].QualityScore > recs[j].QualityScore
		}
		return recs[i].Item.ItemID < recs[j].Item.ItemID
	})
	if len(recs) > n {
		recs = recs[:n]
	}
	e.log.Info("anchor items recommended", "count", len(recs), "pool", len(pool))
	return recs
}

// AnchorQuality scores an item in [0, 1]: discriminating, mid-difficulty
// items with little guessing make the best anchors.
func AnchorQuality(p models.ItemParameters) float64 {
	var score float64
	if p.A > 0 {
		score += math.Min(p.A/2, 1)
	}
	score += math.Max(1-math.Abs(p.B)/3, 0)
	if p.C <= 0.25 {
		score += 1 - p.C/0.25
	}
	return score / 3
}
