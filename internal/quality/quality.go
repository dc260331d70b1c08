// Package quality maps categorical data-quality labels to numeric trust
// weights for downstream aggregate weighting.
package quality

import "github.com/gridsight/infra-analytics/internal/model"

// Weights per quality label. Unknown or missing labels fall back to a neutral
// 0.5 so one unlabeled record cannot dominate or vanish from a weighted sum.
const (
	weightLow      = 0.3
	weightMedium   = 0.6
	weightHigh     = 0.8
	weightVerified = 1.0
	weightDefault  = 0.5
)

// Weight returns the trust weight in [0,1] for a quality label. It is a pure
// lookup; the store never applies it automatically.
func Weight(q model.Quality) float64 {
	switch q {
	case model.QualityLow:
		return weightLow
	case model.QualityMedium:
		return weightMedium
	case model.QualityHigh:
		return weightHigh
	case model.QualityVerified:
		return weightVerified
	default:
		return weightDefault
	}
}
