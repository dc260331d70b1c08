package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridsight/infra-analytics/internal/model"
)

func TestWeight(t *testing.T) {
	tests := []struct {
		name  string
		label model.Quality
		want  float64
	}{
		{"low", model.QualityLow, 0.3},
		{"medium", model.QualityMedium, 0.6},
		{"high", model.QualityHigh, 0.8},
		{"verified", model.QualityVerified, 1.0},
		{"unknown label", model.Quality("platinum"), 0.5},
		{"empty label", model.Quality(""), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Weight(tt.label), 1e-9)
		})
	}
}
