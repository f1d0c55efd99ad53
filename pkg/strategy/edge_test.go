package strategy

import (
	"math"
	"testing"

	"github.com/brendanplayford/weatheredge/pkg/market"
)

func TestComputeEdge(t *testing.T) {
	tests := []struct {
		name     string
		model    float64
		market   float64
		fee      float64
		slippage float64
		wantEdge float64
		wantEV   float64
	}{
		{"positive edge", 0.40, 0.30, 0.005, 0.003, 0.10, 0.092},
		{"negative edge", 0.25, 0.40, 0.005, 0.003, -0.15, -0.158},
		{"no edge", 0.30, 0.30, 0.01, 0, 0, -0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ComputeEdge(market.Probability{Model: tt.model, Market: tt.market}, tt.fee, tt.slippage)
			if math.Abs(rec.Edge-tt.wantEdge) > 1e-12 {
				t.Errorf("Edge = %v, want %v", rec.Edge, tt.wantEdge)
			}
			if math.Abs(rec.EV-tt.wantEV) > 1e-12 {
				t.Errorf("EV = %v, want %v", rec.EV, tt.wantEV)
			}
		})
	}
}
