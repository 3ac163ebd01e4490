package geom

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		line       orb.LineString
		wantClosed bool
		wantCenter orb.Point
	}{
		{
			name:       "square ring",
			line:       orb.LineString{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}},
			wantClosed: true,
			wantCenter: orb.Point{1, 1},
		},
		{
			name:       "open segment",
			line:       orb.LineString{{0, 0}, {4, 2}},
			wantClosed: false,
			wantCenter: orb.Point{2, 1},
		},
		{
			name:       "single point",
			line:       orb.LineString{{7.42, 43.73}},
			wantClosed: false,
			wantCenter: orb.Point{7.42, 43.73},
		},
		{
			name:       "out and back",
			line:       orb.LineString{{0, 0}, {2, 0}, {0, 0}},
			wantClosed: true,
			wantCenter: orb.Point{1, 0},
		},
		{
			name:       "repeated point",
			line:       orb.LineString{{3, 4}, {3, 4}},
			wantClosed: true,
			wantCenter: orb.Point{3, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closed, center, err := Analyze(tt.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if closed != tt.wantClosed {
				t.Errorf("closed = %v, want %v", closed, tt.wantClosed)
			}
			if math.Abs(center.X()-tt.wantCenter.X()) > 1e-9 || math.Abs(center.Y()-tt.wantCenter.Y()) > 1e-9 {
				t.Errorf("center = %v, want %v", center, tt.wantCenter)
			}
		})
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	if _, _, err := Analyze(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestAnalyzeNaN(t *testing.T) {
	_, _, err := Analyze(orb.LineString{{math.NaN(), 1}, {2, 2}})
	if err == nil {
		t.Error("expected error for NaN coordinates")
	}
}

func TestLine(t *testing.T) {
	ls := Line([]float64{52.5, 52.6}, []float64{13.4, 13.5})
	if ls[0].Lon() != 13.4 || ls[0].Lat() != 52.5 {
		t.Errorf("expected lon/lat ordering, got %v", ls[0])
	}
	if len(ls) != 2 {
		t.Errorf("expected 2 points, got %d", len(ls))
	}
}
