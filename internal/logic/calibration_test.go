package logic

import (
	"math"
	"testing"
)

func TestCalibrate(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{0, 0.21},
		{1, 0.91},
		{0.7, 0.70},
		{0.5, 0.56},
		{-0.4, 0.21},
		{3, 0.91},
		{math.NaN(), 0.70},
	}

	for _, tt := range tests {
		if got := Calibrate(tt.raw); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Calibrate(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestCalibrateMonotoneAndBounded(t *testing.T) {
	prev := Calibrate(0)
	for i := 1; i <= 100; i++ {
		c := Calibrate(float64(i) / 100)
		if c < prev {
			t.Fatalf("not monotone at %d: %v < %v", i, c, prev)
		}
		if c < 0 || c > 1 {
			t.Fatalf("out of range at %d: %v", i, c)
		}
		prev = c
	}
}
