package logic

import "math"

// Confidence calibration constants: raw engine scores are pulled toward a
// fixed prior mean to damp overconfident output.
const (
	CalibrationPriorMean   = 0.7
	CalibrationBlendWeight = 0.3
)

// Calibrate maps a raw engine confidence to the stored confidence:
// (1-w)*raw + w*m. raw is clamped to [0,1] first, so the result stays in
// [0.21, 0.91]. NaN is treated as the prior mean.
func Calibrate(raw float64) float64 {
	if math.IsNaN(raw) {
		raw = CalibrationPriorMean
	}
	raw = math.Max(0, math.Min(1, raw))
	return (1-CalibrationBlendWeight)*raw + CalibrationBlendWeight*CalibrationPriorMean
}
